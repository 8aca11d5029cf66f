package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/devlinkhq/marketplace-backend/internal/models"
	"github.com/devlinkhq/marketplace-backend/internal/repository/common"
)

var (
	ErrDuplicateEvent = errors.New("webhook event already recorded")
	ErrEventNotFound  = errors.New("webhook event not found")
)

type WebhookEventRepository struct {
	db *sqlx.DB
}

func NewWebhookEventRepository(db *sqlx.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Record stores a delivery before processing. ErrDuplicateEvent means the
// provider redelivered an event we have already recorded; whether it
// still needs processing is decided from the stored row.
func (r *WebhookEventRepository) Record(ctx context.Context, e *models.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (provider_event_id, event_type, payload)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, e.ProviderEventID, e.EventType, e.Payload).
		Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		if common.IsUniqueViolation(err, "webhook_events_provider_event_id_key") {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("webhook event repository: record: %w", err)
	}
	return nil
}

// GetByProviderEventID loads a recorded delivery, processed or not.
func (r *WebhookEventRepository) GetByProviderEventID(ctx context.Context, providerEventID string) (*models.WebhookEvent, error) {
	var e models.WebhookEvent
	err := r.db.GetContext(ctx, &e, `
		SELECT * FROM webhook_events WHERE provider_event_id = $1
	`, providerEventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("webhook event repository: get by provider event id: %w", err)
	}
	return &e, nil
}

// MarkProcessed stamps the outcome of processing; procErr is nil on
// success.
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, e *models.WebhookEvent, procErr error) error {
	var errText *string
	if procErr != nil {
		s := procErr.Error()
		errText = &s
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_events SET processed_at = NOW(), processing_error = $2 WHERE id = $1
	`, e.ID, errText)
	return err
}
