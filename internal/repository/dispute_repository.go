package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/devlinkhq/marketplace-backend/internal/models"
	"github.com/devlinkhq/marketplace-backend/internal/repository/common"
)

var (
	ErrDisputeNotFound    = errors.New("dispute not found")
	ErrOpenDisputeExists  = errors.New("milestone already has an open dispute")
	ErrDisputeNotOpen     = errors.New("dispute is not open")
)

type DisputeRepository struct {
	db *sqlx.DB
}

func NewDisputeRepository(db *sqlx.DB) *DisputeRepository {
	return &DisputeRepository{db: db}
}

func (r *DisputeRepository) Create(ctx context.Context, d *models.Dispute) error {
	query := `
		INSERT INTO disputes (milestone_id, project_id, client_id, developer_id, reason, status)
		VALUES ($1, $2, $3, $4, $5, 'open')
		RETURNING id, status, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		d.MilestoneID, d.ProjectID, d.ClientID, d.DeveloperID, d.Reason).
		Scan(&d.ID, &d.Status, &d.CreatedAt)
	if err != nil {
		if common.IsUniqueViolation(err, "uq_disputes_open_per_milestone") {
			return ErrOpenDisputeExists
		}
		return fmt.Errorf("dispute repository: create: %w", err)
	}
	return nil
}

func (r *DisputeRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	return common.GetByID[models.Dispute](ctx, r.db, "disputes", id, ErrDisputeNotFound)
}

func (r *DisputeRepository) ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT * FROM disputes WHERE status = 'open' ORDER BY created_at LIMIT $1 OFFSET $2
	`, limit, offset)
	return disputes, err
}

func (r *DisputeRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	var disputes []models.Dispute
	err := r.db.SelectContext(ctx, &disputes, `
		SELECT * FROM disputes
		WHERE client_id = $1 OR developer_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return disputes, err
}

// Resolve records an admin verdict. Conditional on status = 'open':
// terminal disputes are immutable and a second resolution attempt reports
// ErrDisputeNotOpen.
func (r *DisputeRepository) Resolve(ctx context.Context, id uuid.UUID, status models.DisputeStatus, verdict string, reviewerID uuid.UUID, decision string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE disputes
		SET status = $2, resolved_in_favor_of = $3, reviewer_id = $4, reviewer_decision = $5, resolved_at = NOW()
		WHERE id = $1 AND status = 'open'
	`, id, status, verdict, reviewerID, decision)
	if err != nil {
		return fmt.Errorf("dispute repository: resolve: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDisputeNotOpen
	}
	return nil
}

// Close terminates the dispute without a verdict (admin declined to
// intervene). Milestone and transaction state are untouched.
func (r *DisputeRepository) Close(ctx context.Context, id uuid.UUID, reviewerID uuid.UUID, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE disputes
		SET status = 'closed', reviewer_id = $2, reviewer_decision = $3, closed_at = NOW()
		WHERE id = $1 AND status = 'open'
	`, id, reviewerID, reason)
	if err != nil {
		return fmt.Errorf("dispute repository: close: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrDisputeNotOpen
	}
	return nil
}
