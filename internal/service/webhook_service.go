package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/devlinkhq/marketplace-backend/internal/logger"
	"github.com/devlinkhq/marketplace-backend/internal/models"
	"github.com/devlinkhq/marketplace-backend/internal/repository"
)

// WebhookEventRecorder persists processor events for dedup and audit.
type WebhookEventRecorder interface {
	Record(ctx context.Context, e *models.WebhookEvent) error
	GetByProviderEventID(ctx context.Context, providerEventID string) (*models.WebhookEvent, error)
	MarkProcessed(ctx context.Context, e *models.WebhookEvent, procErr error) error
}

// WebhookTransactionStore is the transaction slice the reconciliation
// path needs. All writes are conditional status flips, so replays and
// races with the synchronous path are harmless.
type WebhookTransactionStore interface {
	GetByPaymentRef(ctx context.Context, paymentRef string) (*models.Transaction, error)
	MarkHeld(ctx context.Context, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	MarkReleasedByTransferRef(ctx context.Context, transferRef string) (bool, error)
}

// WebhookUserStore flips payout capability flags from account events.
type WebhookUserStore interface {
	GetByStripeAccountID(ctx context.Context, accountID string) (*models.User, error)
	SetPayoutsEnabled(ctx context.Context, userID uuid.UUID, enabled bool) error
}

// WebhookService reconciles database state with asynchronous processor
// events. Events are deduplicated by provider event id; a duplicate is
// acknowledged without reprocessing. Unknown event types are logged and
// acknowledged so the processor stops retrying them.
type WebhookService struct {
	events       WebhookEventRecorder
	transactions WebhookTransactionStore
	users        WebhookUserStore
	notifier     Notifier
}

func NewWebhookService(
	events WebhookEventRecorder,
	transactions WebhookTransactionStore,
	users WebhookUserStore,
	notifier Notifier,
) *WebhookService {
	return &WebhookService{
		events:       events,
		transactions: transactions,
		users:        users,
		notifier:     notifier,
	}
}

// Event types the reconciliation path reacts to.
const (
	eventPaymentHeld     = "payment_intent.amount_capturable_updated"
	eventPaymentFailed   = "payment_intent.payment_failed"
	eventTransferCreated = "transfer.created"
	eventAccountUpdated  = "account.updated"
)

type paymentIntentPayload struct {
	ID               string `json:"id"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type transferPayload struct {
	ID string `json:"id"`
}

type accountPayload struct {
	ID               string `json:"id"`
	DetailsSubmitted bool   `json:"details_submitted"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
}

// ProcessEvent handles one verified processor event. The raw object
// payload is the processor's data.object document. A nil return means
// the event may be acknowledged. A redelivery of an event whose earlier
// dispatch failed runs the handlers again; only a successfully processed
// event returns nil without side effects.
func (s *WebhookService) ProcessEvent(ctx context.Context, eventID, eventType string, payload []byte) error {
	record := &models.WebhookEvent{
		ProviderEventID: eventID,
		EventType:       eventType,
		Payload:         payload,
	}
	if err := s.events.Record(ctx, record); err != nil {
		if !errors.Is(err, repository.ErrDuplicateEvent) {
			return err
		}
		existing, lookupErr := s.events.GetByProviderEventID(ctx, eventID)
		if lookupErr != nil {
			return lookupErr
		}
		if existing.Processed() {
			logger.Log.WithField("event_id", eventID).Debug("duplicate webhook event ignored")
			return nil
		}
		// The earlier delivery failed mid-dispatch and the provider is
		// retrying; give the handlers another run against the stored row.
		record = existing
	}

	procErr := s.dispatch(ctx, eventType, payload)
	if err := s.events.MarkProcessed(ctx, record, procErr); err != nil {
		logger.Log.WithError(err).WithField("event_id", eventID).
			Error("could not stamp webhook event")
	}
	return procErr
}

func (s *WebhookService) dispatch(ctx context.Context, eventType string, payload []byte) error {
	switch eventType {
	case eventPaymentHeld:
		return s.handlePaymentHeld(ctx, payload)
	case eventPaymentFailed:
		return s.handlePaymentFailed(ctx, payload)
	case eventTransferCreated:
		return s.handleTransferCreated(ctx, payload)
	case eventAccountUpdated:
		return s.handleAccountUpdated(ctx, payload)
	default:
		logger.Log.WithField("event_type", eventType).Debug("unhandled webhook event type")
		return nil
	}
}

// handlePaymentHeld confirms an authorization: pending -> held_in_escrow.
// If the synchronous path already marked the row held, the conditional
// update is a no-op.
func (s *WebhookService) handlePaymentHeld(ctx context.Context, payload []byte) error {
	var pi paymentIntentPayload
	if err := json.Unmarshal(payload, &pi); err != nil {
		return fmt.Errorf("decode payment intent: %w", err)
	}

	tx, err := s.transactions.GetByPaymentRef(ctx, pi.ID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			logger.Log.WithField("payment_ref", pi.ID).Warn("webhook for unknown payment")
			return nil
		}
		return err
	}

	updated, err := s.transactions.MarkHeld(ctx, tx.ID)
	if err != nil {
		return err
	}
	if updated {
		data := map[string]interface{}{
			"transaction_id": tx.ID,
			"milestone_id":   tx.MilestoneID,
			"amount_cents":   tx.AmountCents,
		}
		s.notifier.Notify(ctx, tx.ClientID, models.NotificationEscrowFunded, data)
		s.notifier.Notify(ctx, tx.DeveloperID, models.NotificationEscrowFunded, data)
		logger.Log.WithField("transaction_id", tx.ID).Info("escrow hold confirmed by webhook")
	}
	return nil
}

func (s *WebhookService) handlePaymentFailed(ctx context.Context, payload []byte) error {
	var pi paymentIntentPayload
	if err := json.Unmarshal(payload, &pi); err != nil {
		return fmt.Errorf("decode payment intent: %w", err)
	}

	tx, err := s.transactions.GetByPaymentRef(ctx, pi.ID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil
		}
		return err
	}

	reason := "payment failed"
	if pi.LastPaymentError != nil && pi.LastPaymentError.Message != "" {
		reason = pi.LastPaymentError.Message
	}

	updated, err := s.transactions.MarkFailed(ctx, tx.ID, reason)
	if err != nil {
		return err
	}
	if updated {
		s.notifier.Notify(ctx, tx.ClientID, models.NotificationEscrowFailed, map[string]interface{}{
			"transaction_id": tx.ID,
			"milestone_id":   tx.MilestoneID,
			"reason":         reason,
		})
		logger.Log.WithFields(map[string]interface{}{
			"transaction_id": tx.ID,
			"reason":         reason,
		}).Warn("escrow hold failed")
	}
	return nil
}

// handleTransferCreated reconciles a payout that completed at the
// processor but whose released flip was lost to a crash. The transfer
// ref is persisted on the held row before the flip, so the ref in the
// event matches the stranded row.
func (s *WebhookService) handleTransferCreated(ctx context.Context, payload []byte) error {
	var tr transferPayload
	if err := json.Unmarshal(payload, &tr); err != nil {
		return fmt.Errorf("decode transfer: %w", err)
	}

	updated, err := s.transactions.MarkReleasedByTransferRef(ctx, tr.ID)
	if err != nil {
		return err
	}
	if updated {
		logger.Log.WithField("transfer_ref", tr.ID).Info("escrow release reconciled by webhook")
	}
	return nil
}

// handleAccountUpdated mirrors the connected account's capability flags
// onto the developer's payout eligibility.
func (s *WebhookService) handleAccountUpdated(ctx context.Context, payload []byte) error {
	var acct accountPayload
	if err := json.Unmarshal(payload, &acct); err != nil {
		return fmt.Errorf("decode account: %w", err)
	}

	user, err := s.users.GetByStripeAccountID(ctx, acct.ID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return err
	}

	enabled := acct.DetailsSubmitted && acct.ChargesEnabled && acct.PayoutsEnabled
	if user.PayoutsEnabled == enabled {
		return nil
	}
	if err := s.users.SetPayoutsEnabled(ctx, user.ID, enabled); err != nil {
		return err
	}

	logger.Log.WithFields(map[string]interface{}{
		"user_id": user.ID,
		"enabled": enabled,
	}).Info("payout eligibility updated")
	return nil
}
