package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/devlinkhq/marketplace-backend/internal/models"
	"github.com/devlinkhq/marketplace-backend/internal/repository/common"
)

var (
	ErrTransactionNotFound      = errors.New("transaction not found")
	ErrActiveTransactionExists  = errors.New("milestone already has an active transaction")
	ErrNoActiveTransaction      = errors.New("milestone has no active transaction")
)

type TransactionRepository struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// CreateHold inserts the escrow record. The partial unique index on
// (milestone_id) over non-terminal statuses makes the no-double-funding
// check atomic with the insert: of two concurrent funding attempts one
// gets ErrActiveTransactionExists.
func (r *TransactionRepository) CreateHold(ctx context.Context, t *models.Transaction) error {
	query := `
		INSERT INTO transactions (
			project_id, milestone_id, client_id, developer_id,
			amount_cents, platform_fee_cents, developer_payout_cents, currency,
			status, external_payment_ref, held_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		t.ProjectID, t.MilestoneID, t.ClientID, t.DeveloperID,
		t.AmountCents, t.PlatformFeeCents, t.DeveloperPayoutCents, t.Currency,
		t.Status, t.ExternalPaymentRef, t.HeldAt).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if common.IsUniqueViolation(err, "uq_transactions_active_per_milestone") {
			return ErrActiveTransactionExists
		}
		return fmt.Errorf("transaction repository: create hold: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return common.GetByID[models.Transaction](ctx, r.db, "transactions", id, ErrTransactionNotFound)
}

// GetActiveByMilestone returns the single pending or held transaction for
// the milestone, if any.
func (r *TransactionRepository) GetActiveByMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.Transaction, error) {
	var t models.Transaction
	err := r.db.GetContext(ctx, &t, `
		SELECT * FROM transactions
		WHERE milestone_id = $1 AND status IN ('pending', 'held_in_escrow')
	`, milestoneID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoActiveTransaction
	}
	if err != nil {
		return nil, fmt.Errorf("transaction repository: get active by milestone: %w", err)
	}
	return &t, nil
}

func (r *TransactionRepository) GetByPaymentRef(ctx context.Context, paymentRef string) (*models.Transaction, error) {
	return common.GetByField[models.Transaction](ctx, r.db, "transactions", "external_payment_ref", paymentRef, ErrTransactionNotFound)
}

func (r *TransactionRepository) GetByTransferRef(ctx context.Context, transferRef string) (*models.Transaction, error) {
	return common.GetByField[models.Transaction](ctx, r.db, "transactions", "external_transfer_ref", transferRef, ErrTransactionNotFound)
}

// GetMilestoneWithEscrow reads the milestone and its active transaction
// inside one database transaction, so transition decisions never act on a
// stale cross-entity pair.
func (r *TransactionRepository) GetMilestoneWithEscrow(ctx context.Context, milestoneID uuid.UUID) (*models.Milestone, *models.Transaction, error) {
	var milestone models.Milestone
	var transaction *models.Transaction

	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &milestone, `SELECT * FROM milestones WHERE id = $1`, milestoneID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMilestoneNotFound
		}
		if err != nil {
			return err
		}

		var t models.Transaction
		err = tx.GetContext(ctx, &t, `
			SELECT * FROM transactions
			WHERE milestone_id = $1 AND status IN ('pending', 'held_in_escrow')
		`, milestoneID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		transaction = &t
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &milestone, transaction, nil
}

// GetLatestByMilestone returns the most recent transaction for a
// milestone regardless of status. Used by the release retry path to
// detect an already-completed payout.
func (r *TransactionRepository) GetLatestByMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.Transaction, error) {
	var t models.Transaction
	err := r.db.GetContext(ctx, &t, `
		SELECT * FROM transactions
		WHERE milestone_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, milestoneID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SetPaymentRef attaches the processor correlation id once the hold has
// been authorized.
func (r *TransactionRepository) SetPaymentRef(ctx context.Context, id uuid.UUID, paymentRef string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET external_payment_ref = $2, updated_at = NOW() WHERE id = $1
	`, id, paymentRef)
	return err
}

// SetTransferRef attaches the processor transfer id while the row is
// still held. Written before the released flip so a crashed release can
// be resumed without re-issuing the transfer, and so the transfer.created
// webhook can reconcile a row the local flip never reached.
func (r *TransactionRepository) SetTransferRef(ctx context.Context, id uuid.UUID, transferRef string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET external_transfer_ref = $2, updated_at = NOW() WHERE id = $1
	`, id, transferRef)
	return err
}

// MarkHeld confirms the authorization: pending -> held_in_escrow. Returns
// false without error when the row was not pending anymore, so webhook
// redelivery and a synchronous confirmation racing each other both land
// on the same end state.
func (r *TransactionRepository) MarkHeld(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.conditionalUpdate(ctx, `
		UPDATE transactions SET status = 'held_in_escrow', held_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id)
}

// MarkCaptured stamps the capture step of a release. Guarded on
// captured_at IS NULL so a retried release records it once.
func (r *TransactionRepository) MarkCaptured(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.conditionalUpdate(ctx, `
		UPDATE transactions SET captured_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND captured_at IS NULL
	`, id)
}

// MarkReleased finishes a release: held_in_escrow -> released.
func (r *TransactionRepository) MarkReleased(ctx context.Context, id uuid.UUID, transferRef string) (bool, error) {
	return r.conditionalUpdate(ctx, `
		UPDATE transactions
		SET status = 'released', external_transfer_ref = $2, released_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'held_in_escrow'
	`, id, transferRef)
}

// MarkReleasedByTransferRef is the webhook confirmation path: the local
// release raced the processor callback and may or may not have won.
func (r *TransactionRepository) MarkReleasedByTransferRef(ctx context.Context, transferRef string) (bool, error) {
	return r.conditionalUpdate(ctx, `
		UPDATE transactions
		SET status = 'released', released_at = NOW(), updated_at = NOW()
		WHERE external_transfer_ref = $1 AND status = 'held_in_escrow'
	`, transferRef)
}

// MarkRefunded voids the hold: pending or held -> refunded.
func (r *TransactionRepository) MarkRefunded(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.conditionalUpdate(ctx, `
		UPDATE transactions SET status = 'refunded', refunded_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'held_in_escrow')
	`, id)
}

// MarkFailed records a failed authorization. Terminal; a new escrow hold
// must be created to retry funding.
func (r *TransactionRepository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	return r.conditionalUpdate(ctx, `
		UPDATE transactions SET status = 'failed', failure_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'held_in_escrow')
	`, id, reason)
}

func (r *TransactionRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	var transactions []models.Transaction
	err := r.db.SelectContext(ctx, &transactions, `
		SELECT * FROM transactions
		WHERE client_id = $1 OR developer_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return transactions, err
}

// ListStaleHeld returns held transactions needing operator attention:
// funds held longer than the threshold, or held behind a dispute that an
// admin closed without resolving.
func (r *TransactionRepository) ListStaleHeld(ctx context.Context, heldBefore time.Time) ([]models.Transaction, error) {
	var transactions []models.Transaction
	err := r.db.SelectContext(ctx, &transactions, `
		SELECT t.* FROM transactions t
		WHERE t.status = 'held_in_escrow'
		  AND (
			t.held_at < $1
			OR EXISTS (
				SELECT 1 FROM disputes d
				WHERE d.milestone_id = t.milestone_id AND d.status = 'closed'
			)
		  )
		ORDER BY t.held_at
	`, heldBefore)
	return transactions, err
}

func (r *TransactionRepository) conditionalUpdate(ctx context.Context, query string, args ...interface{}) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("transaction repository: conditional update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
