package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/devlinkhq/marketplace-backend/internal/commission"
	"github.com/devlinkhq/marketplace-backend/internal/logger"
	"github.com/devlinkhq/marketplace-backend/internal/models"
	"github.com/devlinkhq/marketplace-backend/internal/payments"
	"github.com/devlinkhq/marketplace-backend/internal/pkg/apperror"
	"github.com/devlinkhq/marketplace-backend/internal/repository"
)

// TransactionRepository is what EscrowService needs from the storage layer.
type TransactionRepository interface {
	CreateHold(ctx context.Context, t *models.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	GetActiveByMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.Transaction, error)
	GetLatestByMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.Transaction, error)
	GetMilestoneWithEscrow(ctx context.Context, milestoneID uuid.UUID) (*models.Milestone, *models.Transaction, error)
	SetPaymentRef(ctx context.Context, id uuid.UUID, paymentRef string) error
	SetTransferRef(ctx context.Context, id uuid.UUID, transferRef string) error
	MarkHeld(ctx context.Context, id uuid.UUID) (bool, error)
	MarkCaptured(ctx context.Context, id uuid.UUID) (bool, error)
	MarkReleased(ctx context.Context, id uuid.UUID, transferRef string) (bool, error)
	MarkRefunded(ctx context.Context, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error)
}

// UserReader is the read-only slice of the user store the payment
// services need.
type UserReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// MilestoneProjectStore resolves a milestone together with its project
// for ownership and state checks, and closes out a project once its
// last milestone has been paid out through the retry path.
type MilestoneProjectStore interface {
	GetMilestoneWithProject(ctx context.Context, milestoneID uuid.UUID) (*models.Milestone, *models.Project, error)
	AllMilestonesApproved(ctx context.Context, projectID uuid.UUID) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, expected, next models.ProjectStatus) error
}

// EscrowService owns the money lifecycle of a milestone: funding the
// hold, releasing the payout, and refunding the client. Every mutation
// goes through a conditional update so concurrent calls collapse into
// one winner; the losers see the already-terminal row and either no-op
// or fail with an invalid-state error.
type EscrowService struct {
	transactions TransactionRepository
	milestones   MilestoneProjectStore
	users        UserReader
	processor    payments.Processor
	notifier     Notifier

	commissionRate float64
	currency       string
}

func NewEscrowService(
	transactions TransactionRepository,
	milestones MilestoneProjectStore,
	users UserReader,
	processor payments.Processor,
	notifier Notifier,
	commissionRate float64,
	currency string,
) *EscrowService {
	return &EscrowService{
		transactions:   transactions,
		milestones:     milestones,
		users:          users,
		processor:      processor,
		notifier:       notifier,
		commissionRate: commissionRate,
		currency:       currency,
	}
}

// CreateEscrowHold funds a milestone that is ready for review. The
// pending row is inserted before the processor is called so the partial
// unique index rejects a second concurrent hold before any money moves.
func (s *EscrowService) CreateEscrowHold(ctx context.Context, actor Identity, milestoneID uuid.UUID) (*models.Transaction, error) {
	milestone, project, err := s.milestones.GetMilestoneWithProject(ctx, milestoneID)
	if err != nil {
		if errors.Is(err, repository.ErrMilestoneNotFound) {
			return nil, apperror.ErrMilestoneNotFound
		}
		return nil, err
	}
	if !project.IsOwnedBy(actor.UserID) {
		return nil, apperror.ErrForbidden
	}
	if milestone.Status != models.MilestoneStatusReadyForReview {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "milestone must be ready for review before funding")
	}
	if project.SelectedDeveloperID == nil {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "project has no selected developer")
	}

	developer, err := s.users.GetByID(ctx, *project.SelectedDeveloperID)
	if err != nil {
		return nil, err
	}
	if !developer.CanReceivePayouts() {
		return nil, apperror.New(apperror.ErrCodeNotOnboarded, "developer has not completed payout onboarding")
	}

	client, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if client.StripeCustomerID == nil || client.DefaultPaymentMethodID == nil {
		return nil, apperror.New(apperror.ErrCodeNotOnboarded, "no saved payment method on file")
	}

	amount, err := commission.MilestoneAmount(project.BudgetCents, milestone.PaymentPercentage)
	if err != nil {
		return nil, err
	}
	breakdown, err := commission.Calculate(amount, s.commissionRate)
	if err != nil {
		return nil, err
	}

	tx := &models.Transaction{
		ProjectID:            project.ID,
		MilestoneID:          milestoneID,
		ClientID:             actor.UserID,
		DeveloperID:          developer.ID,
		AmountCents:          breakdown.GrossCents,
		PlatformFeeCents:     breakdown.PlatformFeeCents,
		DeveloperPayoutCents: breakdown.DeveloperPayoutCents,
		Currency:             s.currency,
	}
	if err := s.transactions.CreateHold(ctx, tx); err != nil {
		if errors.Is(err, repository.ErrActiveTransactionExists) {
			return nil, apperror.New(apperror.ErrCodeAlreadyFunded, "milestone is already funded")
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "could not create escrow transaction")
	}

	result, err := s.processor.Authorize(ctx, payments.AuthorizeRequest{
		AmountCents:     tx.AmountCents,
		Currency:        tx.Currency,
		CustomerID:      *client.StripeCustomerID,
		PaymentMethodID: *client.DefaultPaymentMethodID,
		Metadata: map[string]string{
			"transaction_id": tx.ID.String(),
			"milestone_id":   milestoneID.String(),
			"project_id":     project.ID.String(),
		},
	})
	if err != nil {
		if _, markErr := s.transactions.MarkFailed(ctx, tx.ID, err.Error()); markErr != nil {
			logger.Log.WithError(markErr).WithField("transaction_id", tx.ID).
				Error("could not mark failed transaction after authorization error")
		}
		s.notifier.Notify(ctx, actor.UserID, models.NotificationEscrowFailed, map[string]interface{}{
			"milestone_id": milestoneID,
		})
		return nil, apperror.Wrap(err, apperror.ErrCodeProcessorError, "payment authorization failed")
	}

	if err := s.transactions.SetPaymentRef(ctx, tx.ID, result.PaymentRef); err != nil {
		return nil, err
	}
	tx.ExternalPaymentRef = &result.PaymentRef

	if result.Held {
		if _, err := s.transactions.MarkHeld(ctx, tx.ID); err != nil {
			return nil, err
		}
		tx.Status = models.TransactionStatusHeldInEscrow
		s.notifyEscrow(ctx, tx, models.NotificationEscrowFunded)
	} else {
		tx.Status = models.TransactionStatusPending
	}

	logger.Log.WithFields(map[string]interface{}{
		"transaction_id": tx.ID,
		"milestone_id":   milestoneID,
		"amount_cents":   tx.AmountCents,
		"held":           result.Held,
	}).Info("escrow hold created")

	return tx, nil
}

// Release captures the held funds and transfers the developer's share to
// their payout account. The call is idempotent: a released transaction
// returns successfully without touching the processor, and a crash
// between capture and transfer is recovered by re-running Release, which
// detects the existing capture via the processor before transferring. A
// crash after the transfer resumes from the persisted transfer ref, so
// the payout is never issued twice.
func (s *EscrowService) Release(ctx context.Context, txID uuid.UUID) (*models.Transaction, error) {
	tx, err := s.transactions.GetByID(ctx, txID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, apperror.ErrTransactionNotFound
		}
		return nil, err
	}
	return s.release(ctx, tx)
}

// ReleaseByMilestone is the retry entry point: the client or an admin
// re-triggers release for a milestone whose payout did not complete.
func (s *EscrowService) ReleaseByMilestone(ctx context.Context, actor Identity, milestoneID uuid.UUID) (*models.Transaction, error) {
	milestone, project, err := s.milestones.GetMilestoneWithProject(ctx, milestoneID)
	if err != nil {
		if errors.Is(err, repository.ErrMilestoneNotFound) {
			return nil, apperror.ErrMilestoneNotFound
		}
		return nil, err
	}
	if !project.IsOwnedBy(actor.UserID) && !actor.IsAdmin() {
		return nil, apperror.ErrForbidden
	}
	if milestone.Status != models.MilestoneStatusApproved {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "milestone is not approved")
	}

	tx, err := s.transactions.GetActiveByMilestone(ctx, milestoneID)
	if err != nil {
		if !errors.Is(err, repository.ErrNoActiveTransaction) {
			return nil, err
		}
		// No active row left. Either the release already completed, in
		// which case returning the released transaction keeps the call
		// idempotent, or the milestone was never funded.
		released, lookupErr := s.lastReleased(ctx, milestoneID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if released != nil {
			s.completeProjectIfDone(ctx, project.ID)
			return released, nil
		}
		return nil, apperror.New(apperror.ErrCodeInvalidState, "milestone has no funds in escrow")
	}

	released, err := s.release(ctx, tx)
	if err != nil {
		return nil, err
	}
	// A payout that only succeeded on retry may have been the last
	// milestone; the approval-time completion check never ran.
	s.completeProjectIfDone(ctx, project.ID)
	return released, nil
}

func (s *EscrowService) completeProjectIfDone(ctx context.Context, projectID uuid.UUID) {
	done, err := s.milestones.AllMilestonesApproved(ctx, projectID)
	if err != nil {
		logger.Log.WithError(err).WithField("project_id", projectID).
			Error("could not check project completion")
		return
	}
	if !done {
		return
	}
	if err := s.milestones.UpdateStatus(ctx, projectID,
		models.ProjectStatusInProgress, models.ProjectStatusCompleted); err != nil &&
		!errors.Is(err, repository.ErrStatusConflict) {
		logger.Log.WithError(err).WithField("project_id", projectID).
			Error("could not complete project")
	}
}

func (s *EscrowService) release(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	switch tx.Status {
	case models.TransactionStatusReleased:
		return tx, nil
	case models.TransactionStatusHeldInEscrow:
	default:
		return nil, apperror.New(apperror.ErrCodeInvalidState, "only held funds can be released")
	}
	if tx.ExternalPaymentRef == nil {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "transaction has no payment reference")
	}

	// Capture is skipped when the processor already reports the payment
	// as captured, which happens when a previous release attempt died
	// after the capture call.
	if tx.CapturedAt == nil {
		state, err := s.processor.GetPayment(ctx, *tx.ExternalPaymentRef)
		if err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeProcessorError, "could not read payment state")
		}
		if !state.Captured {
			if err := s.processor.Capture(ctx, *tx.ExternalPaymentRef); err != nil {
				return nil, apperror.Wrap(err, apperror.ErrCodeProcessorError, "capture failed")
			}
		}
		if _, err := s.transactions.MarkCaptured(ctx, tx.ID); err != nil {
			return nil, err
		}
	}

	// A transfer ref on a still-held row means a previous attempt paid
	// the developer but died before the status flip; reuse the ref
	// instead of moving money again. The idempotency key guards the
	// same window at the processor side.
	var transferRef string
	if tx.ExternalTransferRef != nil {
		transferRef = *tx.ExternalTransferRef
	} else {
		developer, err := s.users.GetByID(ctx, tx.DeveloperID)
		if err != nil {
			return nil, err
		}
		if developer.StripeAccountID == nil {
			return nil, apperror.New(apperror.ErrCodeNotOnboarded, "developer has no payout account")
		}

		transferRef, err = s.processor.Transfer(ctx, payments.TransferRequest{
			AmountCents:    tx.DeveloperPayoutCents,
			Currency:       tx.Currency,
			DestinationID:  *developer.StripeAccountID,
			IdempotencyKey: "escrow-release-" + tx.ID.String(),
			Metadata: map[string]string{
				"transaction_id": tx.ID.String(),
				"milestone_id":   tx.MilestoneID.String(),
			},
		})
		if err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeProcessorError, "payout transfer failed")
		}
		if err := s.transactions.SetTransferRef(ctx, tx.ID, transferRef); err != nil {
			return nil, err
		}
	}

	updated, err := s.transactions.MarkReleased(ctx, tx.ID, transferRef)
	if err != nil {
		return nil, err
	}
	if !updated {
		// A concurrent release won the conditional update; re-read and
		// return the terminal row.
		return s.transactions.GetByID(ctx, tx.ID)
	}

	tx.Status = models.TransactionStatusReleased
	tx.ExternalTransferRef = &transferRef

	logger.Log.WithFields(map[string]interface{}{
		"transaction_id": tx.ID,
		"milestone_id":   tx.MilestoneID,
		"payout_cents":   tx.DeveloperPayoutCents,
		"transfer_ref":   transferRef,
	}).Info("escrow released")

	s.notifyEscrow(ctx, tx, models.NotificationEscrowReleased)
	return tx, nil
}

// Refund returns held or pending funds to the client. Idempotent: an
// already refunded transaction is returned as-is.
func (s *EscrowService) Refund(ctx context.Context, txID uuid.UUID) (*models.Transaction, error) {
	tx, err := s.transactions.GetByID(ctx, txID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, apperror.ErrTransactionNotFound
		}
		return nil, err
	}

	switch tx.Status {
	case models.TransactionStatusRefunded:
		return tx, nil
	case models.TransactionStatusPending, models.TransactionStatusHeldInEscrow:
	default:
		return nil, apperror.New(apperror.ErrCodeInvalidState, "only pending or held funds can be refunded")
	}

	if tx.ExternalPaymentRef != nil {
		if err := s.processor.Refund(ctx, *tx.ExternalPaymentRef); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeProcessorError, "refund failed")
		}
	}

	updated, err := s.transactions.MarkRefunded(ctx, tx.ID)
	if err != nil {
		return nil, err
	}
	if !updated {
		return s.transactions.GetByID(ctx, tx.ID)
	}

	tx.Status = models.TransactionStatusRefunded

	logger.Log.WithFields(map[string]interface{}{
		"transaction_id": tx.ID,
		"milestone_id":   tx.MilestoneID,
		"amount_cents":   tx.AmountCents,
	}).Info("escrow refunded")

	s.notifyEscrow(ctx, tx, models.NotificationEscrowRefunded)
	return tx, nil
}

// GetMilestoneEscrow returns a milestone's active transaction for the
// project participants.
func (s *EscrowService) GetMilestoneEscrow(ctx context.Context, actor Identity, milestoneID uuid.UUID) (*models.Transaction, error) {
	_, project, err := s.milestones.GetMilestoneWithProject(ctx, milestoneID)
	if err != nil {
		if errors.Is(err, repository.ErrMilestoneNotFound) {
			return nil, apperror.ErrMilestoneNotFound
		}
		return nil, err
	}
	if !project.IsOwnedBy(actor.UserID) && !project.IsAssignedTo(actor.UserID) && !actor.IsAdmin() {
		return nil, apperror.ErrForbidden
	}

	tx, err := s.transactions.GetActiveByMilestone(ctx, milestoneID)
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveTransaction) {
			return nil, apperror.ErrTransactionNotFound
		}
		return nil, err
	}
	return tx, nil
}

// ListOwn returns the transaction history where the actor is either side.
func (s *EscrowService) ListOwn(ctx context.Context, actor Identity, limit, offset int) ([]models.Transaction, error) {
	limit, offset = clampPagination(limit, offset)
	return s.transactions.ListByUser(ctx, actor.UserID, limit, offset)
}

func (s *EscrowService) lastReleased(ctx context.Context, milestoneID uuid.UUID) (*models.Transaction, error) {
	tx, err := s.transactions.GetLatestByMilestone(ctx, milestoneID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if tx.Status == models.TransactionStatusReleased {
		return tx, nil
	}
	return nil, nil
}

func (s *EscrowService) notifyEscrow(ctx context.Context, tx *models.Transaction, event string) {
	data := map[string]interface{}{
		"transaction_id": tx.ID,
		"milestone_id":   tx.MilestoneID,
		"amount_cents":   tx.AmountCents,
	}
	s.notifier.Notify(ctx, tx.ClientID, event, data)
	s.notifier.Notify(ctx, tx.DeveloperID, event, data)
}
