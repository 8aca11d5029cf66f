package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/devlinkhq/marketplace-backend/internal/logger"
	"github.com/devlinkhq/marketplace-backend/internal/models"
	"github.com/devlinkhq/marketplace-backend/internal/pkg/apperror"
	"github.com/devlinkhq/marketplace-backend/internal/repository"
)

// DisputeRepository is what DisputeService needs from the storage layer.
type DisputeRepository interface {
	Create(ctx context.Context, d *models.Dispute) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error)
	ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error)
	Resolve(ctx context.Context, id uuid.UUID, status models.DisputeStatus, verdict string, reviewerID uuid.UUID, decision string) error
	Close(ctx context.Context, id uuid.UUID, reviewerID uuid.UUID, reason string) error
}

// EscrowArbiter is the slice of EscrowService dispute resolution uses to
// dispose of held funds.
type EscrowArbiter interface {
	Release(ctx context.Context, txID uuid.UUID) (*models.Transaction, error)
	Refund(ctx context.Context, txID uuid.UUID) (*models.Transaction, error)
}

// TransactionFinder locates the active hold of a disputed milestone.
type TransactionFinder interface {
	GetActiveByMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.Transaction, error)
}

// MilestoneTransitioner applies the milestone outcome of a verdict.
type MilestoneTransitioner interface {
	UpdateMilestoneStatus(ctx context.Context, id uuid.UUID, expected, next models.MilestoneStatus) error
}

// DisputeService arbitrates contested milestones. Resolution is an
// admin-only operation with two outcomes: the client wins and the funds
// go back, or the developer wins and the funds are paid out. Closing a
// dispute declines to decide and leaves the funds held.
type DisputeService struct {
	disputes     DisputeRepository
	transactions TransactionFinder
	escrow       EscrowArbiter
	milestones   MilestoneTransitioner
	notifier     Notifier
}

func NewDisputeService(
	disputes DisputeRepository,
	transactions TransactionFinder,
	escrow EscrowArbiter,
	milestones MilestoneTransitioner,
	notifier Notifier,
) *DisputeService {
	return &DisputeService{
		disputes:     disputes,
		transactions: transactions,
		escrow:       escrow,
		milestones:   milestones,
		notifier:     notifier,
	}
}

// Resolve decides an open dispute. Verdict "client" refunds the hold and
// rejects the milestone; verdict "developer" releases the payout and
// approves the milestone. The dispute row is flipped first with a
// conditional update, so a concurrent resolve loses cleanly before any
// money moves.
func (s *DisputeService) Resolve(ctx context.Context, actor Identity, disputeID uuid.UUID, verdict, decision string) (*models.Dispute, error) {
	if !actor.IsAdmin() {
		return nil, apperror.New(apperror.ErrCodeForbidden, "only platform admins resolve disputes")
	}
	if verdict != models.VerdictClient && verdict != models.VerdictDeveloper {
		return nil, apperror.New(apperror.ErrCodeValidation, "verdict must be client or developer")
	}

	dispute, err := s.get(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Status != models.DisputeStatusOpen {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "dispute is not open")
	}

	tx, err := s.transactions.GetActiveByMilestone(ctx, dispute.MilestoneID)
	if err != nil {
		if errors.Is(err, repository.ErrNoActiveTransaction) {
			return nil, apperror.New(apperror.ErrCodeInvalidState, "disputed milestone has no funds in escrow")
		}
		return nil, err
	}
	if tx.Status != models.TransactionStatusHeldInEscrow {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "disputed funds are not held in escrow")
	}

	status := models.DisputeStatusResolvedDeveloperWins
	if verdict == models.VerdictClient {
		status = models.DisputeStatusResolvedClientWins
	}

	if err := s.disputes.Resolve(ctx, disputeID, status, verdict, actor.UserID, decision); err != nil {
		if errors.Is(err, repository.ErrDisputeNotOpen) {
			return nil, apperror.New(apperror.ErrCodeInvalidState, "dispute is not open")
		}
		return nil, err
	}

	milestoneOutcome := models.MilestoneStatusApproved
	if verdict == models.VerdictClient {
		milestoneOutcome = models.MilestoneStatusRejected
	}
	if err := s.milestones.UpdateMilestoneStatus(ctx, dispute.MilestoneID,
		models.MilestoneStatusDisputed, milestoneOutcome); err != nil &&
		!errors.Is(err, repository.ErrStatusConflict) {
		return nil, err
	}

	if verdict == models.VerdictClient {
		_, err = s.escrow.Refund(ctx, tx.ID)
	} else {
		_, err = s.escrow.Release(ctx, tx.ID)
	}
	if err != nil {
		// The verdict is recorded; the payout or refund retries through
		// the escrow endpoints. Surface the processor failure to the
		// admin so they know the money has not moved yet.
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"dispute_id":     disputeID,
			"transaction_id": tx.ID,
			"verdict":        verdict,
		}).Error("escrow disposition failed after dispute resolution")
		return nil, err
	}

	dispute.Status = status
	dispute.ReviewerID = &actor.UserID
	dispute.ResolvedInFavorOf = &verdict

	logger.Log.WithFields(map[string]interface{}{
		"dispute_id":   disputeID,
		"milestone_id": dispute.MilestoneID,
		"verdict":      verdict,
	}).Info("dispute resolved")

	data := map[string]interface{}{
		"dispute_id":   disputeID,
		"milestone_id": dispute.MilestoneID,
		"verdict":      verdict,
	}
	s.notifier.Notify(ctx, dispute.ClientID, models.NotificationDisputeResolved, data)
	s.notifier.Notify(ctx, dispute.DeveloperID, models.NotificationDisputeResolved, data)

	return dispute, nil
}

// Close declines to intervene. The milestone stays disputed and the
// funds stay held; the escrow watchdog reports such holds until someone
// deals with them.
func (s *DisputeService) Close(ctx context.Context, actor Identity, disputeID uuid.UUID, reason string) (*models.Dispute, error) {
	if !actor.IsAdmin() {
		return nil, apperror.New(apperror.ErrCodeForbidden, "only platform admins close disputes")
	}

	dispute, err := s.get(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if dispute.Status != models.DisputeStatusOpen {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "dispute is not open")
	}

	if err := s.disputes.Close(ctx, disputeID, actor.UserID, reason); err != nil {
		if errors.Is(err, repository.ErrDisputeNotOpen) {
			return nil, apperror.New(apperror.ErrCodeInvalidState, "dispute is not open")
		}
		return nil, err
	}

	dispute.Status = models.DisputeStatusClosed
	dispute.ReviewerID = &actor.UserID

	data := map[string]interface{}{
		"dispute_id":   disputeID,
		"milestone_id": dispute.MilestoneID,
	}
	s.notifier.Notify(ctx, dispute.ClientID, models.NotificationDisputeClosed, data)
	s.notifier.Notify(ctx, dispute.DeveloperID, models.NotificationDisputeClosed, data)

	return dispute, nil
}

// Get returns a dispute to its participants or an admin.
func (s *DisputeService) Get(ctx context.Context, actor Identity, disputeID uuid.UUID) (*models.Dispute, error) {
	dispute, err := s.get(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	if !dispute.IsParticipant(actor.UserID) && !actor.IsAdmin() {
		return nil, apperror.ErrForbidden
	}
	return dispute, nil
}

// List returns open disputes for admins, or the actor's own disputes.
func (s *DisputeService) List(ctx context.Context, actor Identity, limit, offset int) ([]models.Dispute, error) {
	limit, offset = clampPagination(limit, offset)
	if actor.IsAdmin() {
		return s.disputes.ListOpen(ctx, limit, offset)
	}
	return s.disputes.ListByUser(ctx, actor.UserID, limit, offset)
}

func (s *DisputeService) get(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	dispute, err := s.disputes.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrDisputeNotFound) {
			return nil, apperror.ErrDisputeNotFound
		}
		return nil, err
	}
	return dispute, nil
}
