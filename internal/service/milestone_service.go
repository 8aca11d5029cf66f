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

// MilestoneRepository is the milestone slice of the project store.
type MilestoneRepository interface {
	GetMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
	GetMilestoneWithProject(ctx context.Context, milestoneID uuid.UUID) (*models.Milestone, *models.Project, error)
	UpdateMilestoneStatus(ctx context.Context, id uuid.UUID, expected, next models.MilestoneStatus) error
	AllMilestonesApproved(ctx context.Context, projectID uuid.UUID) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, expected, next models.ProjectStatus) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
}

// DisputeWriter opens dispute records when a client contests a milestone.
type DisputeWriter interface {
	Create(ctx context.Context, d *models.Dispute) error
}

// EscrowReleaser is the slice of EscrowService the milestone workflow
// needs to trigger a payout on approval.
type EscrowReleaser interface {
	Release(ctx context.Context, txID uuid.UUID) (*models.Transaction, error)
}

// MilestoneEscrowReader reads a milestone together with its active
// transaction atomically, so approval decisions never act on a stale
// pair.
type MilestoneEscrowReader interface {
	GetMilestoneWithEscrow(ctx context.Context, milestoneID uuid.UUID) (*models.Milestone, *models.Transaction, error)
}

// MilestoneService drives milestone transitions. Approval is the only
// transition with a money side effect: it requires funds held in escrow
// and triggers their release.
type MilestoneService struct {
	projects MilestoneRepository
	escrow   MilestoneEscrowReader
	releaser EscrowReleaser
	disputes DisputeWriter
	notifier Notifier
}

func NewMilestoneService(
	projects MilestoneRepository,
	escrow MilestoneEscrowReader,
	releaser EscrowReleaser,
	disputes DisputeWriter,
	notifier Notifier,
) *MilestoneService {
	return &MilestoneService{
		projects: projects,
		escrow:   escrow,
		releaser: releaser,
		disputes: disputes,
		notifier: notifier,
	}
}

// Start moves a pending milestone into in_progress. Only the bound
// developer may start work.
func (s *MilestoneService) Start(ctx context.Context, actor Identity, milestoneID uuid.UUID) error {
	milestone, _, err := s.getForDeveloper(ctx, actor, milestoneID)
	if err != nil {
		return err
	}

	if err := s.projects.UpdateMilestoneStatus(ctx, milestone.ID,
		models.MilestoneStatusPending, models.MilestoneStatusInProgress); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return apperror.New(apperror.ErrCodeInvalidState, "milestone is not pending")
		}
		return err
	}
	return nil
}

// MarkReadyForReview submits the milestone deliverable for the client's
// review. Work that was never explicitly started may be submitted
// straight from pending.
func (s *MilestoneService) MarkReadyForReview(ctx context.Context, actor Identity, milestoneID uuid.UUID) error {
	milestone, project, err := s.getForDeveloper(ctx, actor, milestoneID)
	if err != nil {
		return err
	}

	err = s.projects.UpdateMilestoneStatus(ctx, milestone.ID,
		models.MilestoneStatusInProgress, models.MilestoneStatusReadyForReview)
	if errors.Is(err, repository.ErrStatusConflict) {
		err = s.projects.UpdateMilestoneStatus(ctx, milestone.ID,
			models.MilestoneStatusPending, models.MilestoneStatusReadyForReview)
	}
	if err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return apperror.New(apperror.ErrCodeInvalidState, "milestone cannot be submitted for review")
		}
		return err
	}

	s.notifier.Notify(ctx, project.ClientID, models.NotificationMilestoneReady, map[string]interface{}{
		"project_id":   project.ID,
		"milestone_id": milestoneID,
	})
	return nil
}

// Approve accepts the deliverable and releases the escrowed funds to the
// developer. The milestone must be ready_for_review with an active hold.
// Approval of the last milestone completes the project.
func (s *MilestoneService) Approve(ctx context.Context, actor Identity, milestoneID uuid.UUID) (*models.Transaction, error) {
	milestone, project, err := s.getForClient(ctx, actor, milestoneID)
	if err != nil {
		return nil, err
	}

	if milestone.Status != models.MilestoneStatusReadyForReview {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "milestone is not awaiting review")
	}

	_, tx, err := s.escrow.GetMilestoneWithEscrow(ctx, milestoneID)
	if err != nil {
		if errors.Is(err, repository.ErrMilestoneNotFound) {
			return nil, apperror.ErrMilestoneNotFound
		}
		return nil, err
	}
	if tx == nil || tx.Status != models.TransactionStatusHeldInEscrow {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "milestone has no funds held in escrow")
	}

	if err := s.projects.UpdateMilestoneStatus(ctx, milestoneID,
		models.MilestoneStatusReadyForReview, models.MilestoneStatusApproved); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, apperror.New(apperror.ErrCodeInvalidState, "milestone state changed, retry")
		}
		return nil, err
	}

	released, err := s.releaser.Release(ctx, tx.ID)
	if err != nil {
		// The approval stands; the payout is retried through the
		// release endpoint or the reconciliation webhook.
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"milestone_id":   milestoneID,
			"transaction_id": tx.ID,
		}).Error("escrow release failed after approval")
		return nil, err
	}

	if project.SelectedDeveloperID != nil {
		s.notifier.Notify(ctx, *project.SelectedDeveloperID, models.NotificationMilestoneApproved, map[string]interface{}{
			"project_id":   project.ID,
			"milestone_id": milestoneID,
		})
	}

	s.completeProjectIfDone(ctx, project.ID)
	return released, nil
}

// DisputeMilestone contests a deliverable in review. The milestone moves
// to disputed and an open dispute record is created for arbitration.
// Funds stay held until the dispute is decided.
func (s *MilestoneService) DisputeMilestone(ctx context.Context, actor Identity, milestoneID uuid.UUID, reason string) (*models.Dispute, error) {
	milestone, project, err := s.getForClient(ctx, actor, milestoneID)
	if err != nil {
		return nil, err
	}
	if milestone.Status != models.MilestoneStatusReadyForReview {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "only milestones in review can be disputed")
	}
	if project.SelectedDeveloperID == nil {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "project has no selected developer")
	}
	if reason == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "dispute reason is required")
	}

	if err := s.projects.UpdateMilestoneStatus(ctx, milestoneID,
		models.MilestoneStatusReadyForReview, models.MilestoneStatusDisputed); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, apperror.New(apperror.ErrCodeInvalidState, "milestone state changed, retry")
		}
		return nil, err
	}

	dispute := &models.Dispute{
		MilestoneID: milestoneID,
		ProjectID:   project.ID,
		ClientID:    project.ClientID,
		DeveloperID: *project.SelectedDeveloperID,
		Reason:      reason,
	}
	if err := s.disputes.Create(ctx, dispute); err != nil {
		if errors.Is(err, repository.ErrOpenDisputeExists) {
			return nil, apperror.New(apperror.ErrCodeConflict, "milestone already has an open dispute")
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "could not open dispute")
	}

	s.notifier.Notify(ctx, dispute.DeveloperID, models.NotificationMilestoneDisputed, map[string]interface{}{
		"project_id":   project.ID,
		"milestone_id": milestoneID,
		"dispute_id":   dispute.ID,
	})

	logger.Log.WithFields(map[string]interface{}{
		"milestone_id": milestoneID,
		"dispute_id":   dispute.ID,
	}).Info("milestone disputed")

	return dispute, nil
}

func (s *MilestoneService) completeProjectIfDone(ctx context.Context, projectID uuid.UUID) {
	done, err := s.projects.AllMilestonesApproved(ctx, projectID)
	if err != nil {
		logger.Log.WithError(err).WithField("project_id", projectID).
			Error("could not check project completion")
		return
	}
	if !done {
		return
	}
	if err := s.projects.UpdateStatus(ctx, projectID,
		models.ProjectStatusInProgress, models.ProjectStatusCompleted); err != nil &&
		!errors.Is(err, repository.ErrStatusConflict) {
		logger.Log.WithError(err).WithField("project_id", projectID).
			Error("could not complete project")
	}
}

func (s *MilestoneService) getForDeveloper(ctx context.Context, actor Identity, milestoneID uuid.UUID) (*models.Milestone, *models.Project, error) {
	milestone, project, err := s.getPair(ctx, milestoneID)
	if err != nil {
		return nil, nil, err
	}
	if !project.IsAssignedTo(actor.UserID) {
		return nil, nil, apperror.ErrForbidden
	}
	return milestone, project, nil
}

func (s *MilestoneService) getForClient(ctx context.Context, actor Identity, milestoneID uuid.UUID) (*models.Milestone, *models.Project, error) {
	milestone, project, err := s.getPair(ctx, milestoneID)
	if err != nil {
		return nil, nil, err
	}
	if !project.IsOwnedBy(actor.UserID) && !actor.IsAdmin() {
		return nil, nil, apperror.ErrForbidden
	}
	return milestone, project, nil
}

func (s *MilestoneService) getPair(ctx context.Context, milestoneID uuid.UUID) (*models.Milestone, *models.Project, error) {
	milestone, project, err := s.projects.GetMilestoneWithProject(ctx, milestoneID)
	if err != nil {
		if errors.Is(err, repository.ErrMilestoneNotFound) {
			return nil, nil, apperror.ErrMilestoneNotFound
		}
		return nil, nil, err
	}
	return milestone, project, nil
}
