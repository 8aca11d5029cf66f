package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/devlinkhq/marketplace-backend/internal/logger"
	"github.com/devlinkhq/marketplace-backend/internal/models"
	"github.com/devlinkhq/marketplace-backend/internal/pkg/apperror"
	"github.com/devlinkhq/marketplace-backend/internal/repository"
	"github.com/devlinkhq/marketplace-backend/internal/validation"
)

// ProposalRepository is what ProposalService needs from the storage layer.
type ProposalRepository interface {
	Create(ctx context.Context, p *models.Proposal) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Proposal, error)
	ListByDeveloper(ctx context.Context, developerID uuid.UUID, limit, offset int) ([]models.Proposal, error)
	Withdraw(ctx context.Context, id uuid.UUID) error
	Accept(ctx context.Context, proposalID uuid.UUID) (*repository.AcceptResult, error)
}

type ProposalService struct {
	repo     ProposalRepository
	projects ProjectRepository
	notifier Notifier
}

func NewProposalService(repo ProposalRepository, projects ProjectRepository, notifier Notifier) *ProposalService {
	return &ProposalService{repo: repo, projects: projects, notifier: notifier}
}

// Submit creates a pending proposal from a developer on an open project.
func (s *ProposalService) Submit(ctx context.Context, actor Identity, projectID uuid.UUID, coverLetter string) (*models.Proposal, error) {
	if !actor.IsDeveloper() {
		return nil, apperror.New(apperror.ErrCodeForbidden, "only developers can submit proposals")
	}
	if err := validation.ValidateLength("cover letter", coverLetter, 0, validation.MaxDescriptionLength); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, "invalid cover letter")
	}

	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return nil, apperror.ErrProjectNotFound
		}
		return nil, err
	}
	if project.Status != models.ProjectStatusOpen {
		return nil, apperror.New(apperror.ErrCodeInvalidState, "project is not accepting proposals")
	}
	if project.IsOwnedBy(actor.UserID) {
		return nil, apperror.New(apperror.ErrCodeForbidden, "cannot submit a proposal on own project")
	}

	proposal := &models.Proposal{
		ProjectID:   projectID,
		DeveloperID: actor.UserID,
		CoverLetter: coverLetter,
	}
	if err := s.repo.Create(ctx, proposal); err != nil {
		if errors.Is(err, repository.ErrDuplicateProposal) {
			return nil, apperror.New(apperror.ErrCodeConflict, "you already submitted a proposal on this project")
		}
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "could not create proposal")
	}
	return proposal, nil
}

// Withdraw retracts a pending proposal. Only the author may withdraw.
func (s *ProposalService) Withdraw(ctx context.Context, actor Identity, proposalID uuid.UUID) error {
	proposal, err := s.getProposal(ctx, proposalID)
	if err != nil {
		return err
	}
	if proposal.DeveloperID != actor.UserID {
		return apperror.ErrForbidden
	}

	if err := s.repo.Withdraw(ctx, proposalID); err != nil {
		if errors.Is(err, repository.ErrProposalNotPending) {
			return apperror.New(apperror.ErrCodeInvalidState, "only pending proposals can be withdrawn")
		}
		return err
	}
	return nil
}

// Accept picks the winning proposal for a project. The project moves to
// in_progress with the winning developer bound to it, and every other
// pending proposal is rejected in the same transaction. Both the winner
// and the rejected developers are notified.
func (s *ProposalService) Accept(ctx context.Context, actor Identity, proposalID uuid.UUID) (*models.Proposal, error) {
	proposal, err := s.getProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	project, err := s.projects.GetByID(ctx, proposal.ProjectID)
	if err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return nil, apperror.ErrProjectNotFound
		}
		return nil, err
	}
	if !project.IsOwnedBy(actor.UserID) {
		return nil, apperror.ErrForbidden
	}

	result, err := s.repo.Accept(ctx, proposalID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrProposalNotPending):
			return nil, apperror.New(apperror.ErrCodeInvalidState, "proposal is no longer pending")
		case errors.Is(err, repository.ErrProjectNotOpen):
			return nil, apperror.New(apperror.ErrCodeInvalidState, "project already has an accepted proposal")
		case errors.Is(err, repository.ErrProposalNotFound):
			return nil, apperror.ErrProposalNotFound
		}
		return nil, err
	}

	logger.Log.WithFields(map[string]interface{}{
		"project_id":  proposal.ProjectID,
		"proposal_id": proposalID,
		"developer":   result.Proposal.DeveloperID,
		"rejected":    len(result.RejectedDevelopers),
	}).Info("proposal accepted")

	s.notifier.Notify(ctx, result.Proposal.DeveloperID, models.NotificationProposalAccepted, map[string]interface{}{
		"project_id":  proposal.ProjectID,
		"proposal_id": proposalID,
	})
	for _, devID := range result.RejectedDevelopers {
		s.notifier.Notify(ctx, devID, models.NotificationProposalRejected, map[string]interface{}{
			"project_id": proposal.ProjectID,
		})
	}

	return result.Proposal, nil
}

// ListForProject returns all proposals on a project. Restricted to the
// project owner and admins.
func (s *ProposalService) ListForProject(ctx context.Context, actor Identity, projectID uuid.UUID) ([]models.Proposal, error) {
	project, err := s.projects.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return nil, apperror.ErrProjectNotFound
		}
		return nil, err
	}
	if !project.IsOwnedBy(actor.UserID) && !actor.IsAdmin() {
		return nil, apperror.ErrForbidden
	}
	return s.repo.ListByProject(ctx, projectID)
}

func (s *ProposalService) ListOwn(ctx context.Context, actor Identity, limit, offset int) ([]models.Proposal, error) {
	limit, offset = clampPagination(limit, offset)
	return s.repo.ListByDeveloper(ctx, actor.UserID, limit, offset)
}

func (s *ProposalService) getProposal(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	proposal, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrProposalNotFound) {
			return nil, apperror.ErrProposalNotFound
		}
		return nil, err
	}
	return proposal, nil
}
