package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/devlinkhq/marketplace-backend/internal/models"
	"github.com/devlinkhq/marketplace-backend/internal/pkg/apperror"
	"github.com/devlinkhq/marketplace-backend/internal/repository"
	"github.com/devlinkhq/marketplace-backend/internal/validation"
)

// ProjectRepository is what ProjectService needs from the storage layer.
type ProjectRepository interface {
	CreateWithMilestones(ctx context.Context, project *models.Project, milestones []models.Milestone) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	GetWithMilestones(ctx context.Context, id uuid.UUID) (*models.Project, error)
	ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]models.Project, error)
	ListByDeveloper(ctx context.Context, developerID uuid.UUID, limit, offset int) ([]models.Project, error)
	ListOpen(ctx context.Context, limit, offset int) ([]models.Project, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, expected, next models.ProjectStatus) error
}

type ProjectService struct {
	repo ProjectRepository
}

type MilestoneInput struct {
	Title             string  `json:"title"`
	DefinitionOfDone  string  `json:"definition_of_done"`
	PaymentPercentage float64 `json:"payment_percentage"`
}

type CreateProjectInput struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	BudgetCents int64            `json:"budget_cents"`
	Currency    string           `json:"currency"`
	Milestones  []MilestoneInput `json:"milestones"`
}

func NewProjectService(repo ProjectRepository) *ProjectService {
	return &ProjectService{repo: repo}
}

// CreateProject validates the input and creates a draft project with its
// milestones. Milestone payment percentages must sum to exactly 100.
func (s *ProjectService) CreateProject(ctx context.Context, actor Identity, in CreateProjectInput) (*models.Project, error) {
	if !actor.IsClient() {
		return nil, apperror.New(apperror.ErrCodeForbidden, "only clients can create projects")
	}
	if err := validation.ValidateLength("title", in.Title, validation.MinTitleLength, validation.MaxTitleLength); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, "invalid title")
	}
	if err := validation.ValidateLength("description", in.Description, 0, validation.MaxDescriptionLength); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeValidation, "invalid description")
	}
	if in.BudgetCents <= 0 {
		return nil, apperror.New(apperror.ErrCodeInvalidAmount, "budget must be positive")
	}

	count := len(in.Milestones)
	if count < models.MinMilestonesPerProject || count > models.MaxMilestonesPerProject {
		return nil, apperror.New(apperror.ErrCodeValidation,
			fmt.Sprintf("projects require between %d and %d milestones",
				models.MinMilestonesPerProject, models.MaxMilestonesPerProject))
	}

	var percentageSum float64
	milestones := make([]models.Milestone, 0, count)
	for i, m := range in.Milestones {
		if err := validation.ValidateLength("milestone title", m.Title, validation.MinTitleLength, validation.MaxTitleLength); err != nil {
			return nil, apperror.Wrap(err, apperror.ErrCodeValidation, "invalid milestone title")
		}
		if m.PaymentPercentage <= 0 || m.PaymentPercentage > 100 {
			return nil, apperror.New(apperror.ErrCodeValidation, "milestone payment percentage must be in (0, 100]")
		}
		percentageSum += m.PaymentPercentage
		milestones = append(milestones, models.Milestone{
			Title:             m.Title,
			DefinitionOfDone:  m.DefinitionOfDone,
			PaymentPercentage: m.PaymentPercentage,
			SortOrder:         i + 1,
		})
	}

	if math.Abs(percentageSum-100) > 1e-6 {
		return nil, apperror.New(apperror.ErrCodeValidation, "milestone payment percentages must sum to 100")
	}

	currency := strings.ToLower(in.Currency)
	if currency == "" {
		currency = "usd"
	}

	project := &models.Project{
		ClientID:    actor.UserID,
		Title:       in.Title,
		Description: in.Description,
		BudgetCents: in.BudgetCents,
		Currency:    currency,
	}

	if err := s.repo.CreateWithMilestones(ctx, project, milestones); err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "could not create project")
	}
	return project, nil
}

// OpenProject publishes a draft so developers can submit proposals. The
// budget is frozen from this point on.
func (s *ProjectService) OpenProject(ctx context.Context, actor Identity, projectID uuid.UUID) (*models.Project, error) {
	project, err := s.getOwned(ctx, actor, projectID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateStatus(ctx, projectID, models.ProjectStatusDraft, models.ProjectStatusOpen); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, apperror.New(apperror.ErrCodeInvalidState, "only draft projects can be opened")
		}
		return nil, err
	}

	project.Status = models.ProjectStatusOpen
	return project, nil
}

// GetProject returns the project with milestones. Open projects are
// public; everything else is restricted to participants and admins.
func (s *ProjectService) GetProject(ctx context.Context, actor Identity, projectID uuid.UUID) (*models.Project, error) {
	project, err := s.repo.GetWithMilestones(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return nil, apperror.ErrProjectNotFound
		}
		return nil, err
	}

	if project.Status == models.ProjectStatusOpen || actor.IsAdmin() ||
		project.IsOwnedBy(actor.UserID) || project.IsAssignedTo(actor.UserID) {
		return project, nil
	}
	return nil, apperror.ErrForbidden
}

func (s *ProjectService) ListOwn(ctx context.Context, actor Identity, limit, offset int) ([]models.Project, error) {
	limit, offset = clampPagination(limit, offset)
	if actor.IsDeveloper() {
		return s.repo.ListByDeveloper(ctx, actor.UserID, limit, offset)
	}
	return s.repo.ListByClient(ctx, actor.UserID, limit, offset)
}

func (s *ProjectService) ListOpen(ctx context.Context, limit, offset int) ([]models.Project, error) {
	limit, offset = clampPagination(limit, offset)
	return s.repo.ListOpen(ctx, limit, offset)
}

func (s *ProjectService) getOwned(ctx context.Context, actor Identity, projectID uuid.UUID) (*models.Project, error) {
	project, err := s.repo.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, repository.ErrProjectNotFound) {
			return nil, apperror.ErrProjectNotFound
		}
		return nil, err
	}
	if !project.IsOwnedBy(actor.UserID) {
		return nil, apperror.ErrForbidden
	}
	return project, nil
}

func clampPagination(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
