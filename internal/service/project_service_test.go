package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/devlinkhq/marketplace-backend/internal/models"
	"github.com/devlinkhq/marketplace-backend/internal/pkg/apperror"
	"github.com/devlinkhq/marketplace-backend/internal/repository"
)

func validProjectInput() CreateProjectInput {
	return CreateProjectInput{
		Title:       "Marketplace API",
		Description: "Backend for the marketplace",
		BudgetCents: 100000,
		Currency:    "USD",
		Milestones: []MilestoneInput{
			{Title: "Data model", DefinitionOfDone: "schema agreed", PaymentPercentage: 30},
			{Title: "Core endpoints", DefinitionOfDone: "CRUD deployed", PaymentPercentage: 40},
			{Title: "Payments", DefinitionOfDone: "escrow flow live", PaymentPercentage: 30},
		},
	}
}

func TestProjectService_CreateProject(t *testing.T) {
	repo := new(mockProjectRepo)
	svc := NewProjectService(repo)
	ctx := context.Background()
	client := Identity{UserID: uuid.New(), Role: models.RoleClient}

	repo.On("CreateWithMilestones", ctx, mock.MatchedBy(func(p *models.Project) bool {
		return p.ClientID == client.UserID && p.BudgetCents == 100000 && p.Currency == "usd"
	}), mock.MatchedBy(func(ms []models.Milestone) bool {
		return len(ms) == 3 && ms[0].SortOrder == 1 && ms[2].SortOrder == 3
	})).Return(nil)

	project, err := svc.CreateProject(ctx, client, validProjectInput())
	assert.NoError(t, err)
	assert.Equal(t, client.UserID, project.ClientID)
	repo.AssertExpectations(t)
}

func TestProjectService_CreateProject_DeveloperForbidden(t *testing.T) {
	svc := NewProjectService(new(mockProjectRepo))
	ctx := context.Background()
	dev := Identity{UserID: uuid.New(), Role: models.RoleDeveloper}

	_, err := svc.CreateProject(ctx, dev, validProjectInput())
	assert.True(t, apperror.IsForbidden(err))
}

func TestProjectService_CreateProject_MilestoneCountBounds(t *testing.T) {
	svc := NewProjectService(new(mockProjectRepo))
	ctx := context.Background()
	client := Identity{UserID: uuid.New(), Role: models.RoleClient}

	in := validProjectInput()
	in.Milestones = in.Milestones[:2]
	_, err := svc.CreateProject(ctx, client, in)
	assert.True(t, apperror.IsValidation(err))

	in = validProjectInput()
	in.Milestones = []MilestoneInput{
		{Title: "M1", PaymentPercentage: 20}, {Title: "M2", PaymentPercentage: 20},
		{Title: "M3", PaymentPercentage: 20}, {Title: "M4", PaymentPercentage: 20},
		{Title: "M5", PaymentPercentage: 10}, {Title: "M6", PaymentPercentage: 10},
	}
	_, err = svc.CreateProject(ctx, client, in)
	assert.True(t, apperror.IsValidation(err))
}

func TestProjectService_CreateProject_PercentagesMustSumTo100(t *testing.T) {
	svc := NewProjectService(new(mockProjectRepo))
	ctx := context.Background()
	client := Identity{UserID: uuid.New(), Role: models.RoleClient}

	in := validProjectInput()
	in.Milestones[2].PaymentPercentage = 25
	_, err := svc.CreateProject(ctx, client, in)
	assert.True(t, apperror.IsValidation(err))
}

func TestProjectService_CreateProject_FractionalPercentages(t *testing.T) {
	repo := new(mockProjectRepo)
	svc := NewProjectService(repo)
	ctx := context.Background()
	client := Identity{UserID: uuid.New(), Role: models.RoleClient}

	in := validProjectInput()
	in.Milestones = []MilestoneInput{
		{Title: "First", PaymentPercentage: 33.3},
		{Title: "Second", PaymentPercentage: 33.3},
		{Title: "Third", PaymentPercentage: 33.4},
	}
	repo.On("CreateWithMilestones", ctx, mock.Anything, mock.Anything).Return(nil)

	_, err := svc.CreateProject(ctx, client, in)
	assert.NoError(t, err)
}

func TestProjectService_CreateProject_NonPositiveBudget(t *testing.T) {
	svc := NewProjectService(new(mockProjectRepo))
	ctx := context.Background()
	client := Identity{UserID: uuid.New(), Role: models.RoleClient}

	in := validProjectInput()
	in.BudgetCents = 0
	_, err := svc.CreateProject(ctx, client, in)
	code, _ := apperror.CodeOf(err)
	assert.Equal(t, apperror.ErrCodeInvalidAmount, code)
}

func TestProjectService_OpenProject(t *testing.T) {
	repo := new(mockProjectRepo)
	svc := NewProjectService(repo)
	ctx := context.Background()
	client := Identity{UserID: uuid.New(), Role: models.RoleClient}

	project := &models.Project{ID: uuid.New(), ClientID: client.UserID, Status: models.ProjectStatusDraft}
	repo.On("GetByID", ctx, project.ID).Return(project, nil)
	repo.On("UpdateStatus", ctx, project.ID,
		models.ProjectStatusDraft, models.ProjectStatusOpen).Return(nil)

	opened, err := svc.OpenProject(ctx, client, project.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.ProjectStatusOpen, opened.Status)
}

func TestProjectService_OpenProject_AlreadyOpen(t *testing.T) {
	repo := new(mockProjectRepo)
	svc := NewProjectService(repo)
	ctx := context.Background()
	client := Identity{UserID: uuid.New(), Role: models.RoleClient}

	project := &models.Project{ID: uuid.New(), ClientID: client.UserID, Status: models.ProjectStatusOpen}
	repo.On("GetByID", ctx, project.ID).Return(project, nil)
	repo.On("UpdateStatus", ctx, project.ID,
		models.ProjectStatusDraft, models.ProjectStatusOpen).Return(repository.ErrStatusConflict)

	_, err := svc.OpenProject(ctx, client, project.ID)
	assert.True(t, apperror.IsInvalidState(err))
}

func TestProjectService_GetProject_Visibility(t *testing.T) {
	repo := new(mockProjectRepo)
	svc := NewProjectService(repo)
	ctx := context.Background()

	owner := Identity{UserID: uuid.New(), Role: models.RoleClient}
	devID := uuid.New()
	project := &models.Project{
		ID:                  uuid.New(),
		ClientID:            owner.UserID,
		Status:              models.ProjectStatusInProgress,
		SelectedDeveloperID: &devID,
	}
	repo.On("GetWithMilestones", ctx, project.ID).Return(project, nil)

	_, err := svc.GetProject(ctx, owner, project.ID)
	assert.NoError(t, err)

	_, err = svc.GetProject(ctx, Identity{UserID: devID, Role: models.RoleDeveloper}, project.ID)
	assert.NoError(t, err)

	_, err = svc.GetProject(ctx, Identity{UserID: uuid.New(), Role: models.RoleDeveloper}, project.ID)
	assert.True(t, apperror.IsForbidden(err))
}
