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

type proposalFixture struct {
	proposals *mockProposalRepo
	projects  *mockProjectRepo
	notifier  *recordingNotifier
	svc       *ProposalService

	client    Identity
	developer Identity
	project   *models.Project
}

func newProposalFixture(t *testing.T) *proposalFixture {
	t.Helper()

	clientID := uuid.New()
	f := &proposalFixture{
		proposals: new(mockProposalRepo),
		projects:  new(mockProjectRepo),
		notifier:  &recordingNotifier{},
		client:    Identity{UserID: clientID, Role: models.RoleClient},
		developer: Identity{UserID: uuid.New(), Role: models.RoleDeveloper},
		project: &models.Project{
			ID:       uuid.New(),
			ClientID: clientID,
			Status:   models.ProjectStatusOpen,
		},
	}
	f.svc = NewProposalService(f.proposals, f.projects, f.notifier)
	return f
}

func TestProposalService_Submit(t *testing.T) {
	f := newProposalFixture(t)
	ctx := context.Background()

	f.projects.On("GetByID", ctx, f.project.ID).Return(f.project, nil)
	f.proposals.On("Create", ctx, mock.MatchedBy(func(p *models.Proposal) bool {
		return p.ProjectID == f.project.ID && p.DeveloperID == f.developer.UserID
	})).Return(nil)

	proposal, err := f.svc.Submit(ctx, f.developer, f.project.ID, "I can build this")
	assert.NoError(t, err)
	assert.Equal(t, f.developer.UserID, proposal.DeveloperID)
}

func TestProposalService_Submit_ClientForbidden(t *testing.T) {
	f := newProposalFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, f.client, f.project.ID, "")
	assert.True(t, apperror.IsForbidden(err))
}

func TestProposalService_Submit_ProjectNotOpen(t *testing.T) {
	f := newProposalFixture(t)
	ctx := context.Background()
	f.project.Status = models.ProjectStatusInProgress

	f.projects.On("GetByID", ctx, f.project.ID).Return(f.project, nil)

	_, err := f.svc.Submit(ctx, f.developer, f.project.ID, "too late")
	assert.True(t, apperror.IsInvalidState(err))
}

func TestProposalService_Submit_Duplicate(t *testing.T) {
	f := newProposalFixture(t)
	ctx := context.Background()

	f.projects.On("GetByID", ctx, f.project.ID).Return(f.project, nil)
	f.proposals.On("Create", ctx, mock.Anything).Return(repository.ErrDuplicateProposal)

	_, err := f.svc.Submit(ctx, f.developer, f.project.ID, "again")
	assert.Error(t, err)
	code, _ := apperror.CodeOf(err)
	assert.Equal(t, apperror.ErrCodeConflict, code)
}

func TestProposalService_Accept_NotifiesWinnerAndLosers(t *testing.T) {
	f := newProposalFixture(t)
	ctx := context.Background()

	proposal := &models.Proposal{
		ID:          uuid.New(),
		ProjectID:   f.project.ID,
		DeveloperID: f.developer.UserID,
		Status:      models.ProposalStatusPending,
	}
	loserA := uuid.New()
	loserB := uuid.New()

	f.proposals.On("GetByID", ctx, proposal.ID).Return(proposal, nil)
	f.projects.On("GetByID", ctx, f.project.ID).Return(f.project, nil)
	accepted := *proposal
	accepted.Status = models.ProposalStatusAccepted
	f.proposals.On("Accept", ctx, proposal.ID).Return(&repository.AcceptResult{
		Proposal:           &accepted,
		RejectedDevelopers: []uuid.UUID{loserA, loserB},
	}, nil)

	result, err := f.svc.Accept(ctx, f.client, proposal.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.ProposalStatusAccepted, result.Status)
	assert.True(t, f.notifier.sent(f.developer.UserID, models.NotificationProposalAccepted))
	assert.True(t, f.notifier.sent(loserA, models.NotificationProposalRejected))
	assert.True(t, f.notifier.sent(loserB, models.NotificationProposalRejected))
}

func TestProposalService_Accept_OnlyOwner(t *testing.T) {
	f := newProposalFixture(t)
	ctx := context.Background()

	proposal := &models.Proposal{ID: uuid.New(), ProjectID: f.project.ID, Status: models.ProposalStatusPending}

	f.proposals.On("GetByID", ctx, proposal.ID).Return(proposal, nil)
	f.projects.On("GetByID", ctx, f.project.ID).Return(f.project, nil)

	_, err := f.svc.Accept(ctx, f.developer, proposal.ID)
	assert.True(t, apperror.IsForbidden(err))
	f.proposals.AssertNotCalled(t, "Accept", mock.Anything, mock.Anything)
}

func TestProposalService_Accept_SecondAcceptLoses(t *testing.T) {
	f := newProposalFixture(t)
	ctx := context.Background()

	proposal := &models.Proposal{ID: uuid.New(), ProjectID: f.project.ID, Status: models.ProposalStatusPending}

	f.proposals.On("GetByID", ctx, proposal.ID).Return(proposal, nil)
	f.projects.On("GetByID", ctx, f.project.ID).Return(f.project, nil)
	// The conditional project update already moved it out of open, so
	// the storage layer reports the race.
	f.proposals.On("Accept", ctx, proposal.ID).Return(nil, repository.ErrProjectNotOpen)

	_, err := f.svc.Accept(ctx, f.client, proposal.ID)
	assert.True(t, apperror.IsInvalidState(err))
}

func TestProposalService_Withdraw(t *testing.T) {
	f := newProposalFixture(t)
	ctx := context.Background()

	proposal := &models.Proposal{
		ID:          uuid.New(),
		ProjectID:   f.project.ID,
		DeveloperID: f.developer.UserID,
		Status:      models.ProposalStatusPending,
	}

	f.proposals.On("GetByID", ctx, proposal.ID).Return(proposal, nil)
	f.proposals.On("Withdraw", ctx, proposal.ID).Return(nil)

	err := f.svc.Withdraw(ctx, f.developer, proposal.ID)
	assert.NoError(t, err)
}

func TestProposalService_Withdraw_NotAuthor(t *testing.T) {
	f := newProposalFixture(t)
	ctx := context.Background()

	proposal := &models.Proposal{ID: uuid.New(), DeveloperID: uuid.New(), Status: models.ProposalStatusPending}
	f.proposals.On("GetByID", ctx, proposal.ID).Return(proposal, nil)

	err := f.svc.Withdraw(ctx, f.developer, proposal.ID)
	assert.True(t, apperror.IsForbidden(err))
}

func TestProposalService_Withdraw_NotPending(t *testing.T) {
	f := newProposalFixture(t)
	ctx := context.Background()

	proposal := &models.Proposal{
		ID:          uuid.New(),
		DeveloperID: f.developer.UserID,
		Status:      models.ProposalStatusAccepted,
	}
	f.proposals.On("GetByID", ctx, proposal.ID).Return(proposal, nil)
	f.proposals.On("Withdraw", ctx, proposal.ID).Return(repository.ErrProposalNotPending)

	err := f.svc.Withdraw(ctx, f.developer, proposal.ID)
	assert.True(t, apperror.IsInvalidState(err))
}
