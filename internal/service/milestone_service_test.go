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

type milestoneFixture struct {
	projects *mockProjectRepo
	escrow   *mockTransactionRepo
	releaser *mockEscrowArbiter
	disputes *mockDisputeRepo
	notifier *recordingNotifier
	svc      *MilestoneService

	client    Identity
	developer Identity
	project   *models.Project
	milestone *models.Milestone
}

func newMilestoneFixture(t *testing.T) *milestoneFixture {
	t.Helper()

	clientID := uuid.New()
	developerID := uuid.New()
	projectID := uuid.New()

	f := &milestoneFixture{
		projects:  new(mockProjectRepo),
		escrow:    new(mockTransactionRepo),
		releaser:  new(mockEscrowArbiter),
		disputes:  new(mockDisputeRepo),
		notifier:  &recordingNotifier{},
		client:    Identity{UserID: clientID, Role: models.RoleClient},
		developer: Identity{UserID: developerID, Role: models.RoleDeveloper},
		project: &models.Project{
			ID:                  projectID,
			ClientID:            clientID,
			Status:              models.ProjectStatusInProgress,
			SelectedDeveloperID: &developerID,
		},
		milestone: &models.Milestone{
			ID:        uuid.New(),
			ProjectID: projectID,
			Status:    models.MilestoneStatusPending,
		},
	}

	f.svc = NewMilestoneService(f.projects, f.escrow, f.releaser, f.disputes, f.notifier)
	return f
}

func (f *milestoneFixture) stubPair(ctx context.Context) {
	f.projects.On("GetMilestoneWithProject", ctx, f.milestone.ID).Return(f.milestone, f.project, nil)
}

func TestMilestoneService_Start(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()
	f.stubPair(ctx)

	f.projects.On("UpdateMilestoneStatus", ctx, f.milestone.ID,
		models.MilestoneStatusPending, models.MilestoneStatusInProgress).Return(nil)

	err := f.svc.Start(ctx, f.developer, f.milestone.ID)
	assert.NoError(t, err)
	f.projects.AssertExpectations(t)
}

func TestMilestoneService_Start_NotAssignedDeveloper(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()
	f.stubPair(ctx)

	other := Identity{UserID: uuid.New(), Role: models.RoleDeveloper}
	err := f.svc.Start(ctx, other, f.milestone.ID)
	assert.True(t, apperror.IsForbidden(err))
}

func TestMilestoneService_MarkReadyForReview_FromInProgress(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()
	f.milestone.Status = models.MilestoneStatusInProgress
	f.stubPair(ctx)

	f.projects.On("UpdateMilestoneStatus", ctx, f.milestone.ID,
		models.MilestoneStatusInProgress, models.MilestoneStatusReadyForReview).Return(nil)

	err := f.svc.MarkReadyForReview(ctx, f.developer, f.milestone.ID)
	assert.NoError(t, err)
	assert.True(t, f.notifier.sent(f.client.UserID, models.NotificationMilestoneReady))
}

func TestMilestoneService_MarkReadyForReview_FromPending(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()
	f.stubPair(ctx)

	f.projects.On("UpdateMilestoneStatus", ctx, f.milestone.ID,
		models.MilestoneStatusInProgress, models.MilestoneStatusReadyForReview).
		Return(repository.ErrStatusConflict)
	f.projects.On("UpdateMilestoneStatus", ctx, f.milestone.ID,
		models.MilestoneStatusPending, models.MilestoneStatusReadyForReview).Return(nil)

	err := f.svc.MarkReadyForReview(ctx, f.developer, f.milestone.ID)
	assert.NoError(t, err)
}

func TestMilestoneService_MarkReadyForReview_Terminal(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()
	f.milestone.Status = models.MilestoneStatusApproved
	f.stubPair(ctx)

	f.projects.On("UpdateMilestoneStatus", ctx, f.milestone.ID,
		mock.Anything, models.MilestoneStatusReadyForReview).
		Return(repository.ErrStatusConflict)

	err := f.svc.MarkReadyForReview(ctx, f.developer, f.milestone.ID)
	assert.True(t, apperror.IsInvalidState(err))
}

func TestMilestoneService_Approve_ReleasesEscrow(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()
	f.milestone.Status = models.MilestoneStatusReadyForReview
	f.stubPair(ctx)

	held := &models.Transaction{
		ID:          uuid.New(),
		MilestoneID: f.milestone.ID,
		Status:      models.TransactionStatusHeldInEscrow,
	}
	released := &models.Transaction{ID: held.ID, Status: models.TransactionStatusReleased}

	f.escrow.On("GetMilestoneWithEscrow", ctx, f.milestone.ID).Return(f.milestone, held, nil)
	f.projects.On("UpdateMilestoneStatus", ctx, f.milestone.ID,
		models.MilestoneStatusReadyForReview, models.MilestoneStatusApproved).Return(nil)
	f.releaser.On("Release", ctx, held.ID).Return(released, nil)
	f.projects.On("AllMilestonesApproved", ctx, f.project.ID).Return(false, nil)

	tx, err := f.svc.Approve(ctx, f.client, f.milestone.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.TransactionStatusReleased, tx.Status)
	assert.True(t, f.notifier.sent(f.developer.UserID, models.NotificationMilestoneApproved))
	f.releaser.AssertExpectations(t)
}

func TestMilestoneService_Approve_LastMilestoneCompletesProject(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()
	f.milestone.Status = models.MilestoneStatusReadyForReview
	f.stubPair(ctx)

	held := &models.Transaction{ID: uuid.New(), Status: models.TransactionStatusHeldInEscrow}

	f.escrow.On("GetMilestoneWithEscrow", ctx, f.milestone.ID).Return(f.milestone, held, nil)
	f.projects.On("UpdateMilestoneStatus", ctx, f.milestone.ID,
		models.MilestoneStatusReadyForReview, models.MilestoneStatusApproved).Return(nil)
	f.releaser.On("Release", ctx, held.ID).
		Return(&models.Transaction{ID: held.ID, Status: models.TransactionStatusReleased}, nil)
	f.projects.On("AllMilestonesApproved", ctx, f.project.ID).Return(true, nil)
	f.projects.On("UpdateStatus", ctx, f.project.ID,
		models.ProjectStatusInProgress, models.ProjectStatusCompleted).Return(nil)

	_, err := f.svc.Approve(ctx, f.client, f.milestone.ID)
	assert.NoError(t, err)
	f.projects.AssertCalled(t, "UpdateStatus", ctx, f.project.ID,
		models.ProjectStatusInProgress, models.ProjectStatusCompleted)
}

func TestMilestoneService_Approve_DeveloperForbidden(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()
	f.milestone.Status = models.MilestoneStatusReadyForReview
	f.stubPair(ctx)

	// The developer delivering the work cannot approve their own payout.
	_, err := f.svc.Approve(ctx, f.developer, f.milestone.ID)
	assert.True(t, apperror.IsForbidden(err))
	f.releaser.AssertNotCalled(t, "Release", mock.Anything, mock.Anything)
}

func TestMilestoneService_Approve_NoEscrow(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()
	f.milestone.Status = models.MilestoneStatusReadyForReview
	f.stubPair(ctx)

	f.escrow.On("GetMilestoneWithEscrow", ctx, f.milestone.ID).Return(f.milestone, nil, nil)

	_, err := f.svc.Approve(ctx, f.client, f.milestone.ID)
	assert.True(t, apperror.IsInvalidState(err))
	f.projects.AssertNotCalled(t, "UpdateMilestoneStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMilestoneService_Approve_NotReadyForReview(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()
	f.milestone.Status = models.MilestoneStatusInProgress
	f.stubPair(ctx)

	_, err := f.svc.Approve(ctx, f.client, f.milestone.ID)
	assert.True(t, apperror.IsInvalidState(err))
}

func TestMilestoneService_DisputeMilestone(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()
	f.milestone.Status = models.MilestoneStatusReadyForReview
	f.stubPair(ctx)

	f.projects.On("UpdateMilestoneStatus", ctx, f.milestone.ID,
		models.MilestoneStatusReadyForReview, models.MilestoneStatusDisputed).Return(nil)
	f.disputes.On("Create", ctx, mock.MatchedBy(func(d *models.Dispute) bool {
		return d.MilestoneID == f.milestone.ID &&
			d.ClientID == f.client.UserID &&
			d.DeveloperID == f.developer.UserID &&
			d.Reason == "deliverable incomplete"
	})).Return(nil)

	dispute, err := f.svc.DisputeMilestone(ctx, f.client, f.milestone.ID, "deliverable incomplete")
	assert.NoError(t, err)
	assert.NotNil(t, dispute)
	assert.True(t, f.notifier.sent(f.developer.UserID, models.NotificationMilestoneDisputed))
}

func TestMilestoneService_DisputeMilestone_RequiresReason(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()
	f.milestone.Status = models.MilestoneStatusReadyForReview
	f.stubPair(ctx)

	_, err := f.svc.DisputeMilestone(ctx, f.client, f.milestone.ID, "")
	assert.True(t, apperror.IsValidation(err))
}

func TestMilestoneService_DisputeMilestone_WrongState(t *testing.T) {
	f := newMilestoneFixture(t)
	ctx := context.Background()
	f.stubPair(ctx)

	_, err := f.svc.DisputeMilestone(ctx, f.client, f.milestone.ID, "too slow")
	assert.True(t, apperror.IsInvalidState(err))
	f.disputes.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}
