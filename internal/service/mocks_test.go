package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/devlinkhq/marketplace-backend/internal/models"
	"github.com/devlinkhq/marketplace-backend/internal/payments"
	"github.com/devlinkhq/marketplace-backend/internal/repository"
)

type mockProjectRepo struct {
	mock.Mock
}

func (m *mockProjectRepo) CreateWithMilestones(ctx context.Context, project *models.Project, milestones []models.Milestone) error {
	args := m.Called(ctx, project, milestones)
	return args.Error(0)
}

func (m *mockProjectRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Project), args.Error(1)
}

func (m *mockProjectRepo) GetWithMilestones(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Project), args.Error(1)
}

func (m *mockProjectRepo) ListByClient(ctx context.Context, clientID uuid.UUID, limit, offset int) ([]models.Project, error) {
	args := m.Called(ctx, clientID, limit, offset)
	return args.Get(0).([]models.Project), args.Error(1)
}

func (m *mockProjectRepo) ListByDeveloper(ctx context.Context, developerID uuid.UUID, limit, offset int) ([]models.Project, error) {
	args := m.Called(ctx, developerID, limit, offset)
	return args.Get(0).([]models.Project), args.Error(1)
}

func (m *mockProjectRepo) ListOpen(ctx context.Context, limit, offset int) ([]models.Project, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]models.Project), args.Error(1)
}

func (m *mockProjectRepo) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next models.ProjectStatus) error {
	args := m.Called(ctx, id, expected, next)
	return args.Error(0)
}

func (m *mockProjectRepo) GetMilestone(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Milestone), args.Error(1)
}

func (m *mockProjectRepo) GetMilestoneWithProject(ctx context.Context, milestoneID uuid.UUID) (*models.Milestone, *models.Project, error) {
	args := m.Called(ctx, milestoneID)
	var milestone *models.Milestone
	var project *models.Project
	if args.Get(0) != nil {
		milestone = args.Get(0).(*models.Milestone)
	}
	if args.Get(1) != nil {
		project = args.Get(1).(*models.Project)
	}
	return milestone, project, args.Error(2)
}

func (m *mockProjectRepo) UpdateMilestoneStatus(ctx context.Context, id uuid.UUID, expected, next models.MilestoneStatus) error {
	args := m.Called(ctx, id, expected, next)
	return args.Error(0)
}

func (m *mockProjectRepo) AllMilestonesApproved(ctx context.Context, projectID uuid.UUID) (bool, error) {
	args := m.Called(ctx, projectID)
	return args.Bool(0), args.Error(1)
}

type mockProposalRepo struct {
	mock.Mock
}

func (m *mockProposalRepo) Create(ctx context.Context, p *models.Proposal) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *mockProposalRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Proposal), args.Error(1)
}

func (m *mockProposalRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.Proposal, error) {
	args := m.Called(ctx, projectID)
	return args.Get(0).([]models.Proposal), args.Error(1)
}

func (m *mockProposalRepo) ListByDeveloper(ctx context.Context, developerID uuid.UUID, limit, offset int) ([]models.Proposal, error) {
	args := m.Called(ctx, developerID, limit, offset)
	return args.Get(0).([]models.Proposal), args.Error(1)
}

func (m *mockProposalRepo) Withdraw(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockProposalRepo) Accept(ctx context.Context, proposalID uuid.UUID) (*repository.AcceptResult, error) {
	args := m.Called(ctx, proposalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.AcceptResult), args.Error(1)
}

type mockTransactionRepo struct {
	mock.Mock
}

func (m *mockTransactionRepo) CreateHold(ctx context.Context, t *models.Transaction) error {
	args := m.Called(ctx, t)
	if args.Error(0) == nil && t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *mockTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *mockTransactionRepo) GetActiveByMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.Transaction, error) {
	args := m.Called(ctx, milestoneID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *mockTransactionRepo) GetLatestByMilestone(ctx context.Context, milestoneID uuid.UUID) (*models.Transaction, error) {
	args := m.Called(ctx, milestoneID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *mockTransactionRepo) GetByPaymentRef(ctx context.Context, paymentRef string) (*models.Transaction, error) {
	args := m.Called(ctx, paymentRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *mockTransactionRepo) GetMilestoneWithEscrow(ctx context.Context, milestoneID uuid.UUID) (*models.Milestone, *models.Transaction, error) {
	args := m.Called(ctx, milestoneID)
	var milestone *models.Milestone
	var tx *models.Transaction
	if args.Get(0) != nil {
		milestone = args.Get(0).(*models.Milestone)
	}
	if args.Get(1) != nil {
		tx = args.Get(1).(*models.Transaction)
	}
	return milestone, tx, args.Error(2)
}

func (m *mockTransactionRepo) SetPaymentRef(ctx context.Context, id uuid.UUID, paymentRef string) error {
	args := m.Called(ctx, id, paymentRef)
	return args.Error(0)
}

func (m *mockTransactionRepo) SetTransferRef(ctx context.Context, id uuid.UUID, transferRef string) error {
	args := m.Called(ctx, id, transferRef)
	return args.Error(0)
}

func (m *mockTransactionRepo) MarkHeld(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockTransactionRepo) MarkCaptured(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockTransactionRepo) MarkReleased(ctx context.Context, id uuid.UUID, transferRef string) (bool, error) {
	args := m.Called(ctx, id, transferRef)
	return args.Bool(0), args.Error(1)
}

func (m *mockTransactionRepo) MarkReleasedByTransferRef(ctx context.Context, transferRef string) (bool, error) {
	args := m.Called(ctx, transferRef)
	return args.Bool(0), args.Error(1)
}

func (m *mockTransactionRepo) MarkRefunded(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *mockTransactionRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string) (bool, error) {
	args := m.Called(ctx, id, reason)
	return args.Bool(0), args.Error(1)
}

func (m *mockTransactionRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]models.Transaction), args.Error(1)
}

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserRepo) GetByStripeAccountID(ctx context.Context, accountID string) (*models.User, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUserRepo) SetPayoutsEnabled(ctx context.Context, userID uuid.UUID, enabled bool) error {
	args := m.Called(ctx, userID, enabled)
	return args.Error(0)
}

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) Authorize(ctx context.Context, req payments.AuthorizeRequest) (payments.AuthorizeResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(payments.AuthorizeResult), args.Error(1)
}

func (m *mockProcessor) GetPayment(ctx context.Context, paymentRef string) (payments.PaymentState, error) {
	args := m.Called(ctx, paymentRef)
	return args.Get(0).(payments.PaymentState), args.Error(1)
}

func (m *mockProcessor) Capture(ctx context.Context, paymentRef string) error {
	args := m.Called(ctx, paymentRef)
	return args.Error(0)
}

func (m *mockProcessor) Transfer(ctx context.Context, req payments.TransferRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockProcessor) Refund(ctx context.Context, paymentRef string) error {
	args := m.Called(ctx, paymentRef)
	return args.Error(0)
}

func (m *mockProcessor) GetAccount(ctx context.Context, accountID string) (payments.Account, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(payments.Account), args.Error(1)
}

type mockDisputeRepo struct {
	mock.Mock
}

func (m *mockDisputeRepo) Create(ctx context.Context, d *models.Dispute) error {
	args := m.Called(ctx, d)
	if args.Error(0) == nil && d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *mockDisputeRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Dispute, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) ListOpen(ctx context.Context, limit, offset int) ([]models.Dispute, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Dispute, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]models.Dispute), args.Error(1)
}

func (m *mockDisputeRepo) Resolve(ctx context.Context, id uuid.UUID, status models.DisputeStatus, verdict string, reviewerID uuid.UUID, decision string) error {
	args := m.Called(ctx, id, status, verdict, reviewerID, decision)
	return args.Error(0)
}

func (m *mockDisputeRepo) Close(ctx context.Context, id uuid.UUID, reviewerID uuid.UUID, reason string) error {
	args := m.Called(ctx, id, reviewerID, reason)
	return args.Error(0)
}

type mockWebhookEventRepo struct {
	mock.Mock
}

func (m *mockWebhookEventRepo) Record(ctx context.Context, e *models.WebhookEvent) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *mockWebhookEventRepo) GetByProviderEventID(ctx context.Context, providerEventID string) (*models.WebhookEvent, error) {
	args := m.Called(ctx, providerEventID)
	if e, ok := args.Get(0).(*models.WebhookEvent); ok {
		return e, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockWebhookEventRepo) MarkProcessed(ctx context.Context, e *models.WebhookEvent, procErr error) error {
	args := m.Called(ctx, e, procErr)
	return args.Error(0)
}

type mockEscrowArbiter struct {
	mock.Mock
}

func (m *mockEscrowArbiter) Release(ctx context.Context, txID uuid.UUID) (*models.Transaction, error) {
	args := m.Called(ctx, txID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *mockEscrowArbiter) Refund(ctx context.Context, txID uuid.UUID) (*models.Transaction, error) {
	args := m.Called(ctx, txID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

// recordingNotifier captures pushed notifications so tests can assert
// who was told what, without mock expectation noise.
type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedNotification
}

type recordedNotification struct {
	UserID uuid.UUID
	Event  string
}

func (n *recordingNotifier) Notify(ctx context.Context, userID uuid.UUID, event string, data interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedNotification{UserID: userID, Event: event})
}

func (n *recordingNotifier) sent(userID uuid.UUID, event string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e.UserID == userID && e.Event == event {
			return true
		}
	}
	return false
}
