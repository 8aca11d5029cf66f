package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/devlinkhq/marketplace-backend/internal/models"
	"github.com/devlinkhq/marketplace-backend/internal/repository"
)

type webhookFixture struct {
	events       *mockWebhookEventRepo
	transactions *mockTransactionRepo
	users        *mockUserRepo
	notifier     *recordingNotifier
	svc          *WebhookService
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	f := &webhookFixture{
		events:       new(mockWebhookEventRepo),
		transactions: new(mockTransactionRepo),
		users:        new(mockUserRepo),
		notifier:     &recordingNotifier{},
	}
	f.svc = NewWebhookService(f.events, f.transactions, f.users, f.notifier)
	return f
}

func TestWebhookService_DuplicateEventIgnored(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	now := time.Now()
	f.events.On("Record", ctx, mock.Anything).Return(repository.ErrDuplicateEvent)
	f.events.On("GetByProviderEventID", ctx, "evt_1").Return(&models.WebhookEvent{
		ID:              uuid.New(),
		ProviderEventID: "evt_1",
		ProcessedAt:     &now,
	}, nil)

	err := f.svc.ProcessEvent(ctx, "evt_1", "payment_intent.amount_capturable_updated", []byte(`{"id":"pi_1"}`))
	assert.NoError(t, err)
	f.transactions.AssertNotCalled(t, "GetByPaymentRef", mock.Anything, mock.Anything)
	f.events.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookService_PaymentHeld_ConfirmsPending(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	tx := &models.Transaction{
		ID:          uuid.New(),
		ClientID:    uuid.New(),
		DeveloperID: uuid.New(),
		MilestoneID: uuid.New(),
		Status:      models.TransactionStatusPending,
	}

	f.events.On("Record", ctx, mock.Anything).Return(nil)
	f.events.On("MarkProcessed", ctx, mock.Anything, nil).Return(nil)
	f.transactions.On("GetByPaymentRef", ctx, "pi_1").Return(tx, nil)
	f.transactions.On("MarkHeld", ctx, tx.ID).Return(true, nil)

	err := f.svc.ProcessEvent(ctx, "evt_2", "payment_intent.amount_capturable_updated", []byte(`{"id":"pi_1"}`))
	assert.NoError(t, err)
	assert.True(t, f.notifier.sent(tx.ClientID, models.NotificationEscrowFunded))
	assert.True(t, f.notifier.sent(tx.DeveloperID, models.NotificationEscrowFunded))
}

func TestWebhookService_PaymentHeld_ReplayAfterSyncPath(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	tx := &models.Transaction{ID: uuid.New(), Status: models.TransactionStatusHeldInEscrow}

	f.events.On("Record", ctx, mock.Anything).Return(nil)
	f.events.On("MarkProcessed", ctx, mock.Anything, nil).Return(nil)
	f.transactions.On("GetByPaymentRef", ctx, "pi_1").Return(tx, nil)
	// The synchronous path already flipped the row; the conditional
	// update reports no change and no notification goes out.
	f.transactions.On("MarkHeld", ctx, tx.ID).Return(false, nil)

	err := f.svc.ProcessEvent(ctx, "evt_3", "payment_intent.amount_capturable_updated", []byte(`{"id":"pi_1"}`))
	assert.NoError(t, err)
	assert.Empty(t, f.notifier.events)
}

func TestWebhookService_PaymentFailed(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	tx := &models.Transaction{ID: uuid.New(), ClientID: uuid.New(), Status: models.TransactionStatusPending}

	f.events.On("Record", ctx, mock.Anything).Return(nil)
	f.events.On("MarkProcessed", ctx, mock.Anything, nil).Return(nil)
	f.transactions.On("GetByPaymentRef", ctx, "pi_9").Return(tx, nil)
	f.transactions.On("MarkFailed", ctx, tx.ID, "insufficient funds").Return(true, nil)

	payload := []byte(`{"id":"pi_9","last_payment_error":{"message":"insufficient funds"}}`)
	err := f.svc.ProcessEvent(ctx, "evt_4", "payment_intent.payment_failed", payload)
	assert.NoError(t, err)
	assert.True(t, f.notifier.sent(tx.ClientID, models.NotificationEscrowFailed))
}

func TestWebhookService_TransferCreated_Reconciles(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	f.events.On("Record", ctx, mock.Anything).Return(nil)
	f.events.On("MarkProcessed", ctx, mock.Anything, nil).Return(nil)
	f.transactions.On("MarkReleasedByTransferRef", ctx, "tr_7").Return(true, nil)

	err := f.svc.ProcessEvent(ctx, "evt_5", "transfer.created", []byte(`{"id":"tr_7"}`))
	assert.NoError(t, err)
	f.transactions.AssertExpectations(t)
}

func TestWebhookService_AccountUpdated_EnablesPayouts(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	user := &models.User{ID: uuid.New(), PayoutsEnabled: false}

	f.events.On("Record", ctx, mock.Anything).Return(nil)
	f.events.On("MarkProcessed", ctx, mock.Anything, nil).Return(nil)
	f.users.On("GetByStripeAccountID", ctx, "acct_1").Return(user, nil)
	f.users.On("SetPayoutsEnabled", ctx, user.ID, true).Return(nil)

	payload := []byte(`{"id":"acct_1","details_submitted":true,"charges_enabled":true,"payouts_enabled":true}`)
	err := f.svc.ProcessEvent(ctx, "evt_6", "account.updated", payload)
	assert.NoError(t, err)
	f.users.AssertExpectations(t)
}

func TestWebhookService_AccountUpdated_IncompleteOnboarding(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	user := &models.User{ID: uuid.New(), PayoutsEnabled: false}

	f.events.On("Record", ctx, mock.Anything).Return(nil)
	f.events.On("MarkProcessed", ctx, mock.Anything, nil).Return(nil)
	f.users.On("GetByStripeAccountID", ctx, "acct_1").Return(user, nil)

	payload := []byte(`{"id":"acct_1","details_submitted":true,"charges_enabled":false,"payouts_enabled":true}`)
	err := f.svc.ProcessEvent(ctx, "evt_7", "account.updated", payload)
	assert.NoError(t, err)
	f.users.AssertNotCalled(t, "SetPayoutsEnabled", mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhookService_UnknownEventAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	f.events.On("Record", ctx, mock.Anything).Return(nil)
	f.events.On("MarkProcessed", ctx, mock.Anything, nil).Return(nil)

	err := f.svc.ProcessEvent(ctx, "evt_8", "customer.created", []byte(`{}`))
	assert.NoError(t, err)
}

func TestWebhookService_UnknownPaymentRefIgnored(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	f.events.On("Record", ctx, mock.Anything).Return(nil)
	f.events.On("MarkProcessed", ctx, mock.Anything, nil).Return(nil)
	f.transactions.On("GetByPaymentRef", ctx, "pi_unknown").
		Return(nil, repository.ErrTransactionNotFound)

	err := f.svc.ProcessEvent(ctx, "evt_9", "payment_intent.amount_capturable_updated", []byte(`{"id":"pi_unknown"}`))
	assert.NoError(t, err)
	f.transactions.AssertNotCalled(t, "MarkHeld", mock.Anything, mock.Anything)
}

func TestWebhookService_RedeliveryAfterFailedDispatchReprocesses(t *testing.T) {
	f := newWebhookFixture(t)
	ctx := context.Background()

	tx := &models.Transaction{
		ID:          uuid.New(),
		ClientID:    uuid.New(),
		DeveloperID: uuid.New(),
		MilestoneID: uuid.New(),
		Status:      models.TransactionStatusPending,
	}
	payload := []byte(`{"id":"pi_7"}`)

	// First delivery: the hold confirmation dies on a transient database
	// error. The event row is stamped with the error and the caller
	// reports failure so the provider redelivers.
	f.events.On("Record", ctx, mock.Anything).Return(nil).Once()
	f.transactions.On("GetByPaymentRef", ctx, "pi_7").Return(tx, nil)
	f.transactions.On("MarkHeld", ctx, tx.ID).
		Return(false, errors.New("connection reset")).Once()
	f.events.On("MarkProcessed", ctx, mock.Anything, mock.Anything).Return(nil)

	err := f.svc.ProcessEvent(ctx, "evt_7", "payment_intent.amount_capturable_updated", payload)
	assert.Error(t, err)

	// Redelivery: the stored row carries a processing error, so the
	// handlers run again and the hold is confirmed this time.
	now := time.Now()
	procErr := "connection reset"
	f.events.On("Record", ctx, mock.Anything).Return(repository.ErrDuplicateEvent).Once()
	f.events.On("GetByProviderEventID", ctx, "evt_7").Return(&models.WebhookEvent{
		ID:              uuid.New(),
		ProviderEventID: "evt_7",
		EventType:       "payment_intent.amount_capturable_updated",
		Payload:         payload,
		ProcessedAt:     &now,
		ProcessingError: &procErr,
	}, nil)
	f.transactions.On("MarkHeld", ctx, tx.ID).Return(true, nil).Once()

	err = f.svc.ProcessEvent(ctx, "evt_7", "payment_intent.amount_capturable_updated", payload)
	assert.NoError(t, err)
	f.transactions.AssertNumberOfCalls(t, "MarkHeld", 2)
	assert.True(t, f.notifier.sent(tx.ClientID, models.NotificationEscrowFunded))
}
