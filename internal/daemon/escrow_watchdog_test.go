package daemon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/devlinkhq/marketplace-backend/internal/models"
)

type fakeStaleLister struct {
	stale []models.Transaction
}

func (f *fakeStaleLister) ListStaleHeld(ctx context.Context, heldBefore time.Time) ([]models.Transaction, error) {
	return f.stale, nil
}

type fakeAdminLister struct {
	admins []models.User
}

func (f *fakeAdminLister) ListAdmins(ctx context.Context) ([]models.User, error) {
	return f.admins, nil
}

type captureNotifier struct {
	mu    sync.Mutex
	calls []uuid.UUID
}

func (c *captureNotifier) Notify(ctx context.Context, userID uuid.UUID, event string, data interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, userID)
}

func TestEscrowWatchdog_SweepAlertsAdmins(t *testing.T) {
	adminA := models.User{ID: uuid.New()}
	adminB := models.User{ID: uuid.New()}
	notifier := &captureNotifier{}

	w := NewEscrowWatchdog(
		&fakeStaleLister{stale: []models.Transaction{
			{ID: uuid.New(), MilestoneID: uuid.New(), AmountCents: 40000},
		}},
		&fakeAdminLister{admins: []models.User{adminA, adminB}},
		notifier,
		"@hourly",
		14*24*time.Hour,
	)

	w.sweep()

	assert.Len(t, notifier.calls, 2)
	assert.Contains(t, notifier.calls, adminA.ID)
	assert.Contains(t, notifier.calls, adminB.ID)
}

func TestEscrowWatchdog_SweepNoStaleHolds(t *testing.T) {
	notifier := &captureNotifier{}
	w := NewEscrowWatchdog(&fakeStaleLister{}, &fakeAdminLister{}, notifier, "@hourly", time.Hour)

	w.sweep()

	assert.Empty(t, notifier.calls)
}
