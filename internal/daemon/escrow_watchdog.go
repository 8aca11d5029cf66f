// Package daemon holds background jobs that run beside the HTTP server.
package daemon

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/devlinkhq/marketplace-backend/internal/logger"
	"github.com/devlinkhq/marketplace-backend/internal/models"
)

// StaleHoldLister finds held transactions that have sat in escrow past
// the cutoff, or whose dispute was closed without a verdict.
type StaleHoldLister interface {
	ListStaleHeld(ctx context.Context, heldBefore time.Time) ([]models.Transaction, error)
}

// AdminLister returns the operators who receive stale-hold alerts.
type AdminLister interface {
	ListAdmins(ctx context.Context) ([]models.User, error)
}

// Notifier matches the service-layer notification surface.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event string, data interface{})
}

// EscrowWatchdog periodically reports holds that need a human: funds
// kept in escrow past the stale cutoff, including disputes an admin
// closed without deciding. The sweep is read-only; it never moves money.
type EscrowWatchdog struct {
	transactions StaleHoldLister
	users        AdminLister
	notifier     Notifier

	schedule   string
	staleAfter time.Duration
	cron       *cron.Cron
}

func NewEscrowWatchdog(
	transactions StaleHoldLister,
	users AdminLister,
	notifier Notifier,
	schedule string,
	staleAfter time.Duration,
) *EscrowWatchdog {
	return &EscrowWatchdog{
		transactions: transactions,
		users:        users,
		notifier:     notifier,
		schedule:     schedule,
		staleAfter:   staleAfter,
	}
}

// Start registers the sweep on the configured cron schedule.
func (w *EscrowWatchdog) Start() error {
	w.cron = cron.New()
	if _, err := w.cron.AddFunc(w.schedule, w.sweep); err != nil {
		return err
	}
	w.cron.Start()
	logger.Log.WithField("schedule", w.schedule).Info("escrow watchdog started")
	return nil
}

// Stop halts scheduling and returns a context that is done once any
// running sweep finishes.
func (w *EscrowWatchdog) Stop() context.Context {
	return w.cron.Stop()
}

func (w *EscrowWatchdog) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-w.staleAfter)
	stale, err := w.transactions.ListStaleHeld(ctx, cutoff)
	if err != nil {
		logger.Log.WithError(err).Error("escrow watchdog sweep failed")
		return
	}
	if len(stale) == 0 {
		return
	}

	admins, err := w.users.ListAdmins(ctx)
	if err != nil {
		logger.Log.WithError(err).Error("could not list admins for stale-hold alert")
	}

	for _, tx := range stale {
		logger.Log.WithFields(map[string]interface{}{
			"transaction_id": tx.ID,
			"milestone_id":   tx.MilestoneID,
			"amount_cents":   tx.AmountCents,
			"held_at":        tx.HeldAt,
		}).Warn("escrow hold needs manual attention")

		for _, admin := range admins {
			w.notifier.Notify(ctx, admin.ID, models.NotificationEscrowStale, map[string]interface{}{
				"transaction_id": tx.ID,
				"milestone_id":   tx.MilestoneID,
				"amount_cents":   tx.AmountCents,
			})
		}
	}
}
