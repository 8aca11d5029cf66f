package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/devlinkhq/marketplace-backend/internal/goroutine"
	"github.com/devlinkhq/marketplace-backend/internal/logger"
	"github.com/devlinkhq/marketplace-backend/internal/models"
)

// Notifier is the fire-and-forget notification surface domain services
// depend on. Delivery failures never propagate to callers: a state
// transition must not roll back because a notification could not be sent.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, event string, data interface{})
}

// NotificationRepository is the storage contract for the in-app feed.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error)
	MarkAsRead(ctx context.Context, id, userID uuid.UUID) error
	MarkAllAsRead(ctx context.Context, userID uuid.UUID) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

// Pusher delivers real-time events (the websocket hub).
type Pusher interface {
	PushToUser(userID uuid.UUID, event string, data any) error
}

// NotificationService persists notifications and pushes them over the
// hub.
type NotificationService struct {
	repo     NotificationRepository
	pusher   Pusher
	recovery *goroutine.RecoveryHandler
}

func NewNotificationService(repo NotificationRepository, pusher Pusher, recovery *goroutine.RecoveryHandler) *NotificationService {
	return &NotificationService{repo: repo, pusher: pusher, recovery: recovery}
}

// Notify stores and pushes the event asynchronously. Errors are logged
// and swallowed.
func (s *NotificationService) Notify(ctx context.Context, userID uuid.UUID, event string, data interface{}) {
	// Detach from the request context: the notification outlives the
	// request that triggered it.
	bgCtx := context.WithoutCancel(ctx)

	s.recovery.SafeGoWithContext(bgCtx, func(ctx context.Context) {
		payload, err := json.Marshal(map[string]interface{}{
			"event": event,
			"data":  data,
		})
		if err != nil {
			logger.Log.WithError(err).Error("notification: marshal payload")
			return
		}

		notification := &models.Notification{
			UserID:  userID,
			Payload: payload,
		}
		if err := s.repo.Create(ctx, notification); err != nil {
			logger.Log.WithError(err).WithField("event", event).Error("notification: persist")
		}

		if s.pusher != nil {
			if err := s.pusher.PushToUser(userID, event, data); err != nil {
				logger.Log.WithError(err).WithField("event", event).Warn("notification: push")
			}
		}
	})
}

func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, limit, offset int, unreadOnly bool) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.List(ctx, userID, limit, offset, unreadOnly)
}

func (s *NotificationService) MarkAsRead(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.MarkAsRead(ctx, id, userID)
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

func (s *NotificationService) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}
