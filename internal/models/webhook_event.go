package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent stores processor webhook deliveries with deduplication
// metadata. ProviderEventID carries a uniqueness constraint so a redelivered
// event is matched to its stored row instead of recorded twice; only a
// successfully processed row short-circuits the redelivery.
type WebhookEvent struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	ProviderEventID string     `db:"provider_event_id" json:"provider_event_id"`
	EventType       string     `db:"event_type" json:"event_type"`
	Payload         []byte     `db:"payload" json:"-"`
	ProcessedAt     *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	ProcessingError *string    `db:"processing_error" json:"processing_error,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// Processed reports whether dispatch completed without error. A row
// stamped with a processing error still needs a redelivery to run.
func (e *WebhookEvent) Processed() bool {
	return e.ProcessedAt != nil && e.ProcessingError == nil
}
