package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Notification event names pushed over the websocket hub and stored for
// the in-app feed.
const (
	NotificationProposalAccepted = "proposal.accepted"
	NotificationProposalRejected = "proposal.rejected"
	NotificationMilestoneReady   = "milestone.ready_for_review"
	NotificationMilestoneApproved = "milestone.approved"
	NotificationMilestoneDisputed = "milestone.disputed"
	NotificationEscrowFunded     = "escrow.funded"
	NotificationEscrowReleased   = "escrow.released"
	NotificationEscrowRefunded   = "escrow.refunded"
	NotificationEscrowFailed     = "escrow.failed"
	NotificationDisputeResolved  = "dispute.resolved"
	NotificationDisputeClosed    = "dispute.closed"
	NotificationEscrowStale      = "escrow.stale"
)

type Notification struct {
	ID        uuid.UUID       `db:"id" json:"id"`
	UserID    uuid.UUID       `db:"user_id" json:"user_id"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	IsRead    bool            `db:"is_read" json:"is_read"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
