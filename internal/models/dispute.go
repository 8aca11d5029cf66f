package models

import (
	"time"

	"github.com/google/uuid"
)

type DisputeStatus string

const (
	DisputeStatusOpen                  DisputeStatus = "open"
	DisputeStatusResolvedClientWins    DisputeStatus = "resolved_client_wins"
	DisputeStatusResolvedDeveloperWins DisputeStatus = "resolved_developer_wins"
	DisputeStatusClosed                DisputeStatus = "closed"
)

// Verdict values recorded on resolution.
const (
	VerdictClient    = "client"
	VerdictDeveloper = "developer"
)

// IsTerminal reports whether the dispute has been decided or closed.
// Terminal disputes are immutable.
func (s DisputeStatus) IsTerminal() bool {
	return s != DisputeStatusOpen
}

// Dispute is an arbitration record over a milestone in review. A closed
// dispute (admin declined to intervene) leaves the milestone disputed and
// the funds held; the escrow watchdog surfaces those for manual handling.
type Dispute struct {
	ID               uuid.UUID     `db:"id" json:"id"`
	MilestoneID      uuid.UUID     `db:"milestone_id" json:"milestone_id"`
	ProjectID        uuid.UUID     `db:"project_id" json:"project_id"`
	ClientID         uuid.UUID     `db:"client_id" json:"client_id"`
	DeveloperID      uuid.UUID     `db:"developer_id" json:"developer_id"`
	Reason           string        `db:"reason" json:"reason"`
	Status           DisputeStatus `db:"status" json:"status"`
	ReviewerID       *uuid.UUID    `db:"reviewer_id" json:"reviewer_id,omitempty"`
	ReviewerDecision *string       `db:"reviewer_decision" json:"reviewer_decision,omitempty"`
	ResolvedInFavorOf *string      `db:"resolved_in_favor_of" json:"resolved_in_favor_of,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	ResolvedAt       *time.Time    `db:"resolved_at" json:"resolved_at,omitempty"`
	ClosedAt         *time.Time    `db:"closed_at" json:"closed_at,omitempty"`
}

// IsParticipant reports whether userID is the client or developer side of
// the dispute.
func (d *Dispute) IsParticipant(userID uuid.UUID) bool {
	return d.ClientID == userID || d.DeveloperID == userID
}
