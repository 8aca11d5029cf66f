package models

import (
	"time"

	"github.com/google/uuid"
)

type MilestoneStatus string

const (
	MilestoneStatusPending        MilestoneStatus = "pending"
	MilestoneStatusInProgress     MilestoneStatus = "in_progress"
	MilestoneStatusReadyForReview MilestoneStatus = "ready_for_review"
	MilestoneStatusApproved       MilestoneStatus = "approved"
	MilestoneStatusDisputed       MilestoneStatus = "disputed"
	MilestoneStatusRejected       MilestoneStatus = "rejected"
)

// Milestone count bounds enforced at project creation.
const (
	MinMilestonesPerProject = 3
	MaxMilestonesPerProject = 5
)

func (s MilestoneStatus) IsValid() bool {
	switch s {
	case MilestoneStatusPending, MilestoneStatusInProgress, MilestoneStatusReadyForReview,
		MilestoneStatusApproved, MilestoneStatusDisputed, MilestoneStatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further work transitions are allowed.
// Rejected is treated as terminal: resubmission after a lost dispute is
// not part of the product.
func (s MilestoneStatus) IsTerminal() bool {
	return s == MilestoneStatusApproved || s == MilestoneStatusRejected
}

func (s MilestoneStatus) CanTransitionTo(next MilestoneStatus) bool {
	transitions := map[MilestoneStatus][]MilestoneStatus{
		MilestoneStatusPending:        {MilestoneStatusInProgress, MilestoneStatusReadyForReview},
		MilestoneStatusInProgress:     {MilestoneStatusReadyForReview},
		MilestoneStatusReadyForReview: {MilestoneStatusApproved, MilestoneStatusDisputed},
		MilestoneStatusDisputed:       {MilestoneStatusApproved, MilestoneStatusRejected},
		MilestoneStatusApproved:       {},
		MilestoneStatusRejected:       {},
	}

	for _, status := range transitions[s] {
		if status == next {
			return true
		}
	}
	return false
}

// Milestone is a payable unit of a project. PaymentPercentage values
// across a project's milestones sum to exactly 100 (basis points are not
// used; the column is NUMERIC(5,2) and validated at creation).
type Milestone struct {
	ID                uuid.UUID       `db:"id" json:"id"`
	ProjectID         uuid.UUID       `db:"project_id" json:"project_id"`
	Title             string          `db:"title" json:"title"`
	DefinitionOfDone  string          `db:"definition_of_done" json:"definition_of_done"`
	PaymentPercentage float64         `db:"payment_percentage" json:"payment_percentage"`
	SortOrder         int             `db:"sort_order" json:"sort_order"`
	Status            MilestoneStatus `db:"status" json:"status"`
	CompletedAt       *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	ApprovedAt        *time.Time      `db:"approved_at" json:"approved_at,omitempty"`
	DisputedAt        *time.Time      `db:"disputed_at" json:"disputed_at,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}
