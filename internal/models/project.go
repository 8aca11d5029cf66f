package models

import (
	"time"

	"github.com/google/uuid"
)

type ProjectStatus string

const (
	ProjectStatusDraft      ProjectStatus = "draft"
	ProjectStatusOpen       ProjectStatus = "open"
	ProjectStatusInProgress ProjectStatus = "in_progress"
	ProjectStatusCompleted  ProjectStatus = "completed"
	ProjectStatusCancelled  ProjectStatus = "cancelled"
)

func (s ProjectStatus) IsValid() bool {
	switch s {
	case ProjectStatusDraft, ProjectStatusOpen, ProjectStatusInProgress,
		ProjectStatusCompleted, ProjectStatusCancelled:
		return true
	}
	return false
}

func (s ProjectStatus) CanTransitionTo(next ProjectStatus) bool {
	transitions := map[ProjectStatus][]ProjectStatus{
		ProjectStatusDraft:      {ProjectStatusOpen, ProjectStatusCancelled},
		ProjectStatusOpen:       {ProjectStatusInProgress, ProjectStatusCancelled},
		ProjectStatusInProgress: {ProjectStatusCompleted, ProjectStatusCancelled},
		ProjectStatusCompleted:  {},
		ProjectStatusCancelled:  {},
	}

	for _, status := range transitions[s] {
		if status == next {
			return true
		}
	}
	return false
}

// Project is a unit of work posted by a client. BudgetCents is the gross
// amount in cents; it is immutable once the project leaves draft.
// SelectedDeveloperID and SelectedProposalID are either both nil (no
// proposal accepted yet) or both set.
type Project struct {
	ID                  uuid.UUID     `db:"id" json:"id"`
	ClientID            uuid.UUID     `db:"client_id" json:"client_id"`
	Title               string        `db:"title" json:"title"`
	Description         string        `db:"description" json:"description"`
	BudgetCents         int64         `db:"budget_cents" json:"budget_cents"`
	Currency            string        `db:"currency" json:"currency"`
	Status              ProjectStatus `db:"status" json:"status"`
	SelectedDeveloperID *uuid.UUID    `db:"selected_developer_id" json:"selected_developer_id,omitempty"`
	SelectedProposalID  *uuid.UUID    `db:"selected_proposal_id" json:"selected_proposal_id,omitempty"`
	CreatedAt           time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time     `db:"updated_at" json:"updated_at"`
	Milestones          []Milestone   `json:"milestones,omitempty"`
}

// IsOwnedBy reports whether userID is the client that created the project.
func (p *Project) IsOwnedBy(userID uuid.UUID) bool {
	return p.ClientID == userID
}

// IsAssignedTo reports whether userID is the developer bound to the
// project through proposal acceptance.
func (p *Project) IsAssignedTo(userID uuid.UUID) bool {
	return p.SelectedDeveloperID != nil && *p.SelectedDeveloperID == userID
}
