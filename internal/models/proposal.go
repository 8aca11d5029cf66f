package models

import (
	"time"

	"github.com/google/uuid"
)

type ProposalStatus string

const (
	ProposalStatusPending   ProposalStatus = "pending"
	ProposalStatusAccepted  ProposalStatus = "accepted"
	ProposalStatusRejected  ProposalStatus = "rejected"
	ProposalStatusWithdrawn ProposalStatus = "withdrawn"
)

func (s ProposalStatus) IsValid() bool {
	switch s {
	case ProposalStatusPending, ProposalStatusAccepted, ProposalStatusRejected, ProposalStatusWithdrawn:
		return true
	}
	return false
}

// Proposal is a developer's bid on an open project. At most one proposal
// per (project, developer) pair, at most one accepted proposal per project.
type Proposal struct {
	ID          uuid.UUID      `db:"id" json:"id"`
	ProjectID   uuid.UUID      `db:"project_id" json:"project_id"`
	DeveloperID uuid.UUID      `db:"developer_id" json:"developer_id"`
	CoverLetter string         `db:"cover_letter" json:"cover_letter"`
	Status      ProposalStatus `db:"status" json:"status"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}
