package models

import (
	"time"

	"github.com/google/uuid"
)

type TransactionStatus string

const (
	TransactionStatusPending      TransactionStatus = "pending"
	TransactionStatusHeldInEscrow TransactionStatus = "held_in_escrow"
	TransactionStatusReleased     TransactionStatus = "released"
	TransactionStatusRefunded     TransactionStatus = "refunded"
	TransactionStatusFailed       TransactionStatus = "failed"
)

func (s TransactionStatus) IsValid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusHeldInEscrow,
		TransactionStatusReleased, TransactionStatusRefunded, TransactionStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the funds have reached a final disposition.
// Terminal transactions never transition again.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusReleased, TransactionStatusRefunded, TransactionStatusFailed:
		return true
	}
	return false
}

// CanTransitionTo encodes the monotonic escrow lifecycle: pending funds
// become held or fail, held funds are released or refunded, terminal
// states admit nothing.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	transitions := map[TransactionStatus][]TransactionStatus{
		TransactionStatusPending:      {TransactionStatusHeldInEscrow, TransactionStatusRefunded, TransactionStatusFailed},
		TransactionStatusHeldInEscrow: {TransactionStatusReleased, TransactionStatusRefunded},
		TransactionStatusReleased:     {},
		TransactionStatusRefunded:     {},
		TransactionStatusFailed:       {},
	}

	for _, status := range transitions[s] {
		if status == next {
			return true
		}
	}
	return false
}

// Transaction is the escrow record for one milestone's funds. Amounts are
// cents. AmountCents = PlatformFeeCents + DeveloperPayoutCents always.
// ExternalPaymentRef is the processor's payment-intent id, set when the
// hold is authorized; ExternalTransferRef is the transfer id, set on
// release. At most one transaction per milestone may sit in a
// non-terminal status (partial unique index in the schema).
type Transaction struct {
	ID                   uuid.UUID         `db:"id" json:"id"`
	ProjectID            uuid.UUID         `db:"project_id" json:"project_id"`
	MilestoneID          uuid.UUID         `db:"milestone_id" json:"milestone_id"`
	ClientID             uuid.UUID         `db:"client_id" json:"client_id"`
	DeveloperID          uuid.UUID         `db:"developer_id" json:"developer_id"`
	AmountCents          int64             `db:"amount_cents" json:"amount_cents"`
	PlatformFeeCents     int64             `db:"platform_fee_cents" json:"platform_fee_cents"`
	DeveloperPayoutCents int64             `db:"developer_payout_cents" json:"developer_payout_cents"`
	Currency             string            `db:"currency" json:"currency"`
	Status               TransactionStatus `db:"status" json:"status"`
	ExternalPaymentRef   *string           `db:"external_payment_ref" json:"external_payment_ref,omitempty"`
	ExternalTransferRef  *string           `db:"external_transfer_ref" json:"external_transfer_ref,omitempty"`
	CapturedAt           *time.Time        `db:"captured_at" json:"captured_at,omitempty"`
	HeldAt               *time.Time        `db:"held_at" json:"held_at,omitempty"`
	ReleasedAt           *time.Time        `db:"released_at" json:"released_at,omitempty"`
	RefundedAt           *time.Time        `db:"refunded_at" json:"refunded_at,omitempty"`
	FailureReason        *string           `db:"failure_reason" json:"failure_reason,omitempty"`
	CreatedAt            time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time         `db:"updated_at" json:"updated_at"`
}
