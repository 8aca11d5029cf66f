package models

import (
	"time"

	"github.com/google/uuid"
)

// Platform roles
const (
	RoleClient    = "client"
	RoleDeveloper = "developer"
	RoleAdmin     = "admin"
)

// ValidRoles is the set of roles accepted at registration.
// Admin accounts are provisioned manually, never via the public API.
var ValidRoles = map[string]struct{}{
	RoleClient:    {},
	RoleDeveloper: {},
}

// User is a platform account. Developers additionally carry Stripe
// Connect onboarding state which gates escrow funding of their milestones.
type User struct {
	ID                     uuid.UUID  `db:"id" json:"id"`
	Email                  string     `db:"email" json:"email"`
	Username               string     `db:"username" json:"username"`
	PasswordHash           string     `db:"password_hash" json:"-"`
	Role                   string     `db:"role" json:"role"`
	IsActive               bool       `db:"is_active" json:"is_active"`
	StripeAccountID        *string    `db:"stripe_account_id" json:"-"`
	PayoutsEnabled         bool       `db:"payouts_enabled" json:"payouts_enabled"`
	StripeCustomerID       *string    `db:"stripe_customer_id" json:"-"`
	DefaultPaymentMethodID *string    `db:"default_payment_method_id" json:"-"`
	LastLoginAt            *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt              time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at" json:"updated_at"`
}

// CanReceivePayouts reports whether escrow holds may be created against
// this developer: a connected account must exist and the processor must
// have confirmed payout capability.
func (u *User) CanReceivePayouts() bool {
	return u.StripeAccountID != nil && *u.StripeAccountID != "" && u.PayoutsEnabled
}

// Session is a stored refresh-token session.
type Session struct {
	ID           uuid.UUID `db:"id" json:"id"`
	UserID       uuid.UUID `db:"user_id" json:"user_id"`
	RefreshToken string    `db:"refresh_token" json:"refresh_token"`
	UserAgent    *string   `db:"user_agent" json:"user_agent,omitempty"`
	IPAddress    *string   `db:"ip_address" json:"ip_address,omitempty"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
