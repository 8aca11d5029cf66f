// Package commission computes the platform's cut of a milestone payment.
package commission

import (
	"math"

	"github.com/devlinkhq/marketplace-backend/internal/pkg/apperror"
)

// Commission rate bounds. The configured rate must fall inside them.
const (
	MinRate = 0.10
	MaxRate = 0.13
)

// Breakdown is the split of a gross milestone amount. All values are
// cents and satisfy PlatformFeeCents + DeveloperPayoutCents == GrossCents.
type Breakdown struct {
	GrossCents           int64
	PlatformFeeCents     int64
	DeveloperPayoutCents int64
}

// Calculate splits grossCents into platform fee and developer payout.
// The fee is rounded to the nearest cent; the payout is the remainder
// rather than an independently rounded figure, so the two always sum back
// to the gross amount.
func Calculate(grossCents int64, rate float64) (Breakdown, error) {
	if grossCents <= 0 {
		return Breakdown{}, apperror.New(apperror.ErrCodeInvalidAmount, "amount must be positive")
	}
	if rate < MinRate || rate > MaxRate {
		return Breakdown{}, apperror.New(apperror.ErrCodeValidation, "commission rate out of range")
	}

	fee := int64(math.Round(float64(grossCents) * rate))
	return Breakdown{
		GrossCents:           grossCents,
		PlatformFeeCents:     fee,
		DeveloperPayoutCents: grossCents - fee,
	}, nil
}

// MilestoneAmount computes the gross escrow amount for a milestone from
// the project budget and the milestone's payment percentage.
func MilestoneAmount(budgetCents int64, paymentPercentage float64) (int64, error) {
	if budgetCents <= 0 {
		return 0, apperror.New(apperror.ErrCodeInvalidAmount, "budget must be positive")
	}
	if paymentPercentage <= 0 || paymentPercentage > 100 {
		return 0, apperror.New(apperror.ErrCodeValidation, "payment percentage must be in (0, 100]")
	}
	return int64(math.Round(float64(budgetCents) * paymentPercentage / 100)), nil
}
