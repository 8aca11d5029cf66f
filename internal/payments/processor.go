// Package payments wraps the external payment processor behind a narrow
// contract so services never touch the Stripe SDK directly.
package payments

import "context"

// AuthorizeRequest reserves funds against a client's saved payment method
// without capturing them.
type AuthorizeRequest struct {
	AmountCents     int64
	Currency        string
	CustomerID      string
	PaymentMethodID string
	Metadata        map[string]string
}

// AuthorizeResult carries the processor correlation id for the hold and
// whether the processor confirmed the authorization synchronously. When
// Held is false the transaction stays pending until the webhook confirms.
type AuthorizeResult struct {
	PaymentRef string
	Held       bool
}

// TransferRequest moves captured funds to a connected payout account.
// IdempotencyKey must be stable across retries of the same payout; the
// processor collapses repeated requests carrying the same key into one
// transfer.
type TransferRequest struct {
	AmountCents    int64
	Currency       string
	DestinationID  string
	IdempotencyKey string
	Metadata       map[string]string
}

// PaymentState is the processor-reported state of a hold, used by the
// idempotent release path to detect an existing capture.
type PaymentState struct {
	Captured bool
	Failed   bool
}

// Account is the processor-reported capability state of a connected
// payout account.
type Account struct {
	ID               string
	DetailsSubmitted bool
	ChargesEnabled   bool
	PayoutsEnabled   bool
}

// OnboardingComplete reports whether all capabilities required for
// payouts are in place.
func (a Account) OnboardingComplete() bool {
	return a.DetailsSubmitted && a.ChargesEnabled && a.PayoutsEnabled
}

// Processor is the escrow-facing contract with the payment processor.
// Every call is bounded by the processor client's request timeout;
// failures surface as apperror.ErrCodeProcessorError.
type Processor interface {
	// Authorize reserves funds in manual-capture mode.
	Authorize(ctx context.Context, req AuthorizeRequest) (AuthorizeResult, error)
	// GetPayment reports the current state of a hold.
	GetPayment(ctx context.Context, paymentRef string) (PaymentState, error)
	// Capture converts an authorization into an actual charge.
	Capture(ctx context.Context, paymentRef string) error
	// Transfer pays out captured funds to a connected account.
	Transfer(ctx context.Context, req TransferRequest) (string, error)
	// Refund voids an uncaptured hold, or refunds a captured one.
	Refund(ctx context.Context, paymentRef string) error
	// GetAccount fetches connected-account capability flags.
	GetAccount(ctx context.Context, accountID string) (Account, error)
}
