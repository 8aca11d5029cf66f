package payments

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/account"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/refund"
	"github.com/stripe/stripe-go/v76/transfer"

	"github.com/devlinkhq/marketplace-backend/internal/pkg/apperror"
)

// StripeProcessor implements Processor on top of Stripe Connect. Holds
// are PaymentIntents created in manual-capture mode.
type StripeProcessor struct{}

// NewStripeProcessor configures the global Stripe client key and returns
// the adapter.
func NewStripeProcessor(apiKey string) *StripeProcessor {
	stripe.Key = apiKey
	return &StripeProcessor{}
}

func (p *StripeProcessor) Authorize(ctx context.Context, req AuthorizeRequest) (AuthorizeResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(req.Currency),
		Customer:      stripe.String(req.CustomerID),
		PaymentMethod: stripe.String(req.PaymentMethodID),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Confirm:       stripe.Bool(true),
		OffSession:    stripe.Bool(true),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := paymentintent.New(params)
	if err != nil {
		return AuthorizeResult{}, wrapStripeError(err, "authorize failed")
	}

	return AuthorizeResult{
		PaymentRef: pi.ID,
		Held:       pi.Status == stripe.PaymentIntentStatusRequiresCapture,
	}, nil
}

func (p *StripeProcessor) GetPayment(ctx context.Context, paymentRef string) (PaymentState, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := paymentintent.Get(paymentRef, params)
	if err != nil {
		return PaymentState{}, wrapStripeError(err, "payment lookup failed")
	}

	return PaymentState{
		Captured: pi.Status == stripe.PaymentIntentStatusSucceeded,
		Failed:   pi.Status == stripe.PaymentIntentStatusCanceled,
	}, nil
}

func (p *StripeProcessor) Capture(ctx context.Context, paymentRef string) error {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx

	if _, err := paymentintent.Capture(paymentRef, params); err != nil {
		return wrapStripeError(err, "capture failed")
	}
	return nil
}

func (p *StripeProcessor) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.AmountCents),
		Currency:    stripe.String(req.Currency),
		Destination: stripe.String(req.DestinationID),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	tr, err := transfer.New(params)
	if err != nil {
		return "", wrapStripeError(err, "transfer failed")
	}
	return tr.ID, nil
}

func (p *StripeProcessor) Refund(ctx context.Context, paymentRef string) error {
	// An uncaptured hold is voided by cancelling the intent. If the
	// intent was already captured (release failed after capture), fall
	// back to a real refund.
	cancelParams := &stripe.PaymentIntentCancelParams{}
	cancelParams.Context = ctx

	_, err := paymentintent.Cancel(paymentRef, cancelParams)
	if err == nil {
		return nil
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodePaymentIntentUnexpectedState {
		refundParams := &stripe.RefundParams{PaymentIntent: stripe.String(paymentRef)}
		refundParams.Context = ctx
		if _, err := refund.New(refundParams); err != nil {
			return wrapStripeError(err, "refund failed")
		}
		return nil
	}

	return wrapStripeError(err, "refund failed")
}

func (p *StripeProcessor) GetAccount(ctx context.Context, accountID string) (Account, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx

	acct, err := account.GetByID(accountID, params)
	if err != nil {
		return Account{}, wrapStripeError(err, "account lookup failed")
	}

	return Account{
		ID:               acct.ID,
		DetailsSubmitted: acct.DetailsSubmitted,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
	}, nil
}

// wrapStripeError keeps the processor detail on the error chain without
// exposing it to API clients.
func wrapStripeError(err error, message string) error {
	return apperror.Wrap(err, apperror.ErrCodeProcessorError, message)
}
