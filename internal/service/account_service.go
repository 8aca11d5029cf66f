package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/devlinkhq/marketplace-backend/internal/models"
	"github.com/devlinkhq/marketplace-backend/internal/payments"
	"github.com/devlinkhq/marketplace-backend/internal/pkg/apperror"
)

// AccountRepository is the billing slice of the user store.
type AccountRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetPayoutAccount(ctx context.Context, userID uuid.UUID, accountID string) error
	SetPayoutsEnabled(ctx context.Context, userID uuid.UUID, enabled bool) error
	SetBillingProfile(ctx context.Context, userID uuid.UUID, customerID, paymentMethodID string) error
}

// AccountService manages payment onboarding: developers connect a payout
// account, clients attach a billing profile. Payout capability follows
// the processor's capability report, never a local decision.
type AccountService struct {
	users     AccountRepository
	processor payments.Processor
}

func NewAccountService(users AccountRepository, processor payments.Processor) *AccountService {
	return &AccountService{users: users, processor: processor}
}

// ConnectPayoutAccount attaches a processor connected account to a
// developer and mirrors its current capability state.
func (s *AccountService) ConnectPayoutAccount(ctx context.Context, actor Identity, accountID string) (*models.User, error) {
	if !actor.IsDeveloper() {
		return nil, apperror.New(apperror.ErrCodeForbidden, "only developers connect payout accounts")
	}
	if accountID == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "account id is required")
	}

	acct, err := s.processor.GetAccount(ctx, accountID)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.ErrCodeProcessorError, "could not verify payout account")
	}

	if err := s.users.SetPayoutAccount(ctx, actor.UserID, accountID); err != nil {
		return nil, err
	}
	if acct.OnboardingComplete() {
		if err := s.users.SetPayoutsEnabled(ctx, actor.UserID, true); err != nil {
			return nil, err
		}
	}

	return s.users.GetByID(ctx, actor.UserID)
}

// SetBillingProfile stores the client's processor customer and default
// payment method used to authorize escrow holds.
func (s *AccountService) SetBillingProfile(ctx context.Context, actor Identity, customerID, paymentMethodID string) (*models.User, error) {
	if !actor.IsClient() {
		return nil, apperror.New(apperror.ErrCodeForbidden, "only clients set a billing profile")
	}
	if customerID == "" || paymentMethodID == "" {
		return nil, apperror.New(apperror.ErrCodeValidation, "customer id and payment method are required")
	}

	if err := s.users.SetBillingProfile(ctx, actor.UserID, customerID, paymentMethodID); err != nil {
		return nil, err
	}
	return s.users.GetByID(ctx, actor.UserID)
}

// Me returns the caller's own account record.
func (s *AccountService) Me(ctx context.Context, actor Identity) (*models.User, error) {
	return s.users.GetByID(ctx, actor.UserID)
}
