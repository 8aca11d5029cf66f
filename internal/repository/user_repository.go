package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/devlinkhq/marketplace-backend/internal/models"
	"github.com/devlinkhq/marketplace-backend/internal/repository/common"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrEmailTaken      = errors.New("email already registered")
)

type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, username, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, is_active, payouts_enabled, created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query, user.Email, user.Username, user.PasswordHash, user.Role).
		Scan(&user.ID, &user.IsActive, &user.PayoutsEnabled, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if common.IsUniqueViolation(err, "") {
			return ErrEmailTaken
		}
		return fmt.Errorf("user repository: create: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return common.GetByID[models.User](ctx, r.db, "users", id, ErrUserNotFound)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return common.GetByField[models.User](ctx, r.db, "users", "email", email, ErrUserNotFound)
}

// GetByStripeAccountID looks a developer up by their connected payout
// account, the key account.updated webhooks arrive with.
func (r *UserRepository) GetByStripeAccountID(ctx context.Context, accountID string) (*models.User, error) {
	return common.GetByField[models.User](ctx, r.db, "users", "stripe_account_id", accountID, ErrUserNotFound)
}

// ListAdmins returns the platform operators the escrow watchdog alerts.
func (r *UserRepository) ListAdmins(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := r.db.SelectContext(ctx, &users, `
		SELECT * FROM users WHERE role = 'admin' AND is_active = TRUE
	`)
	return users, err
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	return err
}

// SetPayoutAccount records the developer's connected account id. Payout
// capability stays false until the processor confirms it via webhook.
func (r *UserRepository) SetPayoutAccount(ctx context.Context, userID uuid.UUID, accountID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET stripe_account_id = $2, payouts_enabled = FALSE, updated_at = NOW()
		WHERE id = $1
	`, userID, accountID)
	return err
}

// SetPayoutsEnabled persists the onboarding-complete flag recomputed from
// processor capability reports.
func (r *UserRepository) SetPayoutsEnabled(ctx context.Context, userID uuid.UUID, enabled bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET payouts_enabled = $2, updated_at = NOW() WHERE id = $1
	`, userID, enabled)
	return err
}

// SetBillingProfile stores the client's processor customer and default
// payment method used for escrow authorizations.
func (r *UserRepository) SetBillingProfile(ctx context.Context, userID uuid.UUID, customerID, paymentMethodID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET stripe_customer_id = $2, default_payment_method_id = $3, updated_at = NOW()
		WHERE id = $1
	`, userID, customerID, paymentMethodID)
	return err
}

func (r *UserRepository) CreateSession(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (user_id, refresh_token, user_agent, ip_address, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	return r.db.QueryRowContext(ctx, query,
		session.UserID, session.RefreshToken, session.UserAgent, session.IPAddress, session.ExpiresAt).
		Scan(&session.ID, &session.CreatedAt)
}

func (r *UserRepository) GetSessionByToken(ctx context.Context, token string) (*models.Session, error) {
	var session models.Session
	err := r.db.GetContext(ctx, &session, `
		SELECT * FROM sessions WHERE refresh_token = $1 AND expires_at > NOW()
	`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return &session, err
}

func (r *UserRepository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

func (r *UserRepository) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
