package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Reset token repository errors
var (
	ErrResetTokenNotFound = errors.New("password reset token not found")
)

// ResetTokenRepository defines the interface for password-reset token data access
type ResetTokenRepository interface {
	Create(ctx context.Context, token *PasswordResetToken) error
	GetByToken(ctx context.Context, token string) (*PasswordResetToken, error)
	// ConfirmAndUpdatePassword sets confirmed_at on an unconfirmed token and
	// swaps the credential's password hash in one transaction. The NULL guard
	// in the token update makes concurrent confirms succeed exactly once, and
	// a failed hash update rolls the confirmation back.
	ConfirmAndUpdatePassword(ctx context.Context, token string, confirmedAt time.Time, userID uuid.UUID, passwordHash string) (bool, error)
}

// resetTokenRepository implements ResetTokenRepository using PostgreSQL
type resetTokenRepository struct {
	pool *pgxpool.Pool
}

// NewResetTokenRepository creates a new ResetTokenRepository instance
func NewResetTokenRepository(pool *pgxpool.Pool) ResetTokenRepository {
	return &resetTokenRepository{pool: pool}
}

// Create inserts a new password reset token
func (r *resetTokenRepository) Create(ctx context.Context, token *PasswordResetToken) error {
	query := `
		INSERT INTO password_reset_tokens (id, user_id, token, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.pool.Exec(ctx, query,
		token.ID,
		token.UserID,
		token.Token,
		token.CreatedAt,
		token.ExpiresAt,
	)

	return err
}

// GetByToken retrieves a reset token by its opaque value
func (r *resetTokenRepository) GetByToken(ctx context.Context, token string) (*PasswordResetToken, error) {
	query := `
		SELECT id, user_id, token, created_at, expires_at, confirmed_at
		FROM password_reset_tokens
		WHERE token = $1
	`

	t := &PasswordResetToken{}
	err := r.pool.QueryRow(ctx, query, token).Scan(
		&t.ID,
		&t.UserID,
		&t.Token,
		&t.CreatedAt,
		&t.ExpiresAt,
		&t.ConfirmedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrResetTokenNotFound
		}
		return nil, err
	}

	return t, nil
}

// ConfirmAndUpdatePassword consumes the token and swaps the password hash
// atomically
func (r *resetTokenRepository) ConfirmAndUpdatePassword(ctx context.Context, token string, confirmedAt time.Time, userID uuid.UUID, passwordHash string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	confirmQuery := `
		UPDATE password_reset_tokens
		SET confirmed_at = $2
		WHERE token = $1 AND confirmed_at IS NULL
	`
	result, err := tx.Exec(ctx, confirmQuery, token, confirmedAt)
	if err != nil {
		return false, err
	}
	if result.RowsAffected() == 0 {
		return false, nil
	}

	updateQuery := `
		UPDATE credentials
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1
	`
	result, err = tx.Exec(ctx, updateQuery, userID, passwordHash)
	if err != nil {
		return false, err
	}
	if result.RowsAffected() == 0 {
		return false, ErrCredentialNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}

	return true, nil
}
