package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OTP repository errors
var (
	ErrOTPNotFound = errors.New("otp challenge not found")
)

// OTPRepository defines the interface for one-time-password data access
type OTPRepository interface {
	Create(ctx context.Context, otp *OTPChallenge) error
	GetByID(ctx context.Context, id uuid.UUID) (*OTPChallenge, error)
	// SetDeliveryOutcome moves a CREATED challenge to DELIVERED or FAILED.
	// Returns false when the challenge was not in CREATED.
	SetDeliveryOutcome(ctx context.Context, id uuid.UUID, status string) (bool, error)
	// Confirm moves a DELIVERED challenge to CONFIRMED. The status guard in
	// the WHERE clause makes concurrent confirms succeed exactly once.
	Confirm(ctx context.Context, id uuid.UUID, confirmedAt time.Time) (bool, error)
}

// otpRepository implements OTPRepository using PostgreSQL
type otpRepository struct {
	pool *pgxpool.Pool
}

// NewOTPRepository creates a new OTPRepository instance
func NewOTPRepository(pool *pgxpool.Pool) OTPRepository {
	return &otpRepository{pool: pool}
}

// Create inserts a new OTP challenge in CREATED state
func (r *otpRepository) Create(ctx context.Context, otp *OTPChallenge) error {
	query := `
		INSERT INTO otp_challenges (id, user_id, code, purpose, channel, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		otp.ID,
		otp.UserID,
		otp.Code,
		otp.Purpose,
		otp.Channel,
		otp.Status,
		otp.CreatedAt,
		otp.ExpiresAt,
	)

	return err
}

// GetByID retrieves an OTP challenge by its ID
func (r *otpRepository) GetByID(ctx context.Context, id uuid.UUID) (*OTPChallenge, error) {
	query := `
		SELECT id, user_id, code, purpose, channel, status, created_at, expires_at, confirmed_at
		FROM otp_challenges
		WHERE id = $1
	`

	otp := &OTPChallenge{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&otp.ID,
		&otp.UserID,
		&otp.Code,
		&otp.Purpose,
		&otp.Channel,
		&otp.Status,
		&otp.CreatedAt,
		&otp.ExpiresAt,
		&otp.ConfirmedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOTPNotFound
		}
		return nil, err
	}

	return otp, nil
}

// SetDeliveryOutcome records the delivery channel's report for a CREATED challenge
func (r *otpRepository) SetDeliveryOutcome(ctx context.Context, id uuid.UUID, status string) (bool, error) {
	query := `
		UPDATE otp_challenges
		SET status = $2
		WHERE id = $1 AND status = $3
	`

	result, err := r.pool.Exec(ctx, query, id, status, OTPStatusCreated)
	if err != nil {
		return false, err
	}

	return result.RowsAffected() > 0, nil
}

// Confirm transitions a DELIVERED challenge to CONFIRMED exactly once
func (r *otpRepository) Confirm(ctx context.Context, id uuid.UUID, confirmedAt time.Time) (bool, error) {
	query := `
		UPDATE otp_challenges
		SET status = $2, confirmed_at = $3
		WHERE id = $1 AND status = $4
	`

	result, err := r.pool.Exec(ctx, query, id, OTPStatusConfirmed, confirmedAt, OTPStatusDelivered)
	if err != nil {
		return false, err
	}

	return result.RowsAffected() > 0, nil
}
