package repository

import (
	"time"

	"github.com/google/uuid"
)

// Credential represents a user's login credential. The brute-force counter
// and lockout deadline live on the same row so concurrent login attempts
// contend on a single record.
type Credential struct {
	ID               uuid.UUID  `db:"id"`
	Username         string     `db:"username"`
	Email            string     `db:"email"`
	PasswordHash     string     `db:"password_hash"`
	Role             string     `db:"role"`
	Enabled          bool       `db:"enabled"`
	TwoFactorEnabled bool       `db:"two_factor_enabled"`
	FailedAttempts   int        `db:"failed_attempts"`
	LockedUntil      *time.Time `db:"locked_until"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

// LockedAt reports whether the credential is locked at the given instant.
// Locked is a derived condition; no state is stored beyond the deadline.
func (c *Credential) LockedAt(now time.Time) bool {
	return c.LockedUntil != nil && now.Before(*c.LockedUntil)
}

// OTP status values. A challenge moves CREATED -> DELIVERED|FAILED, and
// DELIVERED -> CONFIRMED exactly once.
const (
	OTPStatusCreated   = "CREATED"
	OTPStatusDelivered = "DELIVERED"
	OTPStatusFailed    = "FAILED"
	OTPStatusConfirmed = "CONFIRMED"
)

// OTP purposes: what action the challenge gates.
const (
	OTPPurposeRegistration = "REGISTRATION"
	OTPPurposeLogin        = "LOGIN"
)

// OTPChallenge represents a one-time-password challenge.
type OTPChallenge struct {
	ID          uuid.UUID  `db:"id"`
	UserID      uuid.UUID  `db:"user_id"`
	Code        string     `db:"code"`
	Purpose     string     `db:"purpose"`
	Channel     string     `db:"channel"`
	Status      string     `db:"status"`
	CreatedAt   time.Time  `db:"created_at"`
	ExpiresAt   time.Time  `db:"expires_at"`
	ConfirmedAt *time.Time `db:"confirmed_at"`
}

// ExpiredAt reports whether the challenge has expired at the given instant.
func (o *OTPChallenge) ExpiredAt(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// PasswordResetToken represents a single-use password reset token. Confirmed
// and expired tokens are kept for audit but are inert.
type PasswordResetToken struct {
	ID          uuid.UUID  `db:"id"`
	UserID      uuid.UUID  `db:"user_id"`
	Token       string     `db:"token"`
	CreatedAt   time.Time  `db:"created_at"`
	ExpiresAt   time.Time  `db:"expires_at"`
	ConfirmedAt *time.Time `db:"confirmed_at"`
}

// ExpiredAt reports whether the token has expired at the given instant.
func (t *PasswordResetToken) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
