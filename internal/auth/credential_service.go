package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/taskora/taskora/backend/internal/api"
	"github.com/taskora/taskora/backend/internal/audit"
	"github.com/taskora/taskora/backend/internal/clock"
	"github.com/taskora/taskora/backend/internal/config"
	"github.com/taskora/taskora/backend/internal/metrics"
	"github.com/taskora/taskora/backend/internal/repository"
)

// Credential verification errors
var (
	ErrUserNotFound           = errors.New("user not found")
	ErrUserDisabled           = errors.New("user account is disabled")
	ErrAccountLocked          = errors.New("user account is locked")
	ErrBadCredentials         = errors.New("bad credentials")
	ErrInvalidCurrentPassword = errors.New("current password does not match")
	ErrPasswordsDoNotMatch    = errors.New("password confirmation does not match")
	ErrPasswordSameAsCurrent  = errors.New("new password equals current password")
)

// Error codes for API responses
const (
	CodeUserNotFound           = "USER_NOT_FOUND"
	CodeUserDisabled           = "USER_IS_DISABLED"
	CodeAccountLocked          = "USER_ACCOUNT_IS_LOCKED"
	CodeBadCredentials         = "BAD_CREDENTIALS"
	CodeInvalidCurrentPassword = "INVALID_CURRENT_PASSWORD"
	CodePasswordsDoNotMatch    = "PASSWORDS_DO_NOT_MATCH"
	CodePasswordSameAsCurrent  = "NEW_PASSWORD_MUST_BE_DIFFERENT_FROM_CURRENT_PASSWORD"
	CodeAccessDenied           = "ACCESS_DENIED"
	CodeTokenCannotBeVerified  = "TOKEN_CANNOT_BE_VERIFIED"
)

// CredentialService verifies username/password pairs and enforces the
// brute-force lockout. The lockout check always precedes the password check,
// so a locked account fails even with the correct password.
type CredentialService struct {
	creds     repository.CredentialRepository
	validator *PasswordValidator
	recorder  audit.Recorder
	clock     clock.Clock
	lockout   config.LockoutConfig
	logger    *slog.Logger
}

// NewCredentialService creates a new CredentialService instance
func NewCredentialService(
	creds repository.CredentialRepository,
	validator *PasswordValidator,
	recorder audit.Recorder,
	clk clock.Clock,
	lockout config.LockoutConfig,
	logger *slog.Logger,
) *CredentialService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialService{
		creds:     creds,
		validator: validator,
		recorder:  recorder,
		clock:     clk,
		lockout:   lockout,
		logger:    logger,
	}
}

// Authenticate verifies the username/password pair. On success the
// failed-attempt counter is reset to zero and the credential is returned for
// token issuance.
func (s *CredentialService) Authenticate(ctx context.Context, username, password, ipAddress string) (*repository.Credential, error) {
	now := s.clock.Now()

	cred, err := s.creds.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			metrics.LoginAttemptsTotal.WithLabelValues("not_found").Inc()
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if !cred.Enabled {
		metrics.LoginAttemptsTotal.WithLabelValues("disabled").Inc()
		s.recordLogin(ctx, username, ipAddress, audit.OutcomeFailure, CodeUserDisabled)
		return nil, ErrUserDisabled
	}

	// Lockout precedes the password check: a locked account fails without
	// consulting the hash.
	if cred.LockedAt(now) {
		metrics.LoginAttemptsTotal.WithLabelValues("locked").Inc()
		s.recordLogin(ctx, username, ipAddress, audit.OutcomeFailure, CodeAccountLocked)
		return nil, ErrAccountLocked
	}

	if err := s.validator.VerifyPassword(password, cred.PasswordHash); err != nil {
		lockedUntil := now.Add(s.lockout.LockoutDuration)
		attempts, locked, recErr := s.creds.RecordFailure(ctx, cred.ID, s.lockout.MaxFailedAttempts, lockedUntil)
		if recErr != nil {
			s.logger.Error("failed to record failed login attempt", "username", username, "error", recErr)
		} else if locked {
			metrics.AccountLockoutsTotal.Inc()
			s.recorder.Record(ctx, audit.Event{
				Actor:     username,
				Action:    audit.ActionLockout,
				Outcome:   audit.OutcomeFailure,
				Detail:    CodeAccountLocked,
				IPAddress: ipAddress,
			})
			s.logger.Warn("account locked after repeated failures",
				"username", username,
				"failed_attempts", attempts,
			)
		}

		metrics.LoginAttemptsTotal.WithLabelValues("bad_credentials").Inc()
		s.recordLogin(ctx, username, ipAddress, audit.OutcomeFailure, CodeBadCredentials)
		return nil, ErrBadCredentials
	}

	// Successful authentication resets the counter and clears any elapsed
	// lockout deadline.
	if cred.FailedAttempts > 0 || cred.LockedUntil != nil {
		if err := s.creds.ClearFailures(ctx, cred.ID); err != nil {
			s.logger.Error("failed to clear failed-attempt counter", "username", username, "error", err)
		}
		cred.FailedAttempts = 0
		cred.LockedUntil = nil
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	s.recordLogin(ctx, username, ipAddress, audit.OutcomeSuccess, "")
	return cred, nil
}

// ChangePassword replaces the password for an authenticated user. Pattern
// failures come back as field errors; business failures as sentinel errors.
func (s *CredentialService) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword, confirmation string) ([]api.FieldError, error) {
	cred, err := s.creds.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if err := s.validator.VerifyPassword(currentPassword, cred.PasswordHash); err != nil {
		return nil, ErrInvalidCurrentPassword
	}

	if newPassword != confirmation {
		return nil, ErrPasswordsDoNotMatch
	}

	if newPassword == currentPassword {
		return nil, ErrPasswordSameAsCurrent
	}

	if fieldErrors := s.validator.ValidatePassword("newPassword", newPassword); len(fieldErrors) > 0 {
		return fieldErrors, nil
	}

	hash, err := s.validator.HashPassword(newPassword)
	if err != nil {
		return nil, err
	}

	if err := s.creds.UpdatePassword(ctx, cred.ID, hash); err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Event{
		Actor:   cred.Username,
		Action:  audit.ActionPasswordChange,
		Outcome: audit.OutcomeSuccess,
	})

	return nil, nil
}

// ActivateAccount enables a credential. Used as the OTP confirm side effect
// for registration challenges.
func (s *CredentialService) ActivateAccount(ctx context.Context, userID uuid.UUID) error {
	return s.creds.SetEnabled(ctx, userID, true)
}

func (s *CredentialService) recordLogin(ctx context.Context, username, ipAddress, outcome, detail string) {
	s.recorder.Record(ctx, audit.Event{
		Actor:     username,
		Action:    audit.ActionLogin,
		Outcome:   outcome,
		Detail:    detail,
		IPAddress: ipAddress,
	})
}
