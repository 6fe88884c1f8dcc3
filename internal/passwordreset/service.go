// Package passwordreset implements the single-use, time-boxed
// forgotten-password token flow.
package passwordreset

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/taskora/taskora/backend/internal/api"
	"github.com/taskora/taskora/backend/internal/audit"
	"github.com/taskora/taskora/backend/internal/auth"
	"github.com/taskora/taskora/backend/internal/clock"
	"github.com/taskora/taskora/backend/internal/config"
	"github.com/taskora/taskora/backend/internal/metrics"
	"github.com/taskora/taskora/backend/internal/notification"
	"github.com/taskora/taskora/backend/internal/repository"
)

// Password reset errors
var (
	ErrEmailNotFound         = errors.New("no account matches the email")
	ErrTokenNotFound         = errors.New("password reset token not found")
	ErrTokenExpired          = errors.New("password reset token expired")
	ErrTokenAlreadyConfirmed = errors.New("password reset token already confirmed")
)

// Error codes for API responses
const (
	CodeEmailNotBlank         = "EMAIL_NOT_BLANK"
	CodeEmailNotFound         = "EMAIL_NOT_FOUND"
	CodeTokenNotBlank         = "TOKEN_NOT_BLANK"
	CodeTokenNotFound         = "PASSWORD_RESET_TOKEN_NOT_FOUND"
	CodeTokenExpired          = "PASSWORD_RESET_TOKEN_EXPIRED"
	CodeTokenAlreadyConfirmed = "PASSWORD_RESET_TOKEN_ALREADY_CONFIRMED"
)

// Service issues and confirms password reset tokens. A token confirms at
// most once; confirmed and expired tokens stay in storage but are inert.
type Service struct {
	tokens    repository.ResetTokenRepository
	creds     repository.CredentialRepository
	validator *auth.PasswordValidator
	publisher notification.Publisher
	recorder  audit.Recorder
	clock     clock.Clock
	cfg       config.ResetConfig
	logger    *slog.Logger
}

// NewService creates a new password reset Service instance
func NewService(
	tokens repository.ResetTokenRepository,
	creds repository.CredentialRepository,
	validator *auth.PasswordValidator,
	publisher notification.Publisher,
	recorder audit.Recorder,
	clk clock.Clock,
	cfg config.ResetConfig,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tokens:    tokens,
		creds:     creds,
		validator: validator,
		publisher: publisher,
		recorder:  recorder,
		clock:     clk,
		cfg:       cfg,
		logger:    logger,
	}
}

// RequestReset creates a reset token for the account matching the email and
// dispatches a reset-link notification carrying the opaque token.
func (s *Service) RequestReset(ctx context.Context, email string) error {
	cred, err := s.creds.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return ErrEmailNotFound
		}
		return err
	}

	now := s.clock.Now()
	token := &repository.PasswordResetToken{
		ID:        uuid.New(),
		UserID:    cred.ID,
		Token:     uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TokenTTL),
	}

	if err := s.tokens.Create(ctx, token); err != nil {
		return err
	}

	if err := s.publisher.Publish(ctx, notification.Message{
		Kind:      notification.KindPasswordReset,
		UserID:    cred.ID,
		Recipient: cred.Email,
		Token:     token.Token,
	}); err != nil {
		s.logger.Error("failed to publish reset-link notification", "user_id", cred.ID, "error", err)
	}

	return nil
}

// ConfirmReset validates the token and the new password, sets confirmedAt
// exactly once, and updates the credential's password hash. A failed confirm
// never mutates the token.
func (s *Service) ConfirmReset(ctx context.Context, tokenValue, newPassword, confirmation string) ([]api.FieldError, error) {
	token, err := s.tokens.GetByToken(ctx, tokenValue)
	if err != nil {
		if errors.Is(err, repository.ErrResetTokenNotFound) {
			metrics.ResetConfirmationsTotal.WithLabelValues("not_found").Inc()
			return nil, ErrTokenNotFound
		}
		return nil, err
	}

	now := s.clock.Now()
	if token.ExpiredAt(now) {
		metrics.ResetConfirmationsTotal.WithLabelValues("expired").Inc()
		return nil, ErrTokenExpired
	}

	if token.ConfirmedAt != nil {
		metrics.ResetConfirmationsTotal.WithLabelValues("already_confirmed").Inc()
		return nil, ErrTokenAlreadyConfirmed
	}

	if newPassword != confirmation {
		return nil, auth.ErrPasswordsDoNotMatch
	}

	cred, err := s.creds.GetByID(ctx, token.UserID)
	if err != nil {
		return nil, err
	}

	if s.validator.VerifyPassword(newPassword, cred.PasswordHash) == nil {
		return nil, auth.ErrPasswordSameAsCurrent
	}

	if fieldErrors := s.validator.ValidatePassword("password", newPassword); len(fieldErrors) > 0 {
		return fieldErrors, nil
	}

	hash, err := s.validator.HashPassword(newPassword)
	if err != nil {
		return nil, err
	}

	// One transaction: a confirm without a hash swap, or the reverse, must
	// never be observable.
	confirmed, err := s.tokens.ConfirmAndUpdatePassword(ctx, tokenValue, now, cred.ID, hash)
	if err != nil {
		return nil, err
	}
	if !confirmed {
		// Lost the race against a concurrent confirm.
		metrics.ResetConfirmationsTotal.WithLabelValues("already_confirmed").Inc()
		return nil, ErrTokenAlreadyConfirmed
	}

	metrics.ResetConfirmationsTotal.WithLabelValues("success").Inc()
	s.recorder.Record(ctx, audit.Event{
		Actor:   cred.Username,
		Action:  audit.ActionPasswordReset,
		Outcome: audit.OutcomeSuccess,
	})

	return nil, nil
}
