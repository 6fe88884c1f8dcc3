// Package otp implements the one-time-password engine used for two-factor
// flows: registration finalization and second-factor login.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/google/uuid"

	"github.com/taskora/taskora/backend/internal/audit"
	"github.com/taskora/taskora/backend/internal/clock"
	"github.com/taskora/taskora/backend/internal/config"
	"github.com/taskora/taskora/backend/internal/metrics"
	"github.com/taskora/taskora/backend/internal/notification"
	"github.com/taskora/taskora/backend/internal/repository"
)

// OTP engine errors
var (
	ErrNotFound         = errors.New("otp not found")
	ErrNotDelivered     = errors.New("otp has not been delivered")
	ErrExpired          = errors.New("otp has expired")
	ErrInvalidCode      = errors.New("otp code mismatch")
	ErrAlreadyConfirmed = errors.New("otp already confirmed")
	ErrInvalidOutcome   = errors.New("invalid delivery outcome")
)

// Error codes for API responses
const (
	CodeNotFound         = "OTP_NOT_FOUND"
	CodeNotDelivered     = "OTP_NOT_DELIVERED"
	CodeExpired          = "OTP_HAS_EXPIRED"
	CodeInvalidCode      = "OTP_INVALID_CODE"
	CodeAlreadyConfirmed = "OTP_ALREADY_CONFIRMED"
	CodeCodeNotBlank     = "CODE_NOT_BLANK"
)

// CodeLengthMessage renders the code-length validation message for the
// configured number of digits, e.g. CODE_MUST_BE_6_DIGITS_LONG.
func CodeLengthMessage(length int) string {
	return fmt.Sprintf("CODE_MUST_BE_%d_DIGITS_LONG", length)
}

// NotFoundByIDMessage renders the delivery-report lookup failure for an id,
// e.g. OTP_WITH_ID_42_NOT_FOUND.
func NotFoundByIDMessage(id string) string {
	return fmt.Sprintf("OTP_WITH_ID_%s_NOT_FOUND", id)
}

// AccountActivator is the side effect hook for registration challenges.
// Implemented by the credential service.
type AccountActivator interface {
	ActivateAccount(ctx context.Context, userID uuid.UUID) error
}

// Service issues, tracks delivery of, and confirms one-time passwords.
type Service struct {
	repo      repository.OTPRepository
	publisher notification.Publisher
	activator AccountActivator
	recorder  audit.Recorder
	clock     clock.Clock
	cfg       config.OTPConfig
	logger    *slog.Logger
}

// NewService creates a new OTP Service instance
func NewService(
	repo repository.OTPRepository,
	publisher notification.Publisher,
	activator AccountActivator,
	recorder audit.Recorder,
	clk clock.Clock,
	cfg config.OTPConfig,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		publisher: publisher,
		activator: activator,
		recorder:  recorder,
		clock:     clk,
		cfg:       cfg,
		logger:    logger,
	}
}

// CodeLength returns the configured code length.
func (s *Service) CodeLength() int {
	return s.cfg.CodeLength
}

// Issue generates a fixed-length numeric code, stores the challenge in
// CREATED state, and publishes a delivery request to the notification
// transport. Callers receive the challenge id, never the code.
func (s *Service) Issue(ctx context.Context, userID uuid.UUID, recipient, channel, purpose string) (uuid.UUID, error) {
	code, err := generateCode(s.cfg.CodeLength)
	if err != nil {
		return uuid.Nil, err
	}

	now := s.clock.Now()
	challenge := &repository.OTPChallenge{
		ID:        uuid.New(),
		UserID:    userID,
		Code:      code,
		Purpose:   purpose,
		Channel:   channel,
		Status:    repository.OTPStatusCreated,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}

	if err := s.repo.Create(ctx, challenge); err != nil {
		return uuid.Nil, err
	}

	if err := s.publisher.Publish(ctx, notification.Message{
		Kind:      notification.KindOTPCode,
		UserID:    userID,
		Recipient: recipient,
		Channel:   channel,
		OTPID:     challenge.ID,
		Code:      code,
	}); err != nil {
		s.logger.Error("failed to publish otp delivery request", "otp_id", challenge.ID, "error", err)
	}

	metrics.OTPTransitionsTotal.WithLabelValues("issued").Inc()
	return challenge.ID, nil
}

// ReportDeliveryOutcome records the transport's DELIVERED or FAILED report
// for a challenge. Only a challenge still in CREATED transitions; duplicate
// reports are acknowledged without effect.
func (s *Service) ReportDeliveryOutcome(ctx context.Context, id uuid.UUID, status string) error {
	if status != repository.OTPStatusDelivered && status != repository.OTPStatusFailed {
		return ErrInvalidOutcome
	}

	moved, err := s.repo.SetDeliveryOutcome(ctx, id, status)
	if err != nil {
		return err
	}
	if moved {
		if status == repository.OTPStatusDelivered {
			metrics.OTPTransitionsTotal.WithLabelValues("delivered").Inc()
		} else {
			metrics.OTPTransitionsTotal.WithLabelValues("failed").Inc()
		}
		return nil
	}

	// Nothing moved: either the id is unknown or the challenge already left
	// CREATED. Only the former is an error.
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrOTPNotFound) {
			return ErrNotFound
		}
		return err
	}

	return nil
}

// Confirm checks the submitted code against a DELIVERED, unexpired challenge
// and transitions it to CONFIRMED exactly once. For registration challenges
// the gated account activation runs as a side effect of the first success.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, submittedCode string) (*repository.OTPChallenge, error) {
	challenge, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrOTPNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	switch challenge.Status {
	case repository.OTPStatusConfirmed:
		return nil, ErrAlreadyConfirmed
	case repository.OTPStatusDelivered:
		// fall through to the expiry and code checks
	default:
		return nil, ErrNotDelivered
	}

	now := s.clock.Now()
	if challenge.ExpiredAt(now) {
		metrics.OTPTransitionsTotal.WithLabelValues("expired").Inc()
		return nil, ErrExpired
	}

	// Exact match, no case folding. A failed compare leaves the challenge
	// untouched.
	if challenge.Code != submittedCode {
		metrics.OTPTransitionsTotal.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidCode
	}

	confirmed, err := s.repo.Confirm(ctx, id, now)
	if err != nil {
		return nil, err
	}
	if !confirmed {
		// Lost the race against a concurrent confirm.
		return nil, ErrAlreadyConfirmed
	}

	challenge.Status = repository.OTPStatusConfirmed
	challenge.ConfirmedAt = &now

	if challenge.Purpose == repository.OTPPurposeRegistration && s.activator != nil {
		if err := s.activator.ActivateAccount(ctx, challenge.UserID); err != nil {
			s.logger.Error("failed to activate account after otp confirm",
				"user_id", challenge.UserID,
				"otp_id", challenge.ID,
				"error", err,
			)
		}
	}

	metrics.OTPTransitionsTotal.WithLabelValues("confirmed").Inc()
	s.recorder.Record(ctx, audit.Event{
		Actor:   challenge.UserID.String(),
		Action:  audit.ActionOTPConfirm,
		Outcome: audit.OutcomeSuccess,
		Detail:  challenge.Purpose,
	})

	return challenge, nil
}

// generateCode produces a fixed-length digit string from crypto/rand.
func generateCode(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
