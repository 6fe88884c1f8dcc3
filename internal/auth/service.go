package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/taskora/taskora/backend/internal/api"
	"github.com/taskora/taskora/backend/internal/metrics"
	"github.com/taskora/taskora/backend/internal/otp"
	"github.com/taskora/taskora/backend/internal/ratelimit"
	"github.com/taskora/taskora/backend/internal/repository"
)

// Auth orchestration errors
var (
	ErrThrottled             = errors.New("too many login attempts from this address")
	ErrAccessDenied          = errors.New("access denied")
	ErrTokenCannotBeVerified = errors.New("token cannot be verified")
	ErrUsernameExists        = errors.New("username already exists")
	ErrEmailExists           = errors.New("email already exists")
)

// RegisterRequest is the registration payload.
type RegisterRequest struct {
	Username             string `json:"username" validate:"required,min=3,max=64"`
	Email                string `json:"email" validate:"required,email"`
	PhoneNumber          string `json:"phoneNumber" validate:"required"`
	Password             string `json:"password" validate:"required"`
	PasswordConfirmation string `json:"passwordConfirmation" validate:"required"`
}

// RegisterResult carries the new account id and the registration challenge.
type RegisterResult struct {
	UserID string `json:"userId"`
	OTPID  string `json:"otpId"`
}

// LoginResult is either an issued token with its identity, or a pending
// second-factor challenge.
type LoginResult struct {
	Token     string
	Identity  Identity
	TwoFactor bool
	OTPID     uuid.UUID
}

// Service orchestrates registration, login (including the second factor),
// token validation, and authenticated password changes.
type Service struct {
	creds     *CredentialService
	credRepo  repository.CredentialRepository
	tokens    *TokenService
	otps      *otp.Service
	validator *PasswordValidator
	limiter   *ratelimit.Limiter
	logger    *slog.Logger
}

// NewService creates a new auth Service instance. The limiter may be nil
// when the per-IP throttle is disabled.
func NewService(
	creds *CredentialService,
	credRepo repository.CredentialRepository,
	tokens *TokenService,
	otps *otp.Service,
	validator *PasswordValidator,
	limiter *ratelimit.Limiter,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		creds:     creds,
		credRepo:  credRepo,
		tokens:    tokens,
		otps:      otps,
		validator: validator,
		limiter:   limiter,
		logger:    logger,
	}
}

// Register creates a disabled credential and issues a registration OTP over
// SMS. The account activates when the challenge is confirmed.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, []api.FieldError, error) {
	var fieldErrors []api.FieldError

	fieldErrors = append(fieldErrors, s.validator.ValidatePassword("password", req.Password)...)

	if req.Password != req.PasswordConfirmation {
		fieldErrors = append(fieldErrors, api.FieldError{
			Field:   "passwordConfirmation",
			Message: CodePasswordsDoNotMatch,
		})
	}

	if len(fieldErrors) > 0 {
		return nil, fieldErrors, nil
	}

	hash, err := s.validator.HashPassword(req.Password)
	if err != nil {
		return nil, nil, err
	}

	cred := &repository.Credential{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         RoleMember,
		Enabled:      false,
	}

	if err := s.credRepo.Create(ctx, cred); err != nil {
		switch {
		case errors.Is(err, repository.ErrUsernameAlreadyExists):
			return nil, nil, ErrUsernameExists
		case errors.Is(err, repository.ErrEmailAlreadyExists):
			return nil, nil, ErrEmailExists
		}
		return nil, nil, err
	}

	otpID, err := s.otps.Issue(ctx, cred.ID, req.PhoneNumber, "sms", repository.OTPPurposeRegistration)
	if err != nil {
		return nil, nil, err
	}

	return &RegisterResult{
		UserID: cred.ID.String(),
		OTPID:  otpID.String(),
	}, nil, nil
}

// Login verifies the credential and either issues a token or, for accounts
// with the second factor enabled, opens a login OTP challenge.
func (s *Service) Login(ctx context.Context, username, password, ipAddress string) (*LoginResult, error) {
	if s.limiter != nil && ipAddress != "" {
		if err := s.limiter.Allow(ctx, ipAddress); err != nil {
			if errors.Is(err, ratelimit.ErrLimited) {
				metrics.LoginAttemptsTotal.WithLabelValues("throttled").Inc()
				return nil, ErrThrottled
			}
			// Redis being down must not block logins.
			s.logger.Warn("login throttle unavailable, failing open", "error", err)
		}
	}

	cred, err := s.creds.Authenticate(ctx, username, password, ipAddress)
	if err != nil {
		return nil, err
	}

	if cred.TwoFactorEnabled {
		otpID, err := s.otps.Issue(ctx, cred.ID, cred.Email, "sms", repository.OTPPurposeLogin)
		if err != nil {
			return nil, err
		}
		return &LoginResult{TwoFactor: true, OTPID: otpID}, nil
	}

	return s.issueFor(cred)
}

// CompleteLoginOTP confirms a login challenge and issues the token the
// first factor deferred.
func (s *Service) CompleteLoginOTP(ctx context.Context, otpID uuid.UUID, code string) (*LoginResult, error) {
	challenge, err := s.otps.Confirm(ctx, otpID, code)
	if err != nil {
		return nil, err
	}

	cred, err := s.credRepo.GetByID(ctx, challenge.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return s.issueFor(cred)
}

// ValidateToken verifies a bearer token and resolves it to a live identity.
// A valid signature is not enough: the account must still exist and be
// enabled.
func (s *Service) ValidateToken(ctx context.Context, token string) (*Identity, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		metrics.TokenValidationsTotal.WithLabelValues("rejected").Inc()
		if errors.Is(err, ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenCannotBeVerified
	}

	cred, err := s.credRepo.GetByUsername(ctx, claims.Username())
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			metrics.TokenValidationsTotal.WithLabelValues("user_not_found").Inc()
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if !cred.Enabled {
		metrics.TokenValidationsTotal.WithLabelValues("disabled").Inc()
		return nil, ErrUserDisabled
	}

	metrics.TokenValidationsTotal.WithLabelValues("success").Inc()
	return &Identity{Username: cred.Username, Role: cred.Role}, nil
}

// ChangePassword changes the password of the target user on behalf of the
// caller, subject to the access policy.
func (s *Service) ChangePassword(ctx context.Context, caller Identity, userID uuid.UUID, current, newPassword, confirmation string) ([]api.FieldError, error) {
	target, err := s.credRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if !CanAccess(caller, "credential:"+target.Username, "password:change") {
		return nil, ErrAccessDenied
	}

	return s.creds.ChangePassword(ctx, userID, current, newPassword, confirmation)
}

// OTPCodeLength reports the configured challenge code length for request
// validation at the HTTP layer.
func (s *Service) OTPCodeLength() int {
	return s.otps.CodeLength()
}

func (s *Service) issueFor(cred *repository.Credential) (*LoginResult, error) {
	token, err := s.tokens.Issue(cred.Username, []string{cred.Role})
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Token:    token,
		Identity: Identity{Username: cred.Username, Role: cred.Role},
	}, nil
}
