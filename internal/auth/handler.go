package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/taskora/taskora/backend/internal/api"
	"github.com/taskora/taskora/backend/internal/otp"
)

// Validator instance for request validation
var validate = validator.New()

// LoginRequest is the first-factor login payload.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginOTPRequest completes a second-factor login challenge.
type LoginOTPRequest struct {
	OTPID string `json:"otpId" validate:"required"`
	Code  string `json:"code" validate:"required"`
}

// ValidateTokenRequest is the remote validation payload used by the gateway.
type ValidateTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// ChangePasswordRequest is the authenticated password-change payload.
type ChangePasswordRequest struct {
	UserID             string `json:"userId" validate:"required"`
	CurrentPassword    string `json:"currentPassword" validate:"required"`
	NewPassword        string `json:"newPassword" validate:"required"`
	ConfirmNewPassword string `json:"confirmNewPassword" validate:"required"`
}

// Handler handles HTTP requests for the authentication endpoints
type Handler struct {
	service *Service
	tokens  *TokenService
}

// NewHandler creates a new Handler instance
func NewHandler(service *Service, tokens *TokenService) *Handler {
	return &Handler{service: service, tokens: tokens}
}

// Register handles account registration
// POST /auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		api.WriteFieldErrors(w, http.StatusBadRequest, "VALIDATION_ERROR", requiredFieldErrors(err))
		return
	}

	result, fieldErrors, err := h.service.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrUsernameExists):
			api.WriteError(w, http.StatusConflict, "USERNAME_ALREADY_EXISTS", "An account with this username already exists")
		case errors.Is(err, ErrEmailExists):
			api.WriteError(w, http.StatusConflict, "EMAIL_ALREADY_EXISTS", "An account with this email already exists")
		default:
			api.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		}
		return
	}

	if len(fieldErrors) > 0 {
		api.WriteFieldErrors(w, http.StatusBadRequest, "VALIDATION_ERROR", fieldErrors)
		return
	}

	api.WriteJSON(w, http.StatusCreated, result)
}

// Login handles first-factor authentication
// POST /auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		api.WriteFieldErrors(w, http.StatusBadRequest, "VALIDATION_ERROR", requiredFieldErrors(err))
		return
	}

	result, err := h.service.Login(r.Context(), req.Username, req.Password, clientIP(r))
	if err != nil {
		h.writeLoginError(w, err)
		return
	}

	if result.TwoFactor {
		api.WriteJSON(w, http.StatusAccepted, map[string]string{"otpId": result.OTPID.String()})
		return
	}

	w.Header().Set("Authorization", "Bearer "+result.Token)
	api.WriteJSON(w, http.StatusOK, result.Identity)
}

// LoginOTP completes a second-factor login challenge
// POST /auth/login/otp
func (h *Handler) LoginOTP(w http.ResponseWriter, r *http.Request) {
	var req LoginOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	var fieldErrors []api.FieldError
	if req.Code == "" {
		fieldErrors = append(fieldErrors, api.FieldError{Field: "code", Message: otp.CodeCodeNotBlank})
	} else if len(req.Code) != h.service.OTPCodeLength() {
		fieldErrors = append(fieldErrors, api.FieldError{Field: "code", Message: otp.CodeLengthMessage(h.service.OTPCodeLength())})
	}
	id, err := uuid.Parse(req.OTPID)
	if req.OTPID == "" || err != nil {
		fieldErrors = append(fieldErrors, api.FieldError{Field: "otpId", Message: otp.CodeNotFound})
	}
	if len(fieldErrors) > 0 {
		api.WriteFieldErrors(w, http.StatusBadRequest, "VALIDATION_ERROR", fieldErrors)
		return
	}

	result, err := h.service.CompleteLoginOTP(r.Context(), id, req.Code)
	if err != nil {
		h.writeLoginOTPError(w, err)
		return
	}

	w.Header().Set("Authorization", "Bearer "+result.Token)
	api.WriteJSON(w, http.StatusOK, result.Identity)
}

// ValidateToken handles remote token validation for the gateway
// POST /auth/token/validate
func (h *Handler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	var req ValidateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	identity, err := h.service.ValidateToken(r.Context(), req.Token)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenExpired):
			api.WriteError(w, http.StatusUnauthorized, CodeTokenCannotBeVerified, "TOKEN_IS_EXPIRED")
		case errors.Is(err, ErrTokenCannotBeVerified):
			api.WriteError(w, http.StatusUnauthorized, CodeTokenCannotBeVerified, "TOKEN_IS_NOT_VALID")
		case errors.Is(err, ErrUserNotFound):
			api.WriteError(w, http.StatusNotFound, CodeUserNotFound, "No account matches the token subject")
		case errors.Is(err, ErrUserDisabled):
			api.WriteError(w, http.StatusForbidden, CodeUserDisabled, "The account is disabled")
		default:
			api.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		}
		return
	}

	api.WriteJSON(w, http.StatusOK, identity)
}

// ChangePassword handles an authenticated password change
// POST /auth/password/reset
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.callerIdentity(r)
	if !ok {
		api.WriteError(w, http.StatusUnauthorized, CodeAccessDenied, "A valid bearer token is required")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		api.WriteFieldErrors(w, http.StatusBadRequest, "VALIDATION_ERROR", requiredFieldErrors(err))
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		api.WriteError(w, http.StatusNotFound, CodeUserNotFound, "No account matches the given userId")
		return
	}

	fieldErrors, err := h.service.ChangePassword(r.Context(), caller, userID, req.CurrentPassword, req.NewPassword, req.ConfirmNewPassword)
	if err != nil {
		switch {
		case errors.Is(err, ErrAccessDenied):
			api.WriteError(w, http.StatusUnauthorized, CodeAccessDenied, "The caller may not change this account's password")
		case errors.Is(err, ErrUserNotFound):
			api.WriteError(w, http.StatusNotFound, CodeUserNotFound, "No account matches the given userId")
		case errors.Is(err, ErrInvalidCurrentPassword):
			api.WriteError(w, http.StatusBadRequest, CodeInvalidCurrentPassword, "The current password does not match")
		case errors.Is(err, ErrPasswordsDoNotMatch):
			api.WriteError(w, http.StatusBadRequest, CodePasswordsDoNotMatch, "The password confirmation does not match")
		case errors.Is(err, ErrPasswordSameAsCurrent):
			api.WriteError(w, http.StatusBadRequest, CodePasswordSameAsCurrent, "The new password must differ from the current password")
		default:
			api.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		}
		return
	}

	if len(fieldErrors) > 0 {
		api.WriteFieldErrors(w, http.StatusBadRequest, "VALIDATION_ERROR", fieldErrors)
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password changed"})
}

// callerIdentity extracts and verifies the caller's bearer token.
func (h *Handler) callerIdentity(r *http.Request) (Identity, bool) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return Identity{}, false
	}

	claims, err := h.tokens.Validate(parts[1])
	if err != nil {
		return Identity{}, false
	}

	return Identity{Username: claims.Username(), Role: claims.Role()}, true
}

func (h *Handler) writeLoginError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUserNotFound):
		api.WriteError(w, http.StatusNotFound, CodeUserNotFound, "No account matches the given username")
	case errors.Is(err, ErrUserDisabled):
		api.WriteError(w, http.StatusForbidden, CodeUserDisabled, "The account is disabled")
	case errors.Is(err, ErrAccountLocked):
		api.WriteError(w, http.StatusForbidden, CodeAccountLocked, "The account is temporarily locked")
	case errors.Is(err, ErrBadCredentials):
		api.WriteError(w, http.StatusForbidden, CodeBadCredentials, "Invalid username or password")
	case errors.Is(err, ErrThrottled):
		api.WriteError(w, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "Too many login attempts. Please try again later.")
	default:
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
	}
}

func (h *Handler) writeLoginOTPError(w http.ResponseWriter, err error) {
	var message string
	field := "otpId"

	switch {
	case errors.Is(err, otp.ErrNotFound):
		message = otp.CodeNotFound
	case errors.Is(err, otp.ErrNotDelivered):
		message = otp.CodeNotDelivered
	case errors.Is(err, otp.ErrExpired):
		message = otp.CodeExpired
	case errors.Is(err, otp.ErrAlreadyConfirmed):
		message = otp.CodeAlreadyConfirmed
	case errors.Is(err, otp.ErrInvalidCode):
		field = "code"
		message = otp.CodeInvalidCode
	case errors.Is(err, ErrUserNotFound):
		api.WriteError(w, http.StatusNotFound, CodeUserNotFound, "No account matches the challenge")
		return
	default:
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		return
	}

	api.WriteFieldErrors(w, http.StatusBadRequest, "VALIDATION_ERROR", []api.FieldError{
		{Field: field, Message: message},
	})
}

// requiredFieldErrors maps validator tag failures to field errors.
func requiredFieldErrors(err error) []api.FieldError {
	var fieldErrors []api.FieldError

	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return []api.FieldError{{Field: "request", Message: "VALIDATION_ERROR"}}
	}

	for _, fe := range invalid {
		field := jsonFieldName(fe.Field())
		switch fe.Tag() {
		case "required":
			fieldErrors = append(fieldErrors, api.FieldError{Field: field, Message: strings.ToUpper(field) + "_NOT_BLANK"})
		case "email":
			fieldErrors = append(fieldErrors, api.FieldError{Field: field, Message: "EMAIL_NOT_VALID"})
		default:
			fieldErrors = append(fieldErrors, api.FieldError{Field: field, Message: strings.ToUpper(field) + "_NOT_VALID"})
		}
	}

	return fieldErrors
}

// jsonFieldName lowercases the first rune of a struct field name to match
// the JSON payload naming.
func jsonFieldName(name string) string {
	if name == "" {
		return name
	}
	return strings.ToLower(name[:1]) + name[1:]
}

// clientIP extracts the client IP address from the request
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 && strings.TrimSpace(parts[0]) != "" {
			return strings.TrimSpace(parts[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
