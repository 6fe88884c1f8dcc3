package passwordreset

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/taskora/taskora/backend/internal/api"
	"github.com/taskora/taskora/backend/internal/auth"
)

// Validator instance for request validation
var validate = validator.New()

// RequestResetRequest is the forgotten-password request payload.
type RequestResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ConfirmResetRequest is the forgotten-password confirmation payload.
type ConfirmResetRequest struct {
	Token                string `json:"token"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"passwordConfirmation"`
}

// Handler handles HTTP requests for the password reset endpoints
type Handler struct {
	service *Service
}

// NewHandler creates a new Handler instance
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RequestReset handles a forgotten-password request
// POST /auth/password/request/forgotten
func (h *Handler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req RequestResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		api.WriteFieldErrors(w, http.StatusBadRequest, "VALIDATION_ERROR", []api.FieldError{
			{Field: "email", Message: CodeEmailNotBlank},
		})
		return
	}

	if err := h.service.RequestReset(r.Context(), req.Email); err != nil {
		if errors.Is(err, ErrEmailNotFound) {
			api.WriteFieldErrors(w, http.StatusBadRequest, "VALIDATION_ERROR", []api.FieldError{
				{Field: "email", Message: CodeEmailNotFound},
			})
			return
		}
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password reset link dispatched"})
}

// ConfirmReset handles a forgotten-password confirmation
// POST /auth/password/reset/forgotten
func (h *Handler) ConfirmReset(w http.ResponseWriter, r *http.Request) {
	var req ConfirmResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	if req.Token == "" {
		api.WriteFieldErrors(w, http.StatusBadRequest, "VALIDATION_ERROR", []api.FieldError{
			{Field: "token", Message: CodeTokenNotBlank},
		})
		return
	}

	fieldErrors, err := h.service.ConfirmReset(r.Context(), req.Token, req.Password, req.PasswordConfirmation)
	if err != nil {
		h.writeConfirmError(w, err)
		return
	}

	if len(fieldErrors) > 0 {
		api.WriteFieldErrors(w, http.StatusBadRequest, "VALIDATION_ERROR", fieldErrors)
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]string{"message": "Password has been reset"})
}

func (h *Handler) writeConfirmError(w http.ResponseWriter, err error) {
	var reason string

	switch {
	case errors.Is(err, ErrTokenNotFound):
		reason = CodeTokenNotFound
	case errors.Is(err, ErrTokenExpired):
		reason = CodeTokenExpired
	case errors.Is(err, ErrTokenAlreadyConfirmed):
		reason = CodeTokenAlreadyConfirmed
	case errors.Is(err, auth.ErrPasswordsDoNotMatch):
		reason = auth.CodePasswordsDoNotMatch
	case errors.Is(err, auth.ErrPasswordSameAsCurrent):
		reason = auth.CodePasswordSameAsCurrent
	default:
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		return
	}

	api.WriteError(w, http.StatusBadRequest, reason, "Password reset confirmation failed")
}
