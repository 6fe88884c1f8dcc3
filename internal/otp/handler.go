package otp

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/taskora/taskora/backend/internal/api"
)

// Validator instance for request validation
var validate = validator.New()

// ConfirmRequest is the code-submission payload for a pending challenge.
type ConfirmRequest struct {
	OTPID string `json:"otpId" validate:"required"`
	Code  string `json:"code" validate:"required,numeric"`
}

// DeliveryResponseRequest is the transport's delivery report payload.
type DeliveryResponseRequest struct {
	OTPID  string `json:"otpId" validate:"required"`
	Status string `json:"status" validate:"required,oneof=DELIVERED FAILED"`
}

// Handler handles HTTP requests for the OTP endpoints
type Handler struct {
	service *Service
}

// NewHandler creates a new Handler instance
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Confirm handles code submission for a registration challenge
// POST /auth/registration/otp/sms
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	if fieldErrors := h.validateConfirm(req); len(fieldErrors) > 0 {
		api.WriteFieldErrors(w, http.StatusBadRequest, "VALIDATION_ERROR", fieldErrors)
		return
	}

	id, err := uuid.Parse(req.OTPID)
	if err != nil {
		api.WriteFieldErrors(w, http.StatusBadRequest, "VALIDATION_ERROR", []api.FieldError{
			{Field: "otpId", Message: CodeNotFound},
		})
		return
	}

	if _, err := h.service.Confirm(r.Context(), id, req.Code); err != nil {
		h.writeConfirmError(w, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]string{"message": "OTP confirmed"})
}

// DeliveryResponse handles the notification transport's delivery report
// POST /auth/otp/sms/response
func (h *Handler) DeliveryResponse(w http.ResponseWriter, r *http.Request) {
	var req DeliveryResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "otpId and status (DELIVERED or FAILED) are required")
		return
	}

	id, err := uuid.Parse(req.OTPID)
	if err != nil {
		api.WriteError(w, http.StatusNotFound, NotFoundByIDMessage(req.OTPID), "No OTP challenge matches the given id")
		return
	}

	if err := h.service.ReportDeliveryOutcome(r.Context(), id, req.Status); err != nil {
		if errors.Is(err, ErrNotFound) {
			api.WriteError(w, http.StatusNotFound, NotFoundByIDMessage(req.OTPID), "No OTP challenge matches the given id")
			return
		}
		if errors.Is(err, ErrInvalidOutcome) {
			api.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "status must be DELIVERED or FAILED")
			return
		}
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		return
	}

	api.WriteJSON(w, http.StatusOK, map[string]string{"message": "Delivery outcome recorded"})
}

// validateConfirm checks the request fields before the engine is consulted.
// A length mismatch is a request-validation error, not an engine error.
func (h *Handler) validateConfirm(req ConfirmRequest) []api.FieldError {
	var fieldErrors []api.FieldError

	if req.Code == "" {
		fieldErrors = append(fieldErrors, api.FieldError{Field: "code", Message: CodeCodeNotBlank})
	} else if len(req.Code) != h.service.CodeLength() || !isDigits(req.Code) {
		fieldErrors = append(fieldErrors, api.FieldError{Field: "code", Message: CodeLengthMessage(h.service.CodeLength())})
	}

	if req.OTPID == "" {
		fieldErrors = append(fieldErrors, api.FieldError{Field: "otpId", Message: CodeNotFound})
	}

	return fieldErrors
}

// writeConfirmError maps engine errors onto the field-error body the
// endpoint returns for every failure.
func (h *Handler) writeConfirmError(w http.ResponseWriter, err error) {
	var message string
	field := "otpId"

	switch {
	case errors.Is(err, ErrNotFound):
		message = CodeNotFound
	case errors.Is(err, ErrNotDelivered):
		message = CodeNotDelivered
	case errors.Is(err, ErrExpired):
		message = CodeExpired
	case errors.Is(err, ErrAlreadyConfirmed):
		message = CodeAlreadyConfirmed
	case errors.Is(err, ErrInvalidCode):
		field = "code"
		message = CodeInvalidCode
	default:
		api.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred")
		return
	}

	api.WriteFieldErrors(w, http.StatusBadRequest, "VALIDATION_ERROR", []api.FieldError{
		{Field: field, Message: message},
	})
}

// isDigits reports whether s consists only of ASCII digits.
func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
