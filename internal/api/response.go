// Package api provides the uniform response envelope shared by the auth
// service and the gateway.
package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// ErrorResponse is the error body returned by every endpoint.
type ErrorResponse struct {
	Timestamp      time.Time    `json:"timestamp"`
	HTTPStatusCode int          `json:"httpStatusCode"`
	HTTPStatus     string       `json:"httpStatus"`
	Reason         string       `json:"reason"`
	Message        string       `json:"message"`
	Errors         []FieldError `json:"errors,omitempty"`
}

// FieldError is a single request-validation failure tied to an input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes the uniform error envelope.
func WriteError(w http.ResponseWriter, statusCode int, reason, message string) {
	WriteJSON(w, statusCode, ErrorResponse{
		Timestamp:      time.Now().UTC(),
		HTTPStatusCode: statusCode,
		HTTPStatus:     http.StatusText(statusCode),
		Reason:         reason,
		Message:        message,
	})
}

// WriteFieldErrors writes the uniform error envelope with field-level detail.
func WriteFieldErrors(w http.ResponseWriter, statusCode int, reason string, fieldErrors []FieldError) {
	WriteJSON(w, statusCode, ErrorResponse{
		Timestamp:      time.Now().UTC(),
		HTTPStatusCode: statusCode,
		HTTPStatus:     http.StatusText(statusCode),
		Reason:         reason,
		Message:        "Request validation failed",
		Errors:         fieldErrors,
	})
}
