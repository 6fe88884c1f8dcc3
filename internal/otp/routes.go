package otp

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the OTP routes with the Chi router.
// Both endpoints are unsecured: the registration confirm is part of the
// registration flow, and the delivery report comes from the notification
// transport.
func RegisterRoutes(r chi.Router, handler *Handler) {
	r.Post("/auth/registration/otp/sms", handler.Confirm)
	r.Post("/auth/otp/sms/response", handler.DeliveryResponse)
}
