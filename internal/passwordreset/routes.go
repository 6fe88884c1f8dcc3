package passwordreset

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the forgotten-password routes with the Chi
// router. Both endpoints are unsecured by design: the caller has lost the
// password.
func RegisterRoutes(r chi.Router, handler *Handler) {
	r.Post("/auth/password/request/forgotten", handler.RequestReset)
	r.Post("/auth/password/reset/forgotten", handler.ConfirmReset)
}
