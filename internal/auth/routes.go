package auth

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the authentication routes with the Chi router.
// Every route here is unsecured at the gateway; the password-change endpoint
// enforces its own bearer check.
func RegisterRoutes(r chi.Router, handler *Handler) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", handler.Register)
		r.Post("/login", handler.Login)
		r.Post("/login/otp", handler.LoginOTP)
		r.Post("/token/validate", handler.ValidateToken)
		r.Post("/password/reset", handler.ChangePassword)
	})
}
