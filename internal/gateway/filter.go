package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/taskora/taskora/backend/internal/api"
	"github.com/taskora/taskora/backend/internal/auth"
	appctx "github.com/taskora/taskora/backend/internal/context"
	"github.com/taskora/taskora/backend/internal/metrics"
)

// Headers carrying the verified identity to upstream services.
const (
	HeaderAuthUsername = "X-Auth-Username"
	HeaderAuthRole     = "X-Auth-Role"
)

// Filter error reasons.
const (
	CodeHeaderNotPresent      = "AUTHENTICATION_HEADER_IS_NOT_PRESENT"
	CodeValidatorUnavailable  = "AUTHENTICATION_SERVICE_UNAVAILABLE"
	CodeTokenCannotBeVerified = "TOKEN_CANNOT_BE_VERIFIED"
)

// TokenValidator resolves a bearer token to an identity. Satisfied by
// ValidatorClient; tests substitute a fake.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*ValidationResult, error)
}

// AuthenticationFilter guards every proxied route that is not on the
// unsecured list. It rejects requests without a usable bearer token before
// they reach an upstream, and relays the auth service's rejection bodies
// unchanged so clients see one error contract.
type AuthenticationFilter struct {
	validator TokenValidator
	unsecured map[string]struct{}
	logger    *slog.Logger
}

// NewAuthenticationFilter creates a new AuthenticationFilter instance.
// The unsecured paths are matched exactly.
func NewAuthenticationFilter(validator TokenValidator, unsecured []string, logger *slog.Logger) *AuthenticationFilter {
	if logger == nil {
		logger = slog.Default()
	}
	set := make(map[string]struct{}, len(unsecured))
	for _, p := range unsecured {
		set[p] = struct{}{}
	}
	return &AuthenticationFilter{
		validator: validator,
		unsecured: set,
		logger:    logger,
	}
}

// DefaultUnsecuredPaths lists the routes reachable without a token: account
// creation, both login steps, the OTP delivery surface, and the password
// flows. The authenticated password change under /auth/password/reset is on
// the list too: that endpoint verifies its own bearer token and answers 401
// ACCESS_DENIED itself, so the filter must not intercept it first.
func DefaultUnsecuredPaths() []string {
	return []string{
		"/auth/register",
		"/auth/login",
		"/auth/login/otp",
		"/auth/registration/otp/sms",
		"/auth/otp/sms/response",
		"/auth/password/reset",
		"/auth/password/reset/request",
		"/auth/password/request/forgotten",
		"/auth/password/reset/forgotten",
	}
}

// Handler returns the middleware enforcing the filter.
func (f *AuthenticationFilter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Never trust identity headers supplied by the client.
		r.Header.Del(HeaderAuthUsername)
		r.Header.Del(HeaderAuthRole)

		if _, ok := f.unsecured[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			metrics.GatewayRequestsShortCircuited.WithLabelValues("header_missing").Inc()
			api.WriteError(w, http.StatusUnauthorized, CodeHeaderNotPresent, "The Authorization header is required")
			return
		}

		token, ok := bearerToken(authHeader)
		if !ok {
			metrics.GatewayRequestsShortCircuited.WithLabelValues("header_malformed").Inc()
			api.WriteError(w, http.StatusUnauthorized, CodeTokenCannotBeVerified, "TOKEN_IS_NOT_VALID")
			return
		}

		result, err := f.validator.Validate(r.Context(), token)
		if err != nil {
			f.logger.Error("token validation call failed", "path", r.URL.Path, "error", err)
			metrics.GatewayRequestsShortCircuited.WithLabelValues("validator_unreachable").Inc()
			api.WriteError(w, http.StatusBadGateway, CodeValidatorUnavailable, "The authentication service could not be reached")
			return
		}

		if !result.Valid() {
			metrics.GatewayRequestsShortCircuited.WithLabelValues("token_rejected").Inc()
			relay(w, result)
			return
		}

		identity := result.Identity
		r.Header.Set(HeaderAuthUsername, identity.Username)
		r.Header.Set(HeaderAuthRole, identity.Role)

		ctx := appctx.WithIdentity(r.Context(), identity.Username, identity.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Identity returns the verified identity for the current request, if any.
func Identity(r *http.Request) (auth.Identity, bool) {
	username, ok := appctx.ExtractUsername(r.Context())
	if !ok {
		return auth.Identity{}, false
	}
	role, _ := appctx.ExtractRole(r.Context())
	return auth.Identity{Username: username, Role: role}, true
}

// relay writes the auth service's rejection response unchanged.
func relay(w http.ResponseWriter, result *ValidationResult) {
	contentType := result.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(result.StatusCode)
	w.Write(result.Body)
}

// bearerToken extracts the token from a Bearer authorization header.
func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
