// Package metrics provides Prometheus metrics for the auth service and gateway.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskora",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures HTTP request duration in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "taskora",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)
)

var (
	// LoginAttemptsTotal counts login attempts by outcome
	// (success, bad_credentials, locked, disabled, not_found, throttled)
	LoginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskora",
			Subsystem: "auth",
			Name:      "login_attempts_total",
			Help:      "Total login attempts by outcome",
		},
		[]string{"outcome"},
	)

	// AccountLockoutsTotal counts brute-force lockout transitions
	AccountLockoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "taskora",
			Subsystem: "auth",
			Name:      "account_lockouts_total",
			Help:      "Total accounts locked by the brute-force guard",
		},
	)

	// TokenValidationsTotal counts token validations by outcome
	TokenValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskora",
			Subsystem: "auth",
			Name:      "token_validations_total",
			Help:      "Total bearer token validations by outcome",
		},
		[]string{"outcome"},
	)
)

var (
	// OTPTransitionsTotal counts OTP state transitions
	// (issued, delivered, failed, confirmed, expired, rejected)
	OTPTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskora",
			Subsystem: "otp",
			Name:      "transitions_total",
			Help:      "Total OTP state transitions",
		},
		[]string{"transition"},
	)

	// ResetConfirmationsTotal counts password reset confirmations by outcome
	ResetConfirmationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskora",
			Subsystem: "otp",
			Name:      "reset_confirmations_total",
			Help:      "Total password reset confirmations by outcome",
		},
		[]string{"outcome"},
	)
)

var (
	// GatewayValidatorRequestsTotal counts outbound token validation calls by result
	GatewayValidatorRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskora",
			Subsystem: "gateway",
			Name:      "validator_requests_total",
			Help:      "Total outbound validator calls by result",
		},
		[]string{"result"},
	)

	// GatewayValidatorDuration measures the latency of remote token validation
	GatewayValidatorDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "taskora",
			Subsystem: "gateway",
			Name:      "validator_duration_seconds",
			Help:      "Latency of outbound validator calls",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// GatewayRequestsShortCircuited counts requests rejected at the edge before proxying
	GatewayRequestsShortCircuited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskora",
			Subsystem: "gateway",
			Name:      "requests_short_circuited_total",
			Help:      "Requests rejected by the authentication filter before reaching an upstream",
		},
		[]string{"reason"},
	)
)

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware instruments HTTP requests with request count and duration.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// routePattern returns the chi route pattern to keep label cardinality bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
