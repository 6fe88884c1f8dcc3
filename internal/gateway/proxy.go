package gateway

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/taskora/taskora/backend/internal/api"
	"github.com/taskora/taskora/backend/internal/metrics"
	"github.com/taskora/taskora/backend/internal/middleware"
)

// Upstream is a named reverse proxy target.
type Upstream struct {
	Name  string
	Proxy *httputil.ReverseProxy
}

// NewUpstream builds a reverse proxy for a base URL. Proxy errors surface as
// 502 in the uniform envelope instead of the default bare response.
func NewUpstream(name, baseURL string, logger *slog.Logger) (*Upstream, error) {
	target, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream url for %s: %w", name, err)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("upstream request failed", "upstream", name, "path", r.URL.Path, "error", err)
		api.WriteError(w, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "The "+name+" service could not be reached")
	}

	return &Upstream{Name: name, Proxy: proxy}, nil
}

// Router assembles the gateway's HTTP handler: request ID and logging
// middleware, CORS, metrics, the authentication filter, and the two
// upstreams. Requests under /auth go to the auth service, everything else to
// the board service.
func Router(filter *AuthenticationFilter, authSvc, boardSvc *Upstream, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(filter.Handler)
		r.HandleFunc("/*", func(w http.ResponseWriter, req *http.Request) {
			if strings.HasPrefix(req.URL.Path, "/auth") {
				authSvc.Proxy.ServeHTTP(w, req)
				return
			}
			boardSvc.Proxy.ServeHTTP(w, req)
		})
	})

	return r
}
