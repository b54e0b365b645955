// Package api serves the worker's operational HTTP surface: liveness,
// readiness, the pipeline health verdict, Prometheus metrics, and the
// authenticated admin endpoints.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sungwon/notification-pipeline/internal/auth"
)

// Deps are the collaborators behind the routes. Nil optional fields disable
// their routes.
type Deps struct {
	Readiness Readiness
	Service   ServiceHealthReporter
	// Gatherer backs GET /metrics. Optional.
	Gatherer prometheus.Gatherer
	// DLQ and JWT together enable POST /api/v1/dlq/probe. Optional.
	DLQ DLQProber
	JWT *auth.JWTService
}

// NewRouter creates a chi.Mux with all routes, middleware, and handlers configured.
func NewRouter(d Deps, log zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CorrelationIDMiddleware(log))
	r.Use(LoggingMiddleware(log))
	r.Use(RecoverMiddleware(log))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	// Health endpoints (no auth required)
	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(d.Readiness))
	if d.Service != nil {
		r.Get("/health", ServiceHealthHandler(d.Service))
	}
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	// Admin routes (auth required)
	if d.DLQ != nil && d.JWT != nil {
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(auth.JWTAuth(d.JWT))
			r.Use(auth.RequireRole(auth.RoleOperator))

			r.Post("/dlq/probe", DLQProbeHandler(d.DLQ))
		})
	}

	return r
}
