package api

import (
	"net/http"

	"github.com/sungwon/notification-pipeline/internal/health"
	"github.com/sungwon/notification-pipeline/internal/metrics"
)

// Readiness reports the state of the worker's dependency probes.
type Readiness interface {
	IsHealthy() bool
	Statuses() map[string]health.Status
}

// ServiceHealthReporter derives the pipeline's health verdict.
type ServiceHealthReporter interface {
	Health() metrics.ServiceHealth
}

type readyzResponse struct {
	Status string                   `json:"status"`
	Checks map[string]health.Status `json:"checks,omitempty"`
}

// HealthzHandler handles GET /healthz.
// Always returns 200 OK with {"status":"ok"}.
func HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler handles GET /readyz.
// Returns 200 when every dependency probe is healthy, otherwise 503 with a
// Retry-After header. A nil checker is always ready.
func ReadyzHandler(checker Readiness) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			respondJSON(w, http.StatusOK, readyzResponse{Status: "ok"})
			return
		}
		resp := readyzResponse{Status: "ok", Checks: checker.Statuses()}
		if !checker.IsHealthy() {
			resp.Status = "unavailable"
			w.Header().Set("Retry-After", "30")
			respondJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

// ServiceHealthHandler handles GET /health. It serves the pipeline health
// verdict and answers 503 while the verdict is unhealthy.
func ServiceHealthHandler(reporter ServiceHealthReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := reporter.Health()
		status := http.StatusOK
		if h.Status == metrics.HealthUnhealthy {
			status = http.StatusServiceUnavailable
		}
		respondJSON(w, status, h)
	}
}
