package api

import (
	"context"
	"net/http"
	"time"

	"github.com/sungwon/notification-pipeline/internal/auth"
	"github.com/sungwon/notification-pipeline/internal/logger"
)

// DLQProber publishes a synthetic message to the dead letter queue.
type DLQProber interface {
	IsHealthy(ctx context.Context) error
}

type dlqProbeResponse struct {
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// DLQProbeHandler handles POST /api/v1/dlq/probe. It verifies that the dead
// letter queue accepts messages and answers 502 when it does not.
func DLQProbeHandler(dlq DLQProber) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		subject := auth.SubjectFromContext(r.Context())

		start := time.Now()
		err := dlq.IsHealthy(r.Context())
		resp := dlqProbeResponse{Status: "ok", DurationMs: time.Since(start).Milliseconds()}

		if err != nil {
			log.Error().Err(err).Str("subject", subject).Msg("dlq probe failed")
			resp.Status = "failed"
			resp.Error = err.Error()
			respondJSON(w, http.StatusBadGateway, resp)
			return
		}

		log.Info().Str("subject", subject).Int64("duration_ms", resp.DurationMs).Msg("dlq probe succeeded")
		respondJSON(w, http.StatusOK, resp)
	}
}
