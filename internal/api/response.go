package api

import (
	"encoding/json"
	"net/http"

	"github.com/sungwon/notification-pipeline/internal/logger"
)

type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// respondJSON writes data as JSON with the given status. A nil data writes
// only the status and Content-Type.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// respondError writes an error body carrying the request's correlation ID
// so operators can find the matching log lines.
func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondJSON(w, status, errorResponse{
		Error:         message,
		CorrelationID: logger.CorrelationIDFromContext(r.Context()),
	})
}
