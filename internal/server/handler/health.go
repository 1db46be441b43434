package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthStatus describes the running process for the health endpoint.
type HealthStatus struct {
	Mode      string
	Symbols   []string
	StartedAt time.Time
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	status HealthStatus
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler reporting the given status.
func NewHealthHandler(status HealthStatus, logger *slog.Logger) *HealthHandler {
	if status.StartedAt.IsZero() {
		status.StartedAt = time.Now().UTC()
	}
	return &HealthHandler{status: status, logger: logger}
}

// HealthCheck reports liveness along with the process mode, the configured
// symbols, and uptime.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"mode":           h.status.Mode,
		"symbols":        h.status.Symbols,
		"uptime_seconds": int64(time.Since(h.status.StartedAt).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
