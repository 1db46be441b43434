package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"derivflow/internal/domain"
)

// TickHandler serves the latest cached tick per symbol.
type TickHandler struct {
	ticks  domain.TickCache
	logger *slog.Logger
}

// NewTickHandler creates a TickHandler backed by the given cache.
func NewTickHandler(ticks domain.TickCache, logger *slog.Logger) *TickHandler {
	return &TickHandler{
		ticks:  ticks,
		logger: logger.With(slog.String("handler", "ticks")),
	}
}

// GetTick returns the most recent tick for a symbol.
// GET /api/ticks/{symbol}
func (h *TickHandler) GetTick(w http.ResponseWriter, r *http.Request) {
	symbol := r.PathValue("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "missing symbol")
		return
	}

	tick, err := h.ticks.GetTick(r.Context(), symbol)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no tick for symbol")
		return
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get tick failed",
			slog.String("symbol", symbol),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "failed to read tick")
		return
	}
	writeJSON(w, http.StatusOK, tick)
}
