package handler

import (
	"log/slog"
	"net/http"

	"derivflow/internal/store/postgres"
)

// TradeHandler serves trade history endpoints from the trade store.
type TradeHandler struct {
	trades     *postgres.TradeStore
	accountKey string
	logger     *slog.Logger
}

// NewTradeHandler creates a TradeHandler scoped to one account.
func NewTradeHandler(trades *postgres.TradeStore, accountKey string, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades:     trades,
		accountKey: accountKey,
		logger:     logger.With(slog.String("handler", "trades")),
	}
}

// ListRecent returns the latest trades, newest first.
// GET /api/trades?limit=50
func (h *TradeHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	trades, err := h.trades.ListRecent(r.Context(), h.accountKey, queryLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list recent trades failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

// ListOpen returns the unsettled trades, oldest first.
// GET /api/trades/open
func (h *TradeHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	trades, err := h.trades.ListOpen(r.Context(), h.accountKey)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list open trades failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "failed to list open trades")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}
