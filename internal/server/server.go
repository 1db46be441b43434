// Package server exposes the HTTP + WebSocket dashboard surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"derivflow/internal/domain"
	"derivflow/internal/server/handler"
	"derivflow/internal/server/middleware"
	"derivflow/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per minute per client IP; 0 disables
}

// Handlers aggregates the HTTP handlers the server registers. Nil handlers
// skip their routes.
type Handlers struct {
	Health *handler.HealthHandler
	Trades *handler.TradeHandler
	Ticks  *handler.TickHandler
}

// Server is the headless HTTP + WebSocket dashboard server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain (rate limiting, auth, logging, CORS) wired up. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	if handlers.Health != nil {
		mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}
	if handlers.Trades != nil {
		mux.HandleFunc("GET /api/trades", handlers.Trades.ListRecent)
		mux.HandleFunc("GET /api/trades/open", handlers.Trades.ListOpen)
	}
	if handlers.Ticks != nil {
		mux.HandleFunc("GET /api/ticks/{symbol}", handlers.Ticks.GetTick)
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, time.Minute)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
