// Package app provides the top-level application lifecycle for derivflow. It
// wires together all dependencies (stores, caches, blob storage, the venue
// connection pool, strategies, and the dashboard server) and starts the
// goroutines for the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"derivflow/internal/config"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, selects the operating mode, and blocks until
// the context is cancelled or a subsystem fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	switch strings.ToLower(a.cfg.Mode) {
	case "trade":
		return a.TradeMode(ctx, deps)
	case "monitor":
		return a.MonitorMode(ctx, deps)
	case "server":
		return a.ServerMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
