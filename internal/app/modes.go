package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"derivflow/internal/cache/redis"
	"derivflow/internal/crypto"
	"derivflow/internal/domain"
	"derivflow/internal/server"
	"derivflow/internal/server/handler"
	"derivflow/internal/server/ws"
	"derivflow/internal/service"
	"derivflow/internal/strategy"
	"derivflow/internal/venue"
)

// TradeMode runs the full pipeline: venue link, strategy analysis, risk
// gating, order placement and settlement, plus the dashboard server and the
// archiver when enabled.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	token, err := crypto.LoadToken(crypto.TokenConfig{
		RawToken:           a.cfg.Venue.APIToken,
		EncryptedTokenPath: a.cfg.Venue.EncryptedTokenPath,
		TokenPassword:      a.cfg.Venue.TokenPassword,
	})
	if err != nil {
		return fmt.Errorf("trade mode: load token: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	a.bridgeBus(deps)

	g.Go(func() error {
		return deps.Pool.Sweep(ctx)
	})

	risk := service.NewRiskGate(deps.AccountStore, a.riskConfig(), a.logger)
	tradeSvc := service.NewTradeService(
		deps.Pool,
		deps.Windows,
		a.newStrategySet(),
		strategy.NewConsensus(),
		risk,
		deps.TradeStore,
		deps.AccountStore,
		deps.TickCache,
		deps.Sink,
		service.TradeConfig{
			AccountKey:       a.cfg.Venue.AccountKey,
			Credentials:      venue.Credentials{Token: token, AppID: a.cfg.Venue.AppID},
			Symbols:          a.cfg.Trading.Symbols,
			Stake:            decimal.NewFromFloat(a.cfg.Trading.Stake),
			Currency:         a.cfg.Trading.Currency,
			Granularity:      a.cfg.Trading.Granularity,
			CandleCount:      a.cfg.Trading.CandleCount,
			Duration:         a.cfg.Trading.Duration,
			DurationUnit:     a.cfg.Trading.DurationUnit,
			AnalysisInterval: a.cfg.Trading.AnalysisInterval.Duration,
			MinConfidence:    a.cfg.Trading.MinConfidence,
		},
		a.logger,
	)
	g.Go(func() error {
		return tradeSvc.Run(ctx)
	})

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx)
		})
	}

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps)
	}

	return g.Wait()
}

// MonitorMode follows the public market feed without trading: ticks and
// candles flow into the window cache, the tick cache, and the dashboard.
// No persistence is required.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	a.bridgeBus(deps)

	g.Go(func() error {
		return deps.Pool.Sweep(ctx)
	})
	g.Go(func() error {
		return a.runMarketFeed(ctx, deps)
	})

	if a.cfg.Server.Enabled {
		a.startServer(ctx, g, deps)
	}

	return g.Wait()
}

// ServerMode runs the dashboard server only. With Redis enabled the hub
// bridges the signal bus, so a trade or monitor process elsewhere feeds the
// dashboard.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	return g.Wait()
}

// runMarketFeed subscribes the configured symbols on the public (untokened)
// link and fans ticks and candles out to the caches and the sink.
func (a *App) runMarketFeed(ctx context.Context, deps *Dependencies) error {
	link, err := deps.Pool.GetOrCreate(ctx, "public", venue.Credentials{AppID: a.cfg.Venue.AppID})
	if err != nil {
		return fmt.Errorf("market feed: acquire link: %w", err)
	}
	link.OnEvent(func(ev domain.Event) {
		switch ev.Type {
		case domain.EventTick:
			deps.Windows.AppendTick(*ev.Tick)
			if deps.TickCache != nil {
				if err := deps.TickCache.SetTick(ctx, *ev.Tick); err != nil {
					a.logger.DebugContext(ctx, "tick cache write failed", slog.Any("error", err))
				}
			}
			deps.Sink.PublishEvent(ctx, "tick", ev.Tick)
		case domain.EventCandle:
			deps.Windows.UpsertCandle(*ev.Candle)
		case domain.EventCandleSnapshot:
			if len(ev.Candles) > 0 {
				deps.Windows.SetCandles(ev.Candles[0].Symbol, ev.Candles)
			}
		}
	})

	for _, symbol := range a.cfg.Trading.Symbols {
		if err := link.SubscribeTicks(symbol); err != nil {
			return fmt.Errorf("market feed: subscribe ticks %s: %w", symbol, err)
		}
		if err := link.SubscribeCandles(symbol, a.cfg.Trading.Granularity, a.cfg.Trading.CandleCount); err != nil {
			return fmt.Errorf("market feed: subscribe candles %s: %w", symbol, err)
		}
	}

	<-ctx.Done()
	return ctx.Err()
}

// startServer wires the WebSocket hub into the sink, registers the HTTP
// handlers backed by whatever stores are available, and runs the server
// until the context is cancelled.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	startedAt := time.Now().UTC()
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		Symbols:   a.cfg.Trading.Symbols,
		StartedAt: startedAt,
	})
	deps.Sink.Register("ws", hub.Channel())
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(handler.HealthStatus{
			Mode:      a.cfg.Mode,
			Symbols:   a.cfg.Trading.Symbols,
			StartedAt: startedAt,
		}, a.logger),
	}
	if deps.TradeStore != nil {
		handlers.Trades = handler.NewTradeHandler(deps.TradeStore, a.cfg.Venue.AccountKey, a.logger)
	}
	if deps.TickCache != nil {
		handlers.Ticks = handler.NewTickHandler(deps.TickCache, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Warn("server shutdown failed", slog.Any("error", err))
			}
			return ctx.Err()
		case err := <-errCh:
			return err
		}
	})
}

// bridgeBus mirrors every sink envelope onto the Redis signal bus so other
// processes (a server-mode dashboard in particular) can follow the stream.
func (a *App) bridgeBus(deps *Dependencies) {
	if deps.SignalBus == nil {
		return
	}
	deps.Sink.Register("bus", redis.NewBusChannel(deps.SignalBus, "ch"))
}

// newStrategySet builds the analyzer set from the strategy config, keeping
// registration order stable.
func (a *App) newStrategySet() *strategy.Set {
	var analyzers []strategy.Analyzer
	if a.cfg.Strategy.Momentum.Enabled {
		analyzers = append(analyzers, strategy.NewMomentum(a.cfg.Strategy.Momentum.RSIPeriod))
	}
	if a.cfg.Strategy.Breakout.Enabled {
		analyzers = append(analyzers, strategy.NewBreakout(a.cfg.Strategy.Breakout.Lookback))
	}
	if a.cfg.Strategy.Scalping.Enabled {
		analyzers = append(analyzers, strategy.NewScalping(a.cfg.Strategy.Scalping.BBPeriod, a.cfg.Strategy.Scalping.BBStdDev))
	}
	return strategy.NewSet(analyzers...)
}

// riskConfig converts the file-level risk settings into gate limits.
func (a *App) riskConfig() service.RiskConfig {
	cfg := service.DefaultRiskConfig()
	if a.cfg.Risk.MinStake > 0 {
		cfg.MinStake = decimal.NewFromFloat(a.cfg.Risk.MinStake)
	}
	if a.cfg.Risk.MaxStake > 0 {
		cfg.MaxStake = decimal.NewFromFloat(a.cfg.Risk.MaxStake)
	}
	if a.cfg.Risk.MaxDailyLossPct > 0 {
		cfg.MaxDailyLossPct = decimal.NewFromFloat(a.cfg.Risk.MaxDailyLossPct)
	}
	if a.cfg.Risk.MaxConsecutiveLosses > 0 {
		cfg.MaxConsecutiveLoss = a.cfg.Risk.MaxConsecutiveLosses
	}
	if a.cfg.Risk.MaxTradesPerHour > 0 {
		cfg.MaxTradesPerHour = a.cfg.Risk.MaxTradesPerHour
	}
	return cfg
}
