package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	s3blob "derivflow/internal/blob/s3"
	"derivflow/internal/broadcast"
	"derivflow/internal/cache/redis"
	"derivflow/internal/config"
	"derivflow/internal/domain"
	"derivflow/internal/market"
	"derivflow/internal/store/postgres"
	"derivflow/internal/venue"
)

// Dependencies bundles every shared dependency the application modes need.
// Optional subsystems (Redis, S3) leave their fields nil when disabled.
type Dependencies struct {
	// Pipeline
	Windows    *market.Cache
	Sink       *broadcast.Sink
	Normalizer *venue.Normalizer
	Pool       *venue.Pool

	// Stores (nil in modes that run without persistence)
	TradeStore   *postgres.TradeStore
	AccountStore *postgres.AccountStore

	// Redis-backed (nil when redis is disabled)
	SignalBus   domain.SignalBus
	TickCache   domain.TickCache
	RateLimiter domain.RateLimiter

	// Blob storage (nil when s3 is disabled)
	BlobWriter domain.BlobWriter
	Archiver   *s3blob.Archiver
}

// needsPostgres reports whether a mode requires the database. Monitor mode
// streams market data only and runs without persistence.
func needsPostgres(mode string) bool {
	switch strings.ToLower(mode) {
	case "trade", "server":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function to call on
// shutdown.
func Wire(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Windows: market.NewCache(),
		Sink:    broadcast.NewSink(logger),
	}
	deps.Normalizer = venue.NewNormalizer(deps.Sink, logger)
	deps.Pool = venue.NewPool(venue.PoolConfig{
		Link: venue.LinkConfig{
			URL:                  venueURL(cfg.Venue),
			BackoffBase:          cfg.Pool.BackoffBase.Duration,
			BackoffCap:           cfg.Pool.BackoffCap.Duration,
			MaxReconnectAttempts: cfg.Pool.MaxReconnectAttempts,
		},
		IdleWindow:    cfg.Pool.IdleWindow.Duration,
		SweepInterval: cfg.Pool.SweepInterval.Duration,
	}, deps.Normalizer, logger)
	closers = append(closers, deps.Pool.CloseAll)

	// --- PostgreSQL ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.TradeStore = postgres.NewTradeStore(pool)
		deps.AccountStore = postgres.NewAccountStore(pool)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.TickCache = redis.NewTickCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		if cfg.Archive.Enabled && deps.TradeStore != nil {
			deps.Archiver = s3blob.NewArchiver(
				deps.BlobWriter,
				deps.TradeStore,
				deps.Windows,
				cfg.Archive.Interval.Duration,
				logger,
			)
			if cfg.Archive.RetentionDays > 0 {
				retention := time.Duration(cfg.Archive.RetentionDays) * 24 * time.Hour
				deps.Archiver = deps.Archiver.WithPruner(s3blob.NewPruner(s3Client, retention, logger))
			}
		}
	}

	return deps, cleanup, nil
}

// venueURL appends the app_id query parameter when configured.
func venueURL(v config.VenueConfig) string {
	if v.AppID == "" {
		return v.WsURL
	}
	sep := "?"
	if strings.Contains(v.WsURL, "?") {
		sep = "&"
	}
	return v.WsURL + sep + "app_id=" + v.AppID
}
