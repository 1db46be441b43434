package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the config file at path (TOML), layers DERIVFLOW_* environment
// variables on top, validates the result and returns it. A missing file is
// not an error: defaults plus environment are used instead.
func Load(path string) (Config, error) {
	// Best effort: a .env file is a development convenience.
	_ = godotenv.Load()

	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides cfg fields from DERIVFLOW_* environment variables.
// Only variables that are set and non-empty take effect.
func applyEnv(cfg *Config) {
	setStr("DERIVFLOW_MODE", &cfg.Mode)
	setStr("DERIVFLOW_LOG_LEVEL", &cfg.LogLevel)

	setStr("DERIVFLOW_VENUE_WS_URL", &cfg.Venue.WsURL)
	setStr("DERIVFLOW_VENUE_APP_ID", &cfg.Venue.AppID)
	setStr("DERIVFLOW_VENUE_API_TOKEN", &cfg.Venue.APIToken)
	setStr("DERIVFLOW_VENUE_ENCRYPTED_TOKEN_PATH", &cfg.Venue.EncryptedTokenPath)
	setStr("DERIVFLOW_VENUE_TOKEN_PASSWORD", &cfg.Venue.TokenPassword)
	setStr("DERIVFLOW_VENUE_ACCOUNT_KEY", &cfg.Venue.AccountKey)

	setDuration("DERIVFLOW_POOL_BACKOFF_BASE", &cfg.Pool.BackoffBase)
	setDuration("DERIVFLOW_POOL_BACKOFF_CAP", &cfg.Pool.BackoffCap)
	setInt("DERIVFLOW_POOL_MAX_RECONNECT_ATTEMPTS", &cfg.Pool.MaxReconnectAttempts)
	setDuration("DERIVFLOW_POOL_IDLE_WINDOW", &cfg.Pool.IdleWindow)
	setDuration("DERIVFLOW_POOL_SWEEP_INTERVAL", &cfg.Pool.SweepInterval)

	setStringSlice("DERIVFLOW_TRADING_SYMBOLS", &cfg.Trading.Symbols)
	setFloat64("DERIVFLOW_TRADING_STAKE", &cfg.Trading.Stake)
	setStr("DERIVFLOW_TRADING_CURRENCY", &cfg.Trading.Currency)
	setInt("DERIVFLOW_TRADING_GRANULARITY", &cfg.Trading.Granularity)
	setInt("DERIVFLOW_TRADING_CANDLE_COUNT", &cfg.Trading.CandleCount)
	setInt("DERIVFLOW_TRADING_DURATION", &cfg.Trading.Duration)
	setStr("DERIVFLOW_TRADING_DURATION_UNIT", &cfg.Trading.DurationUnit)
	setDuration("DERIVFLOW_TRADING_ANALYSIS_INTERVAL", &cfg.Trading.AnalysisInterval)
	setFloat64("DERIVFLOW_TRADING_MIN_CONFIDENCE", &cfg.Trading.MinConfidence)

	setBool("DERIVFLOW_STRATEGY_MOMENTUM_ENABLED", &cfg.Strategy.Momentum.Enabled)
	setInt("DERIVFLOW_STRATEGY_MOMENTUM_RSI_PERIOD", &cfg.Strategy.Momentum.RSIPeriod)
	setBool("DERIVFLOW_STRATEGY_BREAKOUT_ENABLED", &cfg.Strategy.Breakout.Enabled)
	setInt("DERIVFLOW_STRATEGY_BREAKOUT_LOOKBACK", &cfg.Strategy.Breakout.Lookback)
	setBool("DERIVFLOW_STRATEGY_SCALPING_ENABLED", &cfg.Strategy.Scalping.Enabled)
	setInt("DERIVFLOW_STRATEGY_SCALPING_BB_PERIOD", &cfg.Strategy.Scalping.BBPeriod)
	setFloat64("DERIVFLOW_STRATEGY_SCALPING_BB_STD_DEV", &cfg.Strategy.Scalping.BBStdDev)

	setFloat64("DERIVFLOW_RISK_MIN_STAKE", &cfg.Risk.MinStake)
	setFloat64("DERIVFLOW_RISK_MAX_STAKE", &cfg.Risk.MaxStake)
	setFloat64("DERIVFLOW_RISK_MAX_DAILY_LOSS_PCT", &cfg.Risk.MaxDailyLossPct)
	setInt("DERIVFLOW_RISK_MAX_CONSECUTIVE_LOSSES", &cfg.Risk.MaxConsecutiveLosses)
	setInt("DERIVFLOW_RISK_MAX_TRADES_PER_HOUR", &cfg.Risk.MaxTradesPerHour)

	setStr("DERIVFLOW_POSTGRES_DSN", &cfg.Postgres.DSN)
	setStr("DERIVFLOW_POSTGRES_HOST", &cfg.Postgres.Host)
	setInt("DERIVFLOW_POSTGRES_PORT", &cfg.Postgres.Port)
	setStr("DERIVFLOW_POSTGRES_DATABASE", &cfg.Postgres.Database)
	setStr("DERIVFLOW_POSTGRES_USER", &cfg.Postgres.User)
	setStr("DERIVFLOW_POSTGRES_PASSWORD", &cfg.Postgres.Password)
	setStr("DERIVFLOW_POSTGRES_SSL_MODE", &cfg.Postgres.SSLMode)
	setInt("DERIVFLOW_POSTGRES_POOL_MAX_CONNS", &cfg.Postgres.PoolMaxConns)
	setInt("DERIVFLOW_POSTGRES_POOL_MIN_CONNS", &cfg.Postgres.PoolMinConns)
	setBool("DERIVFLOW_POSTGRES_RUN_MIGRATIONS", &cfg.Postgres.RunMigrations)

	setBool("DERIVFLOW_REDIS_ENABLED", &cfg.Redis.Enabled)
	setStr("DERIVFLOW_REDIS_ADDR", &cfg.Redis.Addr)
	setStr("DERIVFLOW_REDIS_PASSWORD", &cfg.Redis.Password)
	setInt("DERIVFLOW_REDIS_DB", &cfg.Redis.DB)
	setInt("DERIVFLOW_REDIS_POOL_SIZE", &cfg.Redis.PoolSize)
	setBool("DERIVFLOW_REDIS_TLS_ENABLED", &cfg.Redis.TLSEnabled)

	setBool("DERIVFLOW_S3_ENABLED", &cfg.S3.Enabled)
	setStr("DERIVFLOW_S3_ENDPOINT", &cfg.S3.Endpoint)
	setStr("DERIVFLOW_S3_REGION", &cfg.S3.Region)
	setStr("DERIVFLOW_S3_BUCKET", &cfg.S3.Bucket)
	setStr("DERIVFLOW_S3_ACCESS_KEY", &cfg.S3.AccessKey)
	setStr("DERIVFLOW_S3_SECRET_KEY", &cfg.S3.SecretKey)
	setBool("DERIVFLOW_S3_USE_SSL", &cfg.S3.UseSSL)
	setBool("DERIVFLOW_S3_FORCE_PATH_STYLE", &cfg.S3.ForcePathStyle)

	setBool("DERIVFLOW_ARCHIVE_ENABLED", &cfg.Archive.Enabled)
	setDuration("DERIVFLOW_ARCHIVE_INTERVAL", &cfg.Archive.Interval)
	setInt("DERIVFLOW_ARCHIVE_RETENTION_DAYS", &cfg.Archive.RetentionDays)

	setBool("DERIVFLOW_SERVER_ENABLED", &cfg.Server.Enabled)
	setInt("DERIVFLOW_SERVER_PORT", &cfg.Server.Port)
	setStringSlice("DERIVFLOW_SERVER_CORS_ORIGINS", &cfg.Server.CORSOrigins)
	setStr("DERIVFLOW_SERVER_API_KEY", &cfg.Server.APIKey)
	setInt("DERIVFLOW_SERVER_RATE_LIMIT", &cfg.Server.RateLimit)
}

func setStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(key string, dst *[]string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				out = append(out, s)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
