// Package config defines the top-level configuration for derivflow and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by DERIVFLOW_* environment
// variables.
type Config struct {
	Venue    VenueConfig    `toml:"venue"`
	Pool     PoolConfig     `toml:"pool"`
	Trading  TradingConfig  `toml:"trading"`
	Strategy StrategyConfig `toml:"strategy"`
	Risk     RiskConfig     `toml:"risk"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// VenueConfig holds the venue WebSocket endpoint and credentials.
type VenueConfig struct {
	WsURL              string `toml:"ws_url"`
	AppID              string `toml:"app_id"`
	APIToken           string `toml:"api_token"`
	EncryptedTokenPath string `toml:"encrypted_token_path"`
	TokenPassword      string `toml:"token_password"`
	AccountKey         string `toml:"account_key"`
}

// PoolConfig holds connection-pool and reconnect tuning.
type PoolConfig struct {
	BackoffBase          duration `toml:"backoff_base"`
	BackoffCap           duration `toml:"backoff_cap"`
	MaxReconnectAttempts int      `toml:"max_reconnect_attempts"`
	IdleWindow           duration `toml:"idle_window"`
	SweepInterval        duration `toml:"sweep_interval"`
}

// TradingConfig holds the orchestration parameters.
type TradingConfig struct {
	Symbols          []string `toml:"symbols"`
	Stake            float64  `toml:"stake"`
	Currency         string   `toml:"currency"`
	Granularity      int      `toml:"granularity"`
	CandleCount      int      `toml:"candle_count"`
	Duration         int      `toml:"duration"`
	DurationUnit     string   `toml:"duration_unit"`
	AnalysisInterval duration `toml:"analysis_interval"`
	MinConfidence    float64  `toml:"min_confidence"`
}

// StrategyConfig holds per-analyzer tuning.
type StrategyConfig struct {
	Momentum MomentumConfig `toml:"momentum"`
	Breakout BreakoutConfig `toml:"breakout"`
	Scalping ScalpingConfig `toml:"scalping"`
}

// MomentumConfig holds momentum analyzer parameters.
type MomentumConfig struct {
	Enabled   bool `toml:"enabled"`
	RSIPeriod int  `toml:"rsi_period"`
}

// BreakoutConfig holds breakout analyzer parameters.
type BreakoutConfig struct {
	Enabled  bool `toml:"enabled"`
	Lookback int  `toml:"lookback"`
}

// ScalpingConfig holds scalping analyzer parameters.
type ScalpingConfig struct {
	Enabled  bool    `toml:"enabled"`
	BBPeriod int     `toml:"bb_period"`
	BBStdDev float64 `toml:"bb_std_dev"`
}

// RiskConfig holds pre-trade risk limits.
type RiskConfig struct {
	MinStake             float64 `toml:"min_stake"`
	MaxStake             float64 `toml:"max_stake"`
	MaxDailyLossPct      float64 `toml:"max_daily_loss_pct"`
	MaxConsecutiveLosses int     `toml:"max_consecutive_losses"`
	MaxTradesPerHour     int     `toml:"max_trades_per_hour"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig holds blob-archive scheduling and retention.
type ArchiveConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
	// RetentionDays prunes archive objects older than this many days after
	// each cycle; 0 keeps everything.
	RetentionDays int `toml:"retention_days"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Venue: VenueConfig{
			WsURL:      "wss://ws.binaryws.com/websockets/v3",
			AccountKey: "default",
		},
		Pool: PoolConfig{
			BackoffBase:          duration{3 * time.Second},
			BackoffCap:           duration{300 * time.Second},
			MaxReconnectAttempts: 0, // retry forever
			IdleWindow:           duration{1800 * time.Second},
			SweepInterval:        duration{300 * time.Second},
		},
		Trading: TradingConfig{
			Symbols:          []string{"R_100"},
			Stake:            1.0,
			Currency:         "USD",
			Granularity:      60,
			CandleCount:      120,
			Duration:         5,
			DurationUnit:     "m",
			AnalysisInterval: duration{30 * time.Second},
			MinConfidence:    0.6,
		},
		Strategy: StrategyConfig{
			Momentum: MomentumConfig{Enabled: true, RSIPeriod: 14},
			Breakout: BreakoutConfig{Enabled: true, Lookback: 20},
			Scalping: ScalpingConfig{Enabled: true, BBPeriod: 20, BBStdDev: 2.0},
		},
		Risk: RiskConfig{
			MinStake:             0.35,
			MaxStake:             1000,
			MaxDailyLossPct:      10,
			MaxConsecutiveLosses: 5,
			MaxTradesPerHour:     60,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "derivflow",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "derivflow-data",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Enabled:  false,
			Interval: duration{time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   0,
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"monitor": true,
	"server":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, monitor, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Venue.WsURL == "" {
		errs = append(errs, "venue: ws_url must not be empty")
	}
	if strings.ToLower(c.Mode) == "trade" {
		if c.Venue.APIToken == "" && c.Venue.EncryptedTokenPath == "" {
			errs = append(errs, "venue: either api_token or encrypted_token_path must be set for mode trade")
		}
		if c.Venue.EncryptedTokenPath != "" && c.Venue.TokenPassword == "" {
			errs = append(errs, "venue: token_password is required when encrypted_token_path is set")
		}
		if len(c.Trading.Symbols) == 0 {
			errs = append(errs, "trading: at least one symbol is required for mode trade")
		}
		if c.Trading.Stake <= 0 {
			errs = append(errs, "trading: stake must be positive")
		}
		if c.Trading.AnalysisInterval.Duration <= 0 {
			errs = append(errs, "trading: analysis_interval must be positive")
		}
		if c.Trading.MinConfidence < 0 || c.Trading.MinConfidence > 1 {
			errs = append(errs, "trading: min_confidence must be in [0, 1]")
		}
	}

	if c.Pool.BackoffBase.Duration <= 0 {
		errs = append(errs, "pool: backoff_base must be positive")
	}
	if c.Pool.BackoffCap.Duration < c.Pool.BackoffBase.Duration {
		errs = append(errs, "pool: backoff_cap must be >= backoff_base")
	}
	if c.Pool.MaxReconnectAttempts < 0 {
		errs = append(errs, "pool: max_reconnect_attempts must be >= 0 (0 retries forever)")
	}

	if c.Risk.MinStake < 0 || c.Risk.MaxStake <= 0 || c.Risk.MinStake > c.Risk.MaxStake {
		errs = append(errs, "risk: stake bounds must satisfy 0 <= min_stake <= max_stake")
	}
	if c.Risk.MaxDailyLossPct <= 0 || c.Risk.MaxDailyLossPct > 100 {
		errs = append(errs, "risk: max_daily_loss_pct must be in (0, 100]")
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port %d out of range", c.Postgres.Port))
		}
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when enabled")
	}
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty when enabled")
		}
	}
	if c.Archive.Enabled && !c.S3.Enabled {
		errs = append(errs, "archive: s3 must be enabled when archiving is enabled")
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port %d out of range", c.Server.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
