// Package config defines the top-level configuration for ledgerd and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/polyledger/ledgerd/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by LEDGER_* environment variables.
type Config struct {
	Postgres  PostgresConfig  `toml:"postgres"`
	Redis     RedisConfig     `toml:"redis"`
	Ledger    LedgerConfig    `toml:"ledger"`
	Portfolio PortfolioConfig `toml:"portfolio"`
	Refresh   RefreshConfig   `toml:"refresh"`
	Strategy  StrategyConfig  `toml:"strategy"`
	Server    ServerConfig    `toml:"server"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
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

// RedisConfig holds Redis connection parameters for the price cache.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// LedgerConfig holds accounting parameters.
type LedgerConfig struct {
	// Scale is the decimal precision used when rounding average entry
	// prices.
	Scale int `toml:"scale"`
	// MaxRetries bounds how often a unit of work is retried after a
	// write conflict.
	MaxRetries int `toml:"max_retries"`
	// PriceTTL is how long cached marks stay valid.
	PriceTTL duration `toml:"price_ttl"`
}

// PortfolioConfig describes the portfolio the daemon ensures at startup.
type PortfolioConfig struct {
	Name          string `toml:"name"`
	MarketType    string `toml:"market_type"`
	Exchange      string `toml:"exchange"`
	AccountID     string `toml:"account_id"`
	WalletAddress string `toml:"wallet_address"`
	Currency      string `toml:"currency"`
}

// RefreshConfig holds the price-refresh loop parameters.
type RefreshConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
}

// StrategyConfig holds trading strategy parameters.
type StrategyConfig struct {
	Name        string   `toml:"name"`
	Enabled     bool     `toml:"enabled"`
	AssetID     string   `toml:"asset_id"`
	AssetName   string   `toml:"asset_name"`
	MarketID    string   `toml:"market_id"`
	Size        string   `toml:"size"`
	EntryBelow  string   `toml:"entry_below"`
	ExitAbove   string   `toml:"exit_above"`
	FeeRate     string   `toml:"fee_rate"`
	Interval    duration `toml:"interval"`
	AutoExecute bool     `toml:"auto_execute"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "ledgerd",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:    true,
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		Ledger: LedgerConfig{
			Scale:      8,
			MaxRetries: 3,
			PriceTTL:   duration{5 * time.Minute},
		},
		Portfolio: PortfolioConfig{
			Name:       "default",
			MarketType: "prediction",
			Exchange:   "polymarket",
			Currency:   "USDC",
		},
		Refresh: RefreshConfig{
			Enabled:  true,
			Interval: duration{30 * time.Second},
		},
		Strategy: StrategyConfig{
			Name:        "threshold",
			Enabled:     false,
			Size:        "10",
			EntryBelow:  "0.40",
			ExitAbove:   "0.60",
			FeeRate:     "0",
			Interval:    duration{time.Minute},
			AutoExecute: false,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"refresh": true,
	"trade":   true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, refresh, trade, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// Ledger
	if c.Ledger.Scale < 0 || c.Ledger.Scale > 18 {
		errs = append(errs, fmt.Sprintf("ledger: scale must be 0-18, got %d", c.Ledger.Scale))
	}
	if c.Ledger.MaxRetries < 1 {
		errs = append(errs, "ledger: max_retries must be >= 1")
	}

	// Portfolio
	if c.Portfolio.Name == "" {
		errs = append(errs, "portfolio: name must not be empty")
	}
	if !domain.MarketType(c.Portfolio.MarketType).Valid() {
		errs = append(errs, fmt.Sprintf("portfolio: unknown market_type %q (valid: prediction, crypto, forex, stock, other)", c.Portfolio.MarketType))
	}

	// Refresh
	if c.Refresh.Enabled && c.Refresh.Interval.Duration <= 0 {
		errs = append(errs, "refresh: interval must be > 0 when enabled")
	}

	// Strategy
	if c.Strategy.Enabled {
		if c.Strategy.AssetID == "" {
			errs = append(errs, "strategy: asset_id must not be empty when enabled")
		}
		if c.Strategy.Interval.Duration <= 0 {
			errs = append(errs, "strategy: interval must be > 0 when enabled")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
