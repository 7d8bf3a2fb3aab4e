package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies LEDGER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known LEDGER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "LEDGER_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "LEDGER_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "LEDGER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "LEDGER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "LEDGER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "LEDGER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "LEDGER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "LEDGER_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "LEDGER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "LEDGER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "LEDGER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "LEDGER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "LEDGER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LEDGER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LEDGER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LEDGER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LEDGER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LEDGER_REDIS_TLS_ENABLED")

	// ── Ledger ──
	setInt(&cfg.Ledger.Scale, "LEDGER_SCALE")
	setInt(&cfg.Ledger.MaxRetries, "LEDGER_MAX_RETRIES")
	setDuration(&cfg.Ledger.PriceTTL, "LEDGER_PRICE_TTL")

	// ── Portfolio ──
	setStr(&cfg.Portfolio.Name, "LEDGER_PORTFOLIO_NAME")
	setStr(&cfg.Portfolio.MarketType, "LEDGER_PORTFOLIO_MARKET_TYPE")
	setStr(&cfg.Portfolio.Exchange, "LEDGER_PORTFOLIO_EXCHANGE")
	setStr(&cfg.Portfolio.AccountID, "LEDGER_PORTFOLIO_ACCOUNT_ID")
	setStr(&cfg.Portfolio.WalletAddress, "LEDGER_PORTFOLIO_WALLET_ADDRESS")
	setStr(&cfg.Portfolio.Currency, "LEDGER_PORTFOLIO_CURRENCY")

	// ── Refresh ──
	setBool(&cfg.Refresh.Enabled, "LEDGER_REFRESH_ENABLED")
	setDuration(&cfg.Refresh.Interval, "LEDGER_REFRESH_INTERVAL")

	// ── Strategy ──
	setStr(&cfg.Strategy.Name, "LEDGER_STRATEGY_NAME")
	setBool(&cfg.Strategy.Enabled, "LEDGER_STRATEGY_ENABLED")
	setStr(&cfg.Strategy.AssetID, "LEDGER_STRATEGY_ASSET_ID")
	setStr(&cfg.Strategy.AssetName, "LEDGER_STRATEGY_ASSET_NAME")
	setStr(&cfg.Strategy.MarketID, "LEDGER_STRATEGY_MARKET_ID")
	setStr(&cfg.Strategy.Size, "LEDGER_STRATEGY_SIZE")
	setStr(&cfg.Strategy.EntryBelow, "LEDGER_STRATEGY_ENTRY_BELOW")
	setStr(&cfg.Strategy.ExitAbove, "LEDGER_STRATEGY_EXIT_ABOVE")
	setStr(&cfg.Strategy.FeeRate, "LEDGER_STRATEGY_FEE_RATE")
	setDuration(&cfg.Strategy.Interval, "LEDGER_STRATEGY_INTERVAL")
	setBool(&cfg.Strategy.AutoExecute, "LEDGER_STRATEGY_AUTO_EXECUTE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "LEDGER_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "LEDGER_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "LEDGER_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "LEDGER_SERVER_CORS_ORIGINS")

	// ── Top-level ──
	setStr(&cfg.Mode, "LEDGER_MODE")
	setStr(&cfg.LogLevel, "LEDGER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
