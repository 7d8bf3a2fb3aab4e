package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := writeTempConfig(t, `
mode = "serve"
log_level = "debug"

[postgres]
host = "db.internal"
database = "ledger_prod"

[ledger]
scale = 6

[portfolio]
name = "prod"
market_type = "crypto"
exchange = "binance"

[refresh]
interval = "90s"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if cfg.Mode != "serve" || cfg.LogLevel != "debug" {
		t.Errorf("mode/log_level = %s/%s", cfg.Mode, cfg.LogLevel)
	}
	if cfg.Postgres.Host != "db.internal" || cfg.Postgres.Database != "ledger_prod" {
		t.Errorf("postgres = %+v", cfg.Postgres)
	}
	// Unset fields keep their defaults.
	if cfg.Postgres.Port != 5432 || cfg.Postgres.PoolMaxConns != 10 {
		t.Errorf("postgres defaults lost: %+v", cfg.Postgres)
	}
	if cfg.Ledger.Scale != 6 || cfg.Ledger.MaxRetries != 3 {
		t.Errorf("ledger = %+v", cfg.Ledger)
	}
	if cfg.Portfolio.Name != "prod" || cfg.Portfolio.MarketType != "crypto" {
		t.Errorf("portfolio = %+v", cfg.Portfolio)
	}
	if cfg.Refresh.Interval.Duration != 90*time.Second {
		t.Errorf("refresh interval = %s", cfg.Refresh.Interval.Duration)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, `
[postgres]
host = "from-file"
`)

	t.Setenv("LEDGER_POSTGRES_HOST", "from-env")
	t.Setenv("LEDGER_POSTGRES_PASSWORD", "s3cret")
	t.Setenv("LEDGER_SERVER_PORT", "9100")
	t.Setenv("LEDGER_REFRESH_INTERVAL", "10s")
	t.Setenv("LEDGER_REDIS_ENABLED", "false")
	t.Setenv("LEDGER_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Postgres.Host != "from-env" {
		t.Errorf("env must win over file, host = %s", cfg.Postgres.Host)
	}
	if cfg.Postgres.Password != "s3cret" {
		t.Errorf("password = %s", cfg.Postgres.Password)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Refresh.Interval.Duration != 10*time.Second {
		t.Errorf("interval = %s", cfg.Refresh.Interval.Duration)
	}
	if cfg.Redis.Enabled {
		t.Error("redis should be disabled by env")
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors origins = %v", cfg.Server.CORSOrigins)
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.LogLevel = "loud"
	cfg.Postgres.PoolMaxConns = 0
	cfg.Portfolio.Name = ""
	cfg.Portfolio.MarketType = "bond"
	cfg.Server.Port = 70000

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"unknown mode", "unknown log_level", "pool_max_conns", "portfolio: name", "market_type", "server: port"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%s", want, err)
		}
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.DSN = "postgres://user:pw@host/db"
	cfg.Postgres.Password = "pw"
	cfg.Redis.Password = "rp"
	cfg.Server.APIKey = "key"

	red := RedactedConfig(&cfg)
	if red.Postgres.DSN != "***" || red.Postgres.Password != "***" ||
		red.Redis.Password != "***" || red.Server.APIKey != "***" {
		t.Errorf("secrets not redacted: %+v", red)
	}
	if cfg.Postgres.Password != "pw" {
		t.Error("redaction must not mutate the original")
	}

	// Empty secrets stay empty.
	empty := Defaults()
	if got := RedactedConfig(&empty); got.Server.APIKey != "" {
		t.Errorf("empty secret became %q", got.Server.APIKey)
	}
}
