package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/polyledger/ledgerd/internal/cache/redis"
	"github.com/polyledger/ledgerd/internal/config"
	"github.com/polyledger/ledgerd/internal/domain"
	"github.com/polyledger/ledgerd/internal/ledger"
	"github.com/polyledger/ledgerd/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Ledger  domain.Ledger
	Service *ledger.Service

	// Redis-backed, nil when redis is disabled.
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter

	// PortfolioID is filled in after the startup portfolio is ensured.
	PortfolioID string
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
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

	deps.Ledger = postgres.NewLedger(pgClient.Pool())
	deps.Service = ledger.NewService(deps.Ledger,
		ledger.WithScale(int32(cfg.Ledger.Scale)),
		ledger.WithMaxRetries(cfg.Ledger.MaxRetries),
		ledger.WithLogger(logger),
	)

	// --- Redis (optional) ---
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

		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Ledger.PriceTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	return deps, cleanup, nil
}
