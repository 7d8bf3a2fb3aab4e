package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/polyledger/ledgerd/internal/refresh"
	"github.com/polyledger/ledgerd/internal/server"
	"github.com/polyledger/ledgerd/internal/server/handler"
	"github.com/polyledger/ledgerd/internal/strategy"
)

// ServeMode runs only the HTTP API.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return waitGroup(g)
}

// RefreshMode runs only the price refresher.
func (a *App) RefreshMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting refresh mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startRefresher(ctx, g, deps); err != nil {
		return err
	}
	return waitGroup(g)
}

// TradeMode runs the price refresher and the strategy runner without the HTTP
// API.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startRefresher(ctx, g, deps); err != nil {
		return err
	}
	if err := a.startStrategy(ctx, g, deps); err != nil {
		return err
	}
	return waitGroup(g)
}

// FullMode runs everything: HTTP API, price refresher, and strategy runner.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}
	if a.cfg.Refresh.Enabled {
		if err := a.startRefresher(ctx, g, deps); err != nil {
			return err
		}
	}
	if a.cfg.Strategy.Enabled {
		if err := a.startStrategy(ctx, g, deps); err != nil {
			return err
		}
	}

	return waitGroup(g)
}

// startHTTPServer registers all handlers and runs the server until ctx is
// cancelled, then shuts it down gracefully.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		},
		server.Handlers{
			Health:     handler.NewHealthHandler(a.logger),
			Portfolios: handler.NewPortfolioHandler(deps.Service, a.logger),
			Funds:      handler.NewFundsHandler(deps.Service, a.logger),
			Trades:     handler.NewTradeHandler(deps.Service, a.logger),
			Prices:     handler.NewPriceHandler(deps.Service, deps.PriceCache, a.logger),
		},
		deps.RateLimiter,
		a.logger,
	)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// startRefresher runs the mark-to-market loop against the Redis price cache.
func (a *App) startRefresher(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if deps.PriceCache == nil {
		return fmt.Errorf("app: price refresher requires redis (set redis.enabled)")
	}

	r := refresh.NewRefresher(
		deps.Service,
		deps.PriceCache,
		deps.PortfolioID,
		a.cfg.Refresh.Interval.Duration,
		a.logger,
	)
	g.Go(func() error {
		err := r.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("refresher: %w", err)
	})
	return nil
}

// startStrategy builds the configured strategy and runs it.
func (a *App) startStrategy(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if deps.PriceCache == nil {
		return fmt.Errorf("app: strategy runner requires redis (set redis.enabled)")
	}

	strat, err := a.buildStrategy(deps)
	if err != nil {
		return err
	}

	runner := strategy.NewRunner(
		strat,
		deps.Service,
		deps.PortfolioID,
		a.cfg.Strategy.Interval.Duration,
		a.cfg.Strategy.AutoExecute,
		a.logger,
	)
	if !a.cfg.Strategy.AutoExecute {
		a.logger.InfoContext(ctx, "strategy.auto_execute is false; signals will be logged only")
	}

	g.Go(func() error {
		err := runner.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("strategy runner: %w", err)
	})
	return nil
}

func (a *App) buildStrategy(deps *Dependencies) (strategy.Strategy, error) {
	switch a.cfg.Strategy.Name {
	case "threshold":
		cfg, err := a.thresholdConfig(deps.PortfolioID)
		if err != nil {
			return nil, err
		}
		return strategy.NewThreshold(cfg, deps.Service, deps.PriceCache), nil
	default:
		return nil, fmt.Errorf("app: unknown strategy %q", a.cfg.Strategy.Name)
	}
}

func (a *App) thresholdConfig(portfolioID string) (strategy.ThresholdConfig, error) {
	parse := func(name, v string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("app: strategy.%s %q: %w", name, v, err)
		}
		return d, nil
	}

	size, err := parse("size", a.cfg.Strategy.Size)
	if err != nil {
		return strategy.ThresholdConfig{}, err
	}
	entry, err := parse("entry_below", a.cfg.Strategy.EntryBelow)
	if err != nil {
		return strategy.ThresholdConfig{}, err
	}
	exit, err := parse("exit_above", a.cfg.Strategy.ExitAbove)
	if err != nil {
		return strategy.ThresholdConfig{}, err
	}
	feeRate, err := parse("fee_rate", a.cfg.Strategy.FeeRate)
	if err != nil {
		return strategy.ThresholdConfig{}, err
	}

	cfg := strategy.ThresholdConfig{
		PortfolioID: portfolioID,
		AssetID:     a.cfg.Strategy.AssetID,
		AssetName:   a.cfg.Strategy.AssetName,
		MarketID:    a.cfg.Strategy.MarketID,
		Size:        size,
		EntryBelow:  entry,
		ExitAbove:   exit,
		FeeRate:     feeRate,
	}
	if err := cfg.Validate(); err != nil {
		return strategy.ThresholdConfig{}, err
	}
	return cfg, nil
}

// waitGroup waits for the errgroup and logs the outcome.
func waitGroup(g *errgroup.Group) error {
	if err := g.Wait(); err != nil {
		slog.Error("application stopped with error", slog.String("error", err.Error()))
		return err
	}
	slog.Info("application stopped cleanly")
	return nil
}
