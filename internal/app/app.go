// Package app provides the top-level application lifecycle for the ledger
// daemon. It wires together the stores, caches, service, server, and loops,
// and starts the goroutines that match the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/polyledger/ledgerd/internal/config"
	"github.com/polyledger/ledgerd/internal/domain"
	"github.com/polyledger/ledgerd/internal/ledger"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, ensures the
// configured portfolio exists, starts the goroutines for the selected mode,
// and blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	p, err := deps.Service.EnsurePortfolio(ctx, ledger.PortfolioParams{
		Name:          a.cfg.Portfolio.Name,
		MarketType:    domain.MarketType(a.cfg.Portfolio.MarketType),
		Exchange:      a.cfg.Portfolio.Exchange,
		AccountID:     a.cfg.Portfolio.AccountID,
		WalletAddress: a.cfg.Portfolio.WalletAddress,
		Currency:      a.cfg.Portfolio.Currency,
	})
	if err != nil {
		return fmt.Errorf("app: ensure portfolio %q: %w", a.cfg.Portfolio.Name, err)
	}
	deps.PortfolioID = p.ID
	a.logger.InfoContext(ctx, "portfolio ready",
		slog.String("portfolio_id", p.ID),
		slog.String("name", p.Name),
		slog.String("cash_balance", p.CashBalance.String()),
	)

	mode := strings.ToLower(a.cfg.Mode)
	switch mode {
	case "serve":
		return a.ServeMode(ctx, deps)
	case "refresh":
		return a.RefreshMode(ctx, deps)
	case "trade":
		return a.TradeMode(ctx, deps)
	case "full":
		return a.FullMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
