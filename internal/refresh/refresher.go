// Package refresh periodically re-marks open positions from a price source.
package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/polyledger/ledgerd/internal/domain"
	"github.com/polyledger/ledgerd/internal/ledger"
)

// Refresher drives the mark-to-market loop for one portfolio: on every tick
// it collects the open position asset IDs, asks the price source for fresh
// quotes, and applies them through the ledger service. Assets the source
// cannot quote keep their previous mark.
type Refresher struct {
	svc         *ledger.Service
	prices      domain.PriceSource
	portfolioID string
	interval    time.Duration
	logger      *slog.Logger
}

// NewRefresher creates a Refresher for the given portfolio.
func NewRefresher(svc *ledger.Service, prices domain.PriceSource, portfolioID string, interval time.Duration, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		svc:         svc,
		prices:      prices,
		portfolioID: portfolioID,
		interval:    interval,
		logger:      logger,
	}
}

// Run refreshes once immediately and then on every tick until ctx is
// cancelled. Per-tick failures are logged and do not stop the loop.
func (r *Refresher) Run(ctx context.Context) error {
	r.logger.Info("price refresher starting",
		slog.String("portfolio_id", r.portfolioID),
		slog.Duration("interval", r.interval),
	)

	if err := r.RefreshOnce(ctx); err != nil {
		r.logger.Error("price refresh failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("price refresher stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.RefreshOnce(ctx); err != nil {
				r.logger.Error("price refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RefreshOnce performs a single mark-to-market pass.
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	summary, err := r.svc.GetPortfolioSummary(ctx, r.portfolioID)
	if err != nil {
		return fmt.Errorf("refresh: summary: %w", err)
	}
	if len(summary.Positions) == 0 {
		return nil
	}

	assetIDs := make([]string, 0, len(summary.Positions))
	for _, pos := range summary.Positions {
		assetIDs = append(assetIDs, pos.AssetID)
	}

	quotes, err := r.prices.GetPrices(ctx, assetIDs)
	if err != nil {
		return fmt.Errorf("refresh: get prices: %w", err)
	}
	if len(quotes) == 0 {
		r.logger.Debug("no quotes available", slog.Int("open_positions", len(assetIDs)))
		return nil
	}

	p, err := r.svc.UpdatePositionPrices(ctx, r.portfolioID, quotes)
	if err != nil {
		return fmt.Errorf("refresh: update prices: %w", err)
	}

	r.logger.Info("positions re-marked",
		slog.Int("quoted", len(quotes)),
		slog.Int("open_positions", len(assetIDs)),
		slog.String("total_value", p.TotalValue.String()),
		slog.String("unrealized_pnl", p.UnrealizedPnL.String()),
	)
	return nil
}
