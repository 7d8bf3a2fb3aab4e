package strategy

import (
	"context"
	"log/slog"
	"time"

	"github.com/polyledger/ledgerd/internal/domain"
	"github.com/polyledger/ledgerd/internal/ledger"
)

// Runner ticks a strategy and records its signals as ledger trades. With
// autoExecute disabled, signals are only logged.
type Runner struct {
	strat       Strategy
	svc         *ledger.Service
	portfolioID string
	interval    time.Duration
	autoExecute bool
	logger      *slog.Logger
}

// NewRunner creates a Runner for the given strategy.
func NewRunner(strat Strategy, svc *ledger.Service, portfolioID string, interval time.Duration, autoExecute bool, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		strat:       strat,
		svc:         svc,
		portfolioID: portfolioID,
		interval:    interval,
		autoExecute: autoExecute,
		logger:      logger,
	}
}

// Run ticks until ctx is cancelled. Analyze or execution failures are logged
// and do not stop the loop.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("strategy runner starting",
		slog.String("strategy", r.strat.Name()),
		slog.Duration("interval", r.interval),
		slog.Bool("auto_execute", r.autoExecute),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("strategy runner stopped", slog.String("strategy", r.strat.Name()))
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	signals, err := r.strat.Analyze(ctx)
	if err != nil {
		r.logger.Error("strategy analyze failed",
			slog.String("strategy", r.strat.Name()),
			slog.String("error", err.Error()),
		)
		return
	}

	for _, sig := range signals {
		if sig.Action == ActionHold {
			continue
		}

		attrs := []any{
			slog.String("strategy", r.strat.Name()),
			slog.String("action", string(sig.Action)),
			slog.String("asset_id", sig.AssetID),
			slog.String("quantity", sig.Quantity.String()),
			slog.String("price", sig.Price.String()),
			slog.String("reason", sig.Reason),
		}

		if !r.autoExecute {
			r.logger.Info("signal (dry run)", attrs...)
			continue
		}

		if err := r.Execute(ctx, sig); err != nil {
			r.logger.Error("signal execution failed", append(attrs, slog.String("error", err.Error()))...)
			continue
		}
		r.logger.Info("signal executed", attrs...)
	}
}

// Execute records one signal as a trade.
func (r *Runner) Execute(ctx context.Context, sig Signal) error {
	txType := domain.TransactionTypeBuy
	if sig.Action == ActionSell {
		txType = domain.TransactionTypeSell
	}

	_, _, err := r.svc.RecordTrade(ctx, ledger.TradeParams{
		PortfolioID: r.portfolioID,
		Type:        txType,
		AssetID:     sig.AssetID,
		AssetName:   sig.AssetName,
		MarketID:    sig.MarketID,
		Quantity:    sig.Quantity,
		Price:       sig.Price,
		Notes:       sig.Reason,
	})
	return err
}
