package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/polyledger/ledgerd/internal/domain"
	"github.com/polyledger/ledgerd/internal/ledger"
)

// ThresholdConfig parameterizes the threshold strategy.
type ThresholdConfig struct {
	PortfolioID string
	AssetID     string
	AssetName   string
	MarketID    string
	// Size is the quantity bought on entry.
	Size decimal.Decimal
	// EntryBelow enters when the mark drops to or below this price.
	EntryBelow decimal.Decimal
	// ExitAbove exits when the mark rises to or above this price.
	ExitAbove decimal.Decimal
	// FeeRate is applied to notional when estimating affordability, 0-1.
	FeeRate decimal.Decimal
}

// Threshold is a single-asset entry/exit strategy: buy Size units when the
// mark is at or below EntryBelow and no position is open, sell the whole
// position when the mark is at or above ExitAbove.
type Threshold struct {
	cfg    ThresholdConfig
	svc    *ledger.Service
	prices domain.PriceSource
}

// NewThreshold creates a Threshold strategy.
func NewThreshold(cfg ThresholdConfig, svc *ledger.Service, prices domain.PriceSource) *Threshold {
	return &Threshold{cfg: cfg, svc: svc, prices: prices}
}

func (t *Threshold) Name() string { return "threshold" }

// Analyze produces at most one signal per tick.
func (t *Threshold) Analyze(ctx context.Context) ([]Signal, error) {
	quotes, err := t.prices.GetPrices(ctx, []string{t.cfg.AssetID})
	if err != nil {
		return nil, fmt.Errorf("threshold: get price: %w", err)
	}
	mark, ok := quotes[t.cfg.AssetID]
	if !ok {
		return nil, nil // no quote yet
	}

	summary, err := t.svc.GetPortfolioSummary(ctx, t.cfg.PortfolioID)
	if err != nil {
		return nil, fmt.Errorf("threshold: summary: %w", err)
	}

	var open *decimal.Decimal
	for _, pos := range summary.Positions {
		if pos.AssetID == t.cfg.AssetID && pos.Side == domain.SideLong {
			qty := pos.Quantity
			open = &qty
			break
		}
	}

	switch {
	case open == nil && mark.LessThanOrEqual(t.cfg.EntryBelow):
		notional := t.cfg.Size.Mul(mark)
		cost := notional.Add(notional.Mul(t.cfg.FeeRate))
		if cost.GreaterThan(summary.CashBalance) {
			return nil, nil // cannot afford the entry
		}
		return []Signal{{
			Action:    ActionBuy,
			AssetID:   t.cfg.AssetID,
			AssetName: t.cfg.AssetName,
			MarketID:  t.cfg.MarketID,
			Quantity:  t.cfg.Size,
			Price:     mark,
			Reason:    fmt.Sprintf("mark %s <= entry %s", mark, t.cfg.EntryBelow),
		}}, nil

	case open != nil && mark.GreaterThanOrEqual(t.cfg.ExitAbove):
		return []Signal{{
			Action:    ActionSell,
			AssetID:   t.cfg.AssetID,
			AssetName: t.cfg.AssetName,
			MarketID:  t.cfg.MarketID,
			Quantity:  *open,
			Price:     mark,
			Reason:    fmt.Sprintf("mark %s >= exit %s", mark, t.cfg.ExitAbove),
		}}, nil
	}

	return nil, nil
}

// Validate checks the config before the strategy is started.
func (c ThresholdConfig) Validate() error {
	if c.PortfolioID == "" || c.AssetID == "" {
		return errors.New("threshold: portfolio_id and asset_id are required")
	}
	if !c.Size.IsPositive() {
		return errors.New("threshold: size must be > 0")
	}
	if c.ExitAbove.LessThanOrEqual(c.EntryBelow) {
		return errors.New("threshold: exit_above must exceed entry_below")
	}
	if c.FeeRate.IsNegative() {
		return errors.New("threshold: fee_rate must be >= 0")
	}
	return nil
}
