// Package strategy defines the trading strategy contract and the runner that
// turns strategy signals into ledger trades.
package strategy

import (
	"context"

	"github.com/shopspring/decimal"
)

// Action is what a signal asks the runner to do.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Signal is one proposed trade.
type Signal struct {
	Action    Action
	AssetID   string
	AssetName string
	MarketID  string
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Reason    string
}

// Strategy analyzes current portfolio and market state and proposes trades.
// Implementations must be safe to call repeatedly; the runner invokes Analyze
// on every tick.
type Strategy interface {
	Name() string
	Analyze(ctx context.Context) ([]Signal, error)
}
