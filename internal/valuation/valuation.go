// Package valuation implements the pure pricing math of the ledger: cost
// basis, realized and unrealized P&L, and portfolio aggregation. Nothing in
// this package touches storage or performs I/O.
//
// All arithmetic is exact decimal. The only division in the whole ledger is
// the weighted-average entry price; it is rounded to a fixed scale using
// banker's rounding to avoid systematic bias across many trades.
package valuation

import (
	"github.com/shopspring/decimal"

	"github.com/polyledger/ledgerd/internal/domain"
)

// DefaultScale is the fractional-digit scale used for the weighted-average
// division when no scale is configured.
const DefaultScale int32 = 8

// WeightedAverageEntry returns the new average entry price after a trade that
// increases exposure in the position's existing direction:
//
//	(existingQty*existingAvg + tradeQty*tradePrice) / (existingQty + tradeQty)
//
// rounded half-even to the given scale. It is only defined for increasing
// trades; reducing trades never change the average entry price.
func WeightedAverageEntry(existingQty, existingAvg, tradeQty, tradePrice decimal.Decimal, scale int32) decimal.Decimal {
	num := existingQty.Mul(existingAvg).Add(tradeQty.Mul(tradePrice))
	den := existingQty.Add(tradeQty)
	// DivRound with two guard digits, then banker's rounding to the target
	// scale.
	return num.DivRound(den, scale+2).RoundBank(scale)
}

// Realize returns the realized P&L delta from reducing a position by
// closingQty at closingPrice: closingQty*(closingPrice - avgEntry) for a
// long, sign-inverted for a short.
func Realize(side domain.PositionSide, avgEntry, closingQty, closingPrice decimal.Decimal) decimal.Decimal {
	pnl := closingQty.Mul(closingPrice.Sub(avgEntry))
	if side == domain.SideShort {
		pnl = pnl.Neg()
	}
	return pnl
}

// Mark returns the unrealized P&L of an open position at currentPrice:
// quantity*(currentPrice - avgEntry) for a long, sign-inverted for a short.
func Mark(side domain.PositionSide, quantity, avgEntry, currentPrice decimal.Decimal) decimal.Decimal {
	pnl := quantity.Mul(currentPrice.Sub(avgEntry))
	if side == domain.SideShort {
		pnl = pnl.Neg()
	}
	return pnl
}

// MarketValue returns the current market value of an open position: entry
// collateral plus unrealized gain. For a long this equals quantity*mark; for
// a short it is the liquidation value of the entry proceeds. Positions that
// have never been marked value at their entry price.
func MarketValue(pos domain.Position) decimal.Decimal {
	return pos.Quantity.Mul(pos.AvgEntryPrice).Add(pos.UnrealizedPnL)
}

// PositionSummary is the per-position breakdown in a portfolio summary.
type PositionSummary struct {
	PositionID    string              `json:"position_id"`
	AssetID       string              `json:"asset_id"`
	AssetName     string              `json:"asset_name,omitempty"`
	Side          domain.PositionSide `json:"side"`
	Quantity      decimal.Decimal     `json:"quantity"`
	AvgEntryPrice decimal.Decimal     `json:"avg_entry_price"`
	CurrentPrice  decimal.Decimal     `json:"current_price"`
	MarketValue   decimal.Decimal     `json:"market_value"`
	UnrealizedPnL decimal.Decimal     `json:"unrealized_pnl"`
	PnLPercent    decimal.Decimal     `json:"pnl_percent"`
}

// Summary is the aggregate view of one portfolio with its open positions.
type Summary struct {
	PortfolioID   string            `json:"portfolio_id"`
	Name          string            `json:"name"`
	MarketType    domain.MarketType `json:"market_type"`
	Exchange      string            `json:"exchange"`
	Currency      string            `json:"currency"`
	CashBalance   decimal.Decimal   `json:"cash_balance"`
	TotalValue    decimal.Decimal   `json:"total_value"`
	UnrealizedPnL decimal.Decimal   `json:"unrealized_pnl"`
	RealizedPnL   decimal.Decimal   `json:"realized_pnl"`
	TotalPnL      decimal.Decimal   `json:"total_pnl"`
	OpenPositions int               `json:"open_positions_count"`
	Transactions  int64             `json:"total_transactions"`
	Positions     []PositionSummary `json:"positions"`
}

// Summarize aggregates a portfolio and its open positions into a Summary.
// Totals are recomputed from the positions, never read from the stored
// aggregate fields, so the result always satisfies
// total_value == cash + sum(open position market value).
func Summarize(p domain.Portfolio, open []domain.Position) Summary {
	s := Summary{
		PortfolioID:   p.ID,
		Name:          p.Name,
		MarketType:    p.MarketType,
		Exchange:      p.Exchange,
		Currency:      p.Currency,
		CashBalance:   p.CashBalance,
		RealizedPnL:   p.RealizedPnL,
		TotalValue:    p.CashBalance,
		UnrealizedPnL: decimal.Zero,
		OpenPositions: len(open),
		Positions:     make([]PositionSummary, 0, len(open)),
	}

	for _, pos := range open {
		value := MarketValue(pos)
		s.TotalValue = s.TotalValue.Add(value)
		s.UnrealizedPnL = s.UnrealizedPnL.Add(pos.UnrealizedPnL)

		cost := pos.Quantity.Mul(pos.AvgEntryPrice)
		pnlPercent := decimal.Zero
		if cost.IsPositive() {
			pnlPercent = pos.UnrealizedPnL.DivRound(cost, 6).Mul(decimal.NewFromInt(100))
		}

		s.Positions = append(s.Positions, PositionSummary{
			PositionID:    pos.ID,
			AssetID:       pos.AssetID,
			AssetName:     pos.AssetName,
			Side:          pos.Side,
			Quantity:      pos.Quantity,
			AvgEntryPrice: pos.AvgEntryPrice,
			CurrentPrice:  pos.CurrentPrice,
			MarketValue:   value,
			UnrealizedPnL: pos.UnrealizedPnL,
			PnLPercent:    pnlPercent,
		})
	}

	s.TotalPnL = s.UnrealizedPnL.Add(p.RealizedPnL)
	return s
}
