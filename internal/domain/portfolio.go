package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketType classifies the venue a portfolio trades on.
type MarketType string

const (
	MarketTypePrediction MarketType = "prediction" // Polymarket, Kalshi, etc.
	MarketTypeCrypto     MarketType = "crypto"
	MarketTypeForex      MarketType = "forex"
	MarketTypeStock      MarketType = "stock"
	MarketTypeOther      MarketType = "other"
)

// Valid reports whether mt is a known market type.
func (mt MarketType) Valid() bool {
	switch mt {
	case MarketTypePrediction, MarketTypeCrypto, MarketTypeForex, MarketTypeStock, MarketTypeOther:
		return true
	}
	return false
}

// Portfolio represents one tracked trading account. A portfolio owns a cash
// balance and a set of positions; total value and P&L figures are derived and
// kept consistent by the ledger service on every mutation:
//
//	TotalValue    == CashBalance + sum of open position market values
//	UnrealizedPnL == sum of open position unrealized P&L
//
// RealizedPnL only moves when a position is reduced, closed, or settled.
type Portfolio struct {
	ID            string
	Name          string
	MarketType    MarketType
	Exchange      string // e.g. "polymarket", "binance"
	AccountID     string // external account identifier, optional
	WalletAddress string // for chain-based venues, optional
	Currency      string

	CashBalance   decimal.Decimal
	TotalValue    decimal.Decimal
	UnrealizedPnL decimal.Decimal
	RealizedPnL   decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}
