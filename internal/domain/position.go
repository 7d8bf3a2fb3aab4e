package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// PositionSide is the exposure direction of a position.
type PositionSide string

const (
	SideLong  PositionSide = "long"  // betting YES / holding the asset
	SideShort PositionSide = "short" // betting NO / sold exposure
)

// Position is a single open or historical holding of one asset within one
// portfolio. Quantity is always >= 0; the direction lives in Side. While the
// position is open Quantity > 0; a fully offsetting trade closes it at
// Quantity == 0, and a later trade on the same asset opens a fresh record.
//
// AvgEntryPrice is a quantity-weighted mean that only moves on trades that
// increase exposure in the existing direction. Reducing trades leave it
// untouched and book realized P&L instead.
type Position struct {
	ID          string
	PortfolioID string

	AssetID   string // token id, ticker, contract address
	AssetName string // human-readable, optional
	MarketID  string // external market/condition id, optional

	Side          PositionSide
	Quantity      decimal.Decimal
	AvgEntryPrice decimal.Decimal
	CurrentPrice  decimal.Decimal
	UnrealizedPnL decimal.Decimal

	Status   PositionStatus
	OpenedAt time.Time
	ClosedAt *time.Time
}

// IsOpen reports whether the position is still open.
func (p Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}
