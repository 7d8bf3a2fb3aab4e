package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceSource supplies the latest known mark for a set of assets. Assets with
// no known price are omitted from the result map.
type PriceSource interface {
	GetPrices(ctx context.Context, assetIDs []string) (map[string]decimal.Decimal, error)
}

// PriceCache stores the latest mark per asset, written by an external feed
// and read by the price refresher.
type PriceCache interface {
	PriceSource
	SetPrice(ctx context.Context, assetID string, price decimal.Decimal, ts time.Time) error
	GetPrice(ctx context.Context, assetID string) (decimal.Decimal, time.Time, error)
}

// RateLimiter bounds request rates per key using a sliding window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
