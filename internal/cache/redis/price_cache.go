package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/polyledger/ledgerd/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes.
// Each asset's mark is stored as a hash at key "price:{assetID}" with fields
// "price" (decimal string) and "ts" (Unix nanosecond timestamp). Entries
// expire after the configured TTL so the refresher never marks positions with
// stale quotes.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client. A zero ttl
// keeps entries forever.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ttl: ttl}
}

func priceKey(assetID string) string {
	return "price:" + assetID
}

// SetPrice stores the latest mark and timestamp for an asset.
func (pc *PriceCache) SetPrice(ctx context.Context, assetID string, price decimal.Decimal, ts time.Time) error {
	key := priceKey(assetID)
	fields := map[string]interface{}{
		"price": price.String(),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}

	pipe := pc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", assetID, err)
	}
	return nil
}

// GetPrice retrieves the latest mark and timestamp for an asset.
// It returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetPrice(ctx context.Context, assetID string) (decimal.Decimal, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(assetID)).Result()
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: get price %s: %w", assetID, err)
	}
	if len(vals) == 0 {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}

	price, ts, err := parsePriceHash(vals)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: price %s: %w", assetID, err)
	}
	return price, ts, nil
}

// GetPrices retrieves the latest marks for multiple assets using a pipeline.
// Assets whose keys do not exist are silently omitted from the result map.
func (pc *PriceCache) GetPrices(ctx context.Context, assetIDs []string) (map[string]decimal.Decimal, error) {
	if len(assetIDs) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(assetIDs))
	for _, id := range assetIDs {
		cmds[id] = pipe.HGetAll(ctx, priceKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[string]decimal.Decimal, len(assetIDs))
	for id, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		price, _, err := parsePriceHash(vals)
		if err != nil {
			continue
		}
		result[id] = price
	}

	return result, nil
}

func parsePriceHash(vals map[string]string) (decimal.Decimal, time.Time, error) {
	priceStr, ok := vals["price"]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("parse price: %w", err)
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("parse ts: %w", err)
	}

	return price, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
