package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each token's
// price is stored at "price:{token}" with fields "price" (decimal string)
// and "ts" (Unix nanoseconds). Entries expire after ttl.
type PriceCache struct {
	rdb *redis.Client
	ns  string
	ttl time.Duration
}

// NewPriceCache creates a PriceCache backed by the given Client. A zero ttl
// keeps entries until overwritten.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), ns: c.ns, ttl: ttl}
}

func (pc *PriceCache) key(token string) string {
	return namespaced(pc.ns, "price:"+strings.ToLower(token))
}

// SetPrice stores the latest price and timestamp for a token.
func (pc *PriceCache) SetPrice(ctx context.Context, token string, price decimal.Decimal, ts time.Time) error {
	key := pc.key(token)
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"price": price.String(),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	})
	if pc.ttl > 0 {
		pipe.Expire(ctx, key, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", token, err)
	}
	return nil
}

// GetPrice retrieves the latest price and timestamp for a token.
// It returns domain.ErrNotFound when the key does not exist.
func (pc *PriceCache) GetPrice(ctx context.Context, token string) (decimal.Decimal, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, pc.key(token)).Result()
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: get price %s: %w", token, err)
	}
	price, ts, err := parsePriceHash(vals)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("redis: get price %s: %w", token, err)
	}
	return price, ts, nil
}

// GetPrices retrieves the latest prices for several tokens in one pipeline.
// Tokens without a usable entry are omitted. Result keys are the addresses
// as passed in.
func (pc *PriceCache) GetPrices(ctx context.Context, tokens []string) (map[string]decimal.Decimal, error) {
	if len(tokens) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(tokens))
	for _, t := range tokens {
		cmds[t] = pipe.HGetAll(ctx, pc.key(t))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[string]decimal.Decimal, len(tokens))
	for t, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		if price, _, err := parsePriceHash(vals); err == nil {
			result[t] = price
		}
	}
	return result, nil
}

func parsePriceHash(vals map[string]string) (decimal.Decimal, time.Time, error) {
	priceStr, ok := vals["price"]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	tsStr, ok := vals["ts"]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("parse price: %w", err)
	}
	tsNano, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return decimal.Zero, time.Time{}, fmt.Errorf("parse ts: %w", err)
	}
	return price, time.Unix(0, tsNano), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
