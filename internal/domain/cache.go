package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCache provides fast access to the latest sampled token prices, in
// base-asset units per token.
type PriceCache interface {
	SetPrice(ctx context.Context, tokenAddress string, price decimal.Decimal, ts time.Time) error
	GetPrice(ctx context.Context, tokenAddress string) (decimal.Decimal, time.Time, error)
	GetPrices(ctx context.Context, tokenAddresses []string) (map[string]decimal.Decimal, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// Bus channel names.
const (
	ChannelTrades  = "vault_trades"
	ChannelReports = "agent_reports"
	ChannelAlerts  = "risk_alerts"
	StreamTrades   = "stream:vault_trades"
)
