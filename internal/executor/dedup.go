package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// Dedup remembers trade intents for a configurable time-to-live. It is safe
// for concurrent use.
type Dedup struct {
	seen map[string]time.Time // intent key -> last seen time
	ttl  time.Duration
	now  func() time.Time
	mu   sync.Mutex
}

// NewDedup creates a Dedup that treats an intent seen within ttl as a
// duplicate.
func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// IntentKey identifies a trade by vault, token, side and amount.
func IntentKey(vaultID, token string, action domain.TradeAction, amount decimal.Decimal) string {
	return strings.ToLower(vaultID) + "|" + strings.ToLower(token) + "|" + string(action) + "|" + amount.String()
}

// IsDuplicate returns true if key has been seen within the TTL window.
// Otherwise the key is recorded and false is returned.
func (d *Dedup) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if lastSeen, ok := d.seen[key]; ok && now.Sub(lastSeen) < d.ttl {
		return true
	}
	d.seen[key] = now
	return false
}

// Forget drops key so the same intent may be submitted again.
func (d *Dedup) Forget(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
}

// Cleanup removes entries that have expired beyond the TTL.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, ts := range d.seen {
		if now.Sub(ts) >= d.ttl {
			delete(d.seen, k)
		}
	}
}

// Len reports how many intents are remembered.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Deduping rejects an intent repeated within the dedup TTL. Only intents that
// succeeded or are still pending on chain are held; a call that failed
// without a broadcast transaction, or whose transaction reverted, is
// forgotten so the next cycle may retry it.
type Deduping struct {
	inner  domain.TradeExecutor
	dedup  *Dedup
	logger *slog.Logger
}

var _ domain.TradeExecutor = (*Deduping)(nil)

// NewDeduping wraps inner.
func NewDeduping(inner domain.TradeExecutor, dedup *Dedup, logger *slog.Logger) *Deduping {
	return &Deduping{inner: inner, dedup: dedup, logger: logger.With(slog.String("component", "executor"))}
}

// ExecuteBuy forwards req unless the same buy was just submitted.
func (d *Deduping) ExecuteBuy(ctx context.Context, req domain.BuyRequest) (domain.TradeResult, error) {
	key := IntentKey(req.VaultID, req.TokenAddress, domain.ActionBuy, req.AmountIn)
	if d.dedup.IsDuplicate(key) {
		return d.reject(ctx, key), nil
	}
	res, err := d.inner.ExecuteBuy(ctx, req)
	if !holdIntent(res, err) {
		d.dedup.Forget(key)
	}
	return res, err
}

// ExecuteSell forwards req unless the same sell was just submitted.
func (d *Deduping) ExecuteSell(ctx context.Context, req domain.SellRequest) (domain.TradeResult, error) {
	key := IntentKey(req.VaultID, req.TokenAddress, domain.ActionSell, req.TokenAmount)
	if d.dedup.IsDuplicate(key) {
		return d.reject(ctx, key), nil
	}
	res, err := d.inner.ExecuteSell(ctx, req)
	if !holdIntent(res, err) {
		d.dedup.Forget(key)
	}
	return res, err
}

// holdIntent reports whether the outcome of a call still blocks a repeat: the
// trade went through, or a transaction was broadcast but its receipt never
// arrived.
func holdIntent(res domain.TradeResult, err error) bool {
	if err != nil {
		return res.TxHash != ""
	}
	return res.Success
}

// Run periodically drops expired intents until ctx is done.
func (d *Deduping) Run(ctx context.Context, every time.Duration) error {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			d.dedup.Cleanup()
		}
	}
}

func (d *Deduping) reject(ctx context.Context, key string) domain.TradeResult {
	d.logger.WarnContext(ctx, "executor: duplicate trade intent, skipping", slog.String("intent", key))
	return domain.Failed(fmt.Errorf("executor: %w", domain.ErrDuplicateTrade))
}
