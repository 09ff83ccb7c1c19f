package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// Paced enforces a minimum spacing between trades. With a RateLimiter the
// spacing is shared by every agent using the same limiter key; otherwise it
// is local to the process.
type Paced struct {
	inner   domain.TradeExecutor
	gap     time.Duration
	limiter domain.RateLimiter
	key     string

	mu    sync.Mutex
	next  time.Time
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	logger *slog.Logger
}

var _ domain.TradeExecutor = (*Paced)(nil)

// NewPaced wraps inner. limiter may be nil.
func NewPaced(inner domain.TradeExecutor, gap time.Duration, limiter domain.RateLimiter, key string, logger *slog.Logger) *Paced {
	if key == "" {
		key = "ratelimit:trades"
	}
	return &Paced{
		inner:   inner,
		gap:     gap,
		limiter: limiter,
		key:     key,
		now:     time.Now,
		sleep:   sleep,
		logger:  logger.With(slog.String("component", "executor")),
	}
}

// ExecuteBuy waits for the next slot and forwards req.
func (p *Paced) ExecuteBuy(ctx context.Context, req domain.BuyRequest) (domain.TradeResult, error) {
	if err := p.wait(ctx); err != nil {
		return domain.TradeResult{}, err
	}
	return p.inner.ExecuteBuy(ctx, req)
}

// ExecuteSell waits for the next slot and forwards req.
func (p *Paced) ExecuteSell(ctx context.Context, req domain.SellRequest) (domain.TradeResult, error) {
	if err := p.wait(ctx); err != nil {
		return domain.TradeResult{}, err
	}
	return p.inner.ExecuteSell(ctx, req)
}

func (p *Paced) wait(ctx context.Context) error {
	if p.gap <= 0 {
		return ctx.Err()
	}
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, p.key, 1, p.gap); err != nil {
			return fmt.Errorf("executor: pace: %w", err)
		}
		return nil
	}

	// Reserve a slot under the lock, then sleep outside it.
	p.mu.Lock()
	now := p.now()
	slot := p.next
	if slot.Before(now) {
		slot = now
	}
	p.next = slot.Add(p.gap)
	p.mu.Unlock()

	if d := slot.Sub(now); d > 0 {
		p.logger.DebugContext(ctx, "executor: pacing trade", slog.Duration("wait", d))
		if err := p.sleep(ctx, d); err != nil {
			return fmt.Errorf("executor: pace: %w", err)
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func validate(vaultID, token string, amount decimal.Decimal) error {
	switch {
	case vaultID == "":
		return fmt.Errorf("%w: missing vault", domain.ErrInvalidTrade)
	case token == "":
		return fmt.Errorf("%w: missing token", domain.ErrInvalidTrade)
	case !amount.IsPositive():
		return fmt.Errorf("%w: amount %s", domain.ErrInvalidTrade, amount)
	}
	return nil
}
