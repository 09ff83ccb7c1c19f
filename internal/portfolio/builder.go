package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// Builder prices holdings into snapshots. Prices come from the cache when
// fresh enough and from a sell-side router quote otherwise. A bonding-curve
// price depends on the amount sold, so cached prices are keyed by token and
// position size to two significant figures.
type Builder struct {
	quoter domain.Quoter
	prices domain.PriceCache
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewBuilder creates a Builder. prices may be nil, in which case every
// holding is quoted directly.
func NewBuilder(quoter domain.Quoter, prices domain.PriceCache, ttl time.Duration, logger *slog.Logger) *Builder {
	return &Builder{
		quoter: quoter,
		prices: prices,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With(slog.String("component", "portfolio")),
	}
}

// Build returns one snapshot per active holding, in input order. A holding
// whose price cannot be obtained is left out of this cycle.
func (b *Builder) Build(ctx context.Context, holdings []domain.Holding) []domain.PositionSnapshot {
	at := b.now().UTC()
	out := make([]domain.PositionSnapshot, 0, len(holdings))
	for _, h := range holdings {
		if !h.Balance.IsPositive() {
			continue
		}
		price, err := b.Price(ctx, h.TokenAddress, h.Balance)
		if err != nil {
			b.logger.WarnContext(ctx, "portfolio: price unavailable, skipping holding",
				slog.String("vault_id", h.VaultID),
				slog.String("token", h.TokenAddress),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, NewSnapshot(h, price, at))
	}
	return out
}

// Price returns the per-token price for selling balance of token.
func (b *Builder) Price(ctx context.Context, token string, balance decimal.Decimal) (decimal.Decimal, error) {
	key := priceKey(token, balance)
	if b.prices != nil {
		price, ts, err := b.prices.GetPrice(ctx, key)
		switch {
		case err == nil && b.now().Sub(ts) <= b.ttl:
			return price, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			b.logger.DebugContext(ctx, "portfolio: price cache read failed",
				slog.String("token", token),
				slog.String("error", err.Error()),
			)
		}
	}

	if !balance.IsPositive() {
		return decimal.Zero, fmt.Errorf("portfolio: price %s: %w", token, domain.ErrInvalidTrade)
	}
	q, err := b.quoter.GetQuote(ctx, token, balance, false)
	if err != nil {
		return decimal.Zero, fmt.Errorf("portfolio: quote %s: %w", token, err)
	}
	price := q.AmountOut.Div(balance)

	if b.prices != nil {
		if err := b.prices.SetPrice(ctx, key, price, b.now()); err != nil {
			b.logger.WarnContext(ctx, "portfolio: price cache write failed",
				slog.String("token", token),
				slog.String("error", err.Error()),
			)
		}
	}
	return price, nil
}

func priceKey(token string, balance decimal.Decimal) string {
	if !balance.IsPositive() {
		return token
	}
	intDigits := balance.NumDigits() + int(balance.Exponent())
	return token + "@" + balance.Round(int32(2-intDigits)).String()
}
