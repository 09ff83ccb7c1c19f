package portfolio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

type quoterMock struct{ mock.Mock }

func (m *quoterMock) GetQuote(ctx context.Context, token string, amountIn decimal.Decimal, isBuy bool) (domain.Quote, error) {
	args := m.Called(token, amountIn.String(), isBuy)
	return args.Get(0).(domain.Quote), args.Error(1)
}

type memPrices struct {
	prices map[string]decimal.Decimal
	ts     map[string]time.Time
}

func newMemPrices() *memPrices {
	return &memPrices{prices: map[string]decimal.Decimal{}, ts: map[string]time.Time{}}
}

func (m *memPrices) SetPrice(_ context.Context, token string, price decimal.Decimal, ts time.Time) error {
	m.prices[token] = price
	m.ts[token] = ts
	return nil
}

func (m *memPrices) GetPrice(_ context.Context, token string) (decimal.Decimal, time.Time, error) {
	p, ok := m.prices[token]
	if !ok {
		return decimal.Zero, time.Time{}, domain.ErrNotFound
	}
	return p, m.ts[token], nil
}

func (m *memPrices) GetPrices(_ context.Context, tokens []string) (map[string]decimal.Decimal, error) {
	out := map[string]decimal.Decimal{}
	for _, t := range tokens {
		if p, ok := m.prices[t]; ok {
			out[t] = p
		}
	}
	return out, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNewSnapshot(t *testing.T) {
	h := domain.Holding{
		TokenAddress: "0xA",
		Balance:      dec("100"),
		CostBasis:    dec("1.0"),
		TotalBought:  dec("200"),
	}
	s := NewSnapshot(h, dec("0.0085"), time.Unix(0, 0))
	assert.True(t, s.CurrentValue.Equal(dec("0.85")))
	assert.True(t, s.EntryPrice.Equal(dec("0.005")))
	assert.InDelta(t, -15.0, s.PnLPercent(), 1e-9)
}

func TestNewSnapshotFloorsNegatives(t *testing.T) {
	s := NewSnapshot(domain.Holding{Balance: dec("-1"), CostBasis: dec("-2")}, dec("3"), time.Time{})
	assert.True(t, s.CurrentValue.IsZero())
	assert.True(t, s.CostBasis.IsZero())
	assert.False(t, s.IsActive())
}

func TestBuildQuotesAndCaches(t *testing.T) {
	q := new(quoterMock)
	q.On("GetQuote", "0xA", "100", false).Return(domain.Quote{AmountOut: dec("2")}, nil).Once()
	q.On("GetQuote", "0xB", "5", false).Return(domain.Quote{}, domain.ErrQuoteUnavailable)

	cache := newMemPrices()
	b := NewBuilder(q, cache, time.Minute, testLogger())

	holdings := []domain.Holding{
		{TokenAddress: "0xA", Balance: dec("100"), CostBasis: dec("1")},
		{TokenAddress: "0xB", Balance: dec("5"), CostBasis: dec("1")},
		{TokenAddress: "0xC", Balance: decimal.Zero, CostBasis: dec("1")},
	}

	snaps := b.Build(context.Background(), holdings)
	require.Len(t, snaps, 1)
	assert.Equal(t, "0xA", snaps[0].TokenAddress)
	assert.True(t, snaps[0].CurrentPrice.Equal(dec("0.02")))
	assert.True(t, cache.prices[priceKey("0xA", dec("100"))].Equal(dec("0.02")))

	// Second build is served from the cache; the Once expectation would fail
	// on a second quote.
	snaps = b.Build(context.Background(), holdings[:1])
	require.Len(t, snaps, 1)
	q.AssertExpectations(t)
}

func TestBuildRequotesStalePrice(t *testing.T) {
	q := new(quoterMock)
	q.On("GetQuote", "0xA", "10", false).Return(domain.Quote{AmountOut: dec("5")}, nil)

	cache := newMemPrices()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	_ = cache.SetPrice(context.Background(), priceKey("0xA", dec("10")), dec("0.1"), now.Add(-time.Hour))

	b := NewBuilder(q, cache, time.Minute, testLogger())
	b.now = func() time.Time { return now }

	price, err := b.Price(context.Background(), "0xA", dec("10"))
	require.NoError(t, err)
	assert.True(t, price.Equal(dec("0.5")))
}

func TestPriceCacheIsSizeAware(t *testing.T) {
	q := new(quoterMock)
	q.On("GetQuote", "0xA", "100", false).Return(domain.Quote{AmountOut: dec("2")}, nil).Once()
	q.On("GetQuote", "0xA", "10000", false).Return(domain.Quote{AmountOut: dec("100")}, nil).Once()

	b := NewBuilder(q, newMemPrices(), time.Minute, testLogger())
	ctx := context.Background()

	small, err := b.Price(ctx, "0xA", dec("100"))
	require.NoError(t, err)
	assert.True(t, small.Equal(dec("0.02")))

	large, err := b.Price(ctx, "0xA", dec("10000"))
	require.NoError(t, err)
	assert.True(t, large.Equal(dec("0.01")))

	// Same bucket as the first holding, served from the cache.
	again, err := b.Price(ctx, "0xA", dec("101"))
	require.NoError(t, err)
	assert.True(t, again.Equal(dec("0.02")))
	q.AssertExpectations(t)
}

func TestPriceKeyBuckets(t *testing.T) {
	assert.Equal(t, "0xA@1200", priceKey("0xA", dec("1234.5")))
	assert.Equal(t, "0xA@1200", priceKey("0xA", dec("1160")))
	assert.Equal(t, "0xA@0.012", priceKey("0xA", dec("0.0123")))
	assert.Equal(t, "0xA@5", priceKey("0xA", dec("5")))
	assert.Equal(t, "0xA", priceKey("0xA", decimal.Zero))
}

func TestPriceWithoutCache(t *testing.T) {
	q := new(quoterMock)
	q.On("GetQuote", "0xA", "4", false).Return(domain.Quote{}, errors.New("rpc down"))
	b := NewBuilder(q, nil, time.Minute, testLogger())

	_, err := b.Price(context.Background(), "0xA", dec("4"))
	assert.Error(t, err)
}

func TestHelpers(t *testing.T) {
	snaps := []domain.PositionSnapshot{
		{TokenAddress: "0xAbC", Balance: dec("1"), CurrentValue: dec("2")},
		{TokenAddress: "0xDEF", Balance: decimal.Zero, CurrentValue: decimal.Zero},
	}
	assert.Equal(t, []string{"0xabc"}, Addresses(snaps))
	assert.Len(t, Active(snaps), 1)
	assert.True(t, TotalValue(snaps).Equal(dec("2")))
}
