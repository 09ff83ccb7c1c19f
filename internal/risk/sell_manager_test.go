package risk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

type fakeExecutor struct {
	sells []domain.SellRequest
	fail  map[string]bool
}

func (f *fakeExecutor) ExecuteBuy(context.Context, domain.BuyRequest) (domain.TradeResult, error) {
	return domain.TradeResult{}, errors.New("unexpected buy")
}

func (f *fakeExecutor) ExecuteSell(_ context.Context, req domain.SellRequest) (domain.TradeResult, error) {
	f.sells = append(f.sells, req)
	if f.fail[req.TokenAddress] {
		return domain.TradeResult{Success: false, Error: "execution reverted"}, nil
	}
	return domain.TradeResult{Success: true, TxHash: "0x1", AmountOut: req.MinAmountOut}, nil
}

type fixedQuoter struct {
	out map[string]decimal.Decimal
}

func (q fixedQuoter) GetQuote(_ context.Context, token string, _ decimal.Decimal, _ bool) (domain.Quote, error) {
	v, ok := q.out[token]
	if !ok {
		return domain.Quote{}, domain.ErrQuoteUnavailable
	}
	return domain.Quote{AmountOut: v, Router: "router"}, nil
}

type recordingNotifier struct{ events []string }

func (n *recordingNotifier) Notify(_ context.Context, event, _ string) error {
	n.events = append(n.events, event)
	return nil
}

func newManager(exec domain.TradeExecutor, q domain.Quoter, n domain.Notifier) *SellManager {
	m := NewSellManager(exec, q, n, 5*time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	m.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return m
}

func TestCheckAndExecuteSellsOrderAndSlippage(t *testing.T) {
	exec := &fakeExecutor{}
	q := fixedQuoter{out: map[string]decimal.Decimal{"b": dec("2"), "a": dec("0.8")}}
	n := &recordingNotifier{}
	m := newManager(exec, q, n)

	snaps := []domain.PositionSnapshot{
		position("b", "1", "2"),   // take profit
		position("x", "1", "1"),   // untouched
		position("a", "1", "0.8"), // stop loss
	}
	out := m.CheckAndExecuteSells(context.Background(), domain.Vault{ID: "v1"}, snaps, profile(10, 30))

	require.Len(t, exec.sells, 2)
	assert.Equal(t, "b", exec.sells[0].TokenAddress)
	assert.Equal(t, "a", exec.sells[1].TokenAddress)
	assert.True(t, exec.sells[0].MinAmountOut.Equal(dec("1.9")), exec.sells[0].MinAmountOut.String())
	assert.True(t, exec.sells[1].MinAmountOut.Equal(dec("0.72")), exec.sells[1].MinAmountOut.String())
	assert.True(t, exec.sells[0].TokenAmount.Equal(dec("100")))
	assert.Equal(t, time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC), exec.sells[0].Deadline)

	assert.Len(t, out.Triggers, 2)
	assert.Equal(t, 2, out.Executed())
	assert.Equal(t, []string{"take_profit", "stop_loss"}, n.events)
}

func TestCheckAndExecuteSellsContinuesAfterFailure(t *testing.T) {
	exec := &fakeExecutor{fail: map[string]bool{"a": true}}
	m := newManager(exec, fixedQuoter{}, nil)

	snaps := []domain.PositionSnapshot{
		position("a", "1", "0.5"),
		position("b", "1", "0.5"),
	}
	out := m.CheckAndExecuteSells(context.Background(), domain.Vault{ID: "v1"}, snaps, profile(10, 30))

	require.Len(t, exec.sells, 2)
	require.Len(t, out.Results, 2)
	assert.False(t, out.Results[0].Result.Success)
	assert.True(t, out.Results[1].Result.Success)
	assert.Equal(t, 1, out.Executed())

	// Quote unavailable: min out falls back to snapshot value less 10%.
	assert.True(t, exec.sells[1].MinAmountOut.Equal(dec("0.45")))
}

func TestCheckAndExecuteSellsStopsOnCancelledContext(t *testing.T) {
	exec := &fakeExecutor{}
	m := newManager(exec, fixedQuoter{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := m.CheckAndExecuteSells(ctx, domain.Vault{ID: "v1"}, []domain.PositionSnapshot{position("a", "1", "0.5")}, profile(10, 30))
	assert.Len(t, out.Triggers, 1)
	assert.Empty(t, out.Results)
	assert.Empty(t, exec.sells)
}
