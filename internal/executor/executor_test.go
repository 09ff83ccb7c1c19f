package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type mockExec struct{ mock.Mock }

func (m *mockExec) ExecuteBuy(ctx context.Context, req domain.BuyRequest) (domain.TradeResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.TradeResult), args.Error(1)
}

func (m *mockExec) ExecuteSell(ctx context.Context, req domain.SellRequest) (domain.TradeResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.TradeResult), args.Error(1)
}

type memRecorder struct {
	mu     sync.Mutex
	trades []domain.TradeRecord
	err    error
}

func (r *memRecorder) RecordTrade(_ context.Context, t domain.TradeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, t)
	return r.err
}

func (r *memRecorder) RecordPositions(context.Context, []domain.PositionSnapshot) error { return nil }

type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streamed  map[string][][]byte
}

func newMemBus() *memBus {
	return &memBus{published: map[string][][]byte{}, streamed: map[string][][]byte{}}
}

func (b *memBus) Publish(_ context.Context, ch string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[ch] = append(b.published[ch], payload)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *memBus) StreamAppend(_ context.Context, s string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streamed[s] = append(b.streamed[s], payload)
	return nil
}

func (b *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type memAudit struct {
	events []string
	detail []map[string]any
}

func (a *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.events = append(a.events, event)
	a.detail = append(a.detail, detail)
	return nil
}

func (a *memAudit) List(context.Context, domain.AuditFilter) ([]domain.AuditEntry, error) {
	return nil, nil
}

func buyReq() domain.BuyRequest {
	return domain.BuyRequest{
		VaultID:      "v1",
		TokenAddress: "0xToken",
		AmountIn:     decimal.RequireFromString("0.05"),
		MinAmountOut: decimal.RequireFromString("1200"),
		Reason:       "balanced auto-trade",
	}
}

func sellReq() domain.SellRequest {
	return domain.SellRequest{
		VaultID:      "v1",
		TokenAddress: "0xToken",
		TokenAmount:  decimal.RequireFromString("1200"),
		Reason:       "stop loss at -25.00%",
	}
}

func TestDryRunNeverReachesChain(t *testing.T) {
	d := NewDryRun(discard())

	res, err := d.ExecuteBuy(context.Background(), buyReq())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, DryRunTxHash, res.TxHash)
	assert.True(t, res.AmountOut.Equal(decimal.RequireFromString("1200")))

	res, err = d.ExecuteSell(context.Background(), domain.SellRequest{
		VaultID:      "v1",
		TokenAddress: "0xToken",
		TokenAmount:  decimal.NewFromInt(10),
		MinAmountOut: decimal.RequireFromString("0.2"),
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.AmountOut.Equal(decimal.RequireFromString("0.2")))
}

func TestDryRunRejectsInvalidTrade(t *testing.T) {
	d := NewDryRun(discard())
	req := buyReq()
	req.AmountIn = decimal.Zero

	res, err := d.ExecuteBuy(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, domain.ErrInvalidTrade.Error())
}

func TestRecordingSinksEveryTrade(t *testing.T) {
	inner := &mockExec{}
	inner.On("ExecuteBuy", mock.Anything, mock.Anything).
		Return(domain.TradeResult{Success: true, TxHash: "0xabc", AmountOut: decimal.NewFromInt(1250)}, nil)

	rec := &memRecorder{}
	bus := newMemBus()
	audit := &memAudit{}
	r := NewRecording(inner, rec, bus, audit, false, discard())

	res, err := r.ExecuteBuy(context.Background(), buyReq())
	require.NoError(t, err)
	assert.True(t, res.Success)

	require.Len(t, rec.trades, 1)
	got := rec.trades[0]
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, domain.ActionBuy, got.Action)
	assert.Equal(t, "0xabc", got.TxHash)
	assert.True(t, got.Success)
	assert.False(t, got.DryRun)

	require.Len(t, bus.published[domain.ChannelTrades], 1)
	require.Len(t, bus.streamed[domain.StreamTrades], 1)
	var ev TradeEvent
	require.NoError(t, json.Unmarshal(bus.published[domain.ChannelTrades][0], &ev))
	assert.Equal(t, got.ID, ev.ID)
	assert.Equal(t, "v1", ev.VaultID)

	assert.Equal(t, []string{"trade_executed"}, audit.events)
	inner.AssertExpectations(t)
}

func TestRecordingSwallowsSinkErrors(t *testing.T) {
	inner := &mockExec{}
	inner.On("ExecuteSell", mock.Anything, mock.Anything).
		Return(domain.TradeResult{}, errors.New("rpc timeout"))

	rec := &memRecorder{err: errors.New("db down")}
	r := NewRecording(inner, rec, nil, nil, true, discard())

	_, err := r.ExecuteSell(context.Background(), domain.SellRequest{VaultID: "v1", TokenAddress: "0xT", TokenAmount: decimal.NewFromInt(1)})
	require.EqualError(t, err, "rpc timeout")

	require.Len(t, rec.trades, 1)
	assert.False(t, rec.trades[0].Success)
	assert.Equal(t, "rpc timeout", rec.trades[0].Error)
	assert.True(t, rec.trades[0].DryRun)
}

func TestDedupRejectsRepeatedIntent(t *testing.T) {
	inner := &mockExec{}
	inner.On("ExecuteBuy", mock.Anything, mock.Anything).
		Return(domain.TradeResult{Success: true}, nil).Once()

	dd := NewDedup(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dd.now = func() time.Time { return now }
	ex := NewDeduping(inner, dd, discard())

	res, err := ex.ExecuteBuy(context.Background(), buyReq())
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = ex.ExecuteBuy(context.Background(), buyReq())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, domain.ErrDuplicateTrade.Error())

	now = now.Add(time.Minute)
	inner.On("ExecuteBuy", mock.Anything, mock.Anything).
		Return(domain.TradeResult{Success: true}, nil).Once()
	res, err = ex.ExecuteBuy(context.Background(), buyReq())
	require.NoError(t, err)
	assert.True(t, res.Success)
	inner.AssertExpectations(t)
}

func TestDedupForgetsErroredCall(t *testing.T) {
	inner := &mockExec{}
	inner.On("ExecuteBuy", mock.Anything, mock.Anything).
		Return(domain.TradeResult{}, errors.New("nonce too low")).Once()
	inner.On("ExecuteBuy", mock.Anything, mock.Anything).
		Return(domain.TradeResult{Success: true}, nil).Once()

	ex := NewDeduping(inner, NewDedup(time.Hour), discard())
	_, err := ex.ExecuteBuy(context.Background(), buyReq())
	require.Error(t, err)

	res, err := ex.ExecuteBuy(context.Background(), buyReq())
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestDedupRetriesRevertedTrade(t *testing.T) {
	inner := &mockExec{}
	inner.On("ExecuteSell", mock.Anything, mock.Anything).
		Return(domain.TradeResult{TxHash: "0xr1", Error: domain.ErrTxReverted.Error()}, nil).Once()
	inner.On("ExecuteSell", mock.Anything, mock.Anything).
		Return(domain.TradeResult{Success: true, TxHash: "0xr2"}, nil).Once()

	dd := NewDedup(2 * time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dd.now = func() time.Time { return now }
	ex := NewDeduping(inner, dd, discard())

	res, err := ex.ExecuteSell(context.Background(), sellReq())
	require.NoError(t, err)
	assert.False(t, res.Success)

	now = now.Add(30 * time.Second)
	res, err = ex.ExecuteSell(context.Background(), sellReq())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "0xr2", res.TxHash)
	inner.AssertExpectations(t)
}

func TestDedupHoldsUnconfirmedTransaction(t *testing.T) {
	inner := &mockExec{}
	inner.On("ExecuteSell", mock.Anything, mock.Anything).
		Return(domain.TradeResult{TxHash: "0xpending"}, errors.New("wait mined: context deadline exceeded")).Once()

	ex := NewDeduping(inner, NewDedup(time.Hour), discard())
	_, err := ex.ExecuteSell(context.Background(), sellReq())
	require.Error(t, err)

	res, err := ex.ExecuteSell(context.Background(), sellReq())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, domain.ErrDuplicateTrade.Error())
	inner.AssertNumberOfCalls(t, "ExecuteSell", 1)
}

func TestHoldIntent(t *testing.T) {
	boom := errors.New("boom")
	assert.True(t, holdIntent(domain.TradeResult{Success: true, TxHash: "0x1"}, nil))
	assert.True(t, holdIntent(domain.TradeResult{TxHash: "0x1"}, boom))
	assert.False(t, holdIntent(domain.TradeResult{TxHash: "0x1", Error: "reverted"}, nil))
	assert.False(t, holdIntent(domain.TradeResult{Error: "no route"}, nil))
	assert.False(t, holdIntent(domain.TradeResult{}, boom))
}

func TestDedupCleanup(t *testing.T) {
	dd := NewDedup(time.Second)
	now := time.Now()
	dd.now = func() time.Time { return now }

	assert.False(t, dd.IsDuplicate("a"))
	assert.False(t, dd.IsDuplicate("b"))
	assert.Equal(t, 2, dd.Len())

	now = now.Add(2 * time.Second)
	dd.Cleanup()
	assert.Zero(t, dd.Len())
}

func TestIntentKeyIsCaseInsensitive(t *testing.T) {
	amt := decimal.RequireFromString("0.10")
	assert.Equal(t,
		IntentKey("V1", "0xABC", domain.ActionBuy, amt),
		IntentKey("v1", "0xabc", domain.ActionBuy, decimal.RequireFromString("0.1")))
	assert.NotEqual(t,
		IntentKey("v1", "0xabc", domain.ActionBuy, amt),
		IntentKey("v1", "0xabc", domain.ActionSell, amt))
}

func TestPacedSpacesLocalCalls(t *testing.T) {
	inner := &mockExec{}
	inner.On("ExecuteBuy", mock.Anything, mock.Anything).Return(domain.TradeResult{Success: true}, nil)

	p := NewPaced(inner, 3*time.Second, nil, "", discard())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var waits []time.Duration
	p.now = func() time.Time { return now }
	p.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	for range 3 {
		_, err := p.ExecuteBuy(context.Background(), buyReq())
		require.NoError(t, err)
	}
	assert.Equal(t, []time.Duration{3 * time.Second, 6 * time.Second}, waits)

	now = now.Add(time.Minute)
	_, err := p.ExecuteBuy(context.Background(), buyReq())
	require.NoError(t, err)
	assert.Len(t, waits, 2)
}

type fakeLimiter struct {
	key    string
	limit  int
	window time.Duration
	err    error
}

func (f *fakeLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func (f *fakeLimiter) Wait(_ context.Context, key string, limit int, window time.Duration) error {
	f.key, f.limit, f.window = key, limit, window
	return f.err
}

func TestPacedUsesSharedLimiter(t *testing.T) {
	inner := &mockExec{}
	inner.On("ExecuteSell", mock.Anything, mock.Anything).Return(domain.TradeResult{Success: true}, nil).Once()

	lim := &fakeLimiter{}
	p := NewPaced(inner, 2*time.Second, lim, "ratelimit:agent", discard())
	_, err := p.ExecuteSell(context.Background(), domain.SellRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ratelimit:agent", lim.key)
	assert.Equal(t, 1, lim.limit)
	assert.Equal(t, 2*time.Second, lim.window)

	lim.err = context.DeadlineExceeded
	_, err = p.ExecuteSell(context.Background(), domain.SellRequest{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	inner.AssertExpectations(t)
}

func TestFanoutTriesEverySink(t *testing.T) {
	ok := &memRecorder{}
	bad := &memRecorder{err: errors.New("backend down")}
	f := NewFanout(bad, nil, ok)
	require.Equal(t, 2, f.Len())

	rec := domain.TradeRecord{ID: "t1", VaultID: "v1", Action: domain.ActionBuy}
	err := f.RecordTrade(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend down")
	assert.Len(t, ok.trades, 1)
	assert.Len(t, bad.trades, 1)

	assert.NoError(t, f.RecordPositions(context.Background(), nil))
}
