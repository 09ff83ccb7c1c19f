package rebalance

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// Tracker stores the last rebalance time per vault key.
type Tracker interface {
	LastRebalance(key string) (time.Time, bool)
	MarkRebalanced(key string, at time.Time)
	ClearRebalance(key string)
}

// TradeOutcome is one executed rebalance trade.
type TradeOutcome struct {
	Trade  domain.RebalanceTrade `json:"trade"`
	Result domain.TradeResult    `json:"result"`
}

// Result describes a rebalance attempt.
type Result struct {
	Executed bool           `json:"executed"`
	Reason   string         `json:"reason,omitempty"`
	Trades   []TradeOutcome `json:"trades,omitempty"`
}

// Succeeded counts successful trades.
func (r Result) Succeeded() int {
	n := 0
	for _, t := range r.Trades {
		if t.Result.Success {
			n++
		}
	}
	return n
}

// Engine executes rebalance trades for a vault and paces attempts by the
// profile's rebalance interval.
type Engine struct {
	exec      domain.TradeExecutor
	tracker   Tracker
	threshold float64
	deadline  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewEngine creates an Engine. A non-positive threshold selects
// DefaultThresholdPercent.
func NewEngine(exec domain.TradeExecutor, tracker Tracker, threshold float64, deadline time.Duration, logger *slog.Logger) *Engine {
	if threshold <= 0 {
		threshold = DefaultThresholdPercent
	}
	return &Engine{
		exec:      exec,
		tracker:   tracker,
		threshold: threshold,
		deadline:  deadline,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "rebalance")),
	}
}

// IsDue reports whether at least intervalHours have passed since the last
// rebalance of key. A vault never rebalanced is due.
func (e *Engine) IsDue(key string, intervalHours int) bool {
	last, ok := e.tracker.LastRebalance(key)
	if !ok {
		return true
	}
	return e.now().Sub(last) >= time.Duration(intervalHours)*time.Hour
}

// Reset forgets the last rebalance time of key.
func (e *Engine) Reset(key string) {
	e.tracker.ClearRebalance(key)
}

// CheckAndRebalance rebalances vault when it is due. When nothing needs to
// move, the rebalance time is still recorded; when not due it is untouched.
func (e *Engine) CheckAndRebalance(
	ctx context.Context,
	vault domain.Vault,
	positions []domain.PositionSnapshot,
	targets []domain.TargetAllocation,
	profile domain.StrategyProfile,
) Result {
	key := vault.Key()
	if !e.IsDue(key, profile.RebalanceIntervalHours) {
		return Result{Reason: "not due"}
	}

	trades := CalculateTrades(positions, targets, vault.Balance, e.threshold)
	if len(trades) == 0 {
		e.tracker.MarkRebalanced(key, e.now())
		return Result{Reason: "within threshold"}
	}

	res := e.Execute(ctx, vault, trades, profile)
	if res.Succeeded() > 0 {
		e.tracker.MarkRebalanced(key, e.now())
	}
	return res
}

// Execute runs every sell before any buy. Buys are capped at the profile's
// max trade amount. Both sides accept any output amount.
func (e *Engine) Execute(
	ctx context.Context,
	vault domain.Vault,
	trades []domain.RebalanceTrade,
	profile domain.StrategyProfile,
) Result {
	res := Result{Executed: true}
	for _, t := range SellsFirst(trades) {
		if err := ctx.Err(); err != nil {
			res.Reason = "interrupted"
			break
		}
		out := e.run(ctx, vault, t, profile)
		res.Trades = append(res.Trades, TradeOutcome{Trade: t, Result: out})
	}
	if res.Succeeded() == 0 {
		res.Executed = false
		if res.Reason == "" {
			res.Reason = "all trades failed"
		}
	}
	return res
}

func (e *Engine) run(ctx context.Context, vault domain.Vault, t domain.RebalanceTrade, profile domain.StrategyProfile) domain.TradeResult {
	deadline := e.now().Add(e.deadline)

	var (
		out domain.TradeResult
		err error
	)
	switch t.Action {
	case domain.ActionSell:
		out, err = e.exec.ExecuteSell(ctx, domain.SellRequest{
			VaultID:      vault.ID,
			TokenAddress: t.TokenAddress,
			TokenAmount:  t.Amount,
			MinAmountOut: decimal.Zero,
			Deadline:     deadline,
			Reason:       t.Reason,
		})
	case domain.ActionBuy:
		amount := t.Amount
		if profile.MaxTradeAmount.IsPositive() {
			amount = decimal.Min(amount, profile.MaxTradeAmount)
		}
		out, err = e.exec.ExecuteBuy(ctx, domain.BuyRequest{
			VaultID:      vault.ID,
			TokenAddress: t.TokenAddress,
			AmountIn:     amount,
			MinAmountOut: decimal.Zero,
			Deadline:     deadline,
			Reason:       t.Reason,
		})
	default:
		err = domain.ErrInvalidTrade
	}
	if err != nil {
		out = domain.Failed(err)
	}

	log := e.logger.With(
		slog.String("vault_id", vault.ID),
		slog.String("token", t.TokenAddress),
		slog.String("action", string(t.Action)),
		slog.String("amount", t.Amount.String()),
	)
	if out.Success {
		log.InfoContext(ctx, "rebalance: trade executed", slog.String("tx_hash", out.TxHash))
	} else {
		log.WarnContext(ctx, "rebalance: trade failed", slog.String("error", out.Error))
	}
	return out
}
