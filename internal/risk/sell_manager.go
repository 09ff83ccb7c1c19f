package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// SellResult pairs a trigger with its execution outcome.
type SellResult struct {
	Trigger domain.SellTrigger `json:"trigger"`
	Result  domain.TradeResult `json:"result"`
}

// SellOutcome is the result of one CheckAndExecuteSells pass.
type SellOutcome struct {
	Triggers []domain.SellTrigger
	Results  []SellResult
}

// Executed counts successful sells.
func (o SellOutcome) Executed() int {
	n := 0
	for _, r := range o.Results {
		if r.Result.Success {
			n++
		}
	}
	return n
}

// SellManager executes stop-loss and take-profit exits. Spacing between
// consecutive sells is owned by the executor.
type SellManager struct {
	exec     domain.TradeExecutor
	quoter   domain.Quoter
	notifier domain.Notifier
	deadline time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewSellManager creates a SellManager. notifier may be nil.
func NewSellManager(
	exec domain.TradeExecutor,
	quoter domain.Quoter,
	notifier domain.Notifier,
	deadline time.Duration,
	logger *slog.Logger,
) *SellManager {
	return &SellManager{
		exec:     exec,
		quoter:   quoter,
		notifier: notifier,
		deadline: deadline,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "sell_manager")),
	}
}

// CheckPositions is the monitoring-only variant of CheckAndExecuteSells.
func (m *SellManager) CheckPositions(snaps []domain.PositionSnapshot, profile domain.StrategyProfile) Report {
	return Check(snaps, profile)
}

// CheckAndExecuteSells evaluates positions in the given order and sells each
// triggered position in full before moving to the next. A failed sell is
// recorded and the pass continues; it is not retried until the next cycle.
func (m *SellManager) CheckAndExecuteSells(
	ctx context.Context,
	vault domain.Vault,
	snaps []domain.PositionSnapshot,
	profile domain.StrategyProfile,
) SellOutcome {
	var out SellOutcome
	for _, s := range snaps {
		trig := Evaluate(s, profile)
		if trig == nil {
			continue
		}
		out.Triggers = append(out.Triggers, *trig)

		if ctx.Err() != nil {
			m.logger.WarnContext(ctx, "sell_manager: context done, deferring sell",
				slog.String("vault_id", vault.ID),
				slog.String("token", trig.TokenAddress),
			)
			continue
		}

		res := m.sell(ctx, vault, s, *trig)
		out.Results = append(out.Results, SellResult{Trigger: *trig, Result: res})
	}
	return out
}

func (m *SellManager) sell(ctx context.Context, vault domain.Vault, s domain.PositionSnapshot, trig domain.SellTrigger) domain.TradeResult {
	log := m.logger.With(
		slog.String("vault_id", vault.ID),
		slog.String("token", s.TokenAddress),
		slog.String("trigger", string(trig.Type)),
		slog.Float64("pnl_percent", trig.PnLPercent),
	)

	req := domain.SellRequest{
		VaultID:      vault.ID,
		TokenAddress: s.TokenAddress,
		TokenAmount:  s.Balance,
		MinAmountOut: m.minAmountOut(ctx, s, trig),
		Deadline:     m.now().Add(m.deadline),
		Reason:       trig.Reason,
	}

	res, err := m.exec.ExecuteSell(ctx, req)
	if err != nil {
		res = domain.Failed(err)
	}
	if !res.Success {
		log.WarnContext(ctx, "sell_manager: forced sell failed", slog.String("error", res.Error))
		m.notify(ctx, "trade_failed", fmt.Sprintf("%s sell of %s in vault %s failed: %s", trig.Type, label(s), vault.ID, res.Error))
		return res
	}

	log.InfoContext(ctx, "sell_manager: forced sell executed",
		slog.String("tx_hash", res.TxHash),
		slog.String("amount_out", res.AmountOut.String()),
	)
	m.notify(ctx, string(trig.Type), fmt.Sprintf("%s in vault %s, received %s (tx %s)", trig.Reason, vault.ID, res.AmountOut, res.TxHash))
	return res
}

// minAmountOut applies the trigger's slippage band to a fresh sell quote,
// falling back to the snapshot value when no quote is available.
func (m *SellManager) minAmountOut(ctx context.Context, s domain.PositionSnapshot, trig domain.SellTrigger) decimal.Decimal {
	expected := s.CurrentValue
	if m.quoter != nil {
		q, err := m.quoter.GetQuote(ctx, s.TokenAddress, s.Balance, false)
		if err == nil {
			expected = q.AmountOut
		} else {
			m.logger.WarnContext(ctx, "sell_manager: fresh quote failed, using snapshot value",
				slog.String("token", s.TokenAddress),
				slog.String("error", err.Error()),
			)
		}
	}
	keep := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(trig.SlippagePercent()).Div(decimal.NewFromInt(100)))
	if keep.IsNegative() {
		return decimal.Zero
	}
	return expected.Mul(keep)
}

func (m *SellManager) notify(ctx context.Context, event, msg string) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, event, msg); err != nil {
		m.logger.WarnContext(ctx, "sell_manager: notify failed", slog.String("error", err.Error()))
	}
}
