// Package agent runs the per-vault trading cycle: forced exits first, then
// rebalancing, then new automated positions, gated by a per-vault cooldown.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/vaultagent/internal/autotrade"
	"github.com/alanyoungcy/vaultagent/internal/domain"
	"github.com/alanyoungcy/vaultagent/internal/portfolio"
	"github.com/alanyoungcy/vaultagent/internal/rebalance"
	"github.com/alanyoungcy/vaultagent/internal/risk"
	"github.com/alanyoungcy/vaultagent/internal/strategy"
)

// DefaultTradeCooldown is the minimum spacing between automated trade cycles
// of one vault.
const DefaultTradeCooldown = 5 * time.Minute

// Config holds the orchestrator's tunables.
type Config struct {
	TradeCooldown      time.Duration
	VaultDelay         time.Duration
	TradeDeadline      time.Duration
	BuySlippagePercent float64
	Workers            int
	LockTTL            time.Duration
	DryRun             bool
}

// Deps are the collaborators of an Orchestrator. Bus, Archiver, Notifier,
// Recorder and Locks are optional.
type Deps struct {
	Vaults     domain.VaultSource
	Holdings   domain.HoldingSource
	Settings   domain.SettingsStore
	Profiles   autotrade.Profiles
	Quoter     domain.Quoter
	Executor   domain.TradeExecutor
	Builder    *portfolio.Builder
	Sells      *risk.SellManager
	Rebalancer *rebalance.Engine
	Selector   *autotrade.Selector
	State      *State

	Recorder domain.TradeRecorder
	Bus      domain.SignalBus
	Archiver domain.ReportArchiver
	Notifier domain.Notifier
	Locks    domain.LockManager
}

// Orchestrator coordinates one evaluation pass per vault.
type Orchestrator struct {
	deps   Deps
	state  *State
	keyed  *KeyedMutex
	cfg    Config
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	logger *slog.Logger

	mu         sync.RWMutex
	lastReport *domain.SweepReport
}

// NewOrchestrator creates an Orchestrator. A nil deps.State gets a fresh
// State; zero durations take their defaults.
func NewOrchestrator(deps Deps, cfg Config, logger *slog.Logger) *Orchestrator {
	if deps.State == nil {
		deps.State = NewState()
	}
	if cfg.TradeCooldown <= 0 {
		cfg.TradeCooldown = DefaultTradeCooldown
	}
	if cfg.TradeDeadline <= 0 {
		cfg.TradeDeadline = 5 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Orchestrator{
		deps:   deps,
		state:  deps.State,
		keyed:  NewKeyedMutex(),
		cfg:    cfg,
		now:    time.Now,
		sleep:  sleepCtx,
		logger: logger.With(slog.String("component", "agent")),
	}
}

// State exposes the cycle state, for the ops API.
func (o *Orchestrator) State() *State { return o.state }

// CanTrade reports whether an automated trade cycle may run for key. A vault
// never processed and holding nothing may always trade; otherwise the
// cooldown since its last trade must have elapsed.
func (o *Orchestrator) CanTrade(key string, hasPositions bool) bool {
	if !hasPositions && !o.state.IsProcessed(key) {
		return true
	}
	return o.RemainingCooldown(key) == 0
}

// RemainingCooldown is the time left before key may trade again.
func (o *Orchestrator) RemainingCooldown(key string) time.Duration {
	last, ok := o.state.LastTrade(key)
	if !ok {
		return 0
	}
	left := o.cfg.TradeCooldown - o.now().Sub(last)
	if left < 0 {
		return 0
	}
	return left
}

// ResetCooldown clears every timestamp and the processed marker of key.
func (o *Orchestrator) ResetCooldown(key string) {
	o.state.Reset(strings.ToLower(key))
	o.logger.Info("agent: cooldown reset", slog.String("vault_key", key))
}

// CycleResult describes one ProcessVault call.
type CycleResult struct {
	Outcome           domain.CycleOutcome
	Reason            string
	Signals           []domain.AutoTradeSignal
	Results           []domain.TradeResult
	CooldownRemaining time.Duration
}

// Bought counts successful buys.
func (r CycleResult) Bought() int {
	n := 0
	for _, res := range r.Results {
		if res.Success {
			n++
		}
	}
	return n
}

// ProcessVault runs the auto-trade phase for vault: funding checks, the
// cooldown gate, signal generation and sequential execution.
func (o *Orchestrator) ProcessVault(ctx context.Context, vault domain.Vault, profile domain.StrategyProfile) (CycleResult, error) {
	key := vault.Key()
	log := o.logger.With(slog.String("vault_id", vault.ID), slog.String("tier", string(vault.Tier)))

	if !vault.Balance.IsPositive() {
		log.DebugContext(ctx, "agent: vault has no balance, skipping")
		return CycleResult{Outcome: domain.OutcomeSkipped, Reason: "no balance"}, nil
	}

	size := strategy.EffectiveMaxTrade(profile, vault.MaxTradeAmount)
	if vault.Balance.LessThan(size) {
		log.InfoContext(ctx, "agent: balance below trade size, skipping",
			slog.String("balance", vault.Balance.String()),
			slog.String("trade_size", size.String()),
		)
		return CycleResult{Outcome: domain.OutcomeSkipped, Reason: domain.ErrInsufficientFunds.Error()}, nil
	}

	holdings, err := o.deps.Holdings.ListHoldings(ctx, vault.ID)
	if err != nil {
		return CycleResult{Outcome: domain.OutcomeFailed, Reason: "holdings unavailable"}, fmt.Errorf("agent: list holdings %s: %w", vault.ID, err)
	}
	existing := make([]string, 0, len(holdings))
	for _, h := range holdings {
		if h.Balance.IsPositive() {
			existing = append(existing, h.TokenAddress)
		}
	}

	if !o.CanTrade(key, len(existing) > 0) {
		left := o.RemainingCooldown(key)
		log.DebugContext(ctx, "agent: vault in cooldown", slog.Duration("remaining", left))
		return CycleResult{Outcome: domain.OutcomeCooldown, Reason: "cooldown", CooldownRemaining: left}, nil
	}

	signals, err := o.deps.Selector.GenerateSignals(ctx, profile.Tier, existing, vault.MaxTradeAmount)
	if err != nil {
		return CycleResult{Outcome: domain.OutcomeFailed, Reason: "signal generation failed"}, fmt.Errorf("agent: generate signals %s: %w", vault.ID, err)
	}
	if len(signals) == 0 {
		o.state.MarkProcessed(key)
		return CycleResult{Outcome: domain.OutcomeNoop, Reason: "no signals"}, nil
	}

	res := CycleResult{Outcome: domain.OutcomeNoop, Signals: signals}
	remaining := vault.Balance
	for _, sig := range signals {
		if ctx.Err() != nil {
			break
		}
		if remaining.LessThan(sig.Amount) {
			log.InfoContext(ctx, "agent: balance exhausted, stopping buys", slog.String("remaining", remaining.String()))
			break
		}
		out, ok := o.buy(ctx, vault, sig)
		if !ok {
			continue
		}
		res.Results = append(res.Results, out)
		if out.Success {
			remaining = remaining.Sub(sig.Amount)
		}
	}

	if res.Bought() > 0 {
		o.state.MarkTraded(key, o.now())
		res.Outcome = domain.OutcomeTraded
	} else {
		res.Reason = "no buy succeeded"
	}
	return res, nil
}

// buy executes one auto-trade signal. It reports false when the signal was
// dropped before reaching the executor.
func (o *Orchestrator) buy(ctx context.Context, vault domain.Vault, sig domain.AutoTradeSignal) (domain.TradeResult, bool) {
	log := o.logger.With(
		slog.String("vault_id", vault.ID),
		slog.String("token", sig.TokenAddress),
		slog.Float64("confidence", sig.Confidence),
	)

	minOut := decimal.Zero
	if o.deps.Quoter != nil {
		q, err := o.deps.Quoter.GetQuote(ctx, sig.TokenAddress, sig.Amount, true)
		if err != nil {
			log.WarnContext(ctx, "agent: buy quote failed, dropping signal", slog.String("error", err.Error()))
			return domain.TradeResult{}, false
		}
		keep := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(o.cfg.BuySlippagePercent).Div(decimal.NewFromInt(100)))
		if keep.IsPositive() {
			minOut = q.AmountOut.Mul(keep)
		}
	}

	out, err := o.deps.Executor.ExecuteBuy(ctx, domain.BuyRequest{
		VaultID:      vault.ID,
		TokenAddress: sig.TokenAddress,
		AmountIn:     sig.Amount,
		MinAmountOut: minOut,
		Deadline:     o.now().Add(o.cfg.TradeDeadline),
		Reason:       sig.Reason,
	})
	if err != nil {
		out = domain.Failed(err)
	}
	if out.Success {
		log.InfoContext(ctx, "agent: auto-trade buy executed",
			slog.String("amount_in", sig.Amount.String()),
			slog.String("tx_hash", out.TxHash),
		)
	} else {
		log.WarnContext(ctx, "agent: auto-trade buy failed", slog.String("error", out.Error))
		o.notify(ctx, "trade_failed", fmt.Sprintf("auto-trade buy of %s in vault %s failed: %s", sig.TokenSymbol, vault.ID, out.Error))
	}
	return out, true
}

// LastReport returns the most recent sweep report, if any.
func (o *Orchestrator) LastReport() (domain.SweepReport, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.lastReport == nil {
		return domain.SweepReport{}, false
	}
	return *o.lastReport, true
}

func (o *Orchestrator) setLastReport(r domain.SweepReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.lastReport = &r
}

func (o *Orchestrator) notify(ctx context.Context, event, msg string) {
	if o.deps.Notifier == nil {
		return
	}
	if err := o.deps.Notifier.Notify(ctx, event, msg); err != nil {
		o.logger.WarnContext(ctx, "agent: notify failed", slog.String("error", err.Error()))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var errVaultPanic = errors.New("agent: vault processing panicked")
