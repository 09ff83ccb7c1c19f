package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/vaultagent/internal/domain"
	"github.com/alanyoungcy/vaultagent/internal/risk"
	"github.com/alanyoungcy/vaultagent/internal/source"
	"github.com/alanyoungcy/vaultagent/internal/strategy"
)

// Run sweeps every active vault, then waits interval, until ctx is done.
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration) error {
	o.logger.InfoContext(ctx, "agent: loop started",
		slog.Duration("interval", interval),
		slog.Bool("dry_run", o.cfg.DryRun),
		slog.Int("workers", o.cfg.Workers),
	)
	defer o.logger.Info("agent: loop stopped")

	for {
		o.RunSweep(ctx)
		if err := o.sleep(ctx, interval); err != nil {
			return err
		}
	}
}

// RunSweep evaluates every active vault once, in source order. A failure in
// one vault is logged and recorded in the report; the sweep continues.
func (o *Orchestrator) RunSweep(ctx context.Context) domain.SweepReport {
	report := domain.SweepReport{
		ID:        uuid.New().String(),
		StartedAt: o.now().UTC(),
		DryRun:    o.cfg.DryRun,
	}

	vaults, src, err := o.listVaults(ctx)
	report.VaultSrc = src
	if err != nil {
		o.logger.ErrorContext(ctx, "agent: list vaults failed, skipping sweep", slog.String("error", err.Error()))
		o.notify(ctx, "sweep_error", fmt.Sprintf("vault listing failed: %v", err))
		report.Errors = 1
		report.FinishedAt = o.now().UTC()
		o.finish(ctx, report)
		return report
	}

	report.Vaults = make([]domain.VaultReport, len(vaults))
	if o.cfg.Workers > 1 {
		o.sweepParallel(ctx, vaults, report.Vaults)
	} else {
		for i, v := range vaults {
			if i > 0 {
				if err := o.sleep(ctx, o.cfg.VaultDelay); err != nil {
					report.Vaults = report.Vaults[:i]
					break
				}
			}
			report.Vaults[i] = o.sweepVaultSafe(ctx, v)
		}
	}

	for _, vr := range report.Vaults {
		if vr.Error != "" {
			report.Errors++
		}
	}
	report.FinishedAt = o.now().UTC()
	o.logger.InfoContext(ctx, "agent: sweep finished",
		slog.String("sweep_id", report.ID),
		slog.String("vault_source", report.VaultSrc),
		slog.Int("vaults", len(report.Vaults)),
		slog.Int("errors", report.Errors),
		slog.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	)
	o.finish(ctx, report)
	return report
}

// sweepParallel fans vaults out over a bounded worker pool. Starts are still
// spaced by the inter-vault delay and each vault key is held exclusively.
func (o *Orchestrator) sweepParallel(ctx context.Context, vaults []domain.Vault, out []domain.VaultReport) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for i, v := range vaults {
		if i > 0 {
			if err := o.sleep(gctx, o.cfg.VaultDelay); err != nil {
				break
			}
		}
		g.Go(func() error {
			out[i] = o.sweepVaultSafe(gctx, v)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) listVaults(ctx context.Context) ([]domain.Vault, string, error) {
	if fetcher, ok := o.deps.Vaults.(interface {
		FetchVaults(context.Context) source.Result[[]domain.Vault]
	}); ok {
		res := fetcher.FetchVaults(ctx)
		return res.Value, res.Source, res.Err
	}
	vaults, err := o.deps.Vaults.ListActiveVaults(ctx)
	return vaults, "", err
}

// sweepVaultSafe contains panics so one vault cannot stop the sweep.
func (o *Orchestrator) sweepVaultSafe(ctx context.Context, v domain.Vault) (vr domain.VaultReport) {
	vr = domain.VaultReport{VaultID: v.ID, VaultKey: v.Key(), Tier: v.Tier}
	defer func() {
		if r := recover(); r != nil {
			o.logger.ErrorContext(ctx, "agent: vault processing panicked",
				slog.String("vault_id", v.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			vr.AutoTrade = domain.OutcomeFailed
			vr.Error = fmt.Sprintf("%v: %v", errVaultPanic, r)
		}
	}()

	if err := o.sweepVault(ctx, v, &vr); err != nil {
		o.logger.ErrorContext(ctx, "agent: vault processing failed",
			slog.String("vault_id", v.ID),
			slog.String("error", err.Error()),
		)
		vr.Error = err.Error()
		o.notify(ctx, "sweep_error", fmt.Sprintf("vault %s: %v", v.ID, err))
	}
	return vr
}

func (o *Orchestrator) sweepVault(ctx context.Context, v domain.Vault, vr *domain.VaultReport) error {
	key := v.Key()
	if v.Paused {
		vr.AutoTrade = domain.OutcomeSkipped
		vr.AutoTradeReason = "paused"
		return nil
	}

	unlock := o.keyed.Lock(key)
	defer unlock()

	if o.deps.Locks != nil {
		release, err := o.deps.Locks.Acquire(ctx, "vault:"+key, o.cfg.LockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			vr.AutoTrade = domain.OutcomeSkipped
			vr.AutoTradeReason = "locked by another agent"
			return nil
		}
		if err != nil {
			return fmt.Errorf("agent: acquire vault lock: %w", err)
		}
		defer release()
	}

	profile, err := o.deps.Profiles.Get(v.Tier)
	if err != nil {
		return fmt.Errorf("agent: vault %s: %w", v.ID, err)
	}
	settings := o.loadSettings(ctx, v)
	profile = strategy.WithOverrides(profile, settings)

	holdings, err := o.deps.Holdings.ListHoldings(ctx, v.ID)
	if err != nil {
		return fmt.Errorf("agent: list holdings: %w", err)
	}
	snaps := o.deps.Builder.Build(ctx, holdings)
	vr.Positions = len(snaps)
	o.recordPositions(ctx, snaps)

	// Risk exits are never gated by the cooldown.
	for _, s := range risk.Check(snaps, profile).AtRisk {
		vr.AtRisk = append(vr.AtRisk, s.TokenAddress)
	}
	sells := o.deps.Sells.CheckAndExecuteSells(ctx, v, snaps, profile)
	vr.SellTriggers = sells.Triggers
	vr.SellsExecuted = sells.Executed()

	sold := make(map[string]struct{})
	for _, r := range sells.Results {
		if r.Result.Success {
			sold[strings.ToLower(r.Trigger.TokenAddress)] = struct{}{}
			v.Balance = v.Balance.Add(r.Result.AmountOut)
		}
	}
	if len(sold) > 0 {
		snaps = without(snaps, sold)
	}

	if settings.AutoRebalance && len(settings.Targets) > 0 {
		res := o.deps.Rebalancer.CheckAndRebalance(ctx, v, snaps, settings.Targets, profile)
		vr.RebalanceRan = res.Executed
		vr.RebalanceTrades = len(res.Trades)
		for _, t := range res.Trades {
			if !t.Result.Success {
				continue
			}
			switch t.Trade.Action {
			case domain.ActionSell:
				v.Balance = v.Balance.Add(t.Result.AmountOut)
			case domain.ActionBuy:
				v.Balance = v.Balance.Sub(decimal.Min(t.Trade.Amount, profile.MaxTradeAmount))
			}
		}
	}

	if !settings.AutoTrade {
		vr.AutoTrade = domain.OutcomeSkipped
		vr.AutoTradeReason = "auto-trade disabled"
		return nil
	}

	cycle, err := o.ProcessVault(ctx, v, profile)
	vr.AutoTrade = cycle.Outcome
	vr.AutoTradeReason = cycle.Reason
	vr.BuysExecuted = cycle.Bought()
	vr.CooldownSeconds = int64(cycle.CooldownRemaining.Seconds())
	return err
}

// loadSettings reads the owner's settings. A missing row yields defaults; a
// read failure disables optional automation for this cycle.
func (o *Orchestrator) loadSettings(ctx context.Context, v domain.Vault) domain.UserSettings {
	if o.deps.Settings == nil {
		return domain.DefaultSettings(v.Owner)
	}
	s, err := o.deps.Settings.GetSettings(ctx, v.Owner)
	switch {
	case err == nil:
		return s
	case errors.Is(err, domain.ErrNotFound):
		return domain.DefaultSettings(v.Owner)
	default:
		o.logger.WarnContext(ctx, "agent: settings unavailable, automation off for this cycle",
			slog.String("vault_id", v.ID),
			slog.String("error", err.Error()),
		)
		return domain.UserSettings{Owner: v.Owner}
	}
}

func (o *Orchestrator) recordPositions(ctx context.Context, snaps []domain.PositionSnapshot) {
	if o.deps.Recorder == nil || len(snaps) == 0 {
		return
	}
	if err := o.deps.Recorder.RecordPositions(ctx, snaps); err != nil {
		o.logger.WarnContext(ctx, "agent: position sync failed", slog.String("error", err.Error()))
	}
}

// finish stores, publishes and archives a sweep report. Publication failures
// are logged only.
func (o *Orchestrator) finish(ctx context.Context, report domain.SweepReport) {
	o.setLastReport(report)

	if o.deps.Bus != nil {
		payload, err := json.Marshal(report)
		if err == nil {
			err = o.deps.Bus.Publish(ctx, domain.ChannelReports, payload)
		}
		if err != nil {
			o.logger.WarnContext(ctx, "agent: publish report failed", slog.String("error", err.Error()))
		}
	}
	if o.deps.Archiver != nil {
		if _, err := o.deps.Archiver.ArchiveReport(ctx, report); err != nil {
			o.logger.WarnContext(ctx, "agent: archive report failed", slog.String("error", err.Error()))
		}
	}
}

// Monitor builds snapshots and risk reports for every active vault without
// executing anything. At-risk and triggered positions are published as
// alerts.
func (o *Orchestrator) Monitor(ctx context.Context) (domain.SweepReport, error) {
	report := domain.SweepReport{ID: uuid.New().String(), StartedAt: o.now().UTC(), DryRun: true}
	vaults, src, err := o.listVaults(ctx)
	report.VaultSrc = src
	if err != nil {
		return report, fmt.Errorf("agent: monitor: %w", err)
	}

	for _, v := range vaults {
		vr := domain.VaultReport{VaultID: v.ID, VaultKey: v.Key(), Tier: v.Tier, AutoTrade: domain.OutcomeSkipped}
		profile, err := o.deps.Profiles.Get(v.Tier)
		if err != nil {
			vr.Error = err.Error()
			report.Errors++
			report.Vaults = append(report.Vaults, vr)
			continue
		}
		profile = strategy.WithOverrides(profile, o.loadSettings(ctx, v))
		holdings, err := o.deps.Holdings.ListHoldings(ctx, v.ID)
		if err != nil {
			vr.Error = err.Error()
			report.Errors++
			report.Vaults = append(report.Vaults, vr)
			continue
		}
		snaps := o.deps.Builder.Build(ctx, holdings)
		o.recordPositions(ctx, snaps)
		rr := risk.Check(snaps, profile)
		vr.Positions = len(snaps)
		vr.SellTriggers = rr.Triggers
		for _, s := range rr.AtRisk {
			vr.AtRisk = append(vr.AtRisk, s.TokenAddress)
		}
		if len(rr.Triggers) > 0 || len(rr.AtRisk) > 0 {
			o.publishAlert(ctx, vr)
		}
		report.Vaults = append(report.Vaults, vr)
	}

	report.FinishedAt = o.now().UTC()
	o.setLastReport(report)
	return report, nil
}

func (o *Orchestrator) publishAlert(ctx context.Context, vr domain.VaultReport) {
	if o.deps.Bus == nil {
		return
	}
	payload, err := json.Marshal(vr)
	if err == nil {
		err = o.deps.Bus.Publish(ctx, domain.ChannelAlerts, payload)
	}
	if err != nil {
		o.logger.WarnContext(ctx, "agent: publish alert failed", slog.String("error", err.Error()))
	}
}

func without(snaps []domain.PositionSnapshot, drop map[string]struct{}) []domain.PositionSnapshot {
	out := make([]domain.PositionSnapshot, 0, len(snaps))
	for _, s := range snaps {
		if _, ok := drop[strings.ToLower(s.TokenAddress)]; ok {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Vaults lists the active vaults through the configured source.
func (o *Orchestrator) Vaults(ctx context.Context) ([]domain.Vault, error) {
	vaults, _, err := o.listVaults(ctx)
	return vaults, err
}
