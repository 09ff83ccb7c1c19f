package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/vaultagent/internal/agent"
	"github.com/alanyoungcy/vaultagent/internal/autotrade"
	"github.com/alanyoungcy/vaultagent/internal/domain"
	"github.com/alanyoungcy/vaultagent/internal/portfolio"
	"github.com/alanyoungcy/vaultagent/internal/rebalance"
	"github.com/alanyoungcy/vaultagent/internal/risk"
	"github.com/alanyoungcy/vaultagent/internal/server"
	"github.com/alanyoungcy/vaultagent/internal/server/handler"
	"github.com/alanyoungcy/vaultagent/internal/server/ws"
)

// AgentMode runs the vault sweep loop until ctx is cancelled.
func (a *App) AgentMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting agent mode")

	orch := a.buildOrchestrator(deps)
	a.warmCooldowns(ctx, orch, deps)

	g, ctx := errgroup.WithContext(ctx)
	a.startBackground(ctx, g, deps)
	g.Go(func() error {
		return orch.Run(ctx, a.cfg.Agent.LoopInterval.Duration)
	})
	return g.Wait()
}

// OnceMode runs a single sweep and returns.
func (a *App) OnceMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting single sweep")

	orch := a.buildOrchestrator(deps)
	a.warmCooldowns(ctx, orch, deps)

	report := orch.RunSweep(ctx)
	a.logReport(ctx, report)
	if report.Errors > 0 && report.Errors == len(report.Vaults) {
		return errors.New("app: every vault failed in the sweep")
	}
	return nil
}

// MonitorMode builds risk reports on every loop interval without trading.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	orch := a.buildOrchestrator(deps)
	interval := a.cfg.Agent.LoopInterval.Duration

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			report, err := orch.Monitor(ctx)
			if err != nil {
				a.logger.WarnContext(ctx, "monitor pass failed", slog.String("error", err.Error()))
			} else {
				a.logReport(ctx, report)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
		}
	})
	return g.Wait()
}

// FullMode runs the sweep loop together with the ops HTTP server and the
// WebSocket hub.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	orch := a.buildOrchestrator(deps)
	a.warmCooldowns(ctx, orch, deps)

	g, ctx := errgroup.WithContext(ctx)
	a.startBackground(ctx, g, deps)
	g.Go(func() error {
		return orch.Run(ctx, a.cfg.Agent.LoopInterval.Duration)
	})
	a.startHTTPServer(ctx, g, deps, orch)
	return g.Wait()
}

// buildOrchestrator assembles the decision engines around the wired
// collaborators.
func (a *App) buildOrchestrator(deps *Dependencies) *agent.Orchestrator {
	ac := a.cfg.Agent
	state := agent.NewState()

	d := agent.Deps{
		Vaults:     deps.Vaults,
		Holdings:   deps.Holdings,
		Settings:   deps.Settings,
		Profiles:   deps.Profiles,
		Quoter:     deps.Quoter,
		Executor:   deps.Executor,
		Builder:    portfolio.NewBuilder(deps.Quoter, deps.PriceCache, ac.PriceTTL.Duration, a.logger),
		Sells:      risk.NewSellManager(deps.Executor, deps.Quoter, deps.Notifier, ac.TradeDeadline.Duration, a.logger),
		Rebalancer: rebalance.NewEngine(deps.Executor, state, ac.RebalanceThreshold, ac.TradeDeadline.Duration, a.logger),
		Selector:   autotrade.NewSelector(deps.Tokens, deps.Profiles, deps.Fallback, autotrade.DefaultBands(), a.logger),
		State:      state,
		Recorder:   deps.Recorder,
		Bus:        deps.SignalBus,
		Notifier:   deps.Notifier,
		Locks:      deps.LockManager,
	}
	if deps.Archiver != nil {
		d.Archiver = deps.Archiver
	}

	return agent.NewOrchestrator(d, agent.Config{
		TradeCooldown:      ac.TradeCooldown.Duration,
		VaultDelay:         ac.VaultDelay.Duration,
		TradeDeadline:      ac.TradeDeadline.Duration,
		BuySlippagePercent: ac.BuySlippagePercent,
		Workers:            ac.Workers,
		LockTTL:            ac.LockTTL.Duration,
		DryRun:             ac.DryRun,
	}, a.logger)
}

// warmCooldowns seeds cooldowns from the trade store when one is wired.
func (a *App) warmCooldowns(ctx context.Context, orch *agent.Orchestrator, deps *Dependencies) {
	if deps.TradeStore == nil {
		return
	}
	if _, err := orch.WarmCooldowns(ctx, deps.TradeStore); err != nil {
		a.logger.WarnContext(ctx, "cooldown warm-up skipped", slog.String("error", err.Error()))
	}
}

// startBackground adds housekeeping goroutines to g.
func (a *App) startBackground(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Dedup != nil && a.cfg.Agent.DedupTTL.Duration > 0 {
		g.Go(func() error {
			return deps.Dedup.Run(ctx, a.cfg.Agent.DedupTTL.Duration)
		})
	}
}

// maxIndexerLag is how far the subgraph may trail the RPC head, about ten
// minutes of Base blocks.
const maxIndexerLag = 300

type blockSource interface {
	FetchLatestBlock(ctx context.Context) (int64, error)
}

type chainHead interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// indexerLag fails when the indexer is more than maxLag blocks behind head.
func indexerLag(ctx context.Context, idx blockSource, head chainHead, maxLag int64) error {
	indexed, err := idx.FetchLatestBlock(ctx)
	if err != nil {
		return err
	}
	tip, err := head.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("rpc head: %w", err)
	}
	if lag := int64(tip) - indexed; lag > maxLag {
		return fmt.Errorf("indexer %d blocks behind head %d", lag, tip)
	}
	return nil
}

// startHTTPServer adds the ops server, and the WebSocket hub when a signal
// bus is wired, to the given errgroup.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, orch *agent.Orchestrator) {
	checks := map[string]handler.Check{
		"rpc": func(ctx context.Context) error {
			_, err := deps.Eth.BlockNumber(ctx)
			return err
		},
	}
	if deps.Indexer != nil {
		checks["indexer"] = func(ctx context.Context) error {
			return indexerLag(ctx, deps.Indexer, deps.Eth, maxIndexerLag)
		}
	}
	if deps.Postgres != nil {
		checks["postgres"] = deps.Postgres.Ping
	}
	if deps.Redis != nil {
		checks["redis"] = deps.Redis.Ping
	}
	if deps.S3 != nil {
		checks["s3"] = deps.S3.Health
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(checks, a.logger),
		Status: handler.NewStatusHandler(orch, a.cfg.Mode, a.cfg.Agent.DryRun, a.startedAt),
		Vaults: handler.NewVaultHandler(orch, deps.TradeStore, deps.PositionStore, deps.AuditStore, a.logger),
	}
	if deps.Archiver != nil {
		handlers.Reports = handler.NewReportHandler(deps.Archiver, a.logger)
	}

	var hub *ws.Hub
	if deps.Bus != nil {
		handlers.Trades = handler.NewTradeFeedHandler(deps.Bus, a.logger)
	}
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, ws.Config{
			Mode:           a.cfg.Mode,
			DryRun:         a.cfg.Agent.DryRun,
			StartedAt:      a.startedAt,
			AllowedOrigins: a.cfg.Server.CORSOrigins,
		}, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// logReport writes a one-line summary of a sweep.
func (a *App) logReport(ctx context.Context, r domain.SweepReport) {
	var sells, buys, rebalances int
	for _, v := range r.Vaults {
		sells += v.SellsExecuted
		buys += v.BuysExecuted
		rebalances += v.RebalanceTrades
	}
	a.logger.InfoContext(ctx, "sweep finished",
		slog.String("report_id", r.ID),
		slog.String("vault_source", r.VaultSrc),
		slog.Int("vaults", len(r.Vaults)),
		slog.Int("errors", r.Errors),
		slog.Int("sells", sells),
		slog.Int("buys", buys),
		slog.Int("rebalance_trades", rebalances),
		slog.Bool("dry_run", r.DryRun),
		slog.Duration("took", r.FinishedAt.Sub(r.StartedAt)),
	)
}
