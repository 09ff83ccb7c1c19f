// Package app wires the vault agent together and runs it in one of its
// operating modes: agent (sweep loop), once (single sweep), monitor
// (read-only positions loop) or full (agent plus the HTTP API).
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/vaultagent/internal/config"
)

// App owns the configuration, the logger and the cleanup funcs registered
// while wiring, which Close runs in reverse order.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	startedAt time.Time

	mu      sync.Mutex
	closers []func()
}

// New creates an App. Nothing is dialled until Run.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "app")),
		startedAt: time.Now().UTC(),
	}
}

// modeFunc runs one operating mode until ctx is done or the mode finishes.
type modeFunc func(a *App, ctx context.Context, deps *Dependencies) error

var modes = map[string]modeFunc{
	"agent":   (*App).AgentMode,
	"once":    (*App).OnceMode,
	"monitor": (*App).MonitorMode,
	"full":    (*App).FullMode,
}

// Run wires the dependencies and blocks in the configured mode.
func (a *App) Run(ctx context.Context) error {
	run, ok := modes[a.cfg.Mode]
	if !ok {
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	a.logger.InfoContext(ctx, "app: starting",
		slog.String("mode", a.cfg.Mode),
		slog.Bool("dry_run", a.cfg.Agent.DryRun),
		slog.Int64("chain_id", a.cfg.Chain.ChainID),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.addCloser(cleanup)

	return run(a, ctx, deps)
}

func (a *App) addCloser(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, fn)
}

// Close runs the registered cleanup funcs newest first. Later calls are
// no-ops.
func (a *App) Close() {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	if closers == nil {
		return
	}
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	a.logger.Info("app: stopped", slog.Duration("uptime", time.Since(a.startedAt).Round(time.Second)))
}
