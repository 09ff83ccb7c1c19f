package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// TradeHistory reports the last live trade of a vault.
type TradeHistory interface {
	LastExecutedAt(ctx context.Context, vaultID string) (time.Time, error)
}

// WarmCooldowns seeds the cooldown state from persisted trade history so a
// restart does not reopen the trade window of recently traded vaults. It
// returns the number of vaults seeded.
func (o *Orchestrator) WarmCooldowns(ctx context.Context, history TradeHistory) (int, error) {
	vaults, err := o.Vaults(ctx)
	if err != nil {
		return 0, fmt.Errorf("agent: warm cooldowns: %w", err)
	}

	seeded := 0
	for _, v := range vaults {
		last, err := history.LastExecutedAt(ctx, v.ID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			o.logger.WarnContext(ctx, "agent: trade history lookup failed",
				slog.String("vault", v.Key()),
				slog.String("error", err.Error()),
			)
			continue
		}
		if prev, ok := o.state.LastTrade(v.Key()); ok && !prev.Before(last) {
			continue
		}
		o.state.MarkTraded(v.Key(), last)
		seeded++
	}

	o.logger.InfoContext(ctx, "agent: cooldowns restored",
		slog.Int("vaults", len(vaults)),
		slog.Int("seeded", seeded),
	)
	return seeded, nil
}
