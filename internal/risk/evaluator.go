// Package risk decides when a position must be force-sold and executes those
// exits.
package risk

import (
	"fmt"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// Evaluate returns the forced-exit trigger for p under profile, or nil.
// Stop-loss is checked before take-profit.
func Evaluate(p domain.PositionSnapshot, profile domain.StrategyProfile) *domain.SellTrigger {
	if !p.IsActive() {
		return nil
	}
	pnl := p.PnLPercent()

	if pnl <= -profile.StopLossPercent {
		return &domain.SellTrigger{
			Type:         domain.TriggerStopLoss,
			TokenAddress: p.TokenAddress,
			Reason:       fmt.Sprintf("stop-loss: %s at %.2f%% (limit -%.2f%%)", label(p), pnl, profile.StopLossPercent),
			PnLPercent:   pnl,
		}
	}
	if pnl >= profile.TakeProfitPercent {
		return &domain.SellTrigger{
			Type:         domain.TriggerTakeProfit,
			TokenAddress: p.TokenAddress,
			Reason:       fmt.Sprintf("take-profit: %s at %.2f%% (target %.2f%%)", label(p), pnl, profile.TakeProfitPercent),
			PnLPercent:   pnl,
		}
	}
	return nil
}

// Report classifies a set of positions without executing anything.
type Report struct {
	Healthy  []domain.PositionSnapshot
	AtRisk   []domain.PositionSnapshot
	Triggers []domain.SellTrigger
}

// Check evaluates every active position. A position without a trigger whose
// loss is at least half the stop-loss distance is reported as at risk.
func Check(snaps []domain.PositionSnapshot, profile domain.StrategyProfile) Report {
	var r Report
	warnAt := -profile.StopLossPercent / 2
	for _, s := range snaps {
		if !s.IsActive() {
			continue
		}
		if t := Evaluate(s, profile); t != nil {
			r.Triggers = append(r.Triggers, *t)
			continue
		}
		if s.PnLPercent() <= warnAt {
			r.AtRisk = append(r.AtRisk, s)
			continue
		}
		r.Healthy = append(r.Healthy, s)
	}
	return r
}

func label(p domain.PositionSnapshot) string {
	if p.TokenSymbol != "" {
		return p.TokenSymbol
	}
	return p.TokenAddress
}
