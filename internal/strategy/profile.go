// Package strategy holds the per-tier trading profiles and the classifier
// that maps a user's social footprint to a tier.
package strategy

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

var defaultProfiles = map[domain.Tier]domain.StrategyProfile{
	domain.TierConservative: {
		Tier:                   domain.TierConservative,
		MinConfidence:          0.8,
		MaxTradeAmount:         decimal.RequireFromString("0.01"),
		AllowedRiskLevels:      []domain.RiskLevel{domain.RiskLow},
		RebalanceIntervalHours: 24,
		StopLossPercent:        10,
		TakeProfitPercent:      25,
	},
	domain.TierBalanced: {
		Tier:                   domain.TierBalanced,
		MinConfidence:          0.65,
		MaxTradeAmount:         decimal.RequireFromString("0.05"),
		AllowedRiskLevels:      []domain.RiskLevel{domain.RiskLow, domain.RiskMedium},
		RebalanceIntervalHours: 12,
		StopLossPercent:        15,
		TakeProfitPercent:      50,
	},
	domain.TierAggressive: {
		Tier:                   domain.TierAggressive,
		MinConfidence:          0.5,
		MaxTradeAmount:         decimal.RequireFromString("0.1"),
		AllowedRiskLevels:      []domain.RiskLevel{domain.RiskLow, domain.RiskMedium, domain.RiskHigh},
		RebalanceIntervalHours: 4,
		StopLossPercent:        25,
		TakeProfitPercent:      100,
	},
}

// Profile returns the built-in profile for tier.
func Profile(tier domain.Tier) (domain.StrategyProfile, error) {
	p, ok := defaultProfiles[tier]
	if !ok {
		return domain.StrategyProfile{}, fmt.Errorf("strategy: profile %q: %w", tier, domain.ErrUnknownTier)
	}
	return clone(p), nil
}

// MustProfile is Profile for tiers known at compile time. It panics on an
// unknown tier.
func MustProfile(tier domain.Tier) domain.StrategyProfile {
	p, err := Profile(tier)
	if err != nil {
		panic(err)
	}
	return p
}

// Override replaces selected fields of a built-in profile. Zero fields keep
// the default.
type Override struct {
	MinConfidence          float64
	MaxTradeAmount         decimal.Decimal
	RebalanceIntervalHours int
	StopLossPercent        float64
	TakeProfitPercent      float64
}

// Table is the set of profiles the agent runs with. It is filled once at
// startup and only read afterwards. It is safe for concurrent use.
type Table struct {
	profiles map[domain.Tier]domain.StrategyProfile
	mu       sync.RWMutex
}

// NewTable returns a Table holding the built-in profiles.
func NewTable() *Table {
	t := &Table{profiles: make(map[domain.Tier]domain.StrategyProfile, len(defaultProfiles))}
	for tier, p := range defaultProfiles {
		t.profiles[tier] = clone(p)
	}
	return t
}

// NewTableWithOverrides applies per-tier overrides on top of the built-in
// profiles and validates the result.
func NewTableWithOverrides(overrides map[domain.Tier]Override) (*Table, error) {
	t := NewTable()
	for tier, o := range overrides {
		p, err := Profile(tier)
		if err != nil {
			return nil, err
		}
		if err := t.Register(apply(p, o)); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Register validates p and stores it under its tier, replacing any existing
// profile for that tier.
func (t *Table) Register(p domain.StrategyProfile) error {
	if err := Validate(p); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.profiles[p.Tier] = clone(p)
	return nil
}

// Get retrieves the profile for tier. It returns domain.ErrUnknownTier when
// the tier is not registered.
func (t *Table) Get(tier domain.Tier) (domain.StrategyProfile, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.profiles[tier]
	if !ok {
		return domain.StrategyProfile{}, fmt.Errorf("strategy: profile %q: %w", tier, domain.ErrUnknownTier)
	}
	return clone(p), nil
}

// List returns every registered profile in ascending risk order.
func (t *Table) List() []domain.StrategyProfile {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.StrategyProfile, 0, len(t.profiles))
	for _, tier := range domain.Tiers {
		if p, ok := t.profiles[tier]; ok {
			out = append(out, clone(p))
		}
	}
	return out
}

// Validate checks the numeric ranges of a profile.
func Validate(p domain.StrategyProfile) error {
	var errs []error
	if !p.Tier.Valid() {
		errs = append(errs, fmt.Errorf("tier %q: %w", p.Tier, domain.ErrUnknownTier))
	}
	if p.MinConfidence < 0 || p.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("min_confidence %.2f outside [0,1]", p.MinConfidence))
	}
	if !p.MaxTradeAmount.IsPositive() {
		errs = append(errs, fmt.Errorf("max_trade_amount %s must be positive", p.MaxTradeAmount))
	}
	if p.RebalanceIntervalHours < 1 {
		errs = append(errs, fmt.Errorf("rebalance_interval_hours %d must be >= 1", p.RebalanceIntervalHours))
	}
	if p.StopLossPercent <= 0 {
		errs = append(errs, fmt.Errorf("stop_loss_percent %.2f must be positive", p.StopLossPercent))
	}
	if p.TakeProfitPercent <= 0 {
		errs = append(errs, fmt.Errorf("take_profit_percent %.2f must be positive", p.TakeProfitPercent))
	}
	if len(errs) > 0 {
		return fmt.Errorf("strategy: invalid %s profile: %w", p.Tier, errors.Join(errs...))
	}
	return nil
}

// WithOverrides applies a user's stop-loss, take-profit and max-trade
// overrides. The max-trade override can only lower the profile's ceiling.
func WithOverrides(p domain.StrategyProfile, s domain.UserSettings) domain.StrategyProfile {
	out := clone(p)
	if s.StopLossPercent != nil && *s.StopLossPercent > 0 {
		out.StopLossPercent = *s.StopLossPercent
	}
	if s.TakeProfitPercent != nil && *s.TakeProfitPercent > 0 {
		out.TakeProfitPercent = *s.TakeProfitPercent
	}
	out.MaxTradeAmount = EffectiveMaxTrade(out, s.MaxTradeAmount)
	return out
}

// EffectiveMaxTrade is the per-trade size: the profile ceiling, tightened by
// limit when limit is set and positive.
func EffectiveMaxTrade(p domain.StrategyProfile, limit *decimal.Decimal) decimal.Decimal {
	if limit == nil || !limit.IsPositive() {
		return p.MaxTradeAmount
	}
	return decimal.Min(p.MaxTradeAmount, *limit)
}

func apply(p domain.StrategyProfile, o Override) domain.StrategyProfile {
	if o.MinConfidence > 0 {
		p.MinConfidence = o.MinConfidence
	}
	if o.MaxTradeAmount.IsPositive() {
		p.MaxTradeAmount = o.MaxTradeAmount
	}
	if o.RebalanceIntervalHours > 0 {
		p.RebalanceIntervalHours = o.RebalanceIntervalHours
	}
	if o.StopLossPercent > 0 {
		p.StopLossPercent = o.StopLossPercent
	}
	if o.TakeProfitPercent > 0 {
		p.TakeProfitPercent = o.TakeProfitPercent
	}
	return p
}

func clone(p domain.StrategyProfile) domain.StrategyProfile {
	p.AllowedRiskLevels = slices.Clone(p.AllowedRiskLevels)
	return p
}
