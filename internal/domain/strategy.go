package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Tier is the risk tier a vault trades under.
type Tier string

const (
	TierConservative Tier = "CONSERVATIVE"
	TierBalanced     Tier = "BALANCED"
	TierAggressive   Tier = "AGGRESSIVE"
)

// Tiers lists every tier in ascending risk order.
var Tiers = []Tier{TierConservative, TierBalanced, TierAggressive}

// Valid reports whether t is one of the three known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierConservative, TierBalanced, TierAggressive:
		return true
	default:
		return false
	}
}

// ParseTier maps a case-insensitive name to a Tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTier, s)
	}
	return t, nil
}

// RiskLevel is the risk label attached to an external signal.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// StrategyProfile holds the numeric thresholds for one tier. Profiles are
// built once at startup and treated as immutable values.
type StrategyProfile struct {
	Tier                   Tier
	MinConfidence          float64
	MaxTradeAmount         decimal.Decimal
	AllowedRiskLevels      []RiskLevel
	RebalanceIntervalHours int
	StopLossPercent        float64
	TakeProfitPercent      float64
}

// Allows reports whether signals labelled with level are admissible.
func (p StrategyProfile) Allows(level RiskLevel) bool {
	for _, l := range p.AllowedRiskLevels {
		if l == level {
			return true
		}
	}
	return false
}

// MaxNewPositions is the per-cycle cap on freshly opened positions.
func (t Tier) MaxNewPositions() int {
	switch t {
	case TierAggressive:
		return 3
	case TierBalanced:
		return 2
	case TierConservative:
		return 1
	default:
		return 0
	}
}
