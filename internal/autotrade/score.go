// Package autotrade picks new launchpad tokens for a vault to buy.
package autotrade

import (
	"math"
	"time"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// Bands holds the market-cap and liquidity thresholds used for filtering and
// scoring, in base-asset terms.
type Bands struct {
	HighMarketCap      float64 // conservative floor
	MidMarketCapMin    float64 // balanced band
	MidMarketCapMax    float64
	ModerateCapMax     float64 // balanced scoring sweet spot upper bound
	VolumeFloor        float64
	MatureAge          time.Duration
	FreshAge           time.Duration
	StrongChangePct    float64
	MaxMomentumBonus   float64
	MomentumDivisorPct float64
}

// DefaultBands returns the thresholds the agent ships with.
func DefaultBands() Bands {
	return Bands{
		HighMarketCap:      100_000,
		MidMarketCapMin:    10_000,
		MidMarketCapMax:    500_000,
		ModerateCapMax:     200_000,
		VolumeFloor:        1_000,
		MatureAge:          24 * time.Hour,
		FreshAge:           6 * time.Hour,
		StrongChangePct:    50,
		MaxMomentumBonus:   0.2,
		MomentumDivisorPct: 200,
	}
}

// Admits reports whether c is eligible for tier at all.
func (b Bands) Admits(tier domain.Tier, c domain.TokenCandidate) bool {
	switch tier {
	case domain.TierConservative:
		return c.MarketCap >= b.HighMarketCap
	case domain.TierBalanced:
		return c.MarketCap >= b.MidMarketCapMin && c.MarketCap <= b.MidMarketCapMax
	case domain.TierAggressive:
		return true
	default:
		return false
	}
}

// Score rates c for tier in [0,1]. now is used to age the token.
func (b Bands) Score(tier domain.Tier, c domain.TokenCandidate, now time.Time) float64 {
	score := 0.5

	if c.PriceChange24h > 0 {
		score += math.Min(c.PriceChange24h/b.MomentumDivisorPct, b.MaxMomentumBonus)
	}
	if c.Volume24h > b.VolumeFloor {
		score += 0.1
	}

	age := time.Duration(math.MaxInt64)
	if !c.CreatedAt.IsZero() {
		age = now.Sub(c.CreatedAt)
	}

	switch tier {
	case domain.TierConservative:
		if c.MarketCap >= b.HighMarketCap {
			score += 0.15
		}
		if age > b.MatureAge {
			score += 0.1
		}
	case domain.TierBalanced:
		if c.PriceChange24h > 0 && c.PriceChange24h <= b.StrongChangePct {
			score += 0.1
		}
		if c.MarketCap >= b.MidMarketCapMin && c.MarketCap <= b.ModerateCapMax {
			score += 0.1
		}
	case domain.TierAggressive:
		if age < b.FreshAge {
			score += 0.15
		}
		if c.PriceChange24h > b.StrongChangePct {
			score += 0.15
		}
	}

	if math.IsNaN(score) {
		return 0
	}
	return math.Max(0, math.Min(1, score))
}
