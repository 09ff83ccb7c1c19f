package autotrade

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/vaultagent/internal/domain"
	"github.com/alanyoungcy/vaultagent/internal/strategy"
)

// Profiles resolves the strategy profile for a tier.
type Profiles interface {
	Get(tier domain.Tier) (domain.StrategyProfile, error)
}

// Selector scores discovered tokens and turns the best of them into buy
// signals.
type Selector struct {
	discovery domain.TokenDiscovery
	profiles  Profiles
	fallback  []domain.TokenCandidate
	bands     Bands
	now       func() time.Time
	logger    *slog.Logger
}

// NewSelector creates a Selector. fallback is used whenever discovery fails
// or returns nothing.
func NewSelector(
	discovery domain.TokenDiscovery,
	profiles Profiles,
	fallback []domain.TokenCandidate,
	bands Bands,
	logger *slog.Logger,
) *Selector {
	return &Selector{
		discovery: discovery,
		profiles:  profiles,
		fallback:  fallback,
		bands:     bands,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "autotrade")),
	}
}

type scored struct {
	candidate domain.TokenCandidate
	score     float64
}

// GenerateSignals returns at most tier.MaxNewPositions() buy signals for
// tokens not already held, best score first, each sized at the effective
// max trade amount.
func (s *Selector) GenerateSignals(
	ctx context.Context,
	tier domain.Tier,
	existing []string,
	vaultMax *decimal.Decimal,
) ([]domain.AutoTradeSignal, error) {
	profile, err := s.profiles.Get(tier)
	if err != nil {
		return nil, fmt.Errorf("autotrade: %w", err)
	}
	size := strategy.EffectiveMaxTrade(profile, vaultMax)
	if !size.IsPositive() {
		return nil, nil
	}

	held := make(map[string]struct{}, len(existing))
	for _, a := range existing {
		held[strings.ToLower(a)] = struct{}{}
	}

	now := s.now()
	var ranked []scored
	for _, c := range s.Candidates(ctx) {
		if !s.bands.Admits(tier, c) {
			continue
		}
		ranked = append(ranked, scored{candidate: c, score: s.bands.Score(tier, c, now)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	limit := tier.MaxNewPositions()
	signals := make([]domain.AutoTradeSignal, 0, limit)
	for _, r := range ranked {
		if len(signals) >= limit {
			break
		}
		addr := strings.ToLower(r.candidate.Address)
		if _, ok := held[addr]; ok {
			continue
		}
		if r.score < profile.MinConfidence {
			continue
		}
		held[addr] = struct{}{}
		reason := fmt.Sprintf("%s auto-trade: %s scored %.2f (mcap %.0f, 24h %+.1f%%)",
			strings.ToLower(string(tier)), symbolOr(r.candidate), r.score, r.candidate.MarketCap, r.candidate.PriceChange24h)
		signals = append(signals, domain.AutoTradeSignal{
			TokenAddress: r.candidate.Address,
			TokenSymbol:  r.candidate.Symbol,
			Action:       domain.ActionBuy,
			Amount:       size,
			Reason:       reason,
			Confidence:   r.score,
		})
	}

	s.logger.DebugContext(ctx, "autotrade: signals generated",
		slog.String("tier", string(tier)),
		slog.Int("ranked", len(ranked)),
		slog.Int("signals", len(signals)),
	)
	return signals, nil
}

// Candidates returns the discovered tokens, or the fallback list when
// discovery is unavailable or empty.
func (s *Selector) Candidates(ctx context.Context) []domain.TokenCandidate {
	if s.discovery != nil {
		cands, err := s.discovery.ListCandidates(ctx)
		if err == nil && len(cands) > 0 {
			return cands
		}
		if err != nil {
			s.logger.WarnContext(ctx, "autotrade: discovery failed, using fallback tokens",
				slog.String("error", err.Error()),
				slog.Int("fallback", len(s.fallback)),
			)
		}
	}
	return s.fallback
}

func symbolOr(c domain.TokenCandidate) string {
	if c.Symbol != "" {
		return c.Symbol
	}
	return c.Address
}
