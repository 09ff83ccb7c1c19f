package autotrade

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/vaultagent/internal/domain"
	"github.com/alanyoungcy/vaultagent/internal/strategy"
)

type staticDiscovery struct {
	tokens []domain.TokenCandidate
	err    error
}

func (d staticDiscovery) ListCandidates(context.Context) ([]domain.TokenCandidate, error) {
	return d.tokens, d.err
}

var now = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

func newSelector(d domain.TokenDiscovery, fallback []domain.TokenCandidate) *Selector {
	s := NewSelector(d, strategy.NewTable(), fallback, DefaultBands(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return now }
	return s
}

// hot is a token that scores 1.0 for every tier it is admitted to.
func hot(addr string, mcap float64) domain.TokenCandidate {
	return domain.TokenCandidate{
		Address:        addr,
		Symbol:         strings.ToUpper(addr),
		MarketCap:      mcap,
		PriceChange24h: 40,
		Volume24h:      50_000,
		CreatedAt:      now.Add(-72 * time.Hour),
	}
}

func manyHot(n int, mcap float64) []domain.TokenCandidate {
	out := make([]domain.TokenCandidate, n)
	for i := range out {
		out[i] = hot(fmt.Sprintf("0xt%d", i), mcap)
	}
	return out
}

func TestGenerateSignalsRespectsTierCap(t *testing.T) {
	tests := []struct {
		tier domain.Tier
		want int
	}{
		{domain.TierAggressive, 3},
		{domain.TierBalanced, 2},
		{domain.TierConservative, 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			s := newSelector(staticDiscovery{tokens: manyHot(10, 150_000)}, nil)
			sigs, err := s.GenerateSignals(context.Background(), tt.tier, nil, nil)
			require.NoError(t, err)
			assert.Len(t, sigs, tt.want)
			for _, sig := range sigs {
				assert.Equal(t, domain.ActionBuy, sig.Action)
				assert.True(t, sig.Amount.Equal(strategy.MustProfile(tt.tier).MaxTradeAmount))
				assert.Contains(t, sig.Reason, "scored")
			}
		})
	}
}

func TestGenerateSignalsExcludesHeldTokens(t *testing.T) {
	tokens := manyHot(4, 150_000)
	s := newSelector(staticDiscovery{tokens: tokens}, nil)

	existing := []string{"0XT0", "0xT1"}
	sigs, err := s.GenerateSignals(context.Background(), domain.TierAggressive, existing, nil)
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	for _, sig := range sigs {
		for _, e := range existing {
			assert.NotEqual(t, strings.ToLower(e), strings.ToLower(sig.TokenAddress))
		}
	}
}

func TestGenerateSignalsVaultCapOnlyTightens(t *testing.T) {
	s := newSelector(staticDiscovery{tokens: manyHot(1, 150_000)}, nil)

	small := decimal.RequireFromString("0.02")
	sigs, err := s.GenerateSignals(context.Background(), domain.TierAggressive, nil, &small)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.True(t, sigs[0].Amount.Equal(small))

	big := decimal.RequireFromString("50")
	sigs, err = s.GenerateSignals(context.Background(), domain.TierAggressive, nil, &big)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.True(t, sigs[0].Amount.Equal(decimal.RequireFromString("0.1")))
}

func TestGenerateSignalsSortsByScoreAndAppliesMinConfidence(t *testing.T) {
	weak := domain.TokenCandidate{Address: "0xweak", MarketCap: 150_000, CreatedAt: now.Add(-72 * time.Hour)}
	strong := hot("0xstrong", 150_000)
	s := newSelector(staticDiscovery{tokens: []domain.TokenCandidate{weak, strong}}, nil)

	sigs, err := s.GenerateSignals(context.Background(), domain.TierBalanced, nil, nil)
	require.NoError(t, err)
	// weak scores 0.6, below the balanced minimum of 0.65.
	require.Len(t, sigs, 1)
	assert.Equal(t, "0xstrong", sigs[0].TokenAddress)
	assert.GreaterOrEqual(t, sigs[0].Confidence, 0.65)
}

func TestGenerateSignalsFallsBackWhenDiscoveryFails(t *testing.T) {
	fallback := []domain.TokenCandidate{hot("0xfallback", 150_000)}
	s := newSelector(staticDiscovery{err: errors.New("indexer down")}, fallback)

	sigs, err := s.GenerateSignals(context.Background(), domain.TierConservative, nil, nil)
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, "0xfallback", sigs[0].TokenAddress)

	s = newSelector(staticDiscovery{}, fallback)
	assert.Equal(t, fallback, s.Candidates(context.Background()))
}

func TestGenerateSignalsUnknownTier(t *testing.T) {
	s := newSelector(staticDiscovery{}, nil)
	_, err := s.GenerateSignals(context.Background(), "NOPE", nil, nil)
	assert.ErrorIs(t, err, domain.ErrUnknownTier)
}

func TestBandsAdmits(t *testing.T) {
	b := DefaultBands()
	assert.True(t, b.Admits(domain.TierConservative, domain.TokenCandidate{MarketCap: 100_000}))
	assert.False(t, b.Admits(domain.TierConservative, domain.TokenCandidate{MarketCap: 99_999}))
	assert.True(t, b.Admits(domain.TierBalanced, domain.TokenCandidate{MarketCap: 10_000}))
	assert.False(t, b.Admits(domain.TierBalanced, domain.TokenCandidate{MarketCap: 600_000}))
	assert.True(t, b.Admits(domain.TierAggressive, domain.TokenCandidate{}))
}

func TestBandsScore(t *testing.T) {
	b := DefaultBands()

	base := domain.TokenCandidate{MarketCap: 5_000, CreatedAt: now.Add(-12 * time.Hour)}
	assert.InDelta(t, 0.5, b.Score(domain.TierAggressive, base, now), 1e-9)

	momentum := base
	momentum.PriceChange24h = 1_000
	// momentum bonus capped at 0.2, strong change adds 0.15.
	assert.InDelta(t, 0.85, b.Score(domain.TierAggressive, momentum, now), 1e-9)

	fresh := momentum
	fresh.CreatedAt = now.Add(-time.Hour)
	fresh.Volume24h = 10_000
	assert.Equal(t, 1.0, b.Score(domain.TierAggressive, fresh, now))

	falling := base
	falling.PriceChange24h = -80
	assert.InDelta(t, 0.5, b.Score(domain.TierBalanced, falling, now), 1e-9)
}
