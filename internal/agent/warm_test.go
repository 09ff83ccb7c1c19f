package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

type historyMap map[string]time.Time

func (h historyMap) LastExecutedAt(_ context.Context, vaultID string) (time.Time, error) {
	if vaultID == "broken" {
		return time.Time{}, errors.New("db down")
	}
	t, ok := h[vaultID]
	if !ok {
		return time.Time{}, domain.ErrNotFound
	}
	return t, nil
}

func TestWarmCooldownsSeedsState(t *testing.T) {
	vaults := []domain.Vault{
		{ID: "v1", Address: "0xAAA", Tier: domain.TierBalanced, Balance: dec("1")},
		{ID: "v2", Address: "0xBBB", Tier: domain.TierBalanced, Balance: dec("1")},
		{ID: "broken", Address: "0xCCC", Tier: domain.TierBalanced, Balance: dec("1")},
	}
	h := newHarness(harnessOpts{vaults: vaults})
	traded := h.clock.Add(-2 * time.Minute)

	n, err := h.o.WarmCooldowns(context.Background(), historyMap{"v1": traded})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	last, ok := h.o.State().LastTrade("0xaaa")
	require.True(t, ok)
	assert.Equal(t, traded, last)
	assert.Equal(t, 3*time.Minute, h.o.RemainingCooldown("0xaaa"))
	assert.False(t, h.o.CanTrade("0xaaa", true))

	_, ok = h.o.State().LastTrade("0xbbb")
	assert.False(t, ok)
	assert.True(t, h.o.CanTrade("0xbbb", false))
}

func TestWarmCooldownsKeepsNewerInMemoryTrade(t *testing.T) {
	vaults := []domain.Vault{{ID: "v1", Address: "0xAAA", Tier: domain.TierBalanced, Balance: dec("1")}}
	h := newHarness(harnessOpts{vaults: vaults})
	h.o.State().MarkTraded("0xaaa", h.clock)

	n, err := h.o.WarmCooldowns(context.Background(), historyMap{"v1": h.clock.Add(-time.Hour)})
	require.NoError(t, err)
	assert.Zero(t, n)
	last, _ := h.o.State().LastTrade("0xaaa")
	assert.Equal(t, h.clock, last)
}
