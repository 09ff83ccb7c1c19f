package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPnLPercent(t *testing.T) {
	p := PositionSnapshot{Balance: d("100"), CostBasis: d("1.0"), CurrentValue: d("0.85")}
	assert.InDelta(t, -15.0, p.PnLPercent(), 1e-9)
	assert.True(t, p.PnL().Equal(d("-0.15")))

	p.CurrentValue = d("1.5")
	assert.InDelta(t, 50.0, p.PnLPercent(), 1e-9)
}

func TestPnLPercentZeroCostBasis(t *testing.T) {
	p := PositionSnapshot{Balance: d("10"), CostBasis: decimal.Zero, CurrentValue: d("3")}
	assert.Equal(t, 0.0, p.PnLPercent())
}

func TestIsActive(t *testing.T) {
	assert.True(t, PositionSnapshot{Balance: d("0.0001")}.IsActive())
	assert.False(t, PositionSnapshot{Balance: decimal.Zero}.IsActive())
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier(" balanced ")
	assert.NoError(t, err)
	assert.Equal(t, TierBalanced, tier)

	_, err = ParseTier("yolo")
	assert.ErrorIs(t, err, ErrUnknownTier)
}

func TestMaxNewPositions(t *testing.T) {
	assert.Equal(t, 3, TierAggressive.MaxNewPositions())
	assert.Equal(t, 2, TierBalanced.MaxNewPositions())
	assert.Equal(t, 1, TierConservative.MaxNewPositions())
	assert.Equal(t, 0, Tier("OTHER").MaxNewPositions())
}

func TestSlippagePercent(t *testing.T) {
	assert.Equal(t, 10.0, SellTrigger{Type: TriggerStopLoss}.SlippagePercent())
	assert.Equal(t, 5.0, SellTrigger{Type: TriggerTakeProfit}.SlippagePercent())
}

func TestVaultKey(t *testing.T) {
	assert.Equal(t, "0xabc", Vault{ID: "v1", Address: "0xABC"}.Key())
	assert.Equal(t, "v1", Vault{ID: "v1"}.Key())
	assert.Equal(t, "vault-ab", Vault{ID: "Vault-AB"}.Key())
}
