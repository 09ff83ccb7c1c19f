// Package portfolio turns raw vault holdings into priced position snapshots.
package portfolio

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// NewSnapshot prices holding h at price. Negative inputs are floored at zero
// so that value and cost basis are never negative.
func NewSnapshot(h domain.Holding, price decimal.Decimal, at time.Time) domain.PositionSnapshot {
	balance := nonNegative(h.Balance)
	cost := nonNegative(h.CostBasis)
	price = nonNegative(price)

	entry := decimal.Zero
	if h.TotalBought.IsPositive() {
		entry = cost.Div(h.TotalBought)
	}

	return domain.PositionSnapshot{
		VaultID:      h.VaultID,
		TokenAddress: h.TokenAddress,
		TokenSymbol:  h.TokenSymbol,
		Balance:      balance,
		CostBasis:    cost,
		EntryPrice:   entry,
		CurrentPrice: price,
		CurrentValue: balance.Mul(price),
		SampledAt:    at,
	}
}

// Active drops closed positions.
func Active(snaps []domain.PositionSnapshot) []domain.PositionSnapshot {
	out := make([]domain.PositionSnapshot, 0, len(snaps))
	for _, s := range snaps {
		if s.IsActive() {
			out = append(out, s)
		}
	}
	return out
}

// Addresses returns the lower-cased token addresses of the active positions.
func Addresses(snaps []domain.PositionSnapshot) []string {
	out := make([]string, 0, len(snaps))
	for _, s := range snaps {
		if s.IsActive() {
			out = append(out, strings.ToLower(s.TokenAddress))
		}
	}
	return out
}

// TotalValue sums the current value of every snapshot.
func TotalValue(snaps []domain.PositionSnapshot) decimal.Decimal {
	total := decimal.Zero
	for _, s := range snaps {
		total = total.Add(s.CurrentValue)
	}
	return total
}

func nonNegative(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
