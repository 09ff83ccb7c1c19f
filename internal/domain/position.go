package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Holding is the raw per-token record of a vault as reported by a data
// source. Amounts are in base-asset units except Balance, which is a token
// quantity.
type Holding struct {
	VaultID      string
	TokenAddress string
	TokenSymbol  string
	Balance      decimal.Decimal
	CostBasis    decimal.Decimal
	TotalBought  decimal.Decimal
	Proceeds     decimal.Decimal
}

// PositionSnapshot is a read-only view of one holding priced at a single
// sample. A fresh snapshot is produced every evaluation cycle.
type PositionSnapshot struct {
	VaultID      string          `json:"vault_id"`
	TokenAddress string          `json:"token_address"`
	TokenSymbol  string          `json:"token_symbol"`
	Balance      decimal.Decimal `json:"balance"`
	CostBasis    decimal.Decimal `json:"cost_basis"`
	EntryPrice   decimal.Decimal `json:"entry_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	CurrentValue decimal.Decimal `json:"current_value"`
	SampledAt    time.Time       `json:"sampled_at"`
}

// IsActive reports whether the position still holds tokens.
func (p PositionSnapshot) IsActive() bool {
	return p.Balance.IsPositive()
}

// PnLPercent is the signed gain relative to cost basis, in percent. A zero
// cost basis yields zero.
func (p PositionSnapshot) PnLPercent() float64 {
	if !p.CostBasis.IsPositive() {
		return 0
	}
	return p.CurrentValue.Sub(p.CostBasis).
		Div(p.CostBasis).
		Mul(decimal.NewFromInt(100)).
		InexactFloat64()
}

// PnL is the unrealised gain in base-asset units.
func (p PositionSnapshot) PnL() decimal.Decimal {
	return p.CurrentValue.Sub(p.CostBasis)
}
