package chain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the fixed-point precision of the base asset and every
// launchpad token.
const Decimals = 18

// ToWei converts a base-unit amount to its 18-decimal integer form. Digits
// below one wei are truncated; negative amounts become zero.
func ToWei(d decimal.Decimal) *big.Int {
	if !d.IsPositive() {
		return new(big.Int)
	}
	return d.Shift(Decimals).Truncate(0).BigInt()
}

// FromWei converts an 18-decimal integer amount to base units.
func FromWei(v *big.Int) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -Decimals)
}
