// Package rebalance moves a vault's holdings toward its target allocation.
package rebalance

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// DefaultThresholdPercent is the allocation drift below which a target is
// left alone.
const DefaultThresholdPercent = 5.0

var (
	// dustAmount is the smallest buy, in base-asset units, worth sending.
	dustAmount = decimal.RequireFromString("0.001")
	// liquidityShare is the fraction of liquid balance a single buy may use.
	liquidityShare = decimal.RequireFromString("0.9")
	hundred        = decimal.NewFromInt(100)
)

// CalculateTrades computes the trades that bring each target within
// thresholdPercent of its allocation. Buys are sized in base-asset units and
// sells in token units. Targets are visited in the given order.
func CalculateTrades(
	positions []domain.PositionSnapshot,
	targets []domain.TargetAllocation,
	liquid decimal.Decimal,
	thresholdPercent float64,
) []domain.RebalanceTrade {
	if liquid.IsNegative() {
		liquid = decimal.Zero
	}
	total := liquid
	byToken := make(map[string]domain.PositionSnapshot, len(positions))
	for _, p := range positions {
		total = total.Add(p.CurrentValue)
		byToken[strings.ToLower(p.TokenAddress)] = p
	}
	if !total.IsPositive() {
		return nil
	}

	maxBuy := liquid.Mul(liquidityShare)
	var trades []domain.RebalanceTrade
	for _, target := range targets {
		pos, held := byToken[strings.ToLower(target.TokenAddress)]
		current := decimal.Zero
		if held {
			current = pos.CurrentValue
		}

		currentPct := current.Div(total).Mul(hundred).InexactFloat64()
		deviation := currentPct - target.TargetPercent
		if deviation < 0 {
			deviation = -deviation
		}
		if deviation < thresholdPercent {
			continue
		}

		targetValue := total.Mul(decimal.NewFromFloat(target.TargetPercent)).Div(hundred)
		symbol := target.TokenSymbol
		if symbol == "" && held {
			symbol = pos.TokenSymbol
		}

		if currentPct < target.TargetPercent {
			amount := decimal.Min(targetValue.Sub(current), maxBuy)
			if amount.LessThan(dustAmount) {
				continue
			}
			trades = append(trades, domain.RebalanceTrade{
				TokenAddress: target.TokenAddress,
				TokenSymbol:  symbol,
				Action:       domain.ActionBuy,
				Amount:       amount,
				Reason:       fmt.Sprintf("under-allocated: %.2f%% vs target %.2f%%", currentPct, target.TargetPercent),
			})
			continue
		}

		if !held || !current.IsPositive() {
			continue
		}
		share := current.Sub(targetValue).Div(current)
		tokens := pos.Balance.Mul(share)
		if !tokens.IsPositive() {
			continue
		}
		trades = append(trades, domain.RebalanceTrade{
			TokenAddress: pos.TokenAddress,
			TokenSymbol:  symbol,
			Action:       domain.ActionSell,
			Amount:       tokens,
			Reason:       fmt.Sprintf("over-allocated: %.2f%% vs target %.2f%%", currentPct, target.TargetPercent),
		})
	}
	return trades
}

// SellsFirst returns trades reordered so that every sell precedes every buy.
// Relative order within each side is kept.
func SellsFirst(trades []domain.RebalanceTrade) []domain.RebalanceTrade {
	out := make([]domain.RebalanceTrade, 0, len(trades))
	for _, t := range trades {
		if t.Action == domain.ActionSell {
			out = append(out, t)
		}
	}
	for _, t := range trades {
		if t.Action == domain.ActionBuy {
			out = append(out, t)
		}
	}
	return out
}
