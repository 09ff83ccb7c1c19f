package backend

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// Amounts travel as decimal strings; decimal.Decimal reads and writes them
// quoted.

type apiVault struct {
	ID             string           `json:"id"`
	Address        string           `json:"address"`
	Owner          string           `json:"owner"`
	Tier           string           `json:"tier"`
	Balance        decimal.Decimal  `json:"balance"`
	MaxTradeAmount *decimal.Decimal `json:"maxTradeAmount"`
	Paused         bool             `json:"paused"`
}

func (v apiVault) toDomain() domain.Vault {
	out := domain.Vault{
		ID:      v.ID,
		Address: v.Address,
		Owner:   v.Owner,
		Tier:    domain.Tier(strings.ToUpper(v.Tier)),
		Balance: v.Balance,
		Paused:  v.Paused,
	}
	if v.MaxTradeAmount != nil && v.MaxTradeAmount.IsPositive() {
		m := *v.MaxTradeAmount
		out.MaxTradeAmount = &m
	}
	return out
}

type apiHolding struct {
	TokenAddress string          `json:"tokenAddress"`
	TokenSymbol  string          `json:"tokenSymbol"`
	Balance      decimal.Decimal `json:"balance"`
	CostBasis    decimal.Decimal `json:"costBasis"`
	TotalBought  decimal.Decimal `json:"totalBought"`
	Proceeds     decimal.Decimal `json:"proceeds"`
}

func (h apiHolding) toDomain(vaultID string) domain.Holding {
	return domain.Holding{
		VaultID:      vaultID,
		TokenAddress: h.TokenAddress,
		TokenSymbol:  h.TokenSymbol,
		Balance:      h.Balance,
		CostBasis:    h.CostBasis,
		TotalBought:  h.TotalBought,
		Proceeds:     h.Proceeds,
	}
}

type apiToken struct {
	Address        string    `json:"address"`
	Symbol         string    `json:"symbol"`
	MarketCap      float64   `json:"marketCap"`
	PriceChange24h float64   `json:"priceChange24h"`
	Volume24h      float64   `json:"volume24h"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (t apiToken) toDomain() domain.TokenCandidate {
	return domain.TokenCandidate{
		Address:        strings.ToLower(t.Address),
		Symbol:         t.Symbol,
		MarketCap:      t.MarketCap,
		PriceChange24h: t.PriceChange24h,
		Volume24h:      t.Volume24h,
		CreatedAt:      t.CreatedAt,
	}
}

type apiSettings struct {
	AutoTrade         *bool                     `json:"autoTrade"`
	AutoRebalance     bool                      `json:"autoRebalance"`
	StopLossPercent   *float64                  `json:"stopLossPercent"`
	TakeProfitPercent *float64                  `json:"takeProfitPercent"`
	MaxTradeAmount    *decimal.Decimal          `json:"maxTradeAmount"`
	Targets           []domain.TargetAllocation `json:"targetAllocations"`
	UpdatedAt         time.Time                 `json:"updatedAt"`
}

// toDomain applies the backend defaults: auto-trade is on unless explicitly
// disabled.
func (s apiSettings) toDomain(owner string) domain.UserSettings {
	out := domain.DefaultSettings(owner)
	if s.AutoTrade != nil {
		out.AutoTrade = *s.AutoTrade
	}
	out.AutoRebalance = s.AutoRebalance
	out.StopLossPercent = s.StopLossPercent
	out.TakeProfitPercent = s.TakeProfitPercent
	out.MaxTradeAmount = s.MaxTradeAmount
	out.Targets = s.Targets
	out.UpdatedAt = s.UpdatedAt
	return out
}

type apiTrade struct {
	ID           string             `json:"id"`
	VaultID      string             `json:"vaultId"`
	TokenAddress string             `json:"tokenAddress"`
	Action       domain.TradeAction `json:"action"`
	AmountIn     decimal.Decimal    `json:"amountIn"`
	AmountOut    decimal.Decimal    `json:"amountOut"`
	MinAmountOut decimal.Decimal    `json:"minAmountOut"`
	TxHash       string             `json:"txHash,omitempty"`
	Success      bool               `json:"success"`
	Error        string             `json:"error,omitempty"`
	Reason       string             `json:"reason,omitempty"`
	DryRun       bool               `json:"dryRun"`
	ExecutedAt   time.Time          `json:"executedAt"`
}

func fromTradeRecord(t domain.TradeRecord) apiTrade {
	return apiTrade{
		ID:           t.ID,
		VaultID:      t.VaultID,
		TokenAddress: t.TokenAddress,
		Action:       t.Action,
		AmountIn:     t.AmountIn,
		AmountOut:    t.AmountOut,
		MinAmountOut: t.MinAmountOut,
		TxHash:       t.TxHash,
		Success:      t.Success,
		Error:        t.Error,
		Reason:       t.Reason,
		DryRun:       t.DryRun,
		ExecutedAt:   t.ExecutedAt,
	}
}
