package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Vault is a per-user on-chain account operated by the agent.
type Vault struct {
	ID             string
	Address        string
	Owner          string
	Tier           Tier
	Balance        decimal.Decimal // liquid base asset
	MaxTradeAmount *decimal.Decimal
	Paused         bool
}

// Key is the identifier the agent keys its cooldown state by: the address,
// or the ID when there is none, lower-cased.
func (v Vault) Key() string {
	if v.Address != "" {
		return strings.ToLower(v.Address)
	}
	return strings.ToLower(v.ID)
}

// TargetAllocation is a desired share of total vault value, in percent.
type TargetAllocation struct {
	TokenAddress  string  `json:"token_address"`
	TokenSymbol   string  `json:"token_symbol"`
	TargetPercent float64 `json:"target_percent"`
}

// UserSettings are the per-user automation switches and overrides.
type UserSettings struct {
	Owner             string
	AutoTrade         bool
	AutoRebalance     bool
	StopLossPercent   *float64
	TakeProfitPercent *float64
	MaxTradeAmount    *decimal.Decimal
	Targets           []TargetAllocation
	UpdatedAt         time.Time
}

// DefaultSettings are used when a user has no stored settings.
func DefaultSettings(owner string) UserSettings {
	return UserSettings{Owner: owner, AutoTrade: true}
}

// TokenCandidate is a launchpad token offered by the discovery source.
type TokenCandidate struct {
	Address        string
	Symbol         string
	MarketCap      float64
	PriceChange24h float64 // percent
	Volume24h      float64
	CreatedAt      time.Time
}
