package domain

import "time"

// CycleOutcome names how a vault's evaluation ended.
type CycleOutcome string

const (
	OutcomeSkipped  CycleOutcome = "skipped"
	OutcomeNoop     CycleOutcome = "noop"
	OutcomeTraded   CycleOutcome = "traded"
	OutcomeCooldown CycleOutcome = "cooldown"
	OutcomeFailed   CycleOutcome = "failed"
)

// VaultReport summarises one vault's pass through a sweep.
type VaultReport struct {
	VaultID         string        `json:"vault_id"`
	VaultKey        string        `json:"vault_key"`
	Tier            Tier          `json:"tier"`
	Positions       int           `json:"positions"`
	AtRisk          []string      `json:"at_risk,omitempty"`
	SellTriggers    []SellTrigger `json:"sell_triggers,omitempty"`
	SellsExecuted   int           `json:"sells_executed"`
	RebalanceRan    bool          `json:"rebalance_ran"`
	RebalanceTrades int           `json:"rebalance_trades"`
	AutoTrade       CycleOutcome  `json:"auto_trade"`
	AutoTradeReason string        `json:"auto_trade_reason,omitempty"`
	BuysExecuted    int           `json:"buys_executed"`
	CooldownSeconds int64         `json:"cooldown_seconds,omitempty"`
	Error           string        `json:"error,omitempty"`
}

// SweepReport summarises one pass over every active vault.
type SweepReport struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	DryRun     bool          `json:"dry_run"`
	VaultSrc   string        `json:"vault_source"`
	Vaults     []VaultReport `json:"vaults"`
	Errors     int           `json:"errors"`
}
