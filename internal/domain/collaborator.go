package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// TradeExecutor submits vault trades and blocks until the outcome is known.
// A reverted transaction is a failed TradeResult, not an error; errors are
// reserved for calls that never reached a verdict.
type TradeExecutor interface {
	ExecuteBuy(ctx context.Context, req BuyRequest) (TradeResult, error)
	ExecuteSell(ctx context.Context, req SellRequest) (TradeResult, error)
}

// Quoter prices trades against the bonding-curve router.
type Quoter interface {
	GetQuote(ctx context.Context, tokenAddress string, amountIn decimal.Decimal, isBuy bool) (Quote, error)
}

// VaultSource lists vaults the agent operates on.
type VaultSource interface {
	ListActiveVaults(ctx context.Context) ([]Vault, error)
}

// HoldingSource lists the raw holdings of one vault.
type HoldingSource interface {
	ListHoldings(ctx context.Context, vaultID string) ([]Holding, error)
}

// TokenDiscovery lists launchpad tokens that may be bought.
type TokenDiscovery interface {
	ListCandidates(ctx context.Context) ([]TokenCandidate, error)
}

// TradeRecorder is a best-effort sink for executed trades and refreshed
// position snapshots. Callers log and ignore its errors.
type TradeRecorder interface {
	RecordTrade(ctx context.Context, t TradeRecord) error
	RecordPositions(ctx context.Context, snaps []PositionSnapshot) error
}

// Notifier delivers human-readable alerts.
type Notifier interface {
	Notify(ctx context.Context, event, message string) error
}
