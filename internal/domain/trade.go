package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeAction is the direction of a trade.
type TradeAction string

const (
	ActionBuy  TradeAction = "buy"
	ActionSell TradeAction = "sell"
)

// BuyRequest spends AmountIn of the base asset from a vault on TokenAddress.
type BuyRequest struct {
	VaultID      string
	TokenAddress string
	AmountIn     decimal.Decimal
	MinAmountOut decimal.Decimal
	Deadline     time.Time
	Reason       string
}

// SellRequest sells TokenAmount of TokenAddress held by a vault.
type SellRequest struct {
	VaultID      string
	TokenAddress string
	TokenAmount  decimal.Decimal
	MinAmountOut decimal.Decimal
	Deadline     time.Time
	Reason       string
}

// TradeResult is the confirmed outcome of one execution call.
type TradeResult struct {
	Success   bool            `json:"success"`
	TxHash    string          `json:"tx_hash,omitempty"`
	AmountOut decimal.Decimal `json:"amount_out"`
	Error     string          `json:"error,omitempty"`
}

// Failed builds an unsuccessful TradeResult carrying err's message.
func Failed(err error) TradeResult {
	return TradeResult{Success: false, Error: err.Error()}
}

// Quote is a router price quote.
type Quote struct {
	AmountOut decimal.Decimal
	Router    string
}

// TradeRecord is the persisted form of an executed (or failed) trade.
type TradeRecord struct {
	ID           string
	VaultID      string
	TokenAddress string
	Action       TradeAction
	AmountIn     decimal.Decimal
	AmountOut    decimal.Decimal
	MinAmountOut decimal.Decimal
	TxHash       string
	Success      bool
	Error        string
	Reason       string
	DryRun       bool
	ExecutedAt   time.Time
}
