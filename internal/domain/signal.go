package domain

import "github.com/shopspring/decimal"

// TriggerType names why a position is being force-sold.
type TriggerType string

const (
	TriggerStopLoss   TriggerType = "stop_loss"
	TriggerTakeProfit TriggerType = "take_profit"
	TriggerManual     TriggerType = "manual"
	TriggerRebalance  TriggerType = "rebalance"
)

// SellTrigger is emitted when a position must be exited.
type SellTrigger struct {
	Type         TriggerType `json:"type"`
	TokenAddress string      `json:"token_address"`
	Reason       string      `json:"reason"`
	PnLPercent   float64     `json:"pnl_percent"`
}

// SlippagePercent is the tolerated execution slippage for the forced sell.
// Stop-loss exits accept a wider band than take-profit exits.
func (t SellTrigger) SlippagePercent() float64 {
	switch t.Type {
	case TriggerStopLoss:
		return 10
	case TriggerTakeProfit:
		return 5
	case TriggerRebalance:
		return 100
	default:
		return 5
	}
}

// RebalanceTrade moves a vault toward its target allocation. Amount is in
// base-asset units for buys and token units for sells.
type RebalanceTrade struct {
	TokenAddress string          `json:"token_address"`
	TokenSymbol  string          `json:"token_symbol"`
	Action       TradeAction     `json:"action"`
	Amount       decimal.Decimal `json:"amount"`
	Reason       string          `json:"reason"`
}

// AutoTradeSignal opens a new position. Amount is in base-asset units.
type AutoTradeSignal struct {
	TokenAddress string          `json:"token_address"`
	TokenSymbol  string          `json:"token_symbol"`
	Action       TradeAction     `json:"action"`
	Amount       decimal.Decimal `json:"amount"`
	Reason       string          `json:"reason"`
	Confidence   float64         `json:"confidence"`
}
