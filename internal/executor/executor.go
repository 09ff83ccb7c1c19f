// Package executor layers dry-run, pacing, deduplication and recording on top
// of a domain.TradeExecutor. Every layer is itself a domain.TradeExecutor, so
// the stack is assembled by wrapping.
package executor

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// Recording persists every trade it forwards: a TradeRecord to the recorder,
// an event on the signal bus and an audit row. Sink failures are logged and
// never change the trade outcome. Any sink may be nil.
type Recording struct {
	inner    domain.TradeExecutor
	recorder domain.TradeRecorder
	bus      domain.SignalBus
	audit    domain.AuditStore
	dryRun   bool
	now      func() time.Time
	logger   *slog.Logger
}

var _ domain.TradeExecutor = (*Recording)(nil)

// NewRecording wraps inner. dryRun is copied onto every record.
func NewRecording(
	inner domain.TradeExecutor,
	recorder domain.TradeRecorder,
	bus domain.SignalBus,
	audit domain.AuditStore,
	dryRun bool,
	logger *slog.Logger,
) *Recording {
	return &Recording{
		inner:    inner,
		recorder: recorder,
		bus:      bus,
		audit:    audit,
		dryRun:   dryRun,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "executor")),
	}
}

// ExecuteBuy forwards req and records the outcome.
func (r *Recording) ExecuteBuy(ctx context.Context, req domain.BuyRequest) (domain.TradeResult, error) {
	res, err := r.inner.ExecuteBuy(ctx, req)
	r.record(ctx, domain.TradeRecord{
		VaultID:      req.VaultID,
		TokenAddress: req.TokenAddress,
		Action:       domain.ActionBuy,
		AmountIn:     req.AmountIn,
		MinAmountOut: req.MinAmountOut,
		Reason:       req.Reason,
	}, res, err)
	return res, err
}

// ExecuteSell forwards req and records the outcome.
func (r *Recording) ExecuteSell(ctx context.Context, req domain.SellRequest) (domain.TradeResult, error) {
	res, err := r.inner.ExecuteSell(ctx, req)
	r.record(ctx, domain.TradeRecord{
		VaultID:      req.VaultID,
		TokenAddress: req.TokenAddress,
		Action:       domain.ActionSell,
		AmountIn:     req.TokenAmount,
		MinAmountOut: req.MinAmountOut,
		Reason:       req.Reason,
	}, res, err)
	return res, err
}

func (r *Recording) record(ctx context.Context, rec domain.TradeRecord, res domain.TradeResult, callErr error) {
	rec.ID = uuid.New().String()
	rec.DryRun = r.dryRun
	rec.ExecutedAt = r.now().UTC()
	rec.Success = res.Success && callErr == nil
	rec.TxHash = res.TxHash
	rec.AmountOut = res.AmountOut
	rec.Error = res.Error
	if callErr != nil {
		rec.Error = callErr.Error()
	}

	log := r.logger.With(
		slog.String("trade_id", rec.ID),
		slog.String("vault_id", rec.VaultID),
		slog.String("token", rec.TokenAddress),
		slog.String("action", string(rec.Action)),
	)
	if rec.Success {
		log.InfoContext(ctx, "executor: trade confirmed",
			slog.String("amount_in", rec.AmountIn.String()),
			slog.String("amount_out", rec.AmountOut.String()),
			slog.String("tx_hash", rec.TxHash),
			slog.Bool("dry_run", rec.DryRun),
		)
	} else {
		log.WarnContext(ctx, "executor: trade failed", slog.String("error", rec.Error))
	}

	if r.recorder != nil {
		if err := r.recorder.RecordTrade(ctx, rec); err != nil {
			log.WarnContext(ctx, "executor: record trade failed", slog.String("error", err.Error()))
		}
	}
	if r.bus != nil {
		payload, err := json.Marshal(tradeEvent(rec))
		if err == nil {
			if err = r.bus.Publish(ctx, domain.ChannelTrades, payload); err == nil {
				err = r.bus.StreamAppend(ctx, domain.StreamTrades, payload)
			}
		}
		if err != nil {
			log.WarnContext(ctx, "executor: publish trade failed", slog.String("error", err.Error()))
		}
	}
	if r.audit != nil {
		detail := map[string]any{
			"trade_id":   rec.ID,
			"vault_id":   rec.VaultID,
			"token":      rec.TokenAddress,
			"action":     string(rec.Action),
			"amount_in":  rec.AmountIn.String(),
			"amount_out": rec.AmountOut.String(),
			"success":    rec.Success,
			"dry_run":    rec.DryRun,
		}
		if rec.Error != "" {
			detail["error"] = rec.Error
		}
		if err := r.audit.Log(ctx, "trade_executed", detail); err != nil {
			log.WarnContext(ctx, "executor: audit log failed", slog.String("error", err.Error()))
		}
	}
}

// TradeEvent is the JSON shape of a trade on the signal bus.
type TradeEvent struct {
	ID           string             `json:"id"`
	VaultID      string             `json:"vault_id"`
	TokenAddress string             `json:"token_address"`
	Action       domain.TradeAction `json:"action"`
	AmountIn     decimal.Decimal    `json:"amount_in"`
	AmountOut    decimal.Decimal    `json:"amount_out"`
	TxHash       string             `json:"tx_hash,omitempty"`
	Success      bool               `json:"success"`
	Error        string             `json:"error,omitempty"`
	Reason       string             `json:"reason,omitempty"`
	DryRun       bool               `json:"dry_run"`
	ExecutedAt   time.Time          `json:"executed_at"`
}

func tradeEvent(rec domain.TradeRecord) TradeEvent {
	return TradeEvent{
		ID:           rec.ID,
		VaultID:      rec.VaultID,
		TokenAddress: rec.TokenAddress,
		Action:       rec.Action,
		AmountIn:     rec.AmountIn,
		AmountOut:    rec.AmountOut,
		TxHash:       rec.TxHash,
		Success:      rec.Success,
		Error:        rec.Error,
		Reason:       rec.Reason,
		DryRun:       rec.DryRun,
		ExecutedAt:   rec.ExecutedAt,
	}
}
