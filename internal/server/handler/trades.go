package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// TradeLog reads the durable trade stream.
type TradeLog interface {
	StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error)
	StreamTail(ctx context.Context, stream string, count int) ([]domain.StreamMessage, error)
}

// TradeFeedHandler serves trades from the signal bus stream, across vaults.
type TradeFeedHandler struct {
	log    TradeLog
	logger *slog.Logger
}

// NewTradeFeedHandler creates a TradeFeedHandler.
func NewTradeFeedHandler(log TradeLog, logger *slog.Logger) *TradeFeedHandler {
	return &TradeFeedHandler{log: log, logger: logger}
}

type tradeEntry struct {
	ID    string          `json:"id"`
	Trade json.RawMessage `json:"trade"`
}

type tradeFeedResponse struct {
	Trades []tradeEntry `json:"trades"`
	Next   string       `json:"next,omitempty"`
}

// ListTrades returns the newest trades, or with ?after=<id> the trades
// following that stream entry in order. next is the cursor for polling.
// GET /api/trades
func (h *TradeFeedHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	limit := parseListOpts(r).Limit
	after := r.URL.Query().Get("after")

	var (
		msgs []domain.StreamMessage
		err  error
	)
	if after != "" {
		msgs, err = h.log.StreamRead(r.Context(), domain.StreamTrades, after, limit)
	} else {
		msgs, err = h.log.StreamTail(r.Context(), domain.StreamTrades, limit)
	}
	if err != nil {
		writeDomainError(w, r, h.logger, "handler: read trade stream", err)
		return
	}

	resp := tradeFeedResponse{Trades: make([]tradeEntry, 0, len(msgs)), Next: after}
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			continue
		}
		resp.Trades = append(resp.Trades, tradeEntry{ID: m.ID, Trade: m.Payload})
	}
	switch {
	case len(msgs) == 0:
	case after != "":
		resp.Next = msgs[len(msgs)-1].ID
	default:
		resp.Next = msgs[0].ID
	}
	writeJSON(w, http.StatusOK, resp)
}
