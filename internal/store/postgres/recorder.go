package postgres

import (
	"context"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// Recorder persists executed trades and refreshed snapshots.
type Recorder struct {
	trades    domain.TradeStore
	positions domain.PositionStore
}

var _ domain.TradeRecorder = (*Recorder)(nil)

// NewRecorder returns a Recorder writing to the given stores.
func NewRecorder(trades domain.TradeStore, positions domain.PositionStore) *Recorder {
	return &Recorder{trades: trades, positions: positions}
}

// RecordTrade stores t.
func (r *Recorder) RecordTrade(ctx context.Context, t domain.TradeRecord) error {
	return r.trades.Insert(ctx, t)
}

// RecordPositions stores snaps, skipping emptied positions.
func (r *Recorder) RecordPositions(ctx context.Context, snaps []domain.PositionSnapshot) error {
	active := make([]domain.PositionSnapshot, 0, len(snaps))
	for _, p := range snaps {
		if p.IsActive() {
			active = append(active, p)
		}
	}
	return r.positions.UpsertBatch(ctx, active)
}
