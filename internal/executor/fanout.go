package executor

import (
	"context"
	"errors"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// Fanout is a domain.TradeRecorder that forwards every record to several
// sinks. Every sink is tried; their errors are joined.
type Fanout struct {
	sinks []domain.TradeRecorder
}

var _ domain.TradeRecorder = (*Fanout)(nil)

// NewFanout creates a Fanout over the non-nil sinks.
func NewFanout(sinks ...domain.TradeRecorder) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Len returns the number of sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// RecordTrade implements domain.TradeRecorder.
func (f *Fanout) RecordTrade(ctx context.Context, t domain.TradeRecord) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.RecordTrade(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordPositions implements domain.TradeRecorder.
func (f *Fanout) RecordPositions(ctx context.Context, snaps []domain.PositionSnapshot) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.RecordPositions(ctx, snaps); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
