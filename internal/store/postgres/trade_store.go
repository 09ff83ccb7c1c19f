package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

var _ domain.TradeStore = (*TradeStore)(nil)

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, vault_id, token_address, action, amount_in, amount_out,
	min_amount_out, tx_hash, success, error, reason, dry_run, executed_at`

func scanTradeRows(rows pgx.Rows) ([]domain.TradeRecord, error) {
	var trades []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		var action string
		if err := rows.Scan(
			&t.ID, &t.VaultID, &t.TokenAddress, &action,
			&t.AmountIn, &t.AmountOut, &t.MinAmountOut,
			&t.TxHash, &t.Success, &t.Error, &t.Reason,
			&t.DryRun, &t.ExecutedAt,
		); err != nil {
			return nil, err
		}
		t.Action = domain.TradeAction(action)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Insert stores one trade. Re-inserting the same ID is a no-op.
func (s *TradeStore) Insert(ctx context.Context, t domain.TradeRecord) error {
	const query = `
		INSERT INTO trades (
			id, vault_id, token_address, action,
			amount_in, amount_out, min_amount_out,
			tx_hash, success, error, reason, dry_run, executed_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10, $11, $12, $13
		) ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.VaultID, t.TokenAddress, string(t.Action),
		t.AmountIn, t.AmountOut, t.MinAmountOut,
		t.TxHash, t.Success, t.Error, t.Reason, t.DryRun, t.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", t.ID, err)
	}
	return nil
}

// ListByVault returns the trades of vaultID, newest first.
func (s *TradeStore) ListByVault(ctx context.Context, vaultID string, opts domain.ListOpts) ([]domain.TradeRecord, error) {
	query, args := appendListOpts(`SELECT `+tradeSelectCols+` FROM trades WHERE vault_id = $1`,
		[]any{vaultID}, 2, "executed_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades by vault: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades by vault: %w", err)
	}
	return trades, nil
}

// LastExecutedAt returns the time of the last successful live trade of
// vaultID, or domain.ErrNotFound.
func (s *TradeStore) LastExecutedAt(ctx context.Context, vaultID string) (time.Time, error) {
	var ts *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(executed_at) FROM trades WHERE vault_id = $1 AND success AND NOT dry_run`,
		vaultID).Scan(&ts)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, fmt.Errorf("postgres: last trade of %s: %w", vaultID, err)
	}
	if ts == nil {
		return time.Time{}, domain.ErrNotFound
	}
	return *ts, nil
}
