package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// PositionStore keeps the latest snapshot per vault and token.
type PositionStore struct {
	pool *pgxpool.Pool
}

var _ domain.PositionStore = (*PositionStore)(nil)

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// UpsertBatch writes snaps in one round trip, replacing older samples.
func (s *PositionStore) UpsertBatch(ctx context.Context, snaps []domain.PositionSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	const query = `
		INSERT INTO position_snapshots (
			vault_id, token_address, token_symbol, balance, cost_basis,
			entry_price, current_price, current_value, pnl_percent, sampled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (vault_id, token_address) DO UPDATE SET
			token_symbol  = EXCLUDED.token_symbol,
			balance       = EXCLUDED.balance,
			cost_basis    = EXCLUDED.cost_basis,
			entry_price   = EXCLUDED.entry_price,
			current_price = EXCLUDED.current_price,
			current_value = EXCLUDED.current_value,
			pnl_percent   = EXCLUDED.pnl_percent,
			sampled_at    = EXCLUDED.sampled_at
		WHERE position_snapshots.sampled_at <= EXCLUDED.sampled_at`

	batch := &pgx.Batch{}
	for _, p := range snaps {
		batch.Queue(query,
			p.VaultID, p.TokenAddress, p.TokenSymbol, p.Balance, p.CostBasis,
			p.EntryPrice, p.CurrentPrice, p.CurrentValue, p.PnLPercent(), p.SampledAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range snaps {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert position batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByVault returns the stored snapshots of vaultID.
func (s *PositionStore) ListByVault(ctx context.Context, vaultID string) ([]domain.PositionSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT vault_id, token_address, token_symbol, balance, cost_basis,
		       entry_price, current_price, current_value, sampled_at
		FROM position_snapshots
		WHERE vault_id = $1
		ORDER BY current_value DESC`, vaultID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions of %s: %w", vaultID, err)
	}
	defer rows.Close()

	var out []domain.PositionSnapshot
	for rows.Next() {
		var p domain.PositionSnapshot
		if err := rows.Scan(
			&p.VaultID, &p.TokenAddress, &p.TokenSymbol, &p.Balance, &p.CostBasis,
			&p.EntryPrice, &p.CurrentPrice, &p.CurrentValue, &p.SampledAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
