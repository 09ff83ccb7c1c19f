package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// HoldingStore implements domain.HoldingStore using PostgreSQL.
type HoldingStore struct {
	pool *pgxpool.Pool
}

var (
	_ domain.HoldingStore  = (*HoldingStore)(nil)
	_ domain.HoldingSource = (*HoldingStore)(nil)
)

// NewHoldingStore creates a new HoldingStore backed by the given connection pool.
func NewHoldingStore(pool *pgxpool.Pool) *HoldingStore {
	return &HoldingStore{pool: pool}
}

// ReplaceHoldings swaps the stored holdings of vaultID for hs in one
// transaction, so tokens sold out upstream disappear here too.
func (s *HoldingStore) ReplaceHoldings(ctx context.Context, vaultID string, hs []domain.Holding) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM holdings WHERE vault_id = $1`, vaultID); err != nil {
			return err
		}
		if len(hs) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, h := range hs {
			batch.Queue(`
				INSERT INTO holdings (
					vault_id, token_address, token_symbol, balance,
					cost_basis, total_bought, proceeds, updated_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
				ON CONFLICT (vault_id, token_address) DO NOTHING`,
				vaultID, strings.ToLower(h.TokenAddress), h.TokenSymbol, h.Balance,
				h.CostBasis, h.TotalBought, h.Proceeds,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("postgres: replace holdings of %s: %w", vaultID, err)
	}
	return nil
}

// ListByVault returns the holdings of vaultID.
func (s *HoldingStore) ListByVault(ctx context.Context, vaultID string) ([]domain.Holding, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT vault_id, token_address, token_symbol, balance, cost_basis, total_bought, proceeds
		FROM holdings
		WHERE vault_id = $1
		ORDER BY token_address`, vaultID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list holdings of %s: %w", vaultID, err)
	}
	defer rows.Close()

	var out []domain.Holding
	for rows.Next() {
		var h domain.Holding
		if err := rows.Scan(
			&h.VaultID, &h.TokenAddress, &h.TokenSymbol, &h.Balance,
			&h.CostBasis, &h.TotalBought, &h.Proceeds,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan holding: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// ListHoldings lets the store act as a holding source.
func (s *HoldingStore) ListHoldings(ctx context.Context, vaultID string) ([]domain.Holding, error) {
	return s.ListByVault(ctx, vaultID)
}
