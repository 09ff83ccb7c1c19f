package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// VaultStore implements domain.VaultStore using PostgreSQL.
type VaultStore struct {
	pool *pgxpool.Pool
}

var _ domain.VaultStore = (*VaultStore)(nil)

// NewVaultStore creates a new VaultStore backed by the given connection pool.
func NewVaultStore(pool *pgxpool.Pool) *VaultStore {
	return &VaultStore{pool: pool}
}

const vaultSelectCols = `id, address, owner, tier, balance, max_trade_amount, paused`

func scanVault(row pgx.Row) (domain.Vault, error) {
	var v domain.Vault
	var tier string
	var maxTrade decimal.NullDecimal
	if err := row.Scan(&v.ID, &v.Address, &v.Owner, &tier, &v.Balance, &maxTrade, &v.Paused); err != nil {
		return domain.Vault{}, err
	}
	v.Tier = domain.Tier(tier)
	if maxTrade.Valid {
		m := maxTrade.Decimal
		v.MaxTradeAmount = &m
	}
	return v, nil
}

// Upsert inserts or replaces a vault row.
func (s *VaultStore) Upsert(ctx context.Context, v domain.Vault) error {
	var maxTrade decimal.NullDecimal
	if v.MaxTradeAmount != nil {
		maxTrade = decimal.NewNullDecimal(*v.MaxTradeAmount)
	}

	const query = `
		INSERT INTO vaults (id, address, owner, tier, balance, max_trade_amount, paused, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			address          = EXCLUDED.address,
			owner            = EXCLUDED.owner,
			tier             = EXCLUDED.tier,
			balance          = EXCLUDED.balance,
			max_trade_amount = EXCLUDED.max_trade_amount,
			paused           = EXCLUDED.paused,
			updated_at       = NOW()`

	_, err := s.pool.Exec(ctx, query,
		v.ID, strings.ToLower(v.Address), strings.ToLower(v.Owner),
		string(v.Tier), v.Balance, maxTrade, v.Paused,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert vault %s: %w", v.ID, err)
	}
	return nil
}

// ListActive returns every vault that is not paused.
func (s *VaultStore) ListActive(ctx context.Context) ([]domain.Vault, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+vaultSelectCols+` FROM vaults WHERE NOT paused ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active vaults: %w", err)
	}
	defer rows.Close()

	var out []domain.Vault
	for rows.Next() {
		v, err := scanVault(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan vault: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListActiveVaults lets the store act as a vault source.
func (s *VaultStore) ListActiveVaults(ctx context.Context) ([]domain.Vault, error) {
	return s.ListActive(ctx)
}
