package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// SettingsStore implements domain.SettingsStore using PostgreSQL. Target
// allocations are kept as a JSONB array.
type SettingsStore struct {
	pool *pgxpool.Pool
}

var _ domain.SettingsStore = (*SettingsStore)(nil)

// NewSettingsStore creates a new SettingsStore backed by the given connection pool.
func NewSettingsStore(pool *pgxpool.Pool) *SettingsStore {
	return &SettingsStore{pool: pool}
}

// GetSettings returns the settings of owner or domain.ErrNotFound.
func (s *SettingsStore) GetSettings(ctx context.Context, owner string) (domain.UserSettings, error) {
	owner = strings.ToLower(owner)

	var (
		out        domain.UserSettings
		maxTrade   decimal.NullDecimal
		targetsRaw []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT owner, auto_trade, auto_rebalance, stop_loss_percent, take_profit_percent,
		       max_trade_amount, target_allocations, updated_at
		FROM user_settings WHERE owner = $1`, owner).Scan(
		&out.Owner, &out.AutoTrade, &out.AutoRebalance, &out.StopLossPercent,
		&out.TakeProfitPercent, &maxTrade, &targetsRaw, &out.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserSettings{}, fmt.Errorf("postgres: settings of %s: %w", owner, domain.ErrNotFound)
	}
	if err != nil {
		return domain.UserSettings{}, fmt.Errorf("postgres: get settings of %s: %w", owner, err)
	}

	if maxTrade.Valid {
		m := maxTrade.Decimal
		out.MaxTradeAmount = &m
	}
	if out.Targets, err = decodeTargets(targetsRaw); err != nil {
		return domain.UserSettings{}, fmt.Errorf("postgres: settings of %s: %w", owner, err)
	}
	return out, nil
}

// UpsertSettings inserts or replaces the settings row of s.Owner.
func (s *SettingsStore) UpsertSettings(ctx context.Context, us domain.UserSettings) error {
	targets, err := encodeTargets(us.Targets)
	if err != nil {
		return fmt.Errorf("postgres: settings of %s: %w", us.Owner, err)
	}
	var maxTrade decimal.NullDecimal
	if us.MaxTradeAmount != nil {
		maxTrade = decimal.NewNullDecimal(*us.MaxTradeAmount)
	}

	const query = `
		INSERT INTO user_settings (
			owner, auto_trade, auto_rebalance, stop_loss_percent,
			take_profit_percent, max_trade_amount, target_allocations, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (owner) DO UPDATE SET
			auto_trade          = EXCLUDED.auto_trade,
			auto_rebalance      = EXCLUDED.auto_rebalance,
			stop_loss_percent   = EXCLUDED.stop_loss_percent,
			take_profit_percent = EXCLUDED.take_profit_percent,
			max_trade_amount    = EXCLUDED.max_trade_amount,
			target_allocations  = EXCLUDED.target_allocations,
			updated_at          = NOW()`

	_, err = s.pool.Exec(ctx, query,
		strings.ToLower(us.Owner), us.AutoTrade, us.AutoRebalance, us.StopLossPercent,
		us.TakeProfitPercent, maxTrade, targets,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert settings of %s: %w", us.Owner, err)
	}
	return nil
}

func encodeTargets(targets []domain.TargetAllocation) ([]byte, error) {
	if targets == nil {
		targets = []domain.TargetAllocation{}
	}
	b, err := json.Marshal(targets)
	if err != nil {
		return nil, fmt.Errorf("marshal targets: %w", err)
	}
	return b, nil
}

func decodeTargets(raw []byte) ([]domain.TargetAllocation, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var targets []domain.TargetAllocation
	if err := json.Unmarshal(raw, &targets); err != nil {
		return nil, fmt.Errorf("unmarshal targets: %w", err)
	}
	for i := range targets {
		targets[i].TokenAddress = strings.ToLower(targets[i].TokenAddress)
	}
	return targets, nil
}
