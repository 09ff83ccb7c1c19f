package postgres

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

func TestAppendListOpts(t *testing.T) {
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q, args := appendListOpts("SELECT * FROM trades WHERE vault_id = $1", []any{"v1"}, 2, "executed_at",
		domain.ListOpts{Since: &since, Limit: 10, Offset: 5})

	assert.Equal(t, "SELECT * FROM trades WHERE vault_id = $1 AND executed_at >= $2 ORDER BY executed_at DESC LIMIT $3 OFFSET $4", q)
	assert.Equal(t, []any{"v1", since, 10, 5}, args)
}

func TestAppendListOptsEmpty(t *testing.T) {
	q, args := appendListOpts("SELECT * FROM audit_log WHERE 1=1", nil, 1, "created_at", domain.ListOpts{})
	assert.Equal(t, "SELECT * FROM audit_log WHERE 1=1 ORDER BY created_at DESC", q)
	assert.Empty(t, args)
}

func TestTargetsRoundTripLowercases(t *testing.T) {
	raw, err := encodeTargets([]domain.TargetAllocation{{TokenAddress: "0xABC", TokenSymbol: "ABC", TargetPercent: 40}})
	require.NoError(t, err)

	got, err := decodeTargets(raw)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "0xabc", got[0].TokenAddress)
	assert.Equal(t, 40.0, got[0].TargetPercent)
}

func TestEncodeNilTargets(t *testing.T) {
	raw, err := encodeTargets(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(raw))

	got, err := decodeTargets(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDecodeTargetsRejectsGarbage(t *testing.T) {
	_, err := decodeTargets([]byte(`{"not":"a list"}`))
	assert.Error(t, err)
}

type memTrades struct{ rows []domain.TradeRecord }

func (m *memTrades) Insert(_ context.Context, t domain.TradeRecord) error {
	m.rows = append(m.rows, t)
	return nil
}

func (m *memTrades) ListByVault(context.Context, string, domain.ListOpts) ([]domain.TradeRecord, error) {
	return m.rows, nil
}

func (m *memTrades) LastExecutedAt(context.Context, string) (time.Time, error) {
	return time.Time{}, domain.ErrNotFound
}

type memPositions struct{ batches [][]domain.PositionSnapshot }

func (m *memPositions) UpsertBatch(_ context.Context, snaps []domain.PositionSnapshot) error {
	m.batches = append(m.batches, snaps)
	return nil
}

func (m *memPositions) ListByVault(context.Context, string) ([]domain.PositionSnapshot, error) {
	return nil, nil
}

func TestRecorderSkipsEmptiedPositions(t *testing.T) {
	trades, positions := &memTrades{}, &memPositions{}
	r := NewRecorder(trades, positions)

	require.NoError(t, r.RecordTrade(context.Background(), domain.TradeRecord{ID: "t1"}))
	require.NoError(t, r.RecordPositions(context.Background(), []domain.PositionSnapshot{
		{TokenAddress: "0xa", Balance: decimal.NewFromInt(5)},
		{TokenAddress: "0xb", Balance: decimal.Zero},
	}))

	require.Len(t, trades.rows, 1)
	require.Len(t, positions.batches, 1)
	require.Len(t, positions.batches[0], 1)
	assert.Equal(t, "0xa", positions.batches[0][0].TokenAddress)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://agent:pw@db:5432/vaults?sslmode=disable",
		DSN(ClientConfig{User: "agent", Password: "pw", Host: "db", Database: "vaults"}))
	assert.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
	assert.Equal(t, "postgres://agent:p%40ss%2Fw@db:6432/vaults?sslmode=require",
		DSN(ClientConfig{User: "agent", Password: "p@ss/w", Host: "db", Port: 6432, Database: "vaults", SSLMode: "require"}))
}

func TestLoadMigrationsSortsAndSkipsNonSQL(t *testing.T) {
	fsys := fstest.MapFS{
		"m/002_b.sql":   {Data: []byte("SELECT 2;")},
		"m/001_a.sql":   {Data: []byte("SELECT 1;")},
		"m/README.md":   {Data: []byte("docs")},
		"m/sub/003.sql": {Data: []byte("SELECT 3;")},
	}
	got, err := loadMigrations(fsys, "m")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "001_a.sql", got[0].name)
	assert.Equal(t, "002_b.sql", got[1].name)
	assert.Equal(t, "SELECT 1;", got[0].sql)
	assert.Len(t, got[0].checksum, 64)
	assert.NotEqual(t, got[0].checksum, got[1].checksum)
}

func TestEmbeddedMigrationsLoad(t *testing.T) {
	got, err := loadMigrations(migrationsFS, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "001_init.sql", got[0].name)
}

func TestAuditQueryFilters(t *testing.T) {
	q, args := auditQuery(domain.AuditFilter{VaultID: "v1", Event: "trade_executed", ListOpts: domain.ListOpts{Limit: 5}})
	assert.Equal(t, "SELECT id, event, COALESCE(vault_id, ''), detail, created_at FROM audit_log WHERE TRUE"+
		" AND vault_id = $1 AND event = $2 ORDER BY created_at DESC LIMIT $3", q)
	assert.Equal(t, []any{"v1", "trade_executed", 5}, args)

	q, args = auditQuery(domain.AuditFilter{})
	assert.Equal(t, "SELECT id, event, COALESCE(vault_id, ''), detail, created_at FROM audit_log WHERE TRUE ORDER BY created_at DESC", q)
	assert.Empty(t, args)
}

func TestAuditVaultID(t *testing.T) {
	assert.Equal(t, "v1", auditVaultID(map[string]any{"vault_id": "v1"}))
	assert.Nil(t, auditVaultID(map[string]any{"vault_id": ""}))
	assert.Nil(t, auditVaultID(map[string]any{"vault_id": 7}))
	assert.Nil(t, auditVaultID(nil))
}
