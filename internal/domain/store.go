package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// VaultStore persists vault metadata mirrored from the chain.
type VaultStore interface {
	Upsert(ctx context.Context, v Vault) error
	ListActive(ctx context.Context) ([]Vault, error)
}

// HoldingStore persists the per-vault token holdings used as a data source.
type HoldingStore interface {
	ReplaceHoldings(ctx context.Context, vaultID string, hs []Holding) error
	ListByVault(ctx context.Context, vaultID string) ([]Holding, error)
}

// SettingsStore reads per-user automation settings.
type SettingsStore interface {
	GetSettings(ctx context.Context, owner string) (UserSettings, error)
}

// TradeStore persists executed trades.
type TradeStore interface {
	Insert(ctx context.Context, t TradeRecord) error
	ListByVault(ctx context.Context, vaultID string, opts ListOpts) ([]TradeRecord, error)
	LastExecutedAt(ctx context.Context, vaultID string) (time.Time, error)
}

// PositionStore persists the latest position snapshot per vault and token.
type PositionStore interface {
	UpsertBatch(ctx context.Context, snaps []PositionSnapshot) error
	ListByVault(ctx context.Context, vaultID string) ([]PositionSnapshot, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	VaultID   string         `json:"vault_id,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditFilter narrows an audit listing. Empty fields match everything.
type AuditFilter struct {
	ListOpts
	VaultID string
	Event   string
}

// AuditStore persists an append-only audit log. A "vault_id" string in the
// detail map is indexed for per-vault listing.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}
