package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// AuditStore is the append-only audit_log table.
type AuditStore struct {
	pool *pgxpool.Pool
}

var _ domain.AuditStore = (*AuditStore)(nil)

// NewAuditStore creates an AuditStore on pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Log appends one entry. detail is stored as JSONB and its "vault_id", when
// a non-empty string, also goes to the indexed vault_id column.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: audit %s: marshal detail: %w", event, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO audit_log (event, vault_id, detail) VALUES ($1, $2, $3)`,
		event, auditVaultID(detail), raw,
	)
	if err != nil {
		return fmt.Errorf("postgres: audit %s: %w", event, err)
	}
	return nil
}

// List returns entries matching f, newest first.
func (s *AuditStore) List(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error) {
	query, args := auditQuery(f)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanAuditEntry)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit: %w", err)
	}
	return entries, nil
}

func auditQuery(f domain.AuditFilter) (string, []any) {
	query := `SELECT id, event, COALESCE(vault_id, ''), detail, created_at FROM audit_log WHERE TRUE`
	var args []any
	if f.VaultID != "" {
		args = append(args, f.VaultID)
		query += fmt.Sprintf(" AND vault_id = $%d", len(args))
	}
	if f.Event != "" {
		args = append(args, f.Event)
		query += fmt.Sprintf(" AND event = $%d", len(args))
	}
	return appendListOpts(query, args, len(args)+1, "created_at", f.ListOpts)
}

func scanAuditEntry(row pgx.CollectableRow) (domain.AuditEntry, error) {
	var (
		e   domain.AuditEntry
		raw []byte
	)
	if err := row.Scan(&e.ID, &e.Event, &e.VaultID, &raw, &e.CreatedAt); err != nil {
		return e, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &e.Detail); err != nil {
			return e, fmt.Errorf("entry %d detail: %w", e.ID, err)
		}
	}
	return e, nil
}

// auditVaultID extracts the vault id from detail, or nil for a NULL column.
func auditVaultID(detail map[string]any) any {
	if id, ok := detail["vault_id"].(string); ok && id != "" {
		return id
	}
	return nil
}
