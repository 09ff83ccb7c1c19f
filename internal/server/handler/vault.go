package handler

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// CooldownService reads and clears per-vault trade cooldowns.
type CooldownService interface {
	RemainingCooldown(key string) time.Duration
	ResetCooldown(key string)
}

// VaultHandler serves per-vault endpoints.
type VaultHandler struct {
	cooldowns CooldownService
	trades    domain.TradeStore
	positions domain.PositionStore
	audit     domain.AuditStore
	logger    *slog.Logger
}

// NewVaultHandler creates a VaultHandler. The stores may be nil when
// Postgres is not configured; their routes then answer 503.
func NewVaultHandler(cooldowns CooldownService, trades domain.TradeStore, positions domain.PositionStore, audit domain.AuditStore, logger *slog.Logger) *VaultHandler {
	return &VaultHandler{
		cooldowns: cooldowns,
		trades:    trades,
		positions: positions,
		audit:     audit,
		logger:    logger,
	}
}

type cooldownResponse struct {
	Key              string `json:"key"`
	RemainingSeconds int64  `json:"remaining_seconds"`
	CanTrade         bool   `json:"can_trade"`
}

func (h *VaultHandler) cooldown(key string) cooldownResponse {
	left := h.cooldowns.RemainingCooldown(key)
	return cooldownResponse{
		Key:              key,
		RemainingSeconds: int64(math.Ceil(left.Seconds())),
		CanTrade:         left <= 0,
	}
}

// GetCooldown reports how long a vault must wait before auto-trading again.
// GET /api/vaults/{key}/cooldown
func (h *VaultHandler) GetCooldown(w http.ResponseWriter, r *http.Request) {
	key := strings.ToLower(pathParam(r, "key"))
	if key == "" {
		writeError(w, http.StatusBadRequest, "vault key required")
		return
	}
	writeJSON(w, http.StatusOK, h.cooldown(key))
}

// ResetCooldown clears a vault's trade and rebalance timestamps.
// POST /api/vaults/{key}/reset-cooldown
func (h *VaultHandler) ResetCooldown(w http.ResponseWriter, r *http.Request) {
	key := strings.ToLower(pathParam(r, "key"))
	if key == "" {
		writeError(w, http.StatusBadRequest, "vault key required")
		return
	}

	h.cooldowns.ResetCooldown(key)
	h.logger.InfoContext(r.Context(), "handler: cooldown reset",
		slog.String("vault", key),
		slog.String("remote_addr", r.RemoteAddr),
	)
	if h.audit != nil {
		if err := h.audit.Log(context.WithoutCancel(r.Context()), "cooldown_reset", map[string]any{"vault": key}); err != nil {
			h.logger.WarnContext(r.Context(), "handler: audit log failed", slog.String("error", err.Error()))
		}
	}
	writeJSON(w, http.StatusOK, h.cooldown(key))
}

// ListTrades returns the recorded trades of a vault, newest first.
// GET /api/vaults/{id}/trades?limit=&offset=&since=&until=
func (h *VaultHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	if h.trades == nil {
		writeError(w, http.StatusServiceUnavailable, "trade store not configured")
		return
	}
	trades, err := h.trades.ListByVault(r.Context(), pathParam(r, "key"), parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "failed to list trades", err)
		return
	}
	if trades == nil {
		trades = []domain.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

// ListPositions returns the last stored snapshots of a vault.
// GET /api/vaults/{id}/positions
func (h *VaultHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	if h.positions == nil {
		writeError(w, http.StatusServiceUnavailable, "position store not configured")
		return
	}
	snaps, err := h.positions.ListByVault(r.Context(), pathParam(r, "key"))
	if err != nil {
		writeDomainError(w, r, h.logger, "failed to list positions", err)
		return
	}
	if snaps == nil {
		snaps = []domain.PositionSnapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": snaps})
}

// ListAudit returns audit entries, newest first, optionally narrowed by
// ?vault= and ?event=.
// GET /api/audit
func (h *VaultHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit store not configured")
		return
	}
	q := r.URL.Query()
	entries, err := h.audit.List(r.Context(), domain.AuditFilter{
		ListOpts: parseListOpts(r),
		VaultID:  q.Get("vault"),
		Event:    q.Get("event"),
	})
	if err != nil {
		writeDomainError(w, r, h.logger, "failed to list audit entries", err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
