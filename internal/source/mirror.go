package source

import (
	"context"
	"errors"
	"log/slog"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// VaultMirror keeps a local copy of the vaults answered upstream.
type VaultMirror interface {
	Upsert(ctx context.Context, v domain.Vault) error
}

// HoldingMirror keeps a local copy of each vault's holdings.
type HoldingMirror interface {
	ReplaceHoldings(ctx context.Context, vaultID string, hs []domain.Holding) error
}

// SettingsMirror keeps a local copy of user settings.
type SettingsMirror interface {
	domain.SettingsStore
	UpsertSettings(ctx context.Context, s domain.UserSettings) error
}

// MirrorTo copies every answer not produced by the source called name into
// m, so that source can serve as a warm fallback. Mirror errors are logged.
func (v *Vaults) MirrorTo(name string, m VaultMirror) *Vaults {
	v.mirrorName, v.mirror = name, m
	return v
}

func (v *Vaults) mirrorResult(ctx context.Context, res Result[[]domain.Vault]) {
	if v.mirror == nil || !res.OK() || res.Source == v.mirrorName {
		return
	}
	for _, vault := range res.Value {
		if err := v.mirror.Upsert(ctx, vault); err != nil {
			v.logger.WarnContext(ctx, "source: mirror vault failed",
				slog.String("vault_id", vault.ID),
				slog.String("error", err.Error()),
			)
			return
		}
	}
}

// MirrorTo copies every holdings answer not produced by the source called
// name into m.
func (h *Holdings) MirrorTo(name string, m HoldingMirror) *Holdings {
	h.mirrorName, h.mirror = name, m
	return h
}

func (h *Holdings) mirrorResult(ctx context.Context, vaultID string, res Result[[]domain.Holding]) {
	if h.mirror == nil || !res.OK() || res.Source == h.mirrorName {
		return
	}
	if err := h.mirror.ReplaceHoldings(ctx, vaultID, res.Value); err != nil {
		h.logger.WarnContext(ctx, "source: mirror holdings failed",
			slog.String("vault_id", vaultID),
			slog.String("error", err.Error()),
		)
	}
}

// Settings reads user settings from a primary store and keeps a local copy.
// When the primary fails with anything but domain.ErrNotFound the local
// copy is served instead.
type Settings struct {
	primary domain.SettingsStore
	local   SettingsMirror
	logger  *slog.Logger
}

var _ domain.SettingsStore = (*Settings)(nil)

// NewSettings creates a Settings over primary and local.
func NewSettings(primary domain.SettingsStore, local SettingsMirror, logger *slog.Logger) *Settings {
	return &Settings{
		primary: primary,
		local:   local,
		logger:  logger.With(slog.String("component", "settings_source")),
	}
}

// GetSettings implements domain.SettingsStore.
func (s *Settings) GetSettings(ctx context.Context, owner string) (domain.UserSettings, error) {
	us, err := s.primary.GetSettings(ctx, owner)
	switch {
	case err == nil:
		if merr := s.local.UpsertSettings(ctx, us); merr != nil {
			s.logger.WarnContext(ctx, "source: mirror settings failed",
				slog.String("owner", owner),
				slog.String("error", merr.Error()),
			)
		}
		return us, nil
	case errors.Is(err, domain.ErrNotFound):
		return domain.UserSettings{}, err
	}

	local, lerr := s.local.GetSettings(ctx, owner)
	if lerr != nil {
		return domain.UserSettings{}, errors.Join(err, lerr)
	}
	s.logger.WarnContext(ctx, "source: serving mirrored settings",
		slog.String("owner", owner),
		slog.String("error", err.Error()),
	)
	return local, nil
}
