package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

type memMirror struct {
	vaults   map[string]domain.Vault
	holdings map[string][]domain.Holding
	settings map[string]domain.UserSettings
	err      error
}

func newMemMirror() *memMirror {
	return &memMirror{
		vaults:   map[string]domain.Vault{},
		holdings: map[string][]domain.Holding{},
		settings: map[string]domain.UserSettings{},
	}
}

func (m *memMirror) Upsert(_ context.Context, v domain.Vault) error {
	m.vaults[v.ID] = v
	return m.err
}

func (m *memMirror) ReplaceHoldings(_ context.Context, id string, hs []domain.Holding) error {
	m.holdings[id] = hs
	return m.err
}

func (m *memMirror) UpsertSettings(_ context.Context, s domain.UserSettings) error {
	m.settings[s.Owner] = s
	return m.err
}

func (m *memMirror) GetSettings(_ context.Context, owner string) (domain.UserSettings, error) {
	s, ok := m.settings[owner]
	if !ok {
		return domain.UserSettings{}, domain.ErrNotFound
	}
	return s, nil
}

type settingsFunc func(ctx context.Context, owner string) (domain.UserSettings, error)

func (f settingsFunc) GetSettings(ctx context.Context, owner string) (domain.UserSettings, error) {
	return f(ctx, owner)
}

func TestVaultsMirrorUpstreamAnswers(t *testing.T) {
	mirror := newMemMirror()
	upstream := vaultsFunc(func(context.Context) ([]domain.Vault, error) {
		return []domain.Vault{{ID: "v1"}, {ID: "v2"}}, nil
	})
	local := vaultsFunc(func(context.Context) ([]domain.Vault, error) {
		return []domain.Vault{{ID: "stale"}}, nil
	})
	v := NewVaults(discard(),
		Named[domain.VaultSource]{Name: "indexer", Source: upstream},
		Named[domain.VaultSource]{Name: "postgres", Source: local},
	).MirrorTo("postgres", mirror)

	_, err := v.ListActiveVaults(context.Background())
	require.NoError(t, err)
	assert.Len(t, mirror.vaults, 2)
}

func TestVaultsDoNotMirrorTheMirror(t *testing.T) {
	mirror := newMemMirror()
	down := vaultsFunc(func(context.Context) ([]domain.Vault, error) { return nil, errors.New("down") })
	local := vaultsFunc(func(context.Context) ([]domain.Vault, error) { return []domain.Vault{{ID: "v1"}}, nil })
	v := NewVaults(discard(),
		Named[domain.VaultSource]{Name: "indexer", Source: down},
		Named[domain.VaultSource]{Name: "postgres", Source: local},
	).MirrorTo("postgres", mirror)

	res := v.FetchVaults(context.Background())
	require.True(t, res.OK())
	assert.Equal(t, "postgres", res.Source)
	assert.Empty(t, mirror.vaults)
}

func TestHoldingsMirrorReplacesPerVault(t *testing.T) {
	mirror := newMemMirror()
	mirror.err = errors.New("db down")
	upstream := holdingsFunc(func(_ context.Context, id string) ([]domain.Holding, error) {
		return []domain.Holding{{VaultID: id, TokenAddress: "0xa"}}, nil
	})
	h := NewHoldings(discard(), Named[domain.HoldingSource]{Name: "backend", Source: upstream}).
		MirrorTo("postgres", mirror)

	got, err := h.ListHoldings(context.Background(), "v9")
	require.NoError(t, err, "mirror failures do not fail the read")
	assert.Len(t, got, 1)
	assert.Len(t, mirror.holdings["v9"], 1)
}

func TestSettingsMirrorAndFallback(t *testing.T) {
	local := newMemMirror()
	var primaryErr error
	primary := settingsFunc(func(_ context.Context, owner string) (domain.UserSettings, error) {
		if primaryErr != nil {
			return domain.UserSettings{}, primaryErr
		}
		return domain.UserSettings{Owner: owner, AutoRebalance: true}, nil
	})
	s := NewSettings(primary, local, discard())
	ctx := context.Background()

	got, err := s.GetSettings(ctx, "0xowner")
	require.NoError(t, err)
	assert.True(t, got.AutoRebalance)
	assert.Contains(t, local.settings, "0xowner")

	primaryErr = errors.New("timeout")
	got, err = s.GetSettings(ctx, "0xowner")
	require.NoError(t, err)
	assert.True(t, got.AutoRebalance, "served from the local copy")

	_, err = s.GetSettings(ctx, "0xnobody")
	require.Error(t, err)

	primaryErr = domain.ErrNotFound
	_, err = s.GetSettings(ctx, "0xowner")
	assert.ErrorIs(t, err, domain.ErrNotFound, "not found upstream is authoritative")
}
