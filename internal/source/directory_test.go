package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

func TestDirectoryResolvesAndCaches(t *testing.T) {
	calls := 0
	d := NewDirectory(vaultsFunc(func(context.Context) ([]domain.Vault, error) {
		calls++
		return []domain.Vault{
			{ID: "v1", Address: "0xAAA"},
			{ID: "v2"},
		}, nil
	}))

	addr, err := d.VaultAddress(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, "0xAAA", addr)

	_, err = d.VaultAddress(context.Background(), "v1")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	_, err = d.VaultAddress(context.Background(), "v2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 2, calls)
}

func TestDirectorySourceError(t *testing.T) {
	d := NewDirectory(vaultsFunc(func(context.Context) ([]domain.Vault, error) {
		return nil, errors.New("indexer down")
	}))
	_, err := d.VaultAddress(context.Background(), "v1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "indexer down")
}
