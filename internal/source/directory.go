package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// Directory resolves vault IDs to contract addresses from a VaultSource. The
// mapping is refreshed from the source on a miss.
type Directory struct {
	vaults domain.VaultSource

	mu    sync.RWMutex
	addrs map[string]string
}

// NewDirectory creates a Directory over vaults.
func NewDirectory(vaults domain.VaultSource) *Directory {
	return &Directory{vaults: vaults, addrs: make(map[string]string)}
}

// VaultAddress returns the contract address of vaultID.
func (d *Directory) VaultAddress(ctx context.Context, vaultID string) (string, error) {
	d.mu.RLock()
	addr, ok := d.addrs[vaultID]
	d.mu.RUnlock()
	if ok {
		return addr, nil
	}

	list, err := d.vaults.ListActiveVaults(ctx)
	if err != nil {
		return "", fmt.Errorf("source: resolve vault %s: %w", vaultID, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, v := range list {
		if v.Address != "" {
			d.addrs[v.ID] = v.Address
		}
	}
	if addr, ok := d.addrs[vaultID]; ok {
		return addr, nil
	}
	return "", fmt.Errorf("source: vault %s: %w", vaultID, domain.ErrNotFound)
}
