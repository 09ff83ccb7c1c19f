package source

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// Named pairs a collaborator with the name used in logs and reports.
type Named[S any] struct {
	Name   string
	Source S
}

// Vaults is a domain.VaultSource backed by an ordered fallback chain.
type Vaults struct {
	sources    []Named[domain.VaultSource]
	logger     *slog.Logger
	mirror     VaultMirror
	mirrorName string
}

// NewVaults creates a Vaults chain trying sources in order.
func NewVaults(logger *slog.Logger, sources ...Named[domain.VaultSource]) *Vaults {
	return &Vaults{sources: sources, logger: logger.With(slog.String("component", "vault_source"))}
}

// FetchVaults returns the typed outcome of the chain.
func (v *Vaults) FetchVaults(ctx context.Context) Result[[]domain.Vault] {
	steps := make([]Step[[]domain.Vault], 0, len(v.sources))
	for _, s := range v.sources {
		src := s.Source
		steps = append(steps, Step[[]domain.Vault]{Name: s.Name, Fetch: src.ListActiveVaults})
	}
	res := NewChain(v.logger, nil, steps...).Fetch(ctx)
	v.mirrorResult(ctx, res)
	return res
}

// ListActiveVaults implements domain.VaultSource.
func (v *Vaults) ListActiveVaults(ctx context.Context) ([]domain.Vault, error) {
	res := v.FetchVaults(ctx)
	if !res.OK() {
		return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, res.Err)
	}
	return res.Value, nil
}

// Holdings is a domain.HoldingSource backed by an ordered fallback chain.
type Holdings struct {
	sources    []Named[domain.HoldingSource]
	logger     *slog.Logger
	mirror     HoldingMirror
	mirrorName string
}

// NewHoldings creates a Holdings chain trying sources in order.
func NewHoldings(logger *slog.Logger, sources ...Named[domain.HoldingSource]) *Holdings {
	return &Holdings{sources: sources, logger: logger.With(slog.String("component", "holding_source"))}
}

// FetchHoldings returns the typed outcome of the chain for one vault.
func (h *Holdings) FetchHoldings(ctx context.Context, vaultID string) Result[[]domain.Holding] {
	steps := make([]Step[[]domain.Holding], 0, len(h.sources))
	for _, s := range h.sources {
		src := s.Source
		steps = append(steps, Step[[]domain.Holding]{
			Name:  s.Name,
			Fetch: func(ctx context.Context) ([]domain.Holding, error) { return src.ListHoldings(ctx, vaultID) },
		})
	}
	res := NewChain(h.logger, nil, steps...).Fetch(ctx)
	h.mirrorResult(ctx, vaultID, res)
	return res
}

// ListHoldings implements domain.HoldingSource.
func (h *Holdings) ListHoldings(ctx context.Context, vaultID string) ([]domain.Holding, error) {
	res := h.FetchHoldings(ctx, vaultID)
	if !res.OK() {
		return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, res.Err)
	}
	return res.Value, nil
}

// Tokens is a domain.TokenDiscovery backed by an ordered fallback chain. An
// empty answer falls through to the next source.
type Tokens struct {
	sources []Named[domain.TokenDiscovery]
	logger  *slog.Logger
}

// NewTokens creates a Tokens chain trying sources in order.
func NewTokens(logger *slog.Logger, sources ...Named[domain.TokenDiscovery]) *Tokens {
	return &Tokens{sources: sources, logger: logger.With(slog.String("component", "token_source"))}
}

// FetchCandidates returns the typed outcome of the chain.
func (t *Tokens) FetchCandidates(ctx context.Context) Result[[]domain.TokenCandidate] {
	steps := make([]Step[[]domain.TokenCandidate], 0, len(t.sources))
	for _, s := range t.sources {
		steps = append(steps, Step[[]domain.TokenCandidate]{Name: s.Name, Fetch: s.Source.ListCandidates})
	}
	return NewChain(t.logger, NonEmpty[domain.TokenCandidate], steps...).Fetch(ctx)
}

// ListCandidates implements domain.TokenDiscovery.
func (t *Tokens) ListCandidates(ctx context.Context) ([]domain.TokenCandidate, error) {
	res := t.FetchCandidates(ctx)
	if !res.OK() {
		return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, res.Err)
	}
	return res.Value, nil
}

// Static is a fixed candidate list, typically the last step of a Tokens chain.
type Static []domain.TokenCandidate

// ListCandidates implements domain.TokenDiscovery.
func (s Static) ListCandidates(context.Context) ([]domain.TokenCandidate, error) {
	return s, nil
}

var (
	_ domain.VaultSource    = (*Vaults)(nil)
	_ domain.HoldingSource  = (*Holdings)(nil)
	_ domain.TokenDiscovery = (*Tokens)(nil)
	_ domain.TokenDiscovery = Static(nil)
)
