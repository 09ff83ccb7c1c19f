// Package indexer reads launchpad tokens, vaults and holdings from the
// launchpad subgraph over GraphQL.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// Client is a GraphQL client for the launchpad subgraph.
type Client struct {
	graphqlURL string
	apiKey     string
	pageSize   int
	httpClient *http.Client
}

var (
	_ domain.TokenDiscovery = (*Client)(nil)
	_ domain.VaultSource    = (*Client)(nil)
	_ domain.HoldingSource  = (*Client)(nil)
)

// NewClient creates a subgraph client. pageSize bounds every list query.
func NewClient(graphqlURL, apiKey string, pageSize int, timeout time.Duration) *Client {
	if pageSize <= 0 {
		pageSize = 100
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		graphqlURL: graphqlURL,
		apiKey:     strings.TrimSpace(apiKey),
		pageSize:   pageSize,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

const tokensQuery = `
	query Tokens($first: Int!) {
		tokens(first: $first, orderBy: createdAt, orderDirection: desc, where: { graduated: false }) {
			id
			symbol
			marketCap
			priceChange24h
			volume24h
			createdAt
		}
	}
`

// ListCandidates returns the newest non-graduated launchpad tokens.
func (c *Client) ListCandidates(ctx context.Context) ([]domain.TokenCandidate, error) {
	data, err := c.doQuery(ctx, tokensQuery, map[string]any{"first": c.pageSize})
	if err != nil {
		return nil, fmt.Errorf("indexer: list tokens: %w", err)
	}

	var result struct {
		Tokens []struct {
			ID             string `json:"id"`
			Symbol         string `json:"symbol"`
			MarketCap      string `json:"marketCap"`
			PriceChange24h string `json:"priceChange24h"`
			Volume24h      string `json:"volume24h"`
			CreatedAt      string `json:"createdAt"`
		} `json:"tokens"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("indexer: decode tokens: %w", err)
	}

	out := make([]domain.TokenCandidate, 0, len(result.Tokens))
	for _, t := range result.Tokens {
		out = append(out, domain.TokenCandidate{
			Address:        t.ID,
			Symbol:         t.Symbol,
			MarketCap:      parseFloat(t.MarketCap),
			PriceChange24h: parseFloat(t.PriceChange24h),
			Volume24h:      parseFloat(t.Volume24h),
			CreatedAt:      parseUnix(t.CreatedAt),
		})
	}
	return out, nil
}

const vaultsQuery = `
	query Vaults($first: Int!) {
		vaults(first: $first, where: { paused: false }) {
			id
			owner
			tier
			balance
			maxTradeAmount
			paused
		}
	}
`

// ListActiveVaults returns the unpaused vaults. The subgraph ID is the vault
// contract address.
func (c *Client) ListActiveVaults(ctx context.Context) ([]domain.Vault, error) {
	data, err := c.doQuery(ctx, vaultsQuery, map[string]any{"first": c.pageSize})
	if err != nil {
		return nil, fmt.Errorf("indexer: list vaults: %w", err)
	}

	var result struct {
		Vaults []struct {
			ID             string  `json:"id"`
			Owner          string  `json:"owner"`
			Tier           string  `json:"tier"`
			Balance        string  `json:"balance"`
			MaxTradeAmount *string `json:"maxTradeAmount"`
			Paused         bool    `json:"paused"`
		} `json:"vaults"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("indexer: decode vaults: %w", err)
	}

	out := make([]domain.Vault, 0, len(result.Vaults))
	for _, v := range result.Vaults {
		vault := domain.Vault{
			ID:      v.ID,
			Address: v.ID,
			Owner:   v.Owner,
			Tier:    domain.Tier(strings.ToUpper(v.Tier)),
			Balance: parseDecimal(v.Balance),
			Paused:  v.Paused,
		}
		if v.MaxTradeAmount != nil {
			if d, err := decimal.NewFromString(*v.MaxTradeAmount); err == nil && d.IsPositive() {
				vault.MaxTradeAmount = &d
			}
		}
		out = append(out, vault)
	}
	return out, nil
}

const holdingsQuery = `
	query Holdings($vault: String!, $first: Int!) {
		holdings(first: $first, where: { vault: $vault, balance_gt: "0" }) {
			token { id symbol }
			balance
			costBasis
			totalBought
			proceeds
		}
	}
`

// ListHoldings returns the non-empty holdings of vaultID.
func (c *Client) ListHoldings(ctx context.Context, vaultID string) ([]domain.Holding, error) {
	vars := map[string]any{"vault": strings.ToLower(vaultID), "first": c.pageSize}
	data, err := c.doQuery(ctx, holdingsQuery, vars)
	if err != nil {
		return nil, fmt.Errorf("indexer: list holdings %s: %w", vaultID, err)
	}

	var result struct {
		Holdings []struct {
			Token struct {
				ID     string `json:"id"`
				Symbol string `json:"symbol"`
			} `json:"token"`
			Balance     string `json:"balance"`
			CostBasis   string `json:"costBasis"`
			TotalBought string `json:"totalBought"`
			Proceeds    string `json:"proceeds"`
		} `json:"holdings"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("indexer: decode holdings: %w", err)
	}

	out := make([]domain.Holding, 0, len(result.Holdings))
	for _, h := range result.Holdings {
		out = append(out, domain.Holding{
			VaultID:      vaultID,
			TokenAddress: h.Token.ID,
			TokenSymbol:  h.Token.Symbol,
			Balance:      parseDecimal(h.Balance),
			CostBasis:    parseDecimal(h.CostBasis),
			TotalBought:  parseDecimal(h.TotalBought),
			Proceeds:     parseDecimal(h.Proceeds),
		})
	}
	return out, nil
}

// FetchLatestBlock returns the latest block number indexed by the subgraph.
// This is useful for monitoring indexing lag.
func (c *Client) FetchLatestBlock(ctx context.Context) (int64, error) {
	data, err := c.doQuery(ctx, `query LatestBlock { _meta { block { number } } }`, nil)
	if err != nil {
		return 0, fmt.Errorf("indexer: fetch latest block: %w", err)
	}

	var result struct {
		Meta struct {
			Block struct {
				Number int64 `json:"number"`
			} `json:"block"`
		} `json:"_meta"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return 0, fmt.Errorf("indexer: decode latest block: %w", err)
	}
	return result.Meta.Block.Number, nil
}

// doQuery executes a GraphQL query and returns the raw "data" field.
func (c *Client) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	jsonBody, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", domain.ErrRateLimited, body)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: HTTP %d: %s", domain.ErrSourceUnavailable, resp.StatusCode, body)
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}
	return gqlResp.Data, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// parseUnix reads a unix-seconds timestamp; zero or garbage yields the zero
// time.
func parseUnix(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}
