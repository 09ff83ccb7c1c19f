// Package backend is the REST client for the vault platform backend. It is
// the fallback vault and holding source, the settings source and the trade
// sync sink.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/vaultagent/internal/crypto"
	"github.com/alanyoungcy/vaultagent/internal/domain"
)

// Client talks to the backend's agent endpoints. Every request carries HMAC
// headers; when a signer is set it also carries the agent address and a
// personal-message signature over the request timestamp.
type Client struct {
	baseURL    string
	auth       *crypto.HMACAuth
	signer     *crypto.Signer
	httpClient *http.Client
	now        func() time.Time
}

var (
	_ domain.VaultSource    = (*Client)(nil)
	_ domain.HoldingSource  = (*Client)(nil)
	_ domain.SettingsStore  = (*Client)(nil)
	_ domain.TradeRecorder  = (*Client)(nil)
	_ domain.TokenDiscovery = (*Client)(nil)
)

// NewClient creates a backend client. signer may be nil.
func NewClient(baseURL string, auth *crypto.HMACAuth, signer *crypto.Signer, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		auth:       auth,
		signer:     signer,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// ListActiveVaults returns every unpaused vault the agent manages.
func (c *Client) ListActiveVaults(ctx context.Context) ([]domain.Vault, error) {
	var out []apiVault
	if err := c.do(ctx, http.MethodGet, "/api/agent/vaults?status=active", nil, &out); err != nil {
		return nil, fmt.Errorf("backend: list vaults: %w", err)
	}
	vaults := make([]domain.Vault, 0, len(out))
	for _, v := range out {
		vaults = append(vaults, v.toDomain())
	}
	return vaults, nil
}

// VaultAddress resolves the contract address of vaultID.
func (c *Client) VaultAddress(ctx context.Context, vaultID string) (string, error) {
	var v apiVault
	if err := c.do(ctx, http.MethodGet, "/api/agent/vaults/"+url.PathEscape(vaultID), nil, &v); err != nil {
		return "", fmt.Errorf("backend: get vault %s: %w", vaultID, err)
	}
	if v.Address == "" {
		return "", fmt.Errorf("backend: vault %s: %w: no address", vaultID, domain.ErrNotFound)
	}
	return v.Address, nil
}

// ListHoldings returns the holdings of vaultID.
func (c *Client) ListHoldings(ctx context.Context, vaultID string) ([]domain.Holding, error) {
	var out []apiHolding
	path := "/api/agent/vaults/" + url.PathEscape(vaultID) + "/holdings"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("backend: list holdings %s: %w", vaultID, err)
	}
	holdings := make([]domain.Holding, 0, len(out))
	for _, h := range out {
		holdings = append(holdings, h.toDomain(vaultID))
	}
	return holdings, nil
}

// GetSettings returns the automation settings of owner. A user without
// settings yields domain.ErrNotFound.
func (c *Client) GetSettings(ctx context.Context, owner string) (domain.UserSettings, error) {
	var s apiSettings
	if err := c.do(ctx, http.MethodGet, "/api/agent/settings/"+url.PathEscape(owner), nil, &s); err != nil {
		return domain.UserSettings{}, fmt.Errorf("backend: get settings %s: %w", owner, err)
	}
	return s.toDomain(owner), nil
}

// ListCandidates returns the launchpad tokens the backend currently lists.
func (c *Client) ListCandidates(ctx context.Context) ([]domain.TokenCandidate, error) {
	var out []apiToken
	if err := c.do(ctx, http.MethodGet, "/api/agent/tokens", nil, &out); err != nil {
		return nil, fmt.Errorf("backend: list tokens: %w", err)
	}
	tokens := make([]domain.TokenCandidate, 0, len(out))
	for _, t := range out {
		if t.Address == "" {
			continue
		}
		tokens = append(tokens, t.toDomain())
	}
	return tokens, nil
}

// RecordTrade posts an executed trade to the backend.
func (c *Client) RecordTrade(ctx context.Context, t domain.TradeRecord) error {
	if err := c.do(ctx, http.MethodPost, "/api/agent/trades", fromTradeRecord(t), nil); err != nil {
		return fmt.Errorf("backend: record trade %s: %w", t.ID, err)
	}
	return nil
}

// RecordPositions posts refreshed position snapshots to the backend.
func (c *Client) RecordPositions(ctx context.Context, snaps []domain.PositionSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	if err := c.do(ctx, http.MethodPost, "/api/agent/positions", snaps, nil); err != nil {
		return fmt.Errorf("backend: record positions: %w", err)
	}
	return nil
}

// do sends a signed request and decodes the JSON response into out, if
// non-nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.sign(req, method, path, string(body)); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return err
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) sign(req *http.Request, method, path, body string) error {
	ts := c.now().Unix()
	if c.auth != nil {
		for k, v := range c.auth.HeadersAt(method, path, body, ts) {
			req.Header.Set(k, v)
		}
	}
	if c.signer != nil {
		sig, err := c.signer.SignMessage([]byte(agentMessage(ts)))
		if err != nil {
			return fmt.Errorf("sign request: %w", err)
		}
		req.Header.Set(crypto.HeaderAgent, c.signer.Address().Hex())
		req.Header.Set(crypto.HeaderAgentSig, sig)
	}
	return nil
}

// agentMessage is the text the agent signs to prove key possession.
func agentMessage(unixTS int64) string {
	return fmt.Sprintf("vaultagent:%d", unixTS)
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, bodyStr)
	default:
		if statusCode >= 500 {
			return fmt.Errorf("%w: HTTP %d: %s", domain.ErrSourceUnavailable, statusCode, bodyStr)
		}
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
