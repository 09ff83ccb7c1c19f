package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/vaultagent/internal/crypto"
	"github.com/alanyoungcy/vaultagent/internal/domain"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func newClient(t *testing.T, h http.HandlerFunc) (*Client, *crypto.HMACAuth) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	auth := &crypto.HMACAuth{Key: "agent", Secret: "secret"}
	c := NewClient(srv.URL+"/", auth, nil, time.Second)
	c.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return c, auth
}

func TestRequestsAreSigned(t *testing.T) {
	var auth *crypto.HMACAuth
	var c *Client
	c, auth = newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "agent", r.Header.Get(crypto.HeaderAPIKey))
		assert.Equal(t, "1700000000", r.Header.Get(crypto.HeaderTimestamp))
		assert.True(t, auth.Verify(r.Method, r.URL.RequestURI(), "", r.Header.Get(crypto.HeaderTimestamp), r.Header.Get(crypto.HeaderSignature)))
		_, _ = w.Write([]byte(`[]`))
	})

	_, err := c.ListActiveVaults(context.Background())
	require.NoError(t, err)
}

func TestAgentSignatureHeader(t *testing.T) {
	signer, err := crypto.NewSigner(testKey, 8453)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, signer.Address().Hex(), r.Header.Get(crypto.HeaderAgent))
		addr, err := crypto.RecoverAddress([]byte(agentMessage(1_700_000_000)), r.Header.Get(crypto.HeaderAgentSig))
		require.NoError(t, err)
		assert.Equal(t, signer.Address(), addr)
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, nil, signer, 0)
	c.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	_, err = c.ListHoldings(context.Background(), "v1")
	require.NoError(t, err)
}

func TestListActiveVaultsDecodesDecimalStrings(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/agent/vaults", r.URL.Path)
		assert.Equal(t, "active", r.URL.Query().Get("status"))
		_, _ = w.Write([]byte(`[
			{"id":"v1","address":"0xABC","owner":"0xO","tier":"conservative","balance":"0.75","maxTradeAmount":"0.005"},
			{"id":"v2","address":"","owner":"0xP","tier":"BALANCED","balance":"2","maxTradeAmount":"0"}
		]`))
	})

	got, err := c.ListActiveVaults(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.TierConservative, got[0].Tier)
	assert.True(t, got[0].Balance.Equal(decimal.RequireFromString("0.75")))
	require.NotNil(t, got[0].MaxTradeAmount)
	assert.Nil(t, got[1].MaxTradeAmount)
	assert.Equal(t, "v2", got[1].Key())
}

func TestGetSettings(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/agent/settings/alice":
			_, _ = w.Write([]byte(`{"autoRebalance":true,"stopLossPercent":8,
				"targetAllocations":[{"token_address":"0xT","token_symbol":"T","target_percent":40}]}`))
		case "/api/agent/settings/bob":
			_, _ = w.Write([]byte(`{"autoTrade":false}`))
		default:
			http.NotFound(w, r)
		}
	})

	s, err := c.GetSettings(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, s.AutoTrade, "auto-trade defaults on")
	assert.True(t, s.AutoRebalance)
	require.NotNil(t, s.StopLossPercent)
	assert.InDelta(t, 8.0, *s.StopLossPercent, 1e-9)
	require.Len(t, s.Targets, 1)
	assert.InDelta(t, 40.0, s.Targets[0].TargetPercent, 1e-9)

	s, err = c.GetSettings(context.Background(), "bob")
	require.NoError(t, err)
	assert.False(t, s.AutoTrade)

	_, err = c.GetSettings(context.Background(), "carol")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecordTradePostsDecimalStrings(t *testing.T) {
	var got map[string]any
	var auth *crypto.HMACAuth
	var c *Client
	c, auth = newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		assert.True(t, auth.Verify(r.Method, r.URL.RequestURI(), string(body), r.Header.Get(crypto.HeaderTimestamp), r.Header.Get(crypto.HeaderSignature)))
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusCreated)
	})

	err := c.RecordTrade(context.Background(), domain.TradeRecord{
		ID:        "t1",
		VaultID:   "v1",
		Action:    domain.ActionSell,
		AmountIn:  decimal.RequireFromString("375"),
		AmountOut: decimal.RequireFromString("0.0475"),
		Success:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "375", got["amountIn"])
	assert.Equal(t, "0.0475", got["amountOut"])
	assert.Equal(t, "sell", got["action"])
}

func TestStatusMapping(t *testing.T) {
	cases := map[int]error{
		http.StatusUnauthorized:       domain.ErrUnauthorized,
		http.StatusTooManyRequests:    domain.ErrRateLimited,
		http.StatusServiceUnavailable: domain.ErrSourceUnavailable,
		http.StatusConflict:           domain.ErrAlreadyExists,
		http.StatusNotFound:           domain.ErrNotFound,
	}
	for code, want := range cases {
		err := checkHTTPStatus(code, []byte("x"))
		assert.ErrorIs(t, err, want, "status %d", code)
	}
	assert.NoError(t, checkHTTPStatus(http.StatusNoContent, nil))
}

func TestListCandidatesSkipsAddresslessTokens(t *testing.T) {
	c, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/agent/tokens", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"address":"0xAAA","symbol":"AAA","marketCap":150000,"priceChange24h":12.5,"volume24h":4000,"createdAt":"2026-10-01T00:00:00Z"},
			{"address":"","symbol":"GHOST"}
		]`))
	})

	got, err := c.ListCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "0xaaa", got[0].Address)
	assert.Equal(t, 150000.0, got[0].MarketCap)
	assert.Equal(t, 2026, got[0].CreatedAt.Year())
}
