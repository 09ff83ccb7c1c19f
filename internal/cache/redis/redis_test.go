package redis

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

func TestNamespacedKeys(t *testing.T) {
	assert.Equal(t, "lock:vault:0xabc", namespaced("", "lock:vault:0xabc"))
	assert.Equal(t, "prod:vault_trades", namespaced("prod", domain.ChannelTrades))

	pc := &PriceCache{ns: "prod"}
	assert.Equal(t, "prod:price:0xabcdef", pc.key("0xABCDEF"))
}

func TestOptionsFromAddr(t *testing.T) {
	opts, err := options(ClientConfig{Addr: "cache:6379", Password: "pw", DB: 2, PoolSize: 7, TLSEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, clientName, opts.ClientName)
	require.NotNil(t, opts.TLSConfig)
}

func TestOptionsURLOverridesAddr(t *testing.T) {
	opts, err := options(ClientConfig{URL: "rediss://:secret@managed:6380/4", Addr: "ignored:1"})
	require.NoError(t, err)
	assert.Equal(t, "managed:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 4, opts.DB)
	assert.NotNil(t, opts.TLSConfig)

	_, err = options(ClientConfig{URL: "http://nope"})
	assert.Error(t, err)
}

func TestRenewInterval(t *testing.T) {
	assert.Equal(t, 40*time.Second, renewInterval(2*time.Minute))
	assert.Zero(t, renewInterval(100*time.Millisecond))
}

func TestParsePriceHash(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	price, got, err := parsePriceHash(map[string]string{
		"price": "0.000001234",
		"ts":    "1772366400000000000",
	})
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("0.000001234")))
	assert.True(t, got.Equal(ts))

	_, _, err = parsePriceHash(map[string]string{})
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = parsePriceHash(map[string]string{"price": "abc", "ts": "1"})
	require.Error(t, err)
}

func TestClampPoll(t *testing.T) {
	assert.Equal(t, minWaitPoll, clampPoll(0))
	assert.Equal(t, 250*time.Millisecond, clampPoll(250*time.Millisecond))
	assert.Equal(t, maxWaitPoll, clampPoll(time.Hour))
}

func TestSlidingWindowScriptEmbedded(t *testing.T) {
	assert.Contains(t, slidingWindowLua, "ZREMRANGEBYSCORE")
	assert.Contains(t, slidingWindowLua, "return {0, retry}")
	assert.Contains(t, lockReleaseLua, "DEL")
	assert.Contains(t, lockExtendLua, "PEXPIRE")
}

func TestAppendMessagesSkipsMissingPayload(t *testing.T) {
	out := appendMessages(nil, []redis.XMessage{
		{ID: "1-0", Values: map[string]any{"payload": `{"id":"t1"}`}},
		{ID: "2-0", Values: map[string]any{"other": "x"}},
		{ID: "3-0", Values: map[string]any{"payload": []byte(`{"id":"t3"}`)}},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "1-0", out[0].ID)
	assert.JSONEq(t, `{"id":"t3"}`, string(out[1].Payload))
}
