package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

type chanBus struct {
	mu   sync.Mutex
	subs map[string]chan []byte
}

func newChanBus() *chanBus { return &chanBus{subs: map[string]chan []byte{}} }

func (b *chanBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	ch := b.subs[channel]
	b.mu.Unlock()
	if ch != nil {
		ch <- payload
	}
	return nil
}

func (b *chanBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan []byte, 8)
	b.subs[channel] = ch
	return ch, nil
}

func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *chanBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHubForwardsBusMessages(t *testing.T) {
	bus := newChanBus()
	hub := NewHub(bus, Config{Mode: "agent", DryRun: true}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	status := readEnvelope(t, conn)
	assert.Equal(t, "agent_status", status.Channel)
	assert.Contains(t, string(status.Data), `"dry_run":true`)

	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.subs) == len(Channels)
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(ctx, domain.ChannelTrades, []byte(`{"vault_id":"v1"}`)))
	env := readEnvelope(t, conn)
	assert.Equal(t, domain.ChannelTrades, env.Channel)
	assert.JSONEq(t, `{"vault_id":"v1"}`, string(env.Data))
}

func TestClientSubscriptionChanges(t *testing.T) {
	c := &client{subs: map[string]bool{domain.ChannelTrades: true}}
	c.apply(subscribeMsg{Action: "unsubscribe", Channels: []string{domain.ChannelTrades}})
	c.apply(subscribeMsg{Action: "subscribe", Channels: []string{domain.ChannelAlerts}})

	assert.False(t, c.isSubscribed(domain.ChannelTrades))
	assert.True(t, c.isSubscribed(domain.ChannelAlerts))
}
