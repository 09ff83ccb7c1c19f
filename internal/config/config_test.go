package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRouter = "0x1111111111111111111111111111111111111111"

func validConfig() Config {
	cfg := Defaults()
	cfg.Chain.RPCURL = "https://rpc.example.org"
	cfg.Chain.RouterAddress = testRouter
	cfg.Indexer.URL = "https://indexer.example.org/graphql"
	cfg.Agent.FallbackTokens = []FallbackToken{
		{Address: "0x2222222222222222222222222222222222222222", Symbol: "AAA", MarketCap: 50000},
	}
	return cfg
}

func TestDefaultsValidateOnceRequiredFieldsSet(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Agent.DryRun)
	assert.Equal(t, 5*time.Minute, cfg.Agent.TradeCooldown.Duration)
	assert.Equal(t, int64(8453), cfg.Chain.ChainID)
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	cfg.LogLevel = "loud"
	cfg.Agent.Workers = 0
	cfg.Agent.BuySlippagePercent = 100

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "config validation failed")
	assert.Contains(t, msg, `unknown mode "turbo"`)
	assert.Contains(t, msg, `unknown log_level "loud"`)
	assert.Contains(t, msg, "chain: rpc_url must not be empty")
	assert.Contains(t, msg, "indexer.url or backend.url")
	assert.Contains(t, msg, "workers must be >= 1")
	assert.Contains(t, msg, "buy_slippage_percent")
}

func TestValidateWalletRequiredForLiveTrading(t *testing.T) {
	cfg := validConfig()
	cfg.Agent.DryRun = false
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet: private_key or encrypted_key_path")

	cfg.Mode = "monitor"
	assert.NoError(t, cfg.Validate())

	cfg.Mode = "agent"
	cfg.Wallet.PrivateKey = "0xabc"
	assert.NoError(t, cfg.Validate())
}

func TestValidateFallbackTokens(t *testing.T) {
	cfg := validConfig()
	cfg.Agent.FallbackTokens = nil
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fallback_tokens must list at least one token")

	cfg.Agent.FallbackTokens = []FallbackToken{{Address: "not-an-address"}}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fallback_tokens[0].address")

	cfg.Agent.FallbackTokens = nil
	cfg.Mode = "monitor"
	assert.NoError(t, cfg.Validate())
}

func TestValidateStrategyOverrides(t *testing.T) {
	cfg := validConfig()
	cfg.Strategy.Aggressive.MaxTradeAmount = "lots"
	cfg.Strategy.Balanced.MinConfidence = 1.5
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `strategy.aggressive: max_trade_amount "lots"`)
	assert.Contains(t, err.Error(), "strategy.balanced: min_confidence")

	cfg.Strategy.Aggressive.MaxTradeAmount = "2.5"
	cfg.Strategy.Balanced.MinConfidence = 0.8
	assert.NoError(t, cfg.Validate())
}

func TestStrategyTiersSkipsEmpty(t *testing.T) {
	s := StrategyConfig{Balanced: TierOverride{StopLossPercent: 12}}
	tiers := s.Tiers()
	require.Len(t, tiers, 1)
	assert.Equal(t, 12.0, tiers["BALANCED"].StopLossPercent)
}

func TestValidateModeNormalised(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "  FULL "
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "full", cfg.Mode)
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "once"

[chain]
rpc_url = "https://rpc.example.org"
router_address = "` + testRouter + `"

[agent]
trade_cooldown = "90s"
buy_slippage_percent = 3.5

[[agent.fallback_tokens]]
address = "0x2222222222222222222222222222222222222222"
symbol = "AAA"
market_cap = 75000

[strategy.aggressive]
max_trade_amount = "3"
stop_loss_percent = 30
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("VAULTAGENT_INDEXER_URL", "https://indexer.example.org")
	t.Setenv("VAULTAGENT_AGENT_WORKERS", "4")
	t.Setenv("VAULTAGENT_AGENT_VAULT_DELAY", "250ms")
	t.Setenv("VAULTAGENT_NOTIFY_EVENTS", "stop_loss, ,trade_failed")
	t.Setenv("VAULTAGENT_REDIS_DB", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "once", cfg.Mode)
	assert.Equal(t, 90*time.Second, cfg.Agent.TradeCooldown.Duration)
	assert.Equal(t, 3.5, cfg.Agent.BuySlippagePercent)
	assert.Equal(t, 4, cfg.Agent.Workers)
	assert.Equal(t, 250*time.Millisecond, cfg.Agent.VaultDelay.Duration)
	assert.Equal(t, "https://indexer.example.org", cfg.Indexer.URL)
	assert.Equal(t, []string{"stop_loss", "trade_failed"}, cfg.Notify.Events)
	assert.Equal(t, 0, cfg.Redis.DB, "unparseable overrides are ignored")
	require.Len(t, cfg.Agent.FallbackTokens, 1)
	assert.Equal(t, "AAA", cfg.Agent.FallbackTokens[0].Symbol)
	assert.Equal(t, "3", cfg.Strategy.Aggressive.MaxTradeAmount)
	// untouched defaults survive
	assert.Equal(t, 30*time.Second, cfg.Agent.LoopInterval.Duration)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestDurationText(t *testing.T) {
	var d duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration)
	out, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(out))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Chain.RPCURL = "https://base-mainnet.g.alchemy.com/v2/secretkey"
	cfg.Wallet.PrivateKey = "0xdeadbeef"
	cfg.Backend.APISecret = "shh"
	cfg.Postgres.DSN = "postgres://u:p@db/x"
	cfg.Server.APIKey = "admin"
	cfg.Notify.Events = []string{"stop_loss"}

	out := RedactedConfig(&cfg)
	assert.Equal(t, "https://base-mainnet.g.alchemy.com/***", out.Chain.RPCURL)
	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Backend.APISecret)
	assert.Equal(t, "***", out.Postgres.DSN)
	assert.Equal(t, "***", out.Server.APIKey)
	assert.Empty(t, out.Wallet.KeyPassword, "empty secrets stay empty")

	out.Notify.Events[0] = "mutated"
	assert.Equal(t, "stop_loss", cfg.Notify.Events[0])
	assert.Equal(t, "0xdeadbeef", cfg.Wallet.PrivateKey)
}

func TestRedactURLPlainHost(t *testing.T) {
	assert.Equal(t, "http://localhost:8545", redactURL("http://localhost:8545"))
	assert.Equal(t, "", redactURL(""))
	assert.Equal(t, "***", redactURL("::bad"))
}

func TestExampleConfigMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	def := Defaults()
	assert.Equal(t, def.Agent.LoopInterval, cfg.Agent.LoopInterval)
	assert.Equal(t, def.Agent.TradeCooldown, cfg.Agent.TradeCooldown)
	assert.Equal(t, def.Agent.RebalanceThreshold, cfg.Agent.RebalanceThreshold)
	assert.Equal(t, def.Postgres, cfg.Postgres)
	assert.Equal(t, def.Notify.Events, cfg.Notify.Events)
	assert.Len(t, cfg.Agent.FallbackTokens, 1)
	assert.Equal(t, "0.25", cfg.Strategy.Aggressive.MaxTradeAmount)
}
