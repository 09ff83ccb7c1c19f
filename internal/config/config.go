// Package config defines the vault agent's configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by VAULTAGENT_* environment variables.
type Config struct {
	Chain    ChainConfig    `toml:"chain"`
	Wallet   WalletConfig   `toml:"wallet"`
	Indexer  IndexerConfig  `toml:"indexer"`
	Backend  BackendConfig  `toml:"backend"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Agent    AgentConfig    `toml:"agent"`
	Strategy StrategyConfig `toml:"strategy"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ChainConfig holds the RPC endpoint and launchpad contract addresses.
type ChainConfig struct {
	RPCURL        string   `toml:"rpc_url"`
	ChainID       int64    `toml:"chain_id"`
	RouterAddress string   `toml:"router_address"`
	GasLimit      uint64   `toml:"gas_limit"` // 0 lets the node estimate
	MineTimeout   duration `toml:"mine_timeout"`
}

// WalletConfig holds the agent key. The raw key wins over the encrypted file.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
}

// IndexerConfig points at the launchpad subgraph.
type IndexerConfig struct {
	URL      string   `toml:"url"`
	APIKey   string   `toml:"api_key"`
	PageSize int      `toml:"page_size"`
	Timeout  duration `toml:"timeout"`
}

// BackendConfig points at the platform REST backend.
type BackendConfig struct {
	URL          string   `toml:"url"`
	APIKey       string   `toml:"api_key"`
	APISecret    string   `toml:"api_secret"`
	SignRequests bool     `toml:"sign_requests"` // add the agent wallet signature
	SyncTrades   bool     `toml:"sync_trades"`   // post executed trades back
	Timeout      duration `toml:"timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool     `toml:"enabled"`
	DSN           string   `toml:"dsn"`
	Host          string   `toml:"host"`
	Port          int      `toml:"port"`
	Database      string   `toml:"database"`
	User          string   `toml:"user"`
	Password      string   `toml:"password"`
	SSLMode       string   `toml:"ssl_mode"`
	PoolMaxConns  int      `toml:"pool_max_conns"`
	PoolMinConns  int      `toml:"pool_min_conns"`
	ConnTimeout   duration `toml:"conn_timeout"`
	RunMigrations bool     `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	URL        string `toml:"url"` // redis:// or rediss://, overrides addr
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	Namespace  string `toml:"namespace"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// AgentConfig tunes the vault sweep.
type AgentConfig struct {
	DryRun             bool     `toml:"dry_run"`
	LoopInterval       duration `toml:"loop_interval"`
	TradeCooldown      duration `toml:"trade_cooldown"`
	VaultDelay         duration `toml:"vault_delay"`
	TradeGap           duration `toml:"trade_gap"`
	TradeDeadline      duration `toml:"trade_deadline"`
	DedupTTL           duration `toml:"dedup_ttl"`
	PriceTTL           duration `toml:"price_ttl"`
	LockTTL            duration `toml:"lock_ttl"`
	BuySlippagePercent float64  `toml:"buy_slippage_percent"`
	RebalanceThreshold float64  `toml:"rebalance_threshold_percent"`
	Workers            int      `toml:"workers"`

	// FallbackTokens are offered when every discovery source fails.
	FallbackTokens []FallbackToken `toml:"fallback_tokens"`
}

// FallbackToken is one built-in discovery candidate.
type FallbackToken struct {
	Address        string  `toml:"address"`
	Symbol         string  `toml:"symbol"`
	MarketCap      float64 `toml:"market_cap"`
	PriceChange24h float64 `toml:"price_change_24h"`
	Volume24h      float64 `toml:"volume_24h"`
}

// StrategyConfig holds per-tier overrides of the built-in profiles.
type StrategyConfig struct {
	Conservative TierOverride `toml:"conservative"`
	Balanced     TierOverride `toml:"balanced"`
	Aggressive   TierOverride `toml:"aggressive"`
}

// TierOverride replaces selected profile fields. Zero values keep the default.
type TierOverride struct {
	MinConfidence          float64 `toml:"min_confidence"`
	MaxTradeAmount         string  `toml:"max_trade_amount"` // decimal string
	RebalanceIntervalHours int     `toml:"rebalance_interval_hours"`
	StopLossPercent        float64 `toml:"stop_loss_percent"`
	TakeProfitPercent      float64 `toml:"take_profit_percent"`
}

// Tiers returns the overrides keyed by tier name, skipping empty ones.
func (s StrategyConfig) Tiers() map[string]TierOverride {
	out := make(map[string]TierOverride, 3)
	for name, o := range map[string]TierOverride{
		"CONSERVATIVE": s.Conservative,
		"BALANCED":     s.Balanced,
		"AGGRESSIVE":   s.Aggressive,
	} {
		if o != (TierOverride{}) {
			out[name] = o
		}
	}
	return out
}

// duration is a wrapper around time.Duration that supports TOML string decoding.
type duration struct {
	time.Duration
}

// UnmarshalText parses duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds ops HTTP server parameters.
type ServerConfig struct {
	Port            int      `toml:"port"`
	CORSOrigins     []string `toml:"cors_origins"`
	APIKey          string   `toml:"api_key"`
	RateLimit       int      `toml:"rate_limit"`
	RateLimitWindow duration `toml:"rate_limit_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	DiscordUsername   string   `toml:"discord_username"`
	Prefix            string   `toml:"prefix"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			ChainID:     8453,
			MineTimeout: duration{2 * time.Minute},
		},
		Indexer: IndexerConfig{
			PageSize: 100,
			Timeout:  duration{15 * time.Second},
		},
		Backend: BackendConfig{
			SignRequests: true,
			Timeout:      duration{30 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "vaultagent",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			ConnTimeout:   duration{10 * time.Second},
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			Namespace:  "vaultagent",
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "vaultagent-reports",
			ForcePathStyle: true,
		},
		Agent: AgentConfig{
			DryRun:             true,
			LoopInterval:       duration{30 * time.Second},
			TradeCooldown:      duration{5 * time.Minute},
			VaultDelay:         duration{2 * time.Second},
			TradeGap:           duration{3 * time.Second},
			TradeDeadline:      duration{20 * time.Minute},
			DedupTTL:           duration{2 * time.Minute},
			PriceTTL:           duration{30 * time.Second},
			LockTTL:            duration{2 * time.Minute},
			BuySlippagePercent: 5,
			RebalanceThreshold: 5,
			Workers:            1,
		},
		Server: ServerConfig{
			Port:            8080,
			CORSOrigins:     []string{"http://localhost:3000"},
			RateLimit:       120,
			RateLimitWindow: duration{time.Minute},
		},
		Notify: NotifyConfig{
			Prefix: "vaultagent",
			Events: []string{"stop_loss", "take_profit", "trade_failed", "sweep_error"},
		},
		Mode:     "agent",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"agent":   true,
	"monitor": true,
	"once":    true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Executes reports whether the mode submits trades.
func (c *Config) Executes() bool {
	return c.Mode != "monitor"
}

// Validate checks Config for invalid or missing values and returns one error
// describing every problem found.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if !validModes[c.Mode] {
		add("unknown mode %q (valid: agent, monitor, once, full)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	// Chain: quotes are needed in every mode.
	if c.Chain.RPCURL == "" {
		add("chain: rpc_url must not be empty")
	}
	if c.Chain.ChainID <= 0 {
		add("chain: chain_id must be positive")
	}
	if !common.IsHexAddress(c.Chain.RouterAddress) {
		add("chain: router_address %q is not a hex address", c.Chain.RouterAddress)
	}

	// Wallet: only live execution signs transactions.
	if c.Executes() && !c.Agent.DryRun {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			add("wallet: private_key or encrypted_key_path must be set unless agent.dry_run is true")
		}
	}
	if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
		add("wallet: key_password is required when encrypted_key_path is set")
	}

	// Sources
	if c.Indexer.URL == "" && c.Backend.URL == "" {
		add("indexer.url or backend.url must be set as a vault source")
	}
	if c.Indexer.PageSize < 1 || c.Indexer.PageSize > 1000 {
		add("indexer: page_size must be 1-1000, got %d", c.Indexer.PageSize)
	}
	if c.Backend.URL != "" && (c.Backend.APIKey == "") != (c.Backend.APISecret == "") {
		add("backend: api_key and api_secret must be set together")
	}
	if c.Backend.SyncTrades && c.Backend.URL == "" {
		add("backend: sync_trades requires backend.url")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				add("postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
			}
			if c.Postgres.Database == "" {
				add("postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			add("postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" && c.Redis.URL == "" {
			add("redis: addr or url must be set")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
	}
	if c.Agent.Workers > 1 && c.Agent.LockTTL.Duration <= 0 {
		add("agent: lock_ttl must be positive when workers > 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			add("s3: region must not be empty")
		}
	}

	// Agent
	a := c.Agent
	for name, d := range map[string]time.Duration{
		"loop_interval":  a.LoopInterval.Duration,
		"trade_cooldown": a.TradeCooldown.Duration,
		"trade_deadline": a.TradeDeadline.Duration,
		"price_ttl":      a.PriceTTL.Duration,
	} {
		if d <= 0 {
			add("agent: %s must be positive", name)
		}
	}
	if a.VaultDelay.Duration < 0 || a.TradeGap.Duration < 0 || a.DedupTTL.Duration < 0 {
		add("agent: vault_delay, trade_gap and dedup_ttl must not be negative")
	}
	if a.BuySlippagePercent < 0 || a.BuySlippagePercent >= 100 {
		add("agent: buy_slippage_percent must be in [0, 100), got %g", a.BuySlippagePercent)
	}
	if a.RebalanceThreshold < 0 || a.RebalanceThreshold >= 100 {
		add("agent: rebalance_threshold_percent must be in [0, 100), got %g", a.RebalanceThreshold)
	}
	if a.Workers < 1 {
		add("agent: workers must be >= 1")
	}
	if c.Executes() && len(a.FallbackTokens) == 0 {
		add("agent: fallback_tokens must list at least one token")
	}
	for i, t := range a.FallbackTokens {
		if !common.IsHexAddress(t.Address) {
			add("agent: fallback_tokens[%d].address %q is not a hex address", i, t.Address)
		}
	}

	// Strategy
	for tier, o := range c.Strategy.Tiers() {
		if o.MaxTradeAmount != "" {
			if d, err := decimal.NewFromString(o.MaxTradeAmount); err != nil || !d.IsPositive() {
				add("strategy.%s: max_trade_amount %q must be a positive decimal", strings.ToLower(tier), o.MaxTradeAmount)
			}
		}
		if o.MinConfidence < 0 || o.MinConfidence > 1 {
			add("strategy.%s: min_confidence must be in [0, 1]", strings.ToLower(tier))
		}
		if o.StopLossPercent < 0 || o.StopLossPercent >= 100 {
			add("strategy.%s: stop_loss_percent must be in [0, 100)", strings.ToLower(tier))
		}
		if o.TakeProfitPercent < 0 || o.RebalanceIntervalHours < 0 {
			add("strategy.%s: take_profit_percent and rebalance_interval_hours must not be negative", strings.ToLower(tier))
		}
	}

	// Server
	if c.Mode == "full" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server: port must be 1-65535, got %d", c.Server.Port)
		}
		if c.Server.RateLimit > 0 && c.Server.RateLimitWindow.Duration <= 0 {
			add("server: rate_limit_window must be positive when rate_limit is set")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		add("notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
