package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies VAULTAGENT_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known VAULTAGENT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "VAULTAGENT_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "VAULTAGENT_CHAIN_ID")
	setStr(&cfg.Chain.RouterAddress, "VAULTAGENT_CHAIN_ROUTER_ADDRESS")
	setUint64(&cfg.Chain.GasLimit, "VAULTAGENT_CHAIN_GAS_LIMIT")
	setDuration(&cfg.Chain.MineTimeout, "VAULTAGENT_CHAIN_MINE_TIMEOUT")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "VAULTAGENT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "VAULTAGENT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "VAULTAGENT_WALLET_KEY_PASSWORD")

	// ── Indexer ──
	setStr(&cfg.Indexer.URL, "VAULTAGENT_INDEXER_URL")
	setStr(&cfg.Indexer.APIKey, "VAULTAGENT_INDEXER_API_KEY")
	setInt(&cfg.Indexer.PageSize, "VAULTAGENT_INDEXER_PAGE_SIZE")
	setDuration(&cfg.Indexer.Timeout, "VAULTAGENT_INDEXER_TIMEOUT")

	// ── Backend ──
	setStr(&cfg.Backend.URL, "VAULTAGENT_BACKEND_URL")
	setStr(&cfg.Backend.APIKey, "VAULTAGENT_BACKEND_API_KEY")
	setStr(&cfg.Backend.APISecret, "VAULTAGENT_BACKEND_API_SECRET")
	setBool(&cfg.Backend.SignRequests, "VAULTAGENT_BACKEND_SIGN_REQUESTS")
	setBool(&cfg.Backend.SyncTrades, "VAULTAGENT_BACKEND_SYNC_TRADES")
	setDuration(&cfg.Backend.Timeout, "VAULTAGENT_BACKEND_TIMEOUT")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "VAULTAGENT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "VAULTAGENT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "VAULTAGENT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "VAULTAGENT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "VAULTAGENT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "VAULTAGENT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "VAULTAGENT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "VAULTAGENT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "VAULTAGENT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "VAULTAGENT_POSTGRES_POOL_MIN_CONNS")
	setDuration(&cfg.Postgres.ConnTimeout, "VAULTAGENT_POSTGRES_CONN_TIMEOUT")
	setBool(&cfg.Postgres.RunMigrations, "VAULTAGENT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "VAULTAGENT_REDIS_ENABLED")
	setStr(&cfg.Redis.URL, "VAULTAGENT_REDIS_URL")
	setStr(&cfg.Redis.Addr, "VAULTAGENT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "VAULTAGENT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "VAULTAGENT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "VAULTAGENT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "VAULTAGENT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "VAULTAGENT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Namespace, "VAULTAGENT_REDIS_NAMESPACE")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "VAULTAGENT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "VAULTAGENT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "VAULTAGENT_S3_REGION")
	setStr(&cfg.S3.Bucket, "VAULTAGENT_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "VAULTAGENT_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "VAULTAGENT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "VAULTAGENT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "VAULTAGENT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "VAULTAGENT_S3_FORCE_PATH_STYLE")

	// ── Agent ──
	setBool(&cfg.Agent.DryRun, "VAULTAGENT_AGENT_DRY_RUN")
	setDuration(&cfg.Agent.LoopInterval, "VAULTAGENT_AGENT_LOOP_INTERVAL")
	setDuration(&cfg.Agent.TradeCooldown, "VAULTAGENT_AGENT_TRADE_COOLDOWN")
	setDuration(&cfg.Agent.VaultDelay, "VAULTAGENT_AGENT_VAULT_DELAY")
	setDuration(&cfg.Agent.TradeGap, "VAULTAGENT_AGENT_TRADE_GAP")
	setDuration(&cfg.Agent.TradeDeadline, "VAULTAGENT_AGENT_TRADE_DEADLINE")
	setDuration(&cfg.Agent.DedupTTL, "VAULTAGENT_AGENT_DEDUP_TTL")
	setDuration(&cfg.Agent.PriceTTL, "VAULTAGENT_AGENT_PRICE_TTL")
	setDuration(&cfg.Agent.LockTTL, "VAULTAGENT_AGENT_LOCK_TTL")
	setFloat64(&cfg.Agent.BuySlippagePercent, "VAULTAGENT_AGENT_BUY_SLIPPAGE_PERCENT")
	setFloat64(&cfg.Agent.RebalanceThreshold, "VAULTAGENT_AGENT_REBALANCE_THRESHOLD_PERCENT")
	setInt(&cfg.Agent.Workers, "VAULTAGENT_AGENT_WORKERS")

	// ── Server ──
	setInt(&cfg.Server.Port, "VAULTAGENT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "VAULTAGENT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "VAULTAGENT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "VAULTAGENT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "VAULTAGENT_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "VAULTAGENT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "VAULTAGENT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "VAULTAGENT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.DiscordUsername, "VAULTAGENT_NOTIFY_DISCORD_USERNAME")
	setStr(&cfg.Notify.Prefix, "VAULTAGENT_NOTIFY_PREFIX")
	setStringSlice(&cfg.Notify.Events, "VAULTAGENT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "VAULTAGENT_MODE")
	setStr(&cfg.LogLevel, "VAULTAGENT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
