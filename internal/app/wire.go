package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	s3blob "github.com/alanyoungcy/vaultagent/internal/blob/s3"
	"github.com/alanyoungcy/vaultagent/internal/cache/redis"
	"github.com/alanyoungcy/vaultagent/internal/chain"
	"github.com/alanyoungcy/vaultagent/internal/config"
	"github.com/alanyoungcy/vaultagent/internal/crypto"
	"github.com/alanyoungcy/vaultagent/internal/domain"
	"github.com/alanyoungcy/vaultagent/internal/executor"
	"github.com/alanyoungcy/vaultagent/internal/notify"
	"github.com/alanyoungcy/vaultagent/internal/platform/backend"
	"github.com/alanyoungcy/vaultagent/internal/platform/indexer"
	"github.com/alanyoungcy/vaultagent/internal/source"
	"github.com/alanyoungcy/vaultagent/internal/store/postgres"
	"github.com/alanyoungcy/vaultagent/internal/strategy"
)

// Dependencies bundles every concrete collaborator the application modes
// need. Optional infrastructure is left nil when disabled in config, and the
// interface-typed fields stay untyped-nil so consumers can test for it.
type Dependencies struct {
	// Chain
	Eth    *ethclient.Client
	Signer *crypto.Signer
	Quoter domain.Quoter

	// Execution: Deduping(Recording(Paced(VaultClient|DryRun)))
	Executor domain.TradeExecutor
	Dedup    *executor.Deduping

	// Sources
	Indexer  *indexer.Client
	Vaults   *source.Vaults
	Holdings *source.Holdings
	Tokens   *source.Tokens
	Settings domain.SettingsStore
	Profiles *strategy.Table
	Fallback []domain.TokenCandidate

	// Stores
	Postgres      *postgres.Client
	TradeStore    domain.TradeStore
	PositionStore domain.PositionStore
	AuditStore    domain.AuditStore
	Recorder      domain.TradeRecorder

	// Caches
	Redis       *redis.Client
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	Bus         *redis.SignalBus

	// Blob storage
	S3       *s3blob.Client
	Archiver *s3blob.ReportArchiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{}

	// --- Strategy profiles ---
	profiles, err := buildProfiles(cfg.Strategy)
	if err != nil {
		return fail(fmt.Errorf("wire: strategy profiles: %w", err))
	}
	deps.Profiles = profiles
	deps.Fallback = fallbackTokens(cfg.Agent.FallbackTokens)

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:            cfg.Postgres.DSN,
			Host:           cfg.Postgres.Host,
			Port:           cfg.Postgres.Port,
			Database:       cfg.Postgres.Database,
			User:           cfg.Postgres.User,
			Password:       cfg.Postgres.Password,
			SSLMode:        cfg.Postgres.SSLMode,
			MaxConns:       cfg.Postgres.PoolMaxConns,
			MinConns:       cfg.Postgres.PoolMinConns,
			ConnectTimeout: cfg.Postgres.ConnTimeout.Duration,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.Postgres = pgClient

		pool := pgClient.Pool()
		trades := postgres.NewTradeStore(pool)
		positions := postgres.NewPositionStore(pool)
		deps.TradeStore = trades
		deps.PositionStore = positions
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Recorder = postgres.NewRecorder(trades, positions)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			URL:        cfg.Redis.URL,
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Namespace:  cfg.Redis.Namespace,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Redis = redisClient
		deps.PriceCache = redis.NewPriceCache(redisClient, cfg.Agent.PriceTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient, logger)
		deps.Bus = redis.NewSignalBus(redisClient)
		deps.SignalBus = deps.Bus
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.S3 = s3Client
		deps.Archiver = s3blob.NewReportArchiver(s3blob.NewObjects(s3Client), deps.AuditStore)
	}

	// --- Chain ---
	eth, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		return fail(fmt.Errorf("wire: dial rpc: %w", err))
	}
	closers = append(closers, eth.Close)
	deps.Eth = eth
	deps.Quoter = chain.NewRouterQuoter(cfg.Chain.RouterAddress, eth)

	if cfg.Wallet.PrivateKey != "" || cfg.Wallet.EncryptedKeyPath != "" {
		signer, err := crypto.LoadSigner(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		}, cfg.Chain.ChainID)
		if err != nil {
			return fail(fmt.Errorf("wire: signer: %w", err))
		}
		deps.Signer = signer
		logger.InfoContext(ctx, "wire: agent wallet loaded", slog.String("address", signer.Address().Hex()))
	}

	// --- Data sources ---
	var (
		vaultSources   []source.Named[domain.VaultSource]
		holdingSources []source.Named[domain.HoldingSource]
		tokenSources   []source.Named[domain.TokenDiscovery]
		addresser      chain.VaultAddresser
	)
	if cfg.Indexer.URL != "" {
		idx := indexer.NewClient(cfg.Indexer.URL, cfg.Indexer.APIKey, cfg.Indexer.PageSize, cfg.Indexer.Timeout.Duration)
		deps.Indexer = idx
		vaultSources = append(vaultSources, source.Named[domain.VaultSource]{Name: "indexer", Source: idx})
		holdingSources = append(holdingSources, source.Named[domain.HoldingSource]{Name: "indexer", Source: idx})
		tokenSources = append(tokenSources, source.Named[domain.TokenDiscovery]{Name: "indexer", Source: idx})
	}
	var backendClient *backend.Client
	if cfg.Backend.URL != "" {
		var auth *crypto.HMACAuth
		if cfg.Backend.APIKey != "" {
			auth = &crypto.HMACAuth{Key: cfg.Backend.APIKey, Secret: cfg.Backend.APISecret}
		}
		var reqSigner *crypto.Signer
		if cfg.Backend.SignRequests {
			reqSigner = deps.Signer
		}
		backendClient = backend.NewClient(cfg.Backend.URL, auth, reqSigner, cfg.Backend.Timeout.Duration)
		vaultSources = append(vaultSources, source.Named[domain.VaultSource]{Name: "backend", Source: backendClient})
		holdingSources = append(holdingSources, source.Named[domain.HoldingSource]{Name: "backend", Source: backendClient})
		tokenSources = append(tokenSources, source.Named[domain.TokenDiscovery]{Name: "backend", Source: backendClient})
		deps.Settings = backendClient
		addresser = backendClient
		if cfg.Backend.SyncTrades {
			deps.Recorder = executor.NewFanout(deps.Recorder, backendClient)
		}
	}
	var (
		vaultStore   *postgres.VaultStore
		holdingStore *postgres.HoldingStore
	)
	if deps.Postgres != nil {
		pool := deps.Postgres.Pool()
		vaultStore, holdingStore = postgres.NewVaultStore(pool), postgres.NewHoldingStore(pool)
		vaultSources = append(vaultSources, source.Named[domain.VaultSource]{Name: "postgres", Source: vaultStore})
		holdingSources = append(holdingSources, source.Named[domain.HoldingSource]{Name: "postgres", Source: holdingStore})

		settingsStore := postgres.NewSettingsStore(pool)
		if deps.Settings == nil {
			deps.Settings = settingsStore
		} else {
			deps.Settings = source.NewSettings(deps.Settings, settingsStore, logger)
		}
	}
	deps.Vaults = source.NewVaults(logger, vaultSources...)
	deps.Holdings = source.NewHoldings(logger, holdingSources...)
	if vaultStore != nil {
		deps.Vaults.MirrorTo("postgres", vaultStore)
		deps.Holdings.MirrorTo("postgres", holdingStore)
	}
	deps.Tokens = source.NewTokens(logger, tokenSources...)
	if addresser == nil {
		addresser = source.NewDirectory(deps.Vaults)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL, cfg.Notify.DiscordUsername))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, cfg.Notify.Prefix, logger)

	// --- Execution ---
	live := !cfg.Agent.DryRun && cfg.Executes()
	var base domain.TradeExecutor
	if !live {
		base = executor.NewDryRun(logger)
	} else {
		if deps.Signer == nil {
			return fail(fmt.Errorf("wire: live trading requires a wallet key"))
		}
		base = chain.NewVaultClient(
			eth,
			deps.Signer.PrivateKey(),
			cfg.Chain.ChainID,
			addresser,
			cfg.Chain.GasLimit,
			cfg.Chain.MineTimeout.Duration,
			logger,
		)
	}
	deps.Executor, deps.Dedup = executionStack(base, live, cfg.Agent, deps, logger)

	return deps, cleanup, nil
}

// executionStack layers pacing and recording over base. Live stacks are also
// deduplicated; a dry run changes no holdings, so its repeats are expected
// and must keep reporting the simulated result.
func executionStack(
	base domain.TradeExecutor,
	live bool,
	ac config.AgentConfig,
	deps *Dependencies,
	logger *slog.Logger,
) (domain.TradeExecutor, *executor.Deduping) {
	paced := executor.NewPaced(base, ac.TradeGap.Duration, deps.RateLimiter, "", logger)
	recording := executor.NewRecording(paced, deps.Recorder, deps.SignalBus, deps.AuditStore, !live, logger)
	if !live {
		return recording, nil
	}
	dedup := executor.NewDeduping(recording, executor.NewDedup(ac.DedupTTL.Duration), logger)
	return dedup, dedup
}

// buildProfiles applies the configured tier overrides to the built-in table.
func buildProfiles(sc config.StrategyConfig) (*strategy.Table, error) {
	overrides := make(map[domain.Tier]strategy.Override)
	for name, o := range sc.Tiers() {
		var maxTrade decimal.Decimal
		if o.MaxTradeAmount != "" {
			d, err := decimal.NewFromString(o.MaxTradeAmount)
			if err != nil {
				return nil, fmt.Errorf("%s max_trade_amount: %w", strings.ToLower(name), err)
			}
			maxTrade = d
		}
		overrides[domain.Tier(name)] = strategy.Override{
			MinConfidence:          o.MinConfidence,
			MaxTradeAmount:         maxTrade,
			RebalanceIntervalHours: o.RebalanceIntervalHours,
			StopLossPercent:        o.StopLossPercent,
			TakeProfitPercent:      o.TakeProfitPercent,
		}
	}
	return strategy.NewTableWithOverrides(overrides)
}

// fallbackTokens converts the configured fallback list to discovery
// candidates.
func fallbackTokens(in []config.FallbackToken) []domain.TokenCandidate {
	out := make([]domain.TokenCandidate, 0, len(in))
	for _, t := range in {
		out = append(out, domain.TokenCandidate{
			Address:        strings.ToLower(t.Address),
			Symbol:         t.Symbol,
			MarketCap:      t.MarketCap,
			PriceChange24h: t.PriceChange24h,
			Volume24h:      t.Volume24h,
		})
	}
	return out
}
