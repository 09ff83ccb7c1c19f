package redis

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/vaultagent/internal/domain"
)

var (
	//go:embed scripts/lock_release.lua
	lockReleaseLua string
	//go:embed scripts/lock_extend.lua
	lockExtendLua string
)

// LockManager hands out per-vault leases so two agent replicas never work the
// same vault at once. A held lease is extended every ttl/3 until released,
// so a slow vault does not lose its lock mid-sweep.
type LockManager struct {
	rdb     *redis.Client
	ns      string
	release *redis.Script
	extend  *redis.Script
	logger  *slog.Logger
}

var _ domain.LockManager = (*LockManager)(nil)

// NewLockManager creates a LockManager on c.
func NewLockManager(c *Client, logger *slog.Logger) *LockManager {
	return &LockManager{
		rdb:     c.Underlying(),
		ns:      c.ns,
		release: redis.NewScript(lockReleaseLua),
		extend:  redis.NewScript(lockExtendLua),
		logger:  logger.With(slog.String("component", "redis_lock")),
	}
}

func (lm *LockManager) key(name string) string {
	return namespaced(lm.ns, "lock:"+name)
}

// Acquire takes the lease on name for ttl, or returns domain.ErrLockHeld. The
// returned release func is idempotent and safe for concurrent use.
func (lm *LockManager) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	key := lm.key(name)

	ok, err := lm.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		lm.keepAlive(key, token, ttl, stop)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			// The caller's ctx may already be cancelled.
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := lm.release.Run(rctx, lm.rdb, []string{key}, token).Err(); err != nil {
				lm.logger.Warn("redis: release lock failed, waiting for ttl",
					slog.String("key", name),
					slog.Duration("ttl", ttl),
					slog.String("error", err.Error()),
				)
			}
		})
	}, nil
}

// keepAlive extends the lease until stop closes or the lease is lost.
func (lm *LockManager) keepAlive(key, token string, ttl time.Duration, stop <-chan struct{}) {
	interval := renewInterval(ttl)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := lm.extend.Run(ctx, lm.rdb, []string{key}, token, ttl.Milliseconds()).Int()
			cancel()
			switch {
			case err != nil:
				lm.logger.Warn("redis: extend lock failed", slog.String("key", key), slog.String("error", err.Error()))
			case n == 0:
				lm.logger.Warn("redis: lock lost before release", slog.String("key", key))
				return
			}
		}
	}
}

// renewInterval is how often a lease of ttl is extended. Leases shorter than
// 300ms are not renewed.
func renewInterval(ttl time.Duration) time.Duration {
	if ttl < 300*time.Millisecond {
		return 0
	}
	return ttl / 3
}
