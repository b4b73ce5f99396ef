// Package redisclient builds the Redis client shared by the rate limit and
// revocation stores.
package redisclient

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/marketgw/internal/config"
	"github.com/vyrodovalexey/marketgw/internal/observability"
)

const (
	defaultConnectAttempts = 5
	defaultInitialBackoff  = 100 * time.Millisecond
	defaultMaxBackoff      = 5 * time.Second
)

// Options tunes the startup connection attempts.
type Options struct {
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Logger         observability.Logger
}

// New returns a client for cfg. It pings with decorrelated jitter backoff
// until Redis answers or the attempts run out. When Redis never answers the
// client is still returned together with the last error: callers decide
// whether to start degraded.
func New(ctx context.Context, cfg config.RedisConfig, opts Options) (*redis.Client, error) {
	if opts.Attempts <= 0 {
		opts.Attempts = defaultConnectAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.Logger == nil {
		opts.Logger = observability.NopLogger()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout.Duration(),
		ReadTimeout:  cfg.ReadTimeout.Duration(),
		WriteTimeout: cfg.WriteTimeout.Duration(),
	})

	backoff := opts.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout(cfg))
		lastErr = client.Ping(pingCtx).Err()
		cancel()
		if lastErr == nil {
			if attempt > 1 {
				opts.Logger.Info("redis connection established after retry",
					observability.String("address", cfg.Address),
					observability.Int("attempt", attempt),
				)
			}
			return client, nil
		}
		if attempt == opts.Attempts {
			break
		}

		opts.Logger.Debug("redis connection failed, retrying",
			observability.String("address", cfg.Address),
			observability.Int("attempt", attempt),
			observability.Duration("backoff", backoff),
			observability.Error(lastErr),
		)

		select {
		case <-ctx.Done():
			return client, fmt.Errorf("redis connect interrupted: %w", ctx.Err())
		case <-time.After(backoff):
		}
		backoff = nextBackoff(opts.InitialBackoff, backoff, opts.MaxBackoff)
	}

	return client, fmt.Errorf("redis at %s unreachable after %d attempts: %w", cfg.Address, opts.Attempts, lastErr)
}

// nextBackoff is decorrelated jitter: min(max, random_between(base, prev*3)).
func nextBackoff(base, prev, maxBackoff time.Duration) time.Duration {
	upper := prev * 3
	if upper <= base {
		return base
	}
	next := base + rand.N(upper-base) //nolint:gosec // jitter only
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func pingTimeout(cfg config.RedisConfig) time.Duration {
	if d := cfg.DialTimeout.Duration(); d > 0 {
		return d
	}
	return time.Second
}

// Ping reports whether client answers within timeout. It backs the
// readiness probe.
func Ping(client redis.Cmdable, timeout time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		return nil
	}
}
