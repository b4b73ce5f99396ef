package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const metricsStoreName = "ratelimit"

// incrementInWindowScript increments a counter and starts its window. The
// expiry is set on the first hit and repaired on any counter that lost it.
// KEYS[1] = key
// ARGV[1] = window in seconds
var incrementInWindowScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 or redis.call('TTL', KEYS[1]) == -1 then
		redis.call('EXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// RedisStore implements Store with INCR and EXPIRE, and WindowCounter with
// a Lua script running both atomically.
type RedisStore struct {
	client  redis.Cmdable
	prefix  string
	window  time.Duration
	metrics MetricsRecorder
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithRedisWindow sets the expiry IncrementAndGet gives a new counter.
func WithRedisWindow(d time.Duration) RedisOption {
	return func(s *RedisStore) { s.window = d }
}

// WithRedisMetrics records every Redis call.
func WithRedisMetrics(m MetricsRecorder) RedisOption {
	return func(s *RedisStore) { s.metrics = m }
}

// NewRedisStore uses client, which the caller keeps ownership of. Keys are
// written as prefix+key.
func NewRedisStore(client redis.Cmdable, prefix string, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client:  client,
		prefix:  prefix,
		window:  DefaultWindow,
		metrics: nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IncrementAndGet implements Store. It starts the store's window on the
// first hit, like IncrementInWindow.
func (s *RedisStore) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	return s.IncrementInWindow(ctx, key, s.window)
}

// IncrementInWindow implements WindowCounter.
func (s *RedisStore) IncrementInWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("context error before redis incr: %w", err)
	}

	secs := int64(window / time.Second)
	if secs < 1 {
		secs = 1
	}

	start := time.Now()
	result, err := incrementInWindowScript.Run(ctx, s.client, []string{s.prefix + key}, secs).Result()
	if err != nil {
		s.record("increment", StatusError, start)
		return 0, fmt.Errorf("redis incr error: %w", err)
	}

	n, ok := result.(int64)
	if !ok {
		s.record("increment", StatusError, start)
		return 0, fmt.Errorf("redis incr script returned unexpected type: %T", result)
	}
	s.record("increment", StatusSuccess, start)
	return n, nil
}

// SetExpiry implements Store.
func (s *RedisStore) SetExpiry(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error before redis expire: %w", err)
	}

	start := time.Now()
	if err := s.client.Expire(ctx, s.prefix+key, ttl).Err(); err != nil {
		s.record("expire", StatusError, start)
		return fmt.Errorf("redis expire error: %w", err)
	}
	s.record("expire", StatusSuccess, start)
	return nil
}

// Close is a no-op; the client belongs to the caller.
func (s *RedisStore) Close() error {
	return nil
}

func (s *RedisStore) record(operation, status string, start time.Time) {
	s.metrics.RecordStoreOperation(metricsStoreName, operation, status, time.Since(start))
}
