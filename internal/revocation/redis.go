package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces revocation entries.
const DefaultKeyPrefix = "blacklist:token:"

const (
	marker           = "blacklisted"
	metricsStoreName = "revocation"
)

// StoreMetricsRecorder receives the outcome and latency of each Redis call.
type StoreMetricsRecorder interface {
	RecordStoreOperation(store, operation, status string, d time.Duration)
}

type nopStoreRecorder struct{}

func (nopStoreRecorder) RecordStoreOperation(string, string, string, time.Duration) {}

// RedisStore implements Store with SET EX and EXISTS.
type RedisStore struct {
	client  redis.Cmdable
	prefix  string
	metrics StoreMetricsRecorder
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithStoreMetrics records every Redis call.
func WithStoreMetrics(m StoreMetricsRecorder) RedisOption {
	return func(s *RedisStore) { s.metrics = m }
}

// NewRedisStore uses client, which the caller keeps ownership of. An empty
// prefix selects DefaultKeyPrefix.
func NewRedisStore(client redis.Cmdable, prefix string, opts ...RedisOption) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	s := &RedisStore{client: client, prefix: prefix, metrics: nopStoreRecorder{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error before redis set: %w", err)
	}

	start := time.Now()
	if err := s.client.Set(ctx, s.prefix+key, marker, ttl).Err(); err != nil {
		s.record("set", "error", start)
		return fmt.Errorf("redis set error: %w", err)
	}
	s.record("set", "success", start)
	return nil
}

// Exists implements Store.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context error before redis exists: %w", err)
	}

	start := time.Now()
	n, err := s.client.Exists(ctx, s.prefix+key).Result()
	if err != nil {
		s.record("exists", "error", start)
		return false, fmt.Errorf("redis exists error: %w", err)
	}
	s.record("exists", "success", start)
	return n > 0, nil
}

// Close is a no-op; the client belongs to the caller.
func (s *RedisStore) Close() error {
	return nil
}

func (s *RedisStore) record(operation, status string, start time.Time) {
	s.metrics.RecordStoreOperation(metricsStoreName, operation, status, time.Since(start))
}
