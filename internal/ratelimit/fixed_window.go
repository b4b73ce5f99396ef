package ratelimit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/marketgw/internal/circuitbreaker"
	"github.com/vyrodovalexey/marketgw/internal/observability"
	"github.com/vyrodovalexey/marketgw/internal/ratelimit/store"
)

const (
	storeName           = "ratelimit"
	defaultStoreTimeout = 200 * time.Millisecond
	failOpenLogInterval = 10 * time.Second
)

// FixedWindowLimiter counts requests per key in windows that start at the
// key's first request. The first increment of a window sets its expiry.
type FixedWindowLimiter struct {
	store        store.Store
	window       time.Duration
	storeTimeout time.Duration
	breaker      *circuitbreaker.Breaker
	logger       observability.Logger
	metrics      MetricsRecorder
	settings     atomic.Pointer[Settings]
	failOpenLog  rate.Sometimes
}

// Option configures a FixedWindowLimiter.
type Option func(*FixedWindowLimiter)

// WithWindow overrides DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(l *FixedWindowLimiter) { l.window = d }
}

// WithStoreTimeout bounds each store round trip.
func WithStoreTimeout(d time.Duration) Option {
	return func(l *FixedWindowLimiter) { l.storeTimeout = d }
}

// WithBreaker guards store calls with b.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(l *FixedWindowLimiter) { l.breaker = b }
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(l *FixedWindowLimiter) { l.logger = logger }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(l *FixedWindowLimiter) { l.metrics = m }
}

// NewFixedWindowLimiter returns a limiter over s with the given settings.
func NewFixedWindowLimiter(s store.Store, settings Settings, opts ...Option) *FixedWindowLimiter {
	l := &FixedWindowLimiter{
		store:        s,
		window:       DefaultWindow,
		storeTimeout: defaultStoreTimeout,
		logger:       observability.NopLogger(),
		metrics:      nopRecorder{},
		failOpenLog:  rate.Sometimes{Interval: failOpenLogInterval},
	}
	for _, opt := range opts {
		opt(l)
	}
	l.Update(settings)
	return l
}

// Update swaps the settings used by subsequent admissions.
func (l *FixedWindowLimiter) Update(s Settings) {
	if s.RequestsPerMinute < 0 {
		s.RequestsPerMinute = 0
	}
	l.settings.Store(&s)
}

// Settings returns the current settings.
func (l *FixedWindowLimiter) Settings() Settings {
	return *l.settings.Load()
}

// Window returns the window length, which is also the Retry-After value.
func (l *FixedWindowLimiter) Window() time.Duration {
	return l.window
}

// Admit implements Limiter.
func (l *FixedWindowLimiter) Admit(ctx context.Context, key string) Result {
	s := l.settings.Load()
	limit := s.RequestsPerMinute

	if !s.Enabled {
		l.metrics.RecordRateLimitDecision(observability.DecisionDisabled)
		return Result{Allowed: true, Limit: limit, Remaining: limit, Bypassed: true}
	}

	count, err := l.increment(ctx, key)
	if err != nil {
		l.metrics.RecordRateLimitDecision(observability.DecisionFailOpen)
		l.failOpenLog.Do(func() {
			l.logger.WithContext(ctx).Warn("rate limit store failed, admitting request",
				observability.String("key", key),
				observability.Error(err),
			)
		})
		return Result{Allowed: true, Limit: limit, Degraded: true}
	}

	if count > int64(limit) {
		l.metrics.RecordRateLimitDecision(observability.DecisionRejected)
		return Result{Allowed: false, Limit: limit, Remaining: 0, RetryAfter: l.window}
	}

	l.metrics.RecordRateLimitDecision(observability.DecisionAllowed)
	return Result{Allowed: true, Limit: limit, Remaining: limit - int(count)}
}

// increment counts the request and starts the window on its first hit. A
// store that implements store.WindowCounter does both in one atomic call;
// any other store gets INCR and, when the count is 1, EXPIRE. The store
// calls are detached from the caller's cancellation: a client that goes away
// does not abort a half-applied window.
func (l *FixedWindowLimiter) increment(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.storeTimeout)
	defer cancel()

	var count int64
	err := l.breaker.Execute(func() error {
		if wc, ok := l.store.(store.WindowCounter); ok {
			n, err := wc.IncrementInWindow(ctx, key, l.window)
			if err != nil {
				l.metrics.RecordStoreError(storeName, "increment")
				return err
			}
			count = n
			return nil
		}

		n, err := l.store.IncrementAndGet(ctx, key)
		if err != nil {
			l.metrics.RecordStoreError(storeName, "increment")
			return err
		}
		count = n
		if n == 1 {
			if err := l.store.SetExpiry(ctx, key, l.window); err != nil {
				l.metrics.RecordStoreError(storeName, "expire")
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return count, nil
}
