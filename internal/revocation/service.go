package revocation

import (
	"context"
	"fmt"
	"time"

	"github.com/vyrodovalexey/marketgw/internal/circuitbreaker"
	"github.com/vyrodovalexey/marketgw/internal/observability"
	"github.com/vyrodovalexey/marketgw/internal/token"
)

const (
	storeName      = "revocation"
	defaultTimeout = 200 * time.Millisecond
)

// Revocation results reported to metrics.
const (
	ResultStored         = "stored"
	ResultSkippedExpired = "skipped_expired"
	ResultInvalid        = "invalid"
	ResultError          = "error"
)

// Verifier validates a raw token and returns its claims.
type Verifier interface {
	Verify(raw string) (*token.Claims, error)
}

// MetricsRecorder is the subset of gateway metrics the service reports to.
type MetricsRecorder interface {
	RecordRevocation(result string)
	RecordStoreError(store, operation string)
}

type nopRecorder struct{}

func (nopRecorder) RecordRevocation(string)         {}
func (nopRecorder) RecordStoreError(string, string) {}

// Service revokes tokens and checks revocation status. Every store call is
// bounded by the configured timeout and runs through the breaker.
type Service struct {
	store    Store
	verifier Verifier
	breaker  *circuitbreaker.Breaker
	timeout  time.Duration
	now      func() time.Time
	logger   observability.Logger
	metrics  MetricsRecorder
}

// Option configures a Service.
type Option func(*Service)

// WithTimeout bounds each store round trip.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithBreaker guards store calls with b.
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(s *Service) { s.breaker = b }
}

// WithServiceClock replaces time.Now when computing entry lifetimes.
func WithServiceClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService returns a Service writing to st and verifying tokens with v.
func NewService(st Store, v Verifier, opts ...Option) *Service {
	s := &Service{
		store:    st,
		verifier: v,
		timeout:  defaultTimeout,
		now:      time.Now,
		logger:   observability.NopLogger(),
		metrics:  nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Revoke records raw until the moment it would expire on its own. A token
// that is already expired, or expires before the write, is left alone and
// nil is returned. A token that fails verification for any other reason is
// returned as an error without touching the store.
func (s *Service) Revoke(ctx context.Context, raw string) error {
	claims, err := s.verifier.Verify(raw)
	if err != nil {
		if token.IsExpired(err) {
			s.metrics.RecordRevocation(ResultSkippedExpired)
			return nil
		}
		s.metrics.RecordRevocation(ResultInvalid)
		return err
	}

	ttl := claims.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		s.metrics.RecordRevocation(ResultSkippedExpired)
		return nil
	}

	err = s.call(ctx, func(ctx context.Context) error {
		if err := s.store.Set(ctx, raw, ttl); err != nil {
			s.metrics.RecordStoreError(storeName, "set")
			return err
		}
		return nil
	})
	if err != nil {
		s.metrics.RecordRevocation(ResultError)
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	s.metrics.RecordRevocation(ResultStored)
	s.logger.WithContext(ctx).Debug("token revoked",
		observability.String("subject", claims.Subject),
		observability.String("jti", claims.ID),
		observability.Duration("ttl", ttl),
	)
	return nil
}

// IsRevoked reports whether raw has been revoked. Any store problem is
// returned wrapped in ErrStoreUnavailable; callers must treat that as a
// rejection.
func (s *Service) IsRevoked(ctx context.Context, raw string) (bool, error) {
	var revoked bool
	err := s.call(ctx, func(ctx context.Context) error {
		ok, err := s.store.Exists(ctx, raw)
		if err != nil {
			s.metrics.RecordStoreError(storeName, "exists")
			return err
		}
		revoked = ok
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return revoked, nil
}

// call detaches fn from the caller's cancellation and bounds it with the
// service timeout.
func (s *Service) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	return s.breaker.Execute(func() error { return fn(ctx) })
}
