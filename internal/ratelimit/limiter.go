// Package ratelimit admits or rejects requests per client using a fixed
// window counter kept in a shared store.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/vyrodovalexey/marketgw/internal/ratelimit/store"
)

// DefaultWindow is the fixed window length.
const DefaultWindow = store.DefaultWindow

// DefaultRequestsPerMinute is the threshold used when none is configured.
const DefaultRequestsPerMinute = 100

var (
	// ErrRateLimitExceeded marks a rejected admission.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrStoreUnavailable wraps any failure of the counter store.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
)

// Result is the outcome of one admission.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is set on rejection.
	RetryAfter time.Duration
	// Degraded is set when the store failed and the request was admitted
	// without being counted. Limit and Remaining carry no information then.
	Degraded bool
	// Bypassed is set when the limiter is disabled.
	Bypassed bool
}

// Err returns ErrRateLimitExceeded for a rejection and nil otherwise.
func (r Result) Err() error {
	if r.Allowed {
		return nil
	}
	return ErrRateLimitExceeded
}

// Counted reports whether Limit and Remaining reflect a real counter.
func (r Result) Counted() bool {
	return !r.Degraded && !r.Bypassed
}

// Limiter admits requests for a client key. Admit never fails: store
// problems admit the request and set Result.Degraded.
type Limiter interface {
	Admit(ctx context.Context, key string) Result
}

// Settings are the values that can change at runtime.
type Settings struct {
	Enabled           bool
	RequestsPerMinute int
}

// MetricsRecorder is the subset of gateway metrics the limiter reports to.
type MetricsRecorder interface {
	RecordRateLimitDecision(decision string)
	RecordStoreError(store, operation string)
}

type nopRecorder struct{}

func (nopRecorder) RecordRateLimitDecision(string)  {}
func (nopRecorder) RecordStoreError(string, string) {}
