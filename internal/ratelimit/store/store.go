// Package store holds the shared counter backends used by the rate limiter.
package store

import (
	"context"
	"errors"
	"time"
)

// DefaultWindow is the expiry a store gives a counter on its first increment
// when no window is configured.
const DefaultWindow = time.Minute

// ErrStoreClosed is returned by calls made after Close.
var ErrStoreClosed = errors.New("rate limit store is closed")

// Store is a shared counter with expiry. IncrementAndGet must be atomic at
// the store so concurrent callers never lose an increment.
type Store interface {
	// IncrementAndGet adds one to key, creating it at 1 when absent or
	// expired, and returns the new value.
	IncrementAndGet(ctx context.Context, key string) (int64, error)

	// SetExpiry makes key expire ttl from now.
	SetExpiry(ctx context.Context, key string, ttl time.Duration) error

	Close() error
}

// WindowCounter is implemented by stores that can increment and start the
// window in one atomic step. A counter found without an expiry is given one,
// so a lost EXPIRE can never pin a key forever.
type WindowCounter interface {
	IncrementInWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}

// MetricsRecorder receives the outcome and latency of each store operation.
type MetricsRecorder interface {
	RecordStoreOperation(store, operation, status string, d time.Duration)
}

// Operation status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type nopRecorder struct{}

func (nopRecorder) RecordStoreOperation(string, string, string, time.Duration) {}
