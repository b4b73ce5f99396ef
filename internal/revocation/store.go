// Package revocation records tokens invalidated before their natural expiry
// and answers whether a presented token has been revoked.
package revocation

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStoreUnavailable wraps any failure of the revocation store, including
	// timeouts and an open breaker.
	ErrStoreUnavailable = errors.New("revocation store unavailable")

	// ErrStoreClosed is returned by calls made after Close.
	ErrStoreClosed = errors.New("revocation store is closed")
)

// Store is a set of keys with per-key expiry.
type Store interface {
	// Set records key for ttl. ttl is always positive.
	Set(ctx context.Context, key string, ttl time.Duration) error

	// Exists reports whether key is recorded and not yet expired.
	Exists(ctx context.Context, key string) (bool, error)

	Close() error
}
