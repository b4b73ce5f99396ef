package revocation

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps revocations in process. Revocations made on one gateway
// replica are invisible to the others, so it only suits single node setups.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
	closed  bool
	stopCh  chan struct{}
	stopped sync.WaitGroup
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore starts a store that drops expired entries every
// cleanupInterval. A non-positive interval disables the sweeper.
func NewMemoryStore(cleanupInterval time.Duration, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cleanupInterval > 0 {
		s.stopped.Add(1)
		go s.sweep(cleanupInterval)
	}
	return s
}

// Set implements Store.
func (s *MemoryStore) Set(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.entries[key] = s.now().Add(ttl)
	return nil
}

// Exists implements Store.
func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrStoreClosed
	}
	exp, ok := s.entries[key]
	return ok && s.now().Before(exp), nil
}

// Close stops the sweeper and rejects further calls.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopCh)
	s.stopped.Wait()
	return nil
}

// Len returns the number of unexpired entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	n := 0
	for _, exp := range s.entries {
		if now.Before(exp) {
			n++
		}
	}
	return n
}

func (s *MemoryStore) sweep(interval time.Duration) {
	defer s.stopped.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.mu.Lock()
			now := s.now()
			for k, exp := range s.entries {
				if !now.Before(exp) {
					delete(s.entries, k)
				}
			}
			s.mu.Unlock()
		}
	}
}
