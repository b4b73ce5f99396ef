package store

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	value     int64
	expiresAt time.Time
}

// MemoryStore is a single process Store for development and tests. It gives
// no sharing across gateway replicas.
type MemoryStore struct {
	mu      sync.Mutex
	data    map[string]*counter
	now     func() time.Time
	window  time.Duration
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

// WithWindow sets the expiry IncrementAndGet gives a new counter.
func WithWindow(d time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.window = d }
}

// NewMemoryStore starts a store that sweeps expired keys every cleanupInterval.
// A non-positive interval disables sweeping; expired keys are still ignored on read.
func NewMemoryStore(cleanupInterval time.Duration, opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		data:   make(map[string]*counter),
		now:    time.Now,
		window: DefaultWindow,
		stopCh: make(chan struct{}),
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

// IncrementAndGet implements Store. It starts the store's window on the
// first hit, like IncrementInWindow.
func (s *MemoryStore) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	return s.IncrementInWindow(ctx, key, s.window)
}

// IncrementInWindow implements WindowCounter.
func (s *MemoryStore) IncrementInWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	c, ok := s.data[key]
	if !ok || s.expired(c) {
		c = &counter{}
		s.data[key] = c
	}
	if window < time.Second {
		window = time.Second
	}
	c.value++
	if c.value == 1 || c.expiresAt.IsZero() {
		c.expiresAt = s.now().Add(window)
	}
	return c.value, nil
}

// SetExpiry implements Store. Setting expiry on a missing key does nothing,
// matching Redis EXPIRE.
func (s *MemoryStore) SetExpiry(ctx context.Context, key string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	if c, ok := s.data[key]; ok {
		c.expiresAt = s.now().Add(ttl)
	}
	return nil
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

// Len returns the number of live keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.data {
		if !s.expired(c) {
			n++
		}
	}
	return n
}

func (s *MemoryStore) expired(c *counter) bool {
	return !c.expiresAt.IsZero() && !s.now().Before(c.expiresAt)
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
			for k, c := range s.data {
				if s.expired(c) {
					delete(s.data, k)
				}
			}
			s.mu.Unlock()
		}
	}
}
