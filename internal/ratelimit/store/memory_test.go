package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryStore_WindowLifecycle(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := NewMemoryStore(0, WithClock(clock.Now))
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	n, err := s.IncrementAndGet(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, s.SetExpiry(ctx, "k", time.Minute))

	n, err = s.IncrementAndGet(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	clock.Advance(59 * time.Second)
	assert.Equal(t, 1, s.Len())

	clock.Advance(time.Second)
	assert.Equal(t, 0, s.Len())

	n, err = s.IncrementAndGet(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryStore_SetExpiryOnMissingKey(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(0)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.SetExpiry(context.Background(), "absent", time.Minute))
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_Concurrent(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(time.Millisecond)
	t.Cleanup(func() { _ = s.Close() })

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, _ = s.IncrementAndGet(context.Background(), "k")
		}()
	}
	wg.Wait()

	got, err := s.IncrementAndGet(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, int64(n+1), got)
}

func TestMemoryStore_SweepRemovesExpired(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(5 * time.Millisecond)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	_, err := s.IncrementAndGet(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, s.SetExpiry(ctx, "k", time.Millisecond))

	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.data) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestMemoryStore_Closed(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(time.Minute)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.IncrementAndGet(context.Background(), "k")
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, s.SetExpiry(context.Background(), "k", time.Second), ErrStoreClosed)
}

func TestMemoryStore_ContextCancelled(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore(0)
	t.Cleanup(func() { _ = s.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.IncrementAndGet(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryStore_FirstHitStartsWindow(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := NewMemoryStore(0, WithClock(clock.Now), WithWindow(30*time.Second))
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	_, err := s.IncrementAndGet(ctx, "k")
	require.NoError(t, err)

	clock.Advance(29 * time.Second)
	n, err := s.IncrementAndGet(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	clock.Advance(time.Second)
	n, err = s.IncrementAndGet(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryStore_RepairsCounterWithoutExpiry(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := NewMemoryStore(0, WithClock(clock.Now))
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	s.mu.Lock()
	s.data["k"] = &counter{value: 5}
	s.mu.Unlock()

	n, err := s.IncrementAndGet(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	clock.Advance(time.Minute)
	n, err = s.IncrementAndGet(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
