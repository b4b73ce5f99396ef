package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errStore = errors.New("store down")

func testConfig() Config {
	return Config{
		Enabled:             true,
		MaxRequests:         1,
		Interval:            time.Minute,
		Timeout:             50 * time.Millisecond,
		ConsecutiveFailures: 3,
	}
}

func TestBreaker_Disabled(t *testing.T) {
	t.Parallel()

	b := New("off", Config{Enabled: false})
	assert.Nil(t, b)
	assert.Equal(t, "disabled", b.State())
	assert.Empty(t, b.Name())

	calls := 0
	for i := 0; i < 10; i++ {
		assert.ErrorIs(t, b.Execute(func() error { calls++; return errStore }), errStore)
	}
	assert.Equal(t, 10, calls)
}

func TestBreaker_TripsAndRecovers(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var states []int
	b := New("store", testConfig(), WithStateObserver(func(_ string, s int) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}))
	require.NotNil(t, b)
	assert.Equal(t, "store", b.Name())

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Execute(func() error { return errStore }), errStore)
	}
	assert.Equal(t, "open", b.State())

	called := false
	err := b.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)

	time.Sleep(60 * time.Millisecond)
	require.NoError(t, b.Execute(func() error { return nil }))
	assert.Equal(t, "closed", b.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 2, 1, 0}, states)
}

func TestBreaker_CanceledDoesNotCount(t *testing.T) {
	t.Parallel()

	b := New("store", testConfig())
	for i := 0; i < 10; i++ {
		_ = b.Execute(func() error { return context.Canceled })
	}
	assert.Equal(t, "closed", b.State())
}

func TestBreaker_DeadlineCounts(t *testing.T) {
	t.Parallel()

	b := New("store", testConfig())
	for i := 0; i < 3; i++ {
		_ = b.Execute(func() error { return context.DeadlineExceeded })
	}
	assert.Equal(t, "open", b.State())
}
