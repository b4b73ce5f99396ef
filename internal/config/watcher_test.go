package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_StartLoadsInitialConfig(t *testing.T) {
	path := writeConfig(t, validConfigYAML)

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })

	require.NotNil(t, w.Current())
	assert.Equal(t, 50, w.Current().RateLimit.RequestsPerMinute)

	// second start is a no-op
	assert.NoError(t, w.Start(context.Background()))
}

func TestWatcher_StartRejectsInvalidConfig(t *testing.T) {
	path := writeConfig(t, "token:\n  secret: short\n")

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)

	err = w.Start(context.Background())
	assert.ErrorContains(t, err, "invalid configuration")
	assert.NoError(t, w.Stop())
}

func TestWatcher_FileChange(t *testing.T) {
	path := writeConfig(t, validConfigYAML)

	var mu sync.Mutex
	var got *GatewayConfig
	called := make(chan struct{}, 1)

	w, err := NewWatcher(path, func(cfg *GatewayConfig) {
		mu.Lock()
		got = cfg
		mu.Unlock()
		select {
		case called <- struct{}{}:
		default:
		}
	}, WithDebounceDelay(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Stop() })

	time.Sleep(50 * time.Millisecond)
	updated := strings.Replace(validConfigYAML, "requestsPerMinute: 50", "requestsPerMinute: 7", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	select {
	case <-called:
		mu.Lock()
		assert.Equal(t, 7, got.RateLimit.RequestsPerMinute)
		mu.Unlock()
		assert.Equal(t, 7, w.Current().RateLimit.RequestsPerMinute)
	case <-time.After(3 * time.Second):
		t.Fatal("reload callback was not called")
	}
}

func TestWatcher_InvalidChangeKeepsPrevious(t *testing.T) {
	path := writeConfig(t, validConfigYAML)

	errCh := make(chan error, 1)
	w, err := NewWatcher(path, func(*GatewayConfig) {
		t.Error("callback must not run for an invalid file")
	},
		WithDebounceDelay(20*time.Millisecond),
		WithErrorCallback(func(err error) {
			select {
			case errCh <- err:
			default:
			}
		}),
	)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Stop() })

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("routes: [oops"), 0o600))

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("error callback was not called")
	}
	assert.Equal(t, 50, w.Current().RateLimit.RequestsPerMinute)
}

func TestWatcher_ReloadMissingFile(t *testing.T) {
	t.Parallel()

	w, err := NewWatcher(filepath.Join(t.TempDir(), "gone.yaml"), nil)
	require.NoError(t, err)
	assert.Error(t, w.Reload())
	assert.NoError(t, w.Stop())
}
