package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vyrodovalexey/marketgw/internal/observability"
)

const defaultDebounceDelay = 100 * time.Millisecond

// ReloadFunc receives every configuration that loads and validates.
type ReloadFunc func(*GatewayConfig)

// Watcher reloads the configuration file when it changes on disk.
type Watcher struct {
	path     string
	fs       *fsnotify.Watcher
	onReload ReloadFunc
	onError  func(error)
	logger   observability.Logger
	debounce time.Duration

	mu      sync.RWMutex
	current *GatewayConfig
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay coalesces bursts of file events.
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithLogger sets the watcher logger.
func WithLogger(logger observability.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// WithErrorCallback is called when a reload fails.
func WithErrorCallback(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onError = fn }
}

// NewWatcher prepares a watcher for path. Call Start to begin.
func NewWatcher(path string, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		path:     absPath,
		fs:       fs,
		onReload: onReload,
		logger:   observability.NopLogger(),
		debounce: defaultDebounceDelay,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start loads the file once and then watches its directory. Editors that
// replace the file by rename are handled because the directory is watched.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	cfg, err := loadValidated(w.path)
	if err != nil {
		return err
	}
	if err := w.fs.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	w.current = cfg
	w.running = true
	go w.loop(ctx)

	w.logger.Info("watching configuration file", observability.String("path", w.path))
	return nil
}

// Stop ends the watch loop and releases the file watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.fs.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	return w.fs.Close()
}

// Current returns the last configuration that loaded successfully.
func (w *Watcher) Current() *GatewayConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Reload loads the file now and invokes the reload callback on success.
func (w *Watcher) Reload() error {
	cfg, err := loadValidated(w.path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()

	if w.onReload != nil {
		w.onReload(cfg)
	}
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.doneCh)

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C
		case <-fire:
			fire = nil
			if err := w.Reload(); err != nil {
				w.fail(err)
				continue
			}
			w.logger.Info("configuration reloaded", observability.String("path", w.path))
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.fail(err)
		}
	}
}

func (w *Watcher) fail(err error) {
	w.logger.Error("configuration reload failed", observability.Error(err))
	if w.onError != nil {
		w.onError(err)
	}
}

func loadValidated(path string) (*GatewayConfig, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := ValidateConfig(cfg); err != nil {
		var verrs ValidationErrors
		if errors.As(err, &verrs) {
			return nil, fmt.Errorf("invalid configuration: %w", verrs)
		}
		return nil, err
	}
	return cfg, nil
}
