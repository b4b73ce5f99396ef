package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/vyrodovalexey/marketgw/internal/config"
	"github.com/vyrodovalexey/marketgw/internal/observability"
)

const defaultShutdownTimeout = 30 * time.Second

// runGateway serves until ctx is cancelled, then drains and releases every
// component.
func runGateway(ctx context.Context, app *application, configPath string) error {
	mainLn, err := net.Listen("tcp", app.server.Addr)
	if err != nil {
		_ = app.closeStores()
		return fmt.Errorf("failed to listen on %s: %w", app.server.Addr, err)
	}
	adminLn, err := net.Listen("tcp", app.admin.Addr)
	if err != nil {
		_ = mainLn.Close()
		_ = app.closeStores()
		return fmt.Errorf("failed to listen on %s: %w", app.admin.Addr, err)
	}

	serveErr := app.serve(mainLn, adminLn)
	watcher := startConfigWatcher(ctx, app, configPath)

	select {
	case <-ctx.Done():
		app.logger.Info("received shutdown signal")
	case err := <-serveErr:
		app.logger.Error("listener failed", observability.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.shutdownTimeout())
	defer cancel()
	return app.shutdown(shutdownCtx, watcher)
}

// serve starts both listeners and reports the first unexpected error.
func (a *application) serve(mainLn, adminLn net.Listener) <-chan error {
	errCh := make(chan error, 2)
	start := func(name string, srv *http.Server, ln net.Listener) {
		a.logger.Info("starting listener",
			observability.String("listener", name),
			observability.String("address", ln.Addr().String()),
		)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s listener: %w", name, err)
		}
	}
	go start("gateway", a.server, mainLn)
	go start("admin", a.admin, adminLn)
	return errCh
}

func (a *application) shutdownTimeout() time.Duration {
	if d := a.currentConfig().Listener.ShutdownTimeout.Duration(); d > 0 {
		return d
	}
	return defaultShutdownTimeout
}

// shutdown fails readiness first so load balancers stop sending traffic,
// drains in-flight requests, then flushes traces and closes the stores.
func (a *application) shutdown(ctx context.Context, watcher *config.Watcher) error {
	a.health.SetDraining(true)

	if watcher != nil {
		_ = watcher.Stop()
	}

	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("failed to drain gateway listener", observability.Error(err))
		errs = append(errs, err)
	}
	if err := a.admin.Shutdown(ctx); err != nil {
		a.logger.Error("failed to stop admin listener", observability.Error(err))
		errs = append(errs, err)
	}
	if err := a.tracer.Shutdown(ctx); err != nil {
		a.logger.Error("failed to shutdown tracer", observability.Error(err))
		errs = append(errs, err)
	}
	if err := a.closeStores(); err != nil {
		a.logger.Error("failed to close stores", observability.Error(err))
		errs = append(errs, err)
	}

	a.logger.Info("gateway stopped")
	return errors.Join(errs...)
}
