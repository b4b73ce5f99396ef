package main

import (
	"context"
	"reflect"

	"github.com/vyrodovalexey/marketgw/internal/config"
	"github.com/vyrodovalexey/marketgw/internal/observability"
	"github.com/vyrodovalexey/marketgw/internal/ratelimit"
)

// Reload result label values.
const (
	reloadApplied = "applied"
	reloadFailed  = "failed"
)

// startConfigWatcher starts the configuration watcher. A watcher that cannot
// start is logged and the gateway keeps its startup configuration.
func startConfigWatcher(ctx context.Context, app *application, configPath string) *config.Watcher {
	watcher, err := config.NewWatcher(configPath, app.applyConfig,
		config.WithLogger(app.logger),
		config.WithErrorCallback(func(err error) {
			app.metrics.RecordConfigReload(reloadFailed)
			app.logger.Error("configuration reload rejected", observability.Error(err))
		}),
	)
	if err != nil {
		app.logger.Warn("failed to create config watcher", observability.Error(err))
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		app.logger.Warn("failed to start config watcher", observability.Error(err))
		return nil
	}
	return watcher
}

// applyConfig applies the runtime-tunable settings of newCfg: the rate limit
// switch and threshold, and the public path allow-list. Every other change
// is reported and waits for a restart; currentConfig keeps the running values
// for those.
func (a *application) applyConfig(newCfg *config.GatewayConfig) {
	a.cfgMu.Lock()
	old := a.config
	running := *old
	running.RateLimit.Enabled = newCfg.RateLimit.Enabled
	running.RateLimit.RequestsPerMinute = newCfg.RateLimit.RequestsPerMinute
	running.Auth.PublicPaths = append([]string(nil), newCfg.Auth.PublicPaths...)
	a.config = &running
	a.cfgMu.Unlock()

	a.limiter.Update(ratelimit.Settings{
		Enabled:           newCfg.RateLimit.Enabled,
		RequestsPerMinute: newCfg.RateLimit.RequestsPerMinute,
	})
	a.auth.PublicPaths().Set(newCfg.Auth.PublicPaths)
	a.metrics.RecordConfigReload(reloadApplied)

	a.logger.Info("runtime settings applied",
		observability.Bool("rate_limit_enabled", newCfg.RateLimit.Enabled),
		observability.Int("requests_per_minute", newCfg.RateLimit.RequestsPerMinute),
		observability.Strings("public_paths", newCfg.Auth.PublicPaths),
	)

	if restartRequired(old, newCfg) {
		a.logger.Warn("configuration changes outside rateLimit and auth.publicPaths need a restart")
	}
}

// restartRequired reports whether anything besides the hot settings changed.
func restartRequired(old, cur *config.GatewayConfig) bool {
	if old == nil || cur == nil {
		return false
	}
	a, b := *old, *cur
	a.RateLimit.Enabled, b.RateLimit.Enabled = false, false
	a.RateLimit.RequestsPerMinute, b.RateLimit.RequestsPerMinute = 0, 0
	a.Auth.PublicPaths, b.Auth.PublicPaths = nil, nil
	return !reflect.DeepEqual(a, b)
}
