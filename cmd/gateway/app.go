package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/marketgw/internal/auth"
	"github.com/vyrodovalexey/marketgw/internal/authapi"
	"github.com/vyrodovalexey/marketgw/internal/circuitbreaker"
	"github.com/vyrodovalexey/marketgw/internal/config"
	"github.com/vyrodovalexey/marketgw/internal/health"
	"github.com/vyrodovalexey/marketgw/internal/middleware"
	"github.com/vyrodovalexey/marketgw/internal/observability"
	"github.com/vyrodovalexey/marketgw/internal/pipeline"
	"github.com/vyrodovalexey/marketgw/internal/proxy"
	"github.com/vyrodovalexey/marketgw/internal/ratelimit"
	"github.com/vyrodovalexey/marketgw/internal/ratelimit/store"
	"github.com/vyrodovalexey/marketgw/internal/redisclient"
	"github.com/vyrodovalexey/marketgw/internal/revocation"
	"github.com/vyrodovalexey/marketgw/internal/security"
	"github.com/vyrodovalexey/marketgw/internal/token"
)

const (
	authRouteName   = "auth"
	authRoutePrefix = "/api/auth/"

	memoryCleanupInterval = time.Minute
	readHeaderTimeout     = 10 * time.Second
)

// application holds all wired components.
type application struct {
	logger  observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	redis      *redis.Client
	rateStore  store.Store
	revStore   revocation.Store
	limiter    *ratelimit.FixedWindowLimiter
	auth       *auth.Authenticator
	pipeline   *pipeline.Pipeline
	health     *health.Handler
	handler    http.Handler
	server     *http.Server
	admin      *http.Server
	cfgMu      sync.Mutex
	config     *config.GatewayConfig
	closeOnce  sync.Once
	closeError error
}

// newApplication wires every component from cfg. It does not open listeners.
func newApplication(ctx context.Context, cfg *config.GatewayConfig, logger observability.Logger) (*application, error) {
	app := &application{
		logger:  logger,
		metrics: observability.NewMetrics(cfg.Observability.Metrics.Namespace),
		config:  cfg,
	}
	app.metrics.SetBuildInfo(version, gitCommit, buildTime)

	tracer, err := observability.NewTracer(cfg.Observability.Tracing)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	app.tracer = tracer

	if err := app.initStores(ctx, cfg); err != nil {
		return nil, err
	}

	codec, err := token.NewCodec([]byte(cfg.Token.Secret), token.WithIssuer(cfg.Token.Issuer))
	if err != nil {
		return nil, fmt.Errorf("failed to create token codec: %w", err)
	}

	app.limiter = ratelimit.NewFixedWindowLimiter(app.rateStore,
		ratelimit.Settings{Enabled: cfg.RateLimit.Enabled, RequestsPerMinute: cfg.RateLimit.RequestsPerMinute},
		ratelimit.WithStoreTimeout(cfg.RateLimit.StoreTimeout.Duration()),
		ratelimit.WithBreaker(app.newBreaker(cfg, "ratelimit-store")),
		ratelimit.WithLogger(logger),
		ratelimit.WithMetrics(app.metrics),
	)

	revoker := revocation.NewService(app.revStore, codec,
		revocation.WithTimeout(cfg.Auth.RevocationTimeout.Duration()),
		revocation.WithBreaker(app.newBreaker(cfg, "revocation-store")),
		revocation.WithLogger(logger),
		revocation.WithMetrics(app.metrics),
	)

	app.auth = auth.NewAuthenticator(codec, revoker,
		auth.WithPublicPaths(auth.NewPublicPaths(cfg.Auth.PublicPaths)),
		auth.WithCookieName(cfg.Auth.CookieName),
		auth.WithLogger(logger),
		auth.WithMetrics(app.metrics),
	)

	members := authapi.NewHTTPMemberClient(cfg.MemberService.BaseURL, cfg.MemberService.Timeout.Duration(),
		authapi.WithMemberBreaker(app.newBreaker(cfg, "member-service")),
	)
	login := authapi.NewHandler(members, codec, revoker, authapi.Config{
		TokenTTL:     cfg.Token.TTL.Duration(),
		CookieName:   cfg.Auth.CookieName,
		SecureCookie: cfg.Auth.SecureCookie,
	}, authapi.WithLogger(logger))

	router, err := buildRouter(cfg.Routes, login.Engine())
	if err != nil {
		return nil, err
	}
	upstreams := proxy.NewReverseProxy(router, proxy.WithLogger(logger))

	injector := security.NewHeaderInjector()
	app.pipeline = pipeline.New(
		pipeline.Standard(app.limiter, ratelimit.ClientKey, app.auth, upstreams),
		pipeline.WithHeaderInjector(injector),
		pipeline.WithTracer(tracer),
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(app.metrics),
	)

	app.handler = buildMiddlewareChain(app.pipeline, logger, app.metrics, tracer, injector)

	healthOpts := []health.Option{health.WithLogger(logger)}
	if cfg.Observability.Metrics.Enabled {
		healthOpts = append(healthOpts, health.WithMetricsHandler(cfg.Observability.Metrics.Path, app.metrics.Handler()))
	}
	app.health = health.NewHandler(healthOpts...)
	if app.redis != nil {
		app.health.AddCheck("redis", redisclient.Ping(app.redis, cfg.Redis.ReadTimeout.Duration()))
	}

	app.server = &http.Server{
		Addr:              cfg.Listener.Address,
		Handler:           app.handler,
		ReadTimeout:       cfg.Listener.ReadTimeout.Duration(),
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      cfg.Listener.WriteTimeout.Duration(),
		IdleTimeout:       cfg.Listener.IdleTimeout.Duration(),
	}
	app.admin = &http.Server{
		Addr:              cfg.Admin.Address,
		Handler:           app.health.Engine(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	logger.Info("gateway initialized",
		observability.Strings("stages", app.pipeline.Stages()),
		observability.Int("routes", len(router.Routes())),
	)
	return app, nil
}

// initStores creates the rate limit and revocation stores for the configured
// backend. An unreachable Redis is logged and the gateway starts degraded:
// the limiter fails open and authentication fails closed until it answers.
func (a *application) initStores(ctx context.Context, cfg *config.GatewayConfig) error {
	switch cfg.Store.Backend {
	case config.StoreBackendMemory:
		a.logger.Warn("using in-memory stores; counters and revocations are not shared between instances")
		a.rateStore = store.NewMemoryStore(memoryCleanupInterval)
		a.revStore = revocation.NewMemoryStore(memoryCleanupInterval)
	case config.StoreBackendRedis:
		client, err := redisclient.New(ctx, cfg.Redis, redisclient.Options{Logger: a.logger})
		if err != nil {
			if client == nil {
				return fmt.Errorf("failed to create redis client: %w", err)
			}
			a.logger.Error("redis unreachable at startup, continuing degraded", observability.Error(err))
		}
		a.redis = client
		a.rateStore = store.NewRedisStore(client, cfg.RateLimit.KeyPrefix, store.WithRedisMetrics(a.metrics))
		a.revStore = revocation.NewRedisStore(client, "", revocation.WithStoreMetrics(a.metrics))
	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	return nil
}

func (a *application) newBreaker(cfg *config.GatewayConfig, name string) *circuitbreaker.Breaker {
	cb := cfg.CircuitBreaker
	return circuitbreaker.New(name, circuitbreaker.Config{
		Enabled:             cb.Enabled,
		MaxRequests:         cb.MaxRequests,
		Interval:            cb.Interval.Duration(),
		Timeout:             cb.Timeout.Duration(),
		ConsecutiveFailures: cb.ConsecutiveFailures,
	},
		circuitbreaker.WithLogger(a.logger),
		circuitbreaker.WithStateObserver(a.metrics.SetCircuitBreakerState),
	)
}

// buildRouter adds the in-process login and logout engine to the configured
// upstream routes.
func buildRouter(routes []config.RouteConfig, login http.Handler) (*proxy.Router, error) {
	upstreams, err := proxy.RoutesFromConfig(routes)
	if err != nil {
		return nil, fmt.Errorf("failed to load routes: %w", err)
	}
	upstreams = append(upstreams, proxy.Route{
		Name:    authRouteName,
		Prefix:  authRoutePrefix,
		Handler: login,
	})

	router, err := proxy.NewRouter(upstreams)
	if err != nil {
		return nil, fmt.Errorf("failed to build router: %w", err)
	}
	return router, nil
}

// buildMiddlewareChain wraps the pipeline. The execution order (outermost
// executes first):
// Recovery -> RequestID -> Tracing -> Logging -> [pipeline]
//
// Tracing runs before Logging so the access log carries the trace and span IDs.
func buildMiddlewareChain(
	h http.Handler,
	logger observability.Logger,
	metrics *observability.Metrics,
	tracer *observability.Tracer,
	headers *security.HeaderInjector,
) http.Handler {
	return middleware.Chain(h,
		middleware.Recovery(logger, headers, metrics),
		middleware.RequestID(),
		observability.TracingMiddleware(tracer),
		middleware.Logging(logger, metrics),
	)
}

// currentConfig returns the configuration last applied.
func (a *application) currentConfig() *config.GatewayConfig {
	a.cfgMu.Lock()
	defer a.cfgMu.Unlock()
	return a.config
}

// closeStores releases the stores and the Redis client once.
func (a *application) closeStores() error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.rateStore != nil {
			errs = append(errs, a.rateStore.Close())
		}
		if a.revStore != nil {
			errs = append(errs, a.revStore.Close())
		}
		if a.redis != nil {
			errs = append(errs, a.redis.Close())
		}
		a.closeError = errors.Join(errs...)
	})
	return a.closeError
}
