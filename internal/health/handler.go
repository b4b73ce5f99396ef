package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/marketgw/internal/observability"
)

// Endpoint paths.
const (
	LivenessPath  = "/healthz"
	ReadinessPath = "/readyz"
	MetricsPath   = "/metrics"
)

// DefaultReadinessTimeout bounds a readiness probe.
const DefaultReadinessTimeout = 2 * time.Second

const (
	statusOK       = "ok"
	statusError    = "error"
	statusDraining = "draining"
)

var ginModeOnce sync.Once

// Check is a named readiness check.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Status is the body of a readiness response.
type Status struct {
	Status    string                  `json:"status"`
	Timestamp time.Time               `json:"timestamp"`
	Uptime    string                  `json:"uptime,omitempty"`
	Checks    map[string]*CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// Handler serves the admin endpoints.
type Handler struct {
	mu          sync.RWMutex
	checks      []Check
	draining    atomic.Bool
	logger      observability.Logger
	metrics     http.Handler
	metricsPath string
	timeout     time.Duration
	startTime   time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger for failed checks.
func WithLogger(l observability.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithMetricsHandler serves m on path, or on MetricsPath when path is empty.
func WithMetricsHandler(path string, m http.Handler) Option {
	return func(h *Handler) {
		if path == "" {
			path = MetricsPath
		}
		h.metrics = m
		h.metricsPath = path
	}
}

// WithReadinessTimeout bounds each readiness probe.
func WithReadinessTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// NewHandler returns a Handler with no checks.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		logger:    observability.NopLogger(),
		timeout:   DefaultReadinessTimeout,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AddCheck registers a readiness check.
func (h *Handler) AddCheck(name string, fn func(ctx context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, Check{Name: name, Fn: fn})
}

// SetDraining marks the gateway as shutting down. Readiness fails while set.
func (h *Handler) SetDraining(draining bool) {
	h.draining.Store(draining)
}

// IsDraining reports whether SetDraining(true) is in effect.
func (h *Handler) IsDraining() bool {
	return h.draining.Load()
}

// Engine returns a gin engine with the admin routes.
func (h *Handler) Engine() *gin.Engine {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET(LivenessPath, h.Liveness)
	engine.GET(ReadinessPath, h.Readiness)
	if h.metrics != nil {
		engine.GET(h.metricsPath, gin.WrapH(h.metrics))
	}
	return engine
}

// Liveness always answers 200 while the process serves requests.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    statusOK,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Readiness runs the checks and answers 200 or 503.
func (h *Handler) Readiness(c *gin.Context) {
	if h.IsDraining() {
		c.JSON(http.StatusServiceUnavailable, Status{Status: statusDraining, Timestamp: time.Now().UTC()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	status := h.runChecks(ctx)
	code := http.StatusOK
	if status.Status != statusOK {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (h *Handler) runChecks(ctx context.Context) *Status {
	h.mu.RLock()
	checks := make([]Check, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := &Status{
		Status:    statusOK,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]*CheckResult, len(checks)),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, check := range checks {
		wg.Add(1)
		go func(ch Check) {
			defer wg.Done()

			start := time.Now()
			err := ch.Fn(ctx)
			duration := time.Since(start)

			result := &CheckResult{Status: statusOK, Duration: duration.String()}
			if err != nil {
				result.Status = statusError
				result.Error = err.Error()
				h.logger.Warn("readiness check failed",
					observability.String("check", ch.Name),
					observability.Error(err),
					observability.Duration("duration", duration),
				)
			}

			mu.Lock()
			status.Checks[ch.Name] = result
			if err != nil {
				status.Status = statusError
			}
			mu.Unlock()
		}(check)
	}
	wg.Wait()

	return status
}
