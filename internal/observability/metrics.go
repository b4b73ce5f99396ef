package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Rate limit decision label values.
const (
	DecisionAllowed  = "allowed"
	DecisionRejected = "rejected"
	DecisionFailOpen = "fail_open"
	DecisionDisabled = "disabled"
)

// Metrics holds the gateway's Prometheus collectors. Each instance owns its
// registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	pipelineOutcomes  *prometheus.CounterVec
	rateLimitDecision *prometheus.CounterVec
	authRejections    *prometheus.CounterVec
	storeErrors       *prometheus.CounterVec
	storeOperations   *prometheus.CounterVec
	storeDuration     *prometheus.HistogramVec
	revocations       *prometheus.CounterVec
	circuitBreaker    *prometheus.GaugeVec
	panicsRecovered   prometheus.Counter
	configReloads     *prometheus.CounterVec
	buildInfo         *prometheus.GaugeVec
}

// NewMetrics registers all gateway collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "marketgw"
	}

	m := &Metrics{registry: prometheus.NewRegistry()}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)
	m.pipelineOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "requests_total",
			Help:      "Requests by final pipeline state",
		},
		[]string{"final_state"},
	)
	m.rateLimitDecision = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Rate limiter decisions (allowed, rejected, fail_open, disabled)",
		},
		[]string{"decision"},
	)
	m.authRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "rejections_total",
			Help:      "Authentication rejections by reason",
		},
		[]string{"reason"},
	)
	m.storeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "errors_total",
			Help:      "Shared store call failures",
		},
		[]string{"store", "operation"},
	)
	m.storeOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Shared store calls by result",
		},
		[]string{"store", "operation", "status"},
	)
	m.storeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Shared store call latency",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"store", "operation"},
	)
	m.revocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "revocation",
			Name:      "revocations_total",
			Help:      "Token revocations by result",
		},
		[]string{"result"},
	)
	m.circuitBreaker = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
	m.panicsRecovered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "panics_recovered_total",
			Help:      "Handler panics recovered by the gateway",
		},
	)
	m.configReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reload_total",
			Help:      "Configuration reloads by result",
		},
		[]string{"result"},
	)
	m.buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.pipelineOutcomes,
		m.rateLimitDecision,
		m.authRejections,
		m.storeErrors,
		m.storeOperations,
		m.storeDuration,
		m.revocations,
		m.circuitBreaker,
		m.panicsRecovered,
		m.configReloads,
		m.buildInfo,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// RecordRequest records a completed request against its route name.
func (m *Metrics) RecordRequest(method, route string, status int, d time.Duration) {
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordPipelineOutcome counts a request by the state it finished in.
func (m *Metrics) RecordPipelineOutcome(state string) {
	m.pipelineOutcomes.WithLabelValues(state).Inc()
}

// RecordRateLimitDecision counts a limiter decision.
func (m *Metrics) RecordRateLimitDecision(decision string) {
	m.rateLimitDecision.WithLabelValues(decision).Inc()
}

// RecordAuthRejection counts an authentication rejection.
func (m *Metrics) RecordAuthRejection(reason string) {
	m.authRejections.WithLabelValues(reason).Inc()
}

// RecordStoreError counts a failed call against a shared store.
func (m *Metrics) RecordStoreError(store, operation string) {
	m.storeErrors.WithLabelValues(store, operation).Inc()
}

// RecordStoreOperation counts a shared store call and observes its latency.
func (m *Metrics) RecordStoreOperation(store, operation, status string, d time.Duration) {
	m.storeOperations.WithLabelValues(store, operation, status).Inc()
	m.storeDuration.WithLabelValues(store, operation).Observe(d.Seconds())
}

// RecordRevocation counts a revoke call by result.
func (m *Metrics) RecordRevocation(result string) {
	m.revocations.WithLabelValues(result).Inc()
}

// SetCircuitBreakerState publishes a breaker state.
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	m.circuitBreaker.WithLabelValues(name).Set(float64(state))
}

// RecordPanic counts a recovered panic.
func (m *Metrics) RecordPanic() {
	m.panicsRecovered.Inc()
}

// RecordConfigReload counts a configuration reload by result.
func (m *Metrics) RecordConfigReload(result string) {
	m.configReloads.WithLabelValues(result).Inc()
}

// SetBuildInfo publishes version information.
func (m *Metrics) SetBuildInfo(version, commit, buildTime string) {
	m.buildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// Registry returns the backing registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
