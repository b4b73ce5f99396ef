// Package pipeline runs the edge filters for every inbound request as an
// explicit, ordered list of stages: rate limiting, authentication, routing.
// Response headers (rate limit counters and the security set) are applied
// when the response is committed, so early exits are decorated too.
package pipeline

import (
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vyrodovalexey/marketgw/internal/auth"
	"github.com/vyrodovalexey/marketgw/internal/observability"
	"github.com/vyrodovalexey/marketgw/internal/security"
)

// MetricsRecorder is the subset of gateway metrics the pipeline reports to.
type MetricsRecorder interface {
	RecordPipelineOutcome(state string)
}

type nopRecorder struct{}

func (nopRecorder) RecordPipelineOutcome(string) {}

// Pipeline is an http.Handler running its stages in order.
type Pipeline struct {
	stages   []Stage
	injector *security.HeaderInjector
	tracer   *observability.Tracer
	logger   observability.Logger
	metrics  MetricsRecorder
	now      func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithHeaderInjector overrides the default injector.
func WithHeaderInjector(inj *security.HeaderInjector) Option {
	return func(p *Pipeline) { p.injector = inj }
}

// WithTracer opens a child span per stage.
func WithTracer(t *observability.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New returns a pipeline over stages, which run in the given order.
func New(stages []Stage, opts ...Option) *Pipeline {
	p := &Pipeline{
		stages:   append([]Stage(nil), stages...),
		injector: security.NewHeaderInjector(),
		logger:   observability.NopLogger(),
		metrics:  nopRecorder{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// ServeHTTP implements http.Handler.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	auth.StripIdentityHeaders(r.Header)

	dw := newDecoratingWriter(w)
	rc := newRequestContext(dw, r, p.now())
	dw.onCommit = func() { p.decorate(rc) }

	p.run(rc, r)

	if !dw.committed {
		dw.WriteHeader(http.StatusOK)
	}
	p.finish(rc)
}

func (p *Pipeline) run(rc *RequestContext, r *http.Request) {
	parent := r.Context()
	for _, stage := range p.stages {
		ctx, span := p.tracer.StartSpan(parent, "pipeline."+stage.Name())
		rc.Request = r.WithContext(ctx)

		verdict, err := stage.Process(rc)

		span.SetAttributes(attribute.String("pipeline.state", rc.State().String()))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if err != nil {
			p.logger.WithContext(parent).Error("pipeline stage failed",
				observability.String("stage", stage.Name()),
				observability.String("state", rc.State().String()),
				observability.Error(err),
			)
			if !rc.Committed() {
				writeJSON(rc.Writer, http.StatusInternalServerError, BodyInternalError)
			}
			return
		}
		if verdict == Halt {
			return
		}
	}
}

// decorate runs once, at commit.
func (p *Pipeline) decorate(rc *RequestContext) {
	h := rc.Writer.Header()

	if res := rc.RateLimit; res.Counted() {
		h.Set(HeaderRateLimitLimit, strconv.Itoa(res.Limit))
		h.Set(HeaderRateLimitRemaining, strconv.Itoa(res.Remaining))
		if !res.Allowed {
			h.Set(HeaderRetryAfter, strconv.Itoa(int(res.RetryAfter/time.Second)))
		}
	}
	p.injector.Apply(h, rc.Path)

	if err := rc.Transition(StateResponseDecorated); err != nil {
		p.logger.WithContext(rc.Request.Context()).Warn("unexpected decoration state",
			observability.Error(err),
		)
	}
}

func (p *Pipeline) finish(rc *RequestContext) {
	if err := rc.Transition(StateSent); err != nil {
		p.logger.WithContext(rc.Request.Context()).Warn("unexpected final state",
			observability.Error(err),
		)
	}

	outcome := rc.Outcome()
	p.metrics.RecordPipelineOutcome(outcome.String())

	info := observability.RequestInfoFromContext(rc.Request.Context())
	info.SetFinalState(outcome.String())
	info.SetClient(rc.ClientKey)

	p.logger.WithContext(rc.Request.Context()).Debug("pipeline finished",
		observability.String("outcome", outcome.String()),
		observability.Strings("trail", stateNamesOf(rc.Trail())),
		observability.Duration("elapsed", p.now().Sub(rc.StartedAt)),
	)
}

func stateNamesOf(states []State) []string {
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = s.String()
	}
	return names
}
