// Package circuitbreaker guards calls to the shared stores so a dead store
// is skipped quickly instead of costing a timeout on every request.
package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/marketgw/internal/observability"
)

// ErrOpen is returned without calling the store while the breaker is open
// or its half-open probe budget is spent.
var ErrOpen = errors.New("circuit breaker is open")

// Config configures a Breaker.
type Config struct {
	Enabled bool
	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32
	// Interval is the cyclic period for clearing counts while closed.
	Interval time.Duration
	// Timeout is how long the breaker stays open.
	Timeout time.Duration
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
}

// StateObserver receives state changes as 0 (closed), 1 (half-open) or 2 (open).
type StateObserver func(name string, state int)

// Breaker wraps gobreaker for store calls.
type Breaker struct {
	name   string
	cb     *gobreaker.CircuitBreaker
	logger observability.Logger
}

// Option configures a Breaker.
type Option func(*options)

type options struct {
	logger   observability.Logger
	observer StateObserver
}

// WithLogger logs state transitions.
func WithLogger(l observability.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStateObserver publishes state transitions, typically to a gauge.
func WithStateObserver(fn StateObserver) Option {
	return func(o *options) { o.observer = fn }
}

// New returns a breaker, or nil when cfg is disabled. A nil *Breaker runs
// every call directly.
func New(name string, cfg Config, opts ...Option) *Breaker {
	if !cfg.Enabled {
		return nil
	}

	o := options{logger: observability.NopLogger()}
	for _, opt := range opts {
		opt(&o)
	}

	threshold := cfg.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}

	b := &Breaker{name: name, logger: o.logger}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			o.logger.Warn("circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			if o.observer != nil {
				o.observer(name, stateValue(to))
			}
		},
		IsSuccessful: func(err error) bool {
			// the caller going away says nothing about the store
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	if o.observer != nil {
		o.observer(name, stateValue(gobreaker.StateClosed))
	}
	return b
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	if b == nil {
		return fn()
	}

	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}

// State returns the current state name.
func (b *Breaker) State() string {
	if b == nil {
		return "disabled"
	}
	return b.cb.State().String()
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	if b == nil {
		return ""
	}
	return b.name
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
