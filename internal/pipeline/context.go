package pipeline

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/vyrodovalexey/marketgw/internal/auth"
	"github.com/vyrodovalexey/marketgw/internal/ratelimit"
)

// RequestContext is the per-request state passed through the stages. It is
// owned by the request's goroutine and discarded once the response is sent.
type RequestContext struct {
	Request   *http.Request
	Writer    http.ResponseWriter
	Path      string
	ClientKey string
	StartedAt time.Time

	// RateLimit is set by the rate limit stage.
	RateLimit ratelimit.Result
	// Auth is set by the auth stage.
	Auth auth.Decision

	writer *decoratingWriter

	mu    sync.Mutex
	state State
	trail []State
}

func newRequestContext(w *decoratingWriter, r *http.Request, now time.Time) *RequestContext {
	return &RequestContext{
		Request:   r,
		Writer:    w,
		writer:    w,
		Path:      r.URL.Path,
		StartedAt: now,
		state:     StateReceived,
		trail:     []State{StateReceived},
	}
}

// State returns the current state.
func (rc *RequestContext) State() State {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.state
}

// Trail returns every state visited, in order.
func (rc *RequestContext) Trail() []State {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]State(nil), rc.trail...)
}

// Outcome is the state that decided the request: RateLimited, Unauthorized,
// or the latest state reached otherwise.
func (rc *RequestContext) Outcome() State {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for _, s := range rc.trail {
		if s == StateRateLimited || s == StateUnauthorized {
			return s
		}
	}
	return rc.state
}

// Transition moves to next, or returns ErrInvalidTransition.
func (rc *RequestContext) Transition(next State) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if !CanTransition(rc.state, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rc.state, next)
	}
	rc.state = next
	rc.trail = append(rc.trail, next)
	return nil
}

// Committed reports whether the response status has been written.
func (rc *RequestContext) Committed() bool {
	return rc.writer.committed
}

// Identity returns the authenticated identity, or nil for public paths and
// rejected requests.
func (rc *RequestContext) Identity() *auth.Identity {
	return rc.Auth.Identity
}
