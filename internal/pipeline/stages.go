package pipeline

import (
	"context"
	"net/http"

	"github.com/vyrodovalexey/marketgw/internal/auth"
	"github.com/vyrodovalexey/marketgw/internal/observability"
	"github.com/vyrodovalexey/marketgw/internal/ratelimit"
)

// Verdict tells the pipeline whether to run the next stage.
type Verdict int

// Verdicts.
const (
	Continue Verdict = iota
	Halt
)

// Stage is one step of the pipeline. A stage that halts has already written
// the response. An error means the stage could not run at all.
type Stage interface {
	Name() string
	Process(rc *RequestContext) (Verdict, error)
}

// Authenticator is implemented by *auth.Authenticator.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) auth.Decision
}

// RateLimitStage admits or rejects by client key.
type RateLimitStage struct {
	limiter ratelimit.Limiter
	keyFunc ratelimit.KeyFunc
}

// NewRateLimitStage returns a stage using keyFunc, or ratelimit.ClientKey
// when keyFunc is nil.
func NewRateLimitStage(l ratelimit.Limiter, keyFunc ratelimit.KeyFunc) *RateLimitStage {
	if keyFunc == nil {
		keyFunc = ratelimit.ClientKey
	}
	return &RateLimitStage{limiter: l, keyFunc: keyFunc}
}

// Name implements Stage.
func (*RateLimitStage) Name() string { return "ratelimit" }

// Process implements Stage.
func (s *RateLimitStage) Process(rc *RequestContext) (Verdict, error) {
	rc.ClientKey = s.keyFunc(rc.Request)
	rc.RateLimit = s.limiter.Admit(rc.Request.Context(), rc.ClientKey)

	if !rc.RateLimit.Allowed {
		if err := rc.Transition(StateRateLimited); err != nil {
			return Halt, err
		}
		writeJSON(rc.Writer, http.StatusTooManyRequests, BodyRateLimited)
		return Halt, nil
	}
	return Continue, rc.Transition(StateRateLimitChecked)
}

// AuthStage rejects requests without a usable token.
type AuthStage struct {
	auth Authenticator
}

// NewAuthStage returns a stage backed by a.
func NewAuthStage(a Authenticator) *AuthStage {
	return &AuthStage{auth: a}
}

// Name implements Stage.
func (*AuthStage) Name() string { return "auth" }

// Process implements Stage.
func (s *AuthStage) Process(rc *RequestContext) (Verdict, error) {
	rc.Auth = s.auth.Authenticate(rc.Request.Context(), rc.Request)

	if !rc.Auth.Authenticated() {
		if err := rc.Transition(StateUnauthorized); err != nil {
			return Halt, err
		}
		writeJSON(rc.Writer, http.StatusUnauthorized, BodyUnauthorized)
		return Halt, nil
	}

	if id := rc.Identity(); id != nil {
		observability.RequestInfoFromContext(rc.Request.Context()).SetSubject(id.Subject)
	}
	return Continue, rc.Transition(StateAuthenticated)
}

// RouteStage hands the request to the downstream handler with the identity
// headers set.
type RouteStage struct {
	next http.Handler
}

// NewRouteStage returns a stage that forwards to next.
func NewRouteStage(next http.Handler) *RouteStage {
	return &RouteStage{next: next}
}

// Name implements Stage.
func (*RouteStage) Name() string { return "route" }

// Process implements Stage.
func (s *RouteStage) Process(rc *RequestContext) (Verdict, error) {
	if err := rc.Transition(StateRouted); err != nil {
		return Halt, err
	}

	r := rc.Request
	if id := rc.Identity(); id != nil {
		id.Apply(r.Header)
		r = r.WithContext(auth.ContextWithIdentity(r.Context(), id))
	}
	s.next.ServeHTTP(rc.Writer, r)
	return Continue, nil
}

// Standard returns the stages in their required order: rate limit, then
// authentication, then routing.
func Standard(l ratelimit.Limiter, keyFunc ratelimit.KeyFunc, a Authenticator, next http.Handler) []Stage {
	return []Stage{
		NewRateLimitStage(l, keyFunc),
		NewAuthStage(a),
		NewRouteStage(next),
	}
}
