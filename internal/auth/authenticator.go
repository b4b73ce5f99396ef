package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/vyrodovalexey/marketgw/internal/observability"
	"github.com/vyrodovalexey/marketgw/internal/token"
)

// Verifier validates a raw token and returns its claims.
type Verifier interface {
	Verify(raw string) (*token.Claims, error)
}

// RevocationChecker reports whether a token has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, raw string) (bool, error)
}

// MetricsRecorder is the subset of gateway metrics the authenticator
// reports to.
type MetricsRecorder interface {
	RecordAuthRejection(reason string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthRejection(string) {}

// Decision is the outcome of Authenticate.
type Decision struct {
	// Public is set when the path bypassed authentication. Identity is nil then.
	Public   bool
	Identity *Identity
	Source   Source
	// Err is a *RejectionError when the request was rejected.
	Err error
}

// Authenticated reports whether the request may proceed.
func (d Decision) Authenticated() bool {
	return d.Err == nil
}

// Reason returns the rejection reason, or "" when authenticated.
func (d Decision) Reason() Reason {
	return ReasonOf(d.Err)
}

// Authenticator admits requests that carry a verified, unrevoked token.
type Authenticator struct {
	verifier    Verifier
	revocations RevocationChecker
	public      *PublicPaths
	cookieName  string
	logger      observability.Logger
	metrics     MetricsRecorder
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithPublicPaths sets the allow-list. The same *PublicPaths can be updated
// later to change it at runtime.
func WithPublicPaths(p *PublicPaths) Option {
	return func(a *Authenticator) { a.public = p }
}

// WithCookieName overrides DefaultCookieName.
func WithCookieName(name string) Option {
	return func(a *Authenticator) { a.cookieName = name }
}

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(a *Authenticator) { a.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(a *Authenticator) { a.metrics = m }
}

// NewAuthenticator returns an Authenticator. Without WithPublicPaths no path
// is public.
func NewAuthenticator(v Verifier, rc RevocationChecker, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:    v,
		revocations: rc,
		cookieName:  DefaultCookieName,
		logger:      observability.NopLogger(),
		metrics:     nopRecorder{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.public == nil {
		a.public = NewPublicPaths(nil)
	}
	return a
}

// PublicPaths returns the live allow-list.
func (a *Authenticator) PublicPaths() *PublicPaths {
	return a.public
}

// CookieName returns the cookie the token is read from.
func (a *Authenticator) CookieName() string {
	return a.cookieName
}

// Authenticate runs the public path check, extraction, verification and the
// revocation lookup, in that order, stopping at the first failure.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) Decision {
	if a.public.Match(r.URL.Path) {
		return Decision{Public: true}
	}

	raw, source := ExtractToken(r, a.cookieName)
	if raw == "" {
		return a.reject(ctx, r, source, ReasonMissing, ErrTokenMissing)
	}

	claims, err := a.verifier.Verify(raw)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return a.reject(ctx, r, source, ReasonExpired, err)
		}
		return a.reject(ctx, r, source, ReasonMalformed, err)
	}

	revoked, err := a.revocations.IsRevoked(ctx, raw)
	if err != nil {
		return a.reject(ctx, r, source, ReasonStoreUnavailable, err)
	}
	if revoked {
		return a.reject(ctx, r, source, ReasonRevoked, ErrTokenRevoked)
	}

	return Decision{
		Source: source,
		Identity: &Identity{
			Subject:   claims.Subject,
			UserID:    claims.UserID,
			Roles:     claims.Roles,
			TokenID:   claims.ID,
			ExpiresAt: claims.ExpiresAt,
		},
	}
}

func (a *Authenticator) reject(ctx context.Context, r *http.Request, source Source, reason Reason, err error) Decision {
	a.metrics.RecordAuthRejection(string(reason))

	fields := []observability.Field{
		observability.String("reason", string(reason)),
		observability.String("path", r.URL.Path),
		observability.Error(err),
	}
	if source != SourceNone {
		fields = append(fields, observability.String("source", string(source)))
	}
	if reason == ReasonStoreUnavailable {
		a.logger.WithContext(ctx).Error("revocation check failed, rejecting request", fields...)
	} else {
		a.logger.WithContext(ctx).Warn("authentication rejected", fields...)
	}

	return Decision{Source: source, Err: &RejectionError{Reason: reason, Err: err}}
}
