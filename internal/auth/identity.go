package auth

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Identity headers set by the gateway on forwarded requests. Downstream
// services trust them only because the gateway strips client copies.
const (
	HeaderUserName  = "X-User-Name"
	HeaderUserID    = "X-User-Id"
	HeaderUserRoles = "X-User-Roles"
)

var identityHeaders = []string{HeaderUserName, HeaderUserID, HeaderUserRoles}

// Identity is the authenticated caller.
type Identity struct {
	Subject   string
	UserID    string
	Roles     []string
	TokenID   string
	ExpiresAt time.Time
}

// HasRole reports whether the identity holds role.
func (i *Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Apply writes the identity headers into h, replacing any present.
func (i *Identity) Apply(h http.Header) {
	StripIdentityHeaders(h)
	h.Set(HeaderUserName, i.Subject)
	if i.UserID != "" {
		h.Set(HeaderUserID, i.UserID)
	}
	if len(i.Roles) > 0 {
		h.Set(HeaderUserRoles, strings.Join(i.Roles, ","))
	}
}

// StripIdentityHeaders removes every identity header from h.
func StripIdentityHeaders(h http.Header) {
	for _, name := range identityHeaders {
		h.Del(name)
	}
}

type identityContextKey struct{}

// ContextWithIdentity adds an identity to the context.
func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext extracts the identity from the context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	return identity, ok && identity != nil
}
