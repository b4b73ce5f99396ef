package auth

import (
	"net/http"
	"strings"
)

// DefaultCookieName is the cookie set at login.
const DefaultCookieName = "auth_token"

const bearerPrefix = "bearer "

// Source names where a token was found.
type Source string

// Token sources.
const (
	SourceNone   Source = ""
	SourceCookie Source = "cookie"
	SourceHeader Source = "header"
)

// ExtractToken returns the token from the named cookie, falling back to a
// Bearer Authorization header. An empty cookie counts as absent.
func ExtractToken(r *http.Request, cookieName string) (string, Source) {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if c, err := r.Cookie(cookieName); err == nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return v, SourceCookie
		}
	}
	if v := BearerToken(r.Header.Get("Authorization")); v != "" {
		return v, SourceHeader
	}
	return "", SourceNone
}

// BearerToken strips a case-insensitive "Bearer " scheme from an
// Authorization header value. Other schemes yield "".
func BearerToken(header string) string {
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}
