package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// UnknownClient is the key used when no origin can be resolved.
const UnknownClient = "unknown"

// KeyFunc derives a rate limit key from a request.
type KeyFunc func(r *http.Request) string

// ClientKey resolves the client address. The first entry of X-Forwarded-For
// wins, then X-Real-IP, then the connection peer without its port.
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			if host != "" {
				return host
			}
		} else {
			return r.RemoteAddr
		}
	}

	return UnknownClient
}
