package security

import (
	"net/http"
	"strings"
)

// Header names set by the injector.
const (
	HeaderContentTypeOptions = "X-Content-Type-Options"
	HeaderFrameOptions       = "X-Frame-Options"
	HeaderXSSProtection      = "X-XSS-Protection"
	HeaderReferrerPolicy     = "Referrer-Policy"
	HeaderPermissionsPolicy  = "Permissions-Policy"
	HeaderCacheControl       = "Cache-Control"
	HeaderPragma             = "Pragma"
)

var baseHeaders = [...][2]string{
	{HeaderContentTypeOptions, "nosniff"},
	{HeaderFrameOptions, "DENY"},
	{HeaderXSSProtection, "1; mode=block"},
	{HeaderReferrerPolicy, "strict-origin-when-cross-origin"},
	{HeaderPermissionsPolicy, "geolocation=(), microphone=(), camera=()"},
}

var noCacheHeaders = [...][2]string{
	{HeaderCacheControl, "no-store, no-cache, must-revalidate, private"},
	{HeaderPragma, "no-cache"},
}

// SensitivePathMarkers select the paths whose responses must not be cached.
var SensitivePathMarkers = []string{"/api/auth/", "/api/member/"}

// HeaderInjector applies the header set. The zero value is ready to use.
type HeaderInjector struct{}

// NewHeaderInjector returns a HeaderInjector.
func NewHeaderInjector() *HeaderInjector {
	return &HeaderInjector{}
}

// Apply sets the headers for a response to path, overwriting values
// written by upstream services.
func (*HeaderInjector) Apply(h http.Header, path string) {
	for _, kv := range baseHeaders {
		h.Set(kv[0], kv[1])
	}
	if isSensitive(path) {
		for _, kv := range noCacheHeaders {
			h.Set(kv[0], kv[1])
		}
	}
}

func isSensitive(path string) bool {
	for _, marker := range SensitivePathMarkers {
		if strings.Contains(path, marker) {
			return true
		}
	}
	return false
}
