package pipeline

import (
	"io"
	"net/http"
)

// Response bodies. Every authentication failure gets the same body.
const (
	BodyUnauthorized  = `{"error":"unauthorized"}`
	BodyRateLimited   = `{"error":"rate limit exceeded"}`
	BodyInternalError = `{"error":"internal server error"}`
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-Rate-Limit-Limit"
	HeaderRateLimitRemaining = "X-Rate-Limit-Remaining"
	HeaderRetryAfter         = "Retry-After"
)

const (
	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
)

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
