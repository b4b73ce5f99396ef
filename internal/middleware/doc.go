// Package middleware holds the outer HTTP middleware that wraps the request
// pipeline.
//
// Execution order, outermost first:
//
//	Recovery -> RequestID -> Tracing -> Logging -> pipeline
//
// Tracing lives in the observability package. Logging runs inside it so the
// access log carries the trace and span IDs.
package middleware

import "net/http"

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Chain applies mws to h so that mws[0] runs first.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
