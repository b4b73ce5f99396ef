package middleware

import (
	"errors"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/vyrodovalexey/marketgw/internal/observability"
)

const bodyInternalError = `{"error":"internal server error"}`

// HeaderApplier adds response headers for a request path.
type HeaderApplier interface {
	Apply(h http.Header, path string)
}

// PanicRecorder counts recovered panics.
type PanicRecorder interface {
	RecordPanic()
}

// Recovery returns a middleware that turns a panic into a 500. The security
// headers are applied to that response too. A panic with
// http.ErrAbortHandler is passed on so the server aborts the connection.
func Recovery(logger observability.Logger, headers HeaderApplier, metrics PanicRecorder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := observability.NewStatusRecorder(w)
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if err, ok := p.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(p)
				}

				logger.WithContext(r.Context()).Error("panic recovered",
					observability.String("path", r.URL.Path),
					observability.String("method", r.Method),
					observability.Any("error", p),
					observability.String("stack", string(debug.Stack())),
				)
				if metrics != nil {
					metrics.RecordPanic()
				}

				// too late for a clean error response
				if rec.Written() {
					return
				}
				if headers != nil {
					headers.Apply(rec.Header(), r.URL.Path)
				}
				rec.Header().Set("Content-Type", "application/json")
				rec.WriteHeader(http.StatusInternalServerError)
				_, _ = io.WriteString(rec, bodyInternalError)
			}()

			next.ServeHTTP(rec, r)
		})
	}
}
