package middleware

import (
	"net/http"
	"time"

	"github.com/vyrodovalexey/marketgw/internal/observability"
)

// UnknownRoute labels requests that never matched a route.
const UnknownRoute = "unknown"

// RequestRecorder records completed requests.
type RequestRecorder interface {
	RecordRequest(method, route string, status int, d time.Duration)
}

// Logging returns a middleware that writes one access log line per request
// and records request metrics. It installs the observability.RequestInfo
// that inner handlers fill in with the route, final state and client.
func Logging(logger observability.Logger, metrics RequestRecorder) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ctx, info := observability.ContextWithRequestInfo(r.Context())
			r = r.WithContext(ctx)
			rec := observability.NewStatusRecorder(w)

			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			route := info.Route()
			if route == "" {
				route = UnknownRoute
			}

			fields := []observability.Field{
				observability.String("method", r.Method),
				observability.String("path", r.URL.Path),
				observability.Int("status", rec.Status()),
				observability.Int("size", rec.Size()),
				observability.Duration("duration", duration),
				observability.String("user_agent", r.UserAgent()),
			}
			fields = append(fields, info.Fields()...)

			//nolint:contextcheck // the request context carries the IDs to log
			log := logger.WithContext(r.Context())
			switch {
			case rec.Status() >= http.StatusInternalServerError:
				log.Warn("http request", fields...)
			default:
				log.Info("http request", fields...)
			}

			if metrics != nil {
				metrics.RecordRequest(r.Method, route, rec.Status(), duration)
			}
		})
	}
}
