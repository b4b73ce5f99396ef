package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/vyrodovalexey/marketgw/internal/observability"
)

// ReverseProxy dispatches requests to the route table.
type ReverseProxy struct {
	router        *Router
	logger        observability.Logger
	transport     http.RoundTripper
	flushInterval time.Duration
	proxies       map[*Route]*httputil.ReverseProxy
}

// Option configures a ReverseProxy.
type Option func(*ReverseProxy)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(p *ReverseProxy) { p.logger = logger }
}

// WithTransport sets the upstream transport.
func WithTransport(transport http.RoundTripper) Option {
	return func(p *ReverseProxy) { p.transport = transport }
}

// WithFlushInterval sets the flush interval for streamed responses.
func WithFlushInterval(interval time.Duration) Option {
	return func(p *ReverseProxy) { p.flushInterval = interval }
}

// NewReverseProxy builds one upstream proxy per route.
func NewReverseProxy(rt *Router, opts ...Option) *ReverseProxy {
	p := &ReverseProxy{
		router:        rt,
		logger:        observability.NopLogger(),
		flushInterval: -1,
		proxies:       make(map[*Route]*httputil.ReverseProxy),
	}
	for _, opt := range opts {
		opt(p)
	}

	for _, route := range rt.routes {
		if route.Handler != nil {
			continue
		}
		target := route.Target
		p.proxies[route] = &httputil.ReverseProxy{
			Rewrite: func(pr *httputil.ProxyRequest) {
				pr.SetURL(target)
				pr.SetXForwarded()
				pr.Out.URL.RawQuery = pr.In.URL.RawQuery
			},
			Transport:     p.transport,
			FlushInterval: p.flushInterval,
			ErrorHandler:  p.errorHandler,
		}
	}
	return p
}

// ServeHTTP implements http.Handler.
func (p *ReverseProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route, err := p.router.Match(r.URL.Path)
	if err != nil {
		p.logger.WithContext(r.Context()).Debug("no route",
			observability.String("path", r.URL.Path),
		)
		writeJSON(w, http.StatusNotFound, BodyRouteNotFound)
		return
	}

	observability.RequestInfoFromContext(r.Context()).SetRoute(route.Name)

	if route.Timeout > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), route.Timeout)
		defer cancel()
		r = r.WithContext(ctx)
	}

	if route.Handler != nil {
		route.Handler.ServeHTTP(w, r)
		return
	}
	p.proxies[route].ServeHTTP(w, r)
}

func (p *ReverseProxy) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	route := observability.RequestInfoFromContext(r.Context()).Route()

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(r.Context().Err(), context.DeadlineExceeded) {
		p.logger.WithContext(r.Context()).Warn("upstream timed out",
			observability.String("route", route),
			observability.String("path", r.URL.Path),
			observability.Error(err),
		)
		writeJSON(w, http.StatusGatewayTimeout, BodyGatewayTimeout)
		return
	}
	if errors.Is(err, context.Canceled) {
		// Client went away; nobody reads the response.
		w.WriteHeader(499)
		return
	}

	p.logger.WithContext(r.Context()).Error("upstream request failed",
		observability.String("route", route),
		observability.String("path", r.URL.Path),
		observability.Error(err),
	)
	writeJSON(w, http.StatusBadGateway, BodyBadGateway)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
