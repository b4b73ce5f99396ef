package proxy

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/vyrodovalexey/marketgw/internal/config"
)

// Route maps a path prefix to an upstream or to an in-process handler.
type Route struct {
	Name    string
	Prefix  string
	Target  *url.URL
	Timeout time.Duration
	// Handler, when set, serves the route instead of Target.
	Handler http.Handler
}

// Router selects a route by longest path prefix.
type Router struct {
	routes []*Route
}

// NewRouter validates routes and orders them for matching.
func NewRouter(routes []Route) (*Router, error) {
	seen := make(map[string]string, len(routes))
	rt := &Router{routes: make([]*Route, 0, len(routes))}

	for i := range routes {
		route := routes[i]
		if !strings.HasPrefix(route.Prefix, "/") {
			return nil, fmt.Errorf("%w: %s: prefix must start with /", ErrInvalidRoute, route.Name)
		}
		if route.Handler == nil && route.Target == nil {
			return nil, fmt.Errorf("%w: %s: no upstream", ErrInvalidRoute, route.Name)
		}
		if other, ok := seen[route.Prefix]; ok {
			return nil, fmt.Errorf("%w: %q used by %s and %s", ErrDuplicatePrefix, route.Prefix, other, route.Name)
		}
		seen[route.Prefix] = route.Name
		rt.routes = append(rt.routes, &route)
	}

	sort.SliceStable(rt.routes, func(i, j int) bool {
		return len(rt.routes[i].Prefix) > len(rt.routes[j].Prefix)
	})
	return rt, nil
}

// Match returns the route with the longest prefix of path.
func (rt *Router) Match(path string) (*Route, error) {
	for _, route := range rt.routes {
		if strings.HasPrefix(path, route.Prefix) {
			return route, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, path)
}

// Routes returns the routes in match order.
func (rt *Router) Routes() []Route {
	out := make([]Route, len(rt.routes))
	for i, r := range rt.routes {
		out[i] = *r
	}
	return out
}

// RoutesFromConfig converts configured routes. Upstreams must be absolute
// http or https URLs.
func RoutesFromConfig(cfgs []config.RouteConfig) ([]Route, error) {
	routes := make([]Route, 0, len(cfgs))
	for _, c := range cfgs {
		target, err := url.Parse(c.Upstream)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRoute, c.Name, err)
		}
		if (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
			return nil, fmt.Errorf("%w: %s: upstream %q is not an absolute http(s) URL", ErrInvalidRoute, c.Name, c.Upstream)
		}
		routes = append(routes, Route{
			Name:    c.Name,
			Prefix:  c.Prefix,
			Target:  target,
			Timeout: c.Timeout.Duration(),
		})
	}
	return routes, nil
}
