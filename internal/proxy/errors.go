package proxy

import "errors"

var (
	// ErrRouteNotFound indicates that no route prefix matched.
	ErrRouteNotFound = errors.New("no matching route found")

	// ErrDuplicatePrefix is returned when two routes share a prefix.
	ErrDuplicatePrefix = errors.New("duplicate route prefix")

	// ErrInvalidRoute is returned for a route without a usable target.
	ErrInvalidRoute = errors.New("invalid route")
)

// Response bodies.
const (
	BodyRouteNotFound  = `{"error":"route not found"}`
	BodyBadGateway     = `{"error":"bad gateway"}`
	BodyGatewayTimeout = `{"error":"gateway timeout"}`
)
