// Package health serves the admin listener: liveness on /healthz, readiness
// on /readyz and Prometheus metrics on /metrics.
//
// Readiness runs every registered check concurrently under one deadline and
// reports 503 when any check fails or the gateway is draining.
package health
