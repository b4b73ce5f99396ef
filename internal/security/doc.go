// Package security decorates every gateway response with a fixed set of
// hardening headers, plus cache suppression on authentication and member
// paths.
package security
