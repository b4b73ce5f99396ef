// Package proxy forwards authenticated requests to downstream services. A
// route table maps path prefixes to upstream base URLs; the longest matching
// prefix wins. Routes can also be served by an in-process handler.
package proxy
