package auth

import (
	"strings"
	"sync/atomic"
)

// PublicPaths is a prefix allow-list that can be swapped at runtime.
type PublicPaths struct {
	prefixes atomic.Pointer[[]string]
}

// NewPublicPaths returns an allow-list holding prefixes.
func NewPublicPaths(prefixes []string) *PublicPaths {
	p := &PublicPaths{}
	p.Set(prefixes)
	return p
}

// Set replaces the allow-list. Empty entries are dropped.
func (p *PublicPaths) Set(prefixes []string) {
	cp := make([]string, 0, len(prefixes))
	for _, prefix := range prefixes {
		if prefix != "" {
			cp = append(cp, prefix)
		}
	}
	p.prefixes.Store(&cp)
}

// List returns a copy of the allow-list.
func (p *PublicPaths) List() []string {
	return append([]string(nil), *p.prefixes.Load()...)
}

// Match reports whether path starts with any listed prefix.
func (p *PublicPaths) Match(path string) bool {
	for _, prefix := range *p.prefixes.Load() {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
