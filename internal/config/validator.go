package config

import (
	"fmt"
	"net/url"
	"strings"
)

// minSecretLength is the smallest HS256 key accepted.
const minSecretLength = 32

// ValidationError is a single invalid field.
type ValidationError struct {
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors collects every invalid field found in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "no validation errors"
	case 1:
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidateConfig returns ValidationErrors when cfg is unusable, nil otherwise.
func ValidateConfig(cfg *GatewayConfig) error {
	if cfg == nil {
		return ValidationErrors{{Message: "configuration is nil"}}
	}

	var errs ValidationErrors
	add := func(path, format string, args ...any) {
		errs = append(errs, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.Listener.Address == "" {
		add("listener.address", "is required")
	}

	if cfg.RateLimit.RequestsPerMinute < 0 {
		add("rateLimit.requestsPerMinute", "must not be negative, got %d", cfg.RateLimit.RequestsPerMinute)
	}
	if cfg.RateLimit.StoreTimeout <= 0 {
		add("rateLimit.storeTimeout", "must be positive")
	}

	if cfg.Auth.CookieName == "" {
		add("auth.cookieName", "is required")
	}
	if cfg.Auth.RevocationTimeout <= 0 {
		add("auth.revocationTimeout", "must be positive")
	}
	for i, p := range cfg.Auth.PublicPaths {
		if !strings.HasPrefix(p, "/") {
			add(fmt.Sprintf("auth.publicPaths[%d]", i), "must start with '/', got %q", p)
		}
	}

	if len(cfg.Token.Secret) < minSecretLength {
		add("token.secret", "must be at least %d bytes", minSecretLength)
	}
	if cfg.Token.TTL <= 0 {
		add("token.ttl", "must be positive")
	}

	switch cfg.Store.Backend {
	case StoreBackendRedis:
		if cfg.Redis.Address == "" {
			add("redis.address", "is required for the redis backend")
		}
	case StoreBackendMemory:
	default:
		add("store.backend", "must be %q or %q, got %q", StoreBackendRedis, StoreBackendMemory, cfg.Store.Backend)
	}

	if cfg.CircuitBreaker.Enabled && cfg.CircuitBreaker.ConsecutiveFailures == 0 {
		add("circuitBreaker.consecutiveFailures", "must be positive when enabled")
	}

	if _, err := parseAbsoluteURL(cfg.MemberService.BaseURL); err != nil {
		add("memberService.baseURL", "%v", err)
	}

	seen := make(map[string]bool, len(cfg.Routes))
	for i, r := range cfg.Routes {
		path := fmt.Sprintf("routes[%d]", i)
		if r.Name == "" {
			add(path+".name", "is required")
		}
		if !strings.HasPrefix(r.Prefix, "/") {
			add(path+".prefix", "must start with '/', got %q", r.Prefix)
		}
		if seen[r.Prefix] {
			add(path+".prefix", "duplicate prefix %q", r.Prefix)
		}
		seen[r.Prefix] = true
		if _, err := parseAbsoluteURL(r.Upstream); err != nil {
			add(path+".upstream", "%v", err)
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func parseAbsoluteURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("URL %q has no host", raw)
	}
	return u, nil
}
