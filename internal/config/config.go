package config

import (
	"time"

	"github.com/vyrodovalexey/marketgw/internal/observability"
)

// Store backends.
const (
	StoreBackendRedis  = "redis"
	StoreBackendMemory = "memory"
)

// GatewayConfig is the root of the gateway configuration file.
type GatewayConfig struct {
	Listener       ListenerConfig       `yaml:"listener" json:"listener"`
	Admin          AdminConfig          `yaml:"admin" json:"admin"`
	RateLimit      RateLimitConfig      `yaml:"rateLimit" json:"rateLimit"`
	Auth           AuthConfig           `yaml:"auth" json:"auth"`
	Token          TokenConfig          `yaml:"token" json:"token"`
	Store          StoreConfig          `yaml:"store" json:"store"`
	Redis          RedisConfig          `yaml:"redis" json:"redis"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker" json:"circuitBreaker"`
	MemberService  MemberServiceConfig  `yaml:"memberService" json:"memberService"`
	Routes         []RouteConfig        `yaml:"routes" json:"routes"`
	Observability  ObservabilityConfig  `yaml:"observability" json:"observability"`
}

// ListenerConfig configures the public HTTP listener.
type ListenerConfig struct {
	Address         string   `yaml:"address" json:"address"`
	ReadTimeout     Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout" json:"writeTimeout"`
	IdleTimeout     Duration `yaml:"idleTimeout" json:"idleTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
}

// AdminConfig configures the health and metrics listener.
type AdminConfig struct {
	Address string `yaml:"address" json:"address"`
}

// RateLimitConfig configures the fixed window limiter.
type RateLimitConfig struct {
	Enabled           bool     `yaml:"enabled" json:"enabled"`
	RequestsPerMinute int      `yaml:"requestsPerMinute" json:"requestsPerMinute"`
	KeyPrefix         string   `yaml:"keyPrefix" json:"keyPrefix"`
	StoreTimeout      Duration `yaml:"storeTimeout" json:"storeTimeout"`
}

// AuthConfig configures request authentication.
type AuthConfig struct {
	CookieName        string   `yaml:"cookieName" json:"cookieName"`
	PublicPaths       []string `yaml:"publicPaths" json:"publicPaths"`
	RevocationTimeout Duration `yaml:"revocationTimeout" json:"revocationTimeout"`
	SecureCookie      bool     `yaml:"secureCookie" json:"secureCookie"`
}

// TokenConfig configures token issuance and verification.
type TokenConfig struct {
	Secret string   `yaml:"secret" json:"-"`
	Issuer string   `yaml:"issuer" json:"issuer"`
	TTL    Duration `yaml:"ttl" json:"ttl"`
}

// StoreConfig selects the backend shared by the rate limiter and revocation store.
type StoreConfig struct {
	Backend string `yaml:"backend" json:"backend"`
}

// RedisConfig configures the Redis client.
type RedisConfig struct {
	Address      string   `yaml:"address" json:"address"`
	Password     string   `yaml:"password" json:"-"`
	DB           int      `yaml:"db" json:"db"`
	PoolSize     int      `yaml:"poolSize" json:"poolSize"`
	DialTimeout  Duration `yaml:"dialTimeout" json:"dialTimeout"`
	ReadTimeout  Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout Duration `yaml:"writeTimeout" json:"writeTimeout"`
}

// CircuitBreakerConfig configures the breakers guarding store calls.
type CircuitBreakerConfig struct {
	Enabled             bool     `yaml:"enabled" json:"enabled"`
	MaxRequests         uint32   `yaml:"maxRequests" json:"maxRequests"`
	Interval            Duration `yaml:"interval" json:"interval"`
	Timeout             Duration `yaml:"timeout" json:"timeout"`
	ConsecutiveFailures uint32   `yaml:"consecutiveFailures" json:"consecutiveFailures"`
}

// MemberServiceConfig points at the service that validates credentials.
type MemberServiceConfig struct {
	BaseURL string   `yaml:"baseURL" json:"baseURL"`
	Timeout Duration `yaml:"timeout" json:"timeout"`
}

// RouteConfig maps a path prefix to an upstream base URL.
type RouteConfig struct {
	Name     string   `yaml:"name" json:"name"`
	Prefix   string   `yaml:"prefix" json:"prefix"`
	Upstream string   `yaml:"upstream" json:"upstream"`
	Timeout  Duration `yaml:"timeout" json:"timeout"`
}

// ObservabilityConfig groups logging, tracing and metrics settings.
type ObservabilityConfig struct {
	Logging observability.LogConfig    `yaml:"logging" json:"logging"`
	Tracing observability.TracerConfig `yaml:"tracing" json:"tracing"`
	Metrics MetricsConfig              `yaml:"metrics" json:"metrics"`
}

// MetricsConfig configures the Prometheus endpoint on the admin listener.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Path      string `yaml:"path" json:"path"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

// DefaultPublicPaths are reachable without a token.
var DefaultPublicPaths = []string{
	"/api/member/register",
	"/api/member/login",
	"/api/auth/login",
	"/api/auth/logout",
}

// DefaultConfig returns a configuration with every default filled in. The
// loader decodes files on top of it, so omitted keys keep these values.
func DefaultConfig() *GatewayConfig {
	return &GatewayConfig{
		Listener: ListenerConfig{
			Address:         ":8080",
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(60 * time.Second),
			IdleTimeout:     Duration(120 * time.Second),
			ShutdownTimeout: Duration(30 * time.Second),
		},
		Admin: AdminConfig{Address: ":9090"},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 100,
			KeyPrefix:         "rate_limit:",
			StoreTimeout:      Duration(200 * time.Millisecond),
		},
		Auth: AuthConfig{
			CookieName:        "auth_token",
			PublicPaths:       append([]string(nil), DefaultPublicPaths...),
			RevocationTimeout: Duration(200 * time.Millisecond),
			SecureCookie:      true,
		},
		Token: TokenConfig{
			Issuer: "marketgw",
			TTL:    Duration(24 * time.Hour),
		},
		Store: StoreConfig{Backend: StoreBackendRedis},
		Redis: RedisConfig{
			Address:      "localhost:6379",
			PoolSize:     10,
			DialTimeout:  Duration(5 * time.Second),
			ReadTimeout:  Duration(3 * time.Second),
			WriteTimeout: Duration(3 * time.Second),
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:             true,
			MaxRequests:         1,
			Interval:            Duration(60 * time.Second),
			Timeout:             Duration(10 * time.Second),
			ConsecutiveFailures: 5,
		},
		MemberService: MemberServiceConfig{
			BaseURL: "http://localhost:8081",
			Timeout: Duration(5 * time.Second),
		},
		Observability: ObservabilityConfig{
			Logging: observability.DefaultLogConfig(),
			Tracing: observability.TracerConfig{
				ServiceName:  "marketgw",
				SamplingRate: 1.0,
			},
			Metrics: MetricsConfig{
				Enabled:   true,
				Path:      "/metrics",
				Namespace: "marketgw",
			},
		},
	}
}
