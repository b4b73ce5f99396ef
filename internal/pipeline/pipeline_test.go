package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/marketgw/internal/auth"
	"github.com/vyrodovalexey/marketgw/internal/observability"
	"github.com/vyrodovalexey/marketgw/internal/ratelimit"
	"github.com/vyrodovalexey/marketgw/internal/ratelimit/store"
	"github.com/vyrodovalexey/marketgw/internal/revocation"
	"github.com/vyrodovalexey/marketgw/internal/token"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type outcomeCounter struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (c *outcomeCounter) RecordPipelineOutcome(state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outcomes == nil {
		c.outcomes = map[string]int{}
	}
	c.outcomes[state]++
}

type countingAuth struct {
	inner Authenticator
	calls atomic.Int64
}

func (a *countingAuth) Authenticate(ctx context.Context, r *http.Request) auth.Decision {
	a.calls.Add(1)
	return a.inner.Authenticate(ctx, r)
}

type harness struct {
	handler    *Pipeline
	limiter    *ratelimit.FixedWindowLimiter
	auth       *countingAuth
	codec      *token.Codec
	revoker    *revocation.Service
	rateMR     *miniredis.Miniredis
	revokeMR   *miniredis.Miniredis
	downstream atomic.Int64
	lastReq    atomic.Pointer[http.Request]
	metrics    *outcomeCounter
}

func newHarness(t *testing.T, rpm int) *harness {
	t.Helper()
	h := &harness{metrics: &outcomeCounter{}}

	h.rateMR = miniredis.RunT(t)
	rateClient := redis.NewClient(&redis.Options{Addr: h.rateMR.Addr()})
	t.Cleanup(func() { _ = rateClient.Close() })

	h.revokeMR = miniredis.RunT(t)
	revokeClient := redis.NewClient(&redis.Options{Addr: h.revokeMR.Addr()})
	t.Cleanup(func() { _ = revokeClient.Close() })

	codec, err := token.NewCodec(testSecret, token.WithIssuer("marketgw"))
	require.NoError(t, err)
	h.codec = codec

	h.limiter = ratelimit.NewFixedWindowLimiter(
		store.NewRedisStore(rateClient, "rate_limit:"),
		ratelimit.Settings{Enabled: true, RequestsPerMinute: rpm},
		ratelimit.WithStoreTimeout(time.Second),
	)
	h.revoker = revocation.NewService(revocation.NewRedisStore(revokeClient, ""), codec,
		revocation.WithTimeout(time.Second),
	)
	h.auth = &countingAuth{inner: auth.NewAuthenticator(codec, h.revoker,
		auth.WithPublicPaths(auth.NewPublicPaths([]string{"/api/auth/login", "/api/member/register"})),
	)}

	downstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.downstream.Add(1)
		h.lastReq.Store(r)
		w.Header().Set("X-Frame-Options", "ALLOWALL")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	h.handler = New(Standard(h.limiter, nil, h.auth, downstream), WithMetrics(h.metrics))
	return h
}

func (h *harness) issue(t *testing.T, ttl time.Duration) string {
	t.Helper()
	raw, err := h.codec.Issue("alice", []string{"USER"}, ttl, token.WithUserID("7"))
	require.NoError(t, err)
	return raw
}

func (h *harness) do(method, path, bearer string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, nil)
	r.RemoteAddr = "198.51.100.20:40000"
	if bearer != "" {
		r.Header.Set("Authorization", "Bearer "+bearer)
	}
	for _, m := range mutate {
		m(r)
	}
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, r)
	return w
}

func assertSecurityHeaders(t *testing.T, w *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.NotEmpty(t, w.Header().Get("Permissions-Policy"))
}

func TestPipeline_Stages(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 10)
	assert.Equal(t, []string{"ratelimit", "auth", "route"}, h.handler.Stages())
}

func TestPipeline_AdmitsUpToThresholdWithHeaders(t *testing.T) {
	t.Parallel()

	const threshold = 4
	h := newHarness(t, threshold)
	raw := h.issue(t, time.Hour)

	for n := 1; n <= threshold; n++ {
		w := h.do(http.MethodGet, "/api/products", raw)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "4", w.Header().Get(HeaderRateLimitLimit))
		assert.Equal(t, threshold-n, atoi(t, w.Header().Get(HeaderRateLimitRemaining)))
		assert.Empty(t, w.Header().Get(HeaderRetryAfter))
		assert.Equal(t, `{"ok":true}`, w.Body.String())
		assertSecurityHeaders(t, w)
	}
	assert.Equal(t, int64(threshold), h.downstream.Load())
	assert.Equal(t, threshold, h.metrics.outcomes["sent"])
}

func TestPipeline_RejectsBeyondThresholdBeforeAuth(t *testing.T) {
	t.Parallel()

	const threshold = 2
	h := newHarness(t, threshold)

	for i := 0; i < threshold; i++ {
		h.do(http.MethodGet, "/api/auth/login", "")
	}
	authCalls := h.auth.calls.Load()

	for i := 0; i < 3; i++ {
		w := h.do(http.MethodGet, "/api/products", "")
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.JSONEq(t, BodyRateLimited, w.Body.String())
		assert.Equal(t, "2", w.Header().Get(HeaderRateLimitLimit))
		assert.Equal(t, "0", w.Header().Get(HeaderRateLimitRemaining))
		assert.Equal(t, "60", w.Header().Get(HeaderRetryAfter))
		assertSecurityHeaders(t, w)
	}

	assert.Equal(t, authCalls, h.auth.calls.Load())
	assert.Equal(t, int64(threshold), h.downstream.Load())
	assert.Equal(t, 3, h.metrics.outcomes["rate_limited"])

	val, err := h.rateMR.Get("rate_limit:198.51.100.20")
	require.NoError(t, err)
	assert.Equal(t, "5", val)
}

func TestPipeline_RateLimitKeyFollowsForwardedFor(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1)
	fromProxy := func(ip string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("X-Forwarded-For", ip+", 10.0.0.1") }
	}

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/auth/login", "", fromProxy("203.0.113.1")).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/auth/login", "", fromProxy("203.0.113.2")).Code)
	assert.Equal(t, http.StatusTooManyRequests, h.do(http.MethodGet, "/api/auth/login", "", fromProxy("203.0.113.1")).Code)
}

func TestPipeline_UniformUnauthorized(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 100)

	other, err := token.NewCodec([]byte("ffffffffffffffffffffffffffffffff"), token.WithIssuer("marketgw"))
	require.NoError(t, err)
	forged, err := other.Issue("alice", nil, time.Hour)
	require.NoError(t, err)

	expiredCodec, err := token.NewCodec(testSecret, token.WithIssuer("marketgw"),
		token.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }))
	require.NoError(t, err)
	expired, err := expiredCodec.Issue("alice", nil, time.Hour)
	require.NoError(t, err)

	revoked := h.issue(t, time.Hour)
	require.NoError(t, h.revoker.Revoke(context.Background(), revoked))

	tests := []struct {
		name   string
		bearer string
	}{
		{name: "missing"},
		{name: "malformed", bearer: "not.a.token"},
		{name: "foreign signature", bearer: forged},
		{name: "expired", bearer: expired},
		{name: "revoked", bearer: revoked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(http.MethodGet, "/api/cart", tt.bearer)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, BodyUnauthorized, w.Body.String())
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.NotEmpty(t, w.Header().Get(HeaderRateLimitRemaining))
			assertSecurityHeaders(t, w)
		})
	}

	assert.Zero(t, h.downstream.Load())
	assert.Equal(t, len(tests), h.metrics.outcomes["unauthorized"])
}

func TestPipeline_AuthenticatedRequestCarriesIdentity(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 100)
	raw := h.issue(t, time.Hour)

	w := h.do(http.MethodGet, "/api/cart", "", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: auth.DefaultCookieName, Value: raw})
		r.Header.Set(auth.HeaderUserRoles, "ADMIN")
	})
	require.Equal(t, http.StatusOK, w.Code)

	got := h.lastReq.Load()
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Header.Get(auth.HeaderUserName))
	assert.Equal(t, "7", got.Header.Get(auth.HeaderUserID))
	assert.Equal(t, "USER", got.Header.Get(auth.HeaderUserRoles))

	id, ok := auth.IdentityFromContext(got.Context())
	require.True(t, ok)
	assert.Equal(t, "alice", id.Subject)
}

func TestPipeline_PublicPathBypassesAuthAndStripsSpoofedIdentity(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 100)

	w := h.do(http.MethodPost, "/api/member/register", "", func(r *http.Request) {
		r.Header.Set(auth.HeaderUserName, "admin")
		r.Header.Set(auth.HeaderUserID, "1")
	})
	require.Equal(t, http.StatusOK, w.Code)

	got := h.lastReq.Load()
	require.NotNil(t, got)
	assert.Empty(t, got.Header.Values(auth.HeaderUserName))
	assert.Empty(t, got.Header.Values(auth.HeaderUserID))

	assert.Equal(t, "no-store, no-cache, must-revalidate, private", w.Header().Get("Cache-Control"))
	assert.Equal(t, "no-cache", w.Header().Get("Pragma"))
	assertSecurityHeaders(t, w)
}

func TestPipeline_RateStoreDownFailsOpen(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 100)
	raw := h.issue(t, time.Hour)
	h.rateMR.Close()

	w := h.do(http.MethodGet, "/api/products", raw)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), h.downstream.Load())
	assert.Empty(t, w.Header().Get(HeaderRateLimitLimit))
	assert.Empty(t, w.Header().Get(HeaderRateLimitRemaining))
	assertSecurityHeaders(t, w)
}

func TestPipeline_RevocationStoreDownFailsClosed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 100)
	raw := h.issue(t, time.Hour)
	h.revokeMR.Close()

	w := h.do(http.MethodGet, "/api/products", raw)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, BodyUnauthorized, w.Body.String())
	assert.Zero(t, h.downstream.Load())
}

func TestPipeline_DisabledLimiterEmitsNoCounters(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 0)
	h.limiter.Update(ratelimit.Settings{Enabled: false, RequestsPerMinute: 0})

	w := h.do(http.MethodGet, "/api/auth/login", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get(HeaderRateLimitLimit))
	assert.Empty(t, h.rateMR.Keys())
}

func TestPipeline_HandlerWithoutBodyIsDecorated(t *testing.T) {
	t.Parallel()

	p := New([]Stage{&bareStage{}})
	w := httptest.NewRecorder()
	p.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/logout", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assertSecurityHeaders(t, w)
	assert.Equal(t, "no-cache", w.Header().Get("Pragma"))
}

func TestPipeline_MisorderedStagesFail(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 100)
	called := false
	p := New([]Stage{
		NewAuthStage(h.auth),
		NewRouteStage(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })),
	})

	w := httptest.NewRecorder()
	p.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/login", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, BodyInternalError, w.Body.String())
	assert.False(t, called)
	assertSecurityHeaders(t, w)
}

func TestPipeline_RecordsFinalStateOnRequestInfo(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 100)
	raw := h.issue(t, time.Hour)

	ctx, info := observability.ContextWithRequestInfo(context.Background())
	r := httptest.NewRequest(http.MethodGet, "/api/cart", nil).WithContext(ctx)
	r.RemoteAddr = "192.0.2.1:1234"
	r.Header.Set("Authorization", "Bearer "+raw)
	h.handler.ServeHTTP(httptest.NewRecorder(), r)

	fields := map[string]string{}
	for _, f := range info.Fields() {
		fields[f.Key] = f.String
	}
	assert.Equal(t, "sent", fields["final_state"])
	assert.Equal(t, "192.0.2.1", fields["client"])
	assert.Equal(t, "alice", fields["subject"])
}

func TestPipeline_ConcurrentRequestsNeverUnderCount(t *testing.T) {
	t.Parallel()

	const threshold = 10
	const total = 40
	h := newHarness(t, threshold)

	var ok, limited atomic.Int64
	var wg sync.WaitGroup
	wg.Add(total)
	for i := 0; i < total; i++ {
		go func() {
			defer wg.Done()
			switch h.do(http.MethodGet, "/api/auth/login", "").Code {
			case http.StatusOK:
				ok.Add(1)
			case http.StatusTooManyRequests:
				limited.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(threshold), ok.Load())
	assert.Equal(t, int64(total-threshold), limited.Load())
}

// bareStage continues without writing anything.
type bareStage struct{}

func (*bareStage) Name() string { return "bare" }

func (*bareStage) Process(*RequestContext) (Verdict, error) { return Continue, nil }

func atoi(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	require.NoError(t, err)
	return n
}
