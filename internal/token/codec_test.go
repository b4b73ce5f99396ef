package token

import (
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCodec(t *testing.T) (*Codec, *clock) {
	t.Helper()
	clk := &clock{now: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	c, err := NewCodec(testSecret, WithIssuer("marketgw"), WithClock(clk.Now))
	require.NoError(t, err)
	return c, clk
}

func TestNewCodec_ShortSecret(t *testing.T) {
	t.Parallel()

	_, err := NewCodec([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidSecret)
}

func TestCodec_RoundTrip(t *testing.T) {
	t.Parallel()

	c, clk := newTestCodec(t)

	raw, err := c.Issue("alice", []string{"USER", "ADMIN"}, 24*time.Hour, WithUserID("42"))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(raw, "."))

	clk.Advance(23 * time.Hour)

	claims, err := c.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "42", claims.UserID)
	assert.Equal(t, "marketgw", claims.Issuer)
	assert.Equal(t, []string{"USER", "ADMIN"}, claims.Roles)
	assert.NotEmpty(t, claims.ID)
	assert.True(t, claims.ExpiresAt.Equal(time.Date(2026, 1, 11, 12, 0, 0, 0, time.UTC)))
	assert.True(t, claims.IssuedAt.Equal(time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.Hour, c.ExpiresIn(claims))
}

func TestCodec_RoundTripNoRoles(t *testing.T) {
	t.Parallel()

	c, _ := newTestCodec(t)
	raw, err := c.Issue("bob", nil, time.Minute)
	require.NoError(t, err)

	claims, err := c.Verify(raw)
	require.NoError(t, err)
	assert.Empty(t, claims.Roles)
	assert.Empty(t, claims.UserID)
}

func TestCodec_UniqueIDs(t *testing.T) {
	t.Parallel()

	c, _ := newTestCodec(t)
	a, err := c.Issue("alice", nil, time.Hour)
	require.NoError(t, err)
	b, err := c.Issue("alice", nil, time.Hour)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCodec_Expired(t *testing.T) {
	t.Parallel()

	c, clk := newTestCodec(t)
	raw, err := c.Issue("alice", nil, time.Hour)
	require.NoError(t, err)

	clk.Advance(time.Hour + time.Second)

	_, err = c.Verify(raw)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.NotErrorIs(t, err, ErrTokenMalformed)
	assert.True(t, IsExpired(err))
}

func TestCodec_InvalidTTL(t *testing.T) {
	t.Parallel()

	c, _ := newTestCodec(t)
	_, err := c.Issue("alice", nil, 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)
	_, err = c.Issue("alice", nil, -time.Second)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

func TestCodec_Malformed(t *testing.T) {
	t.Parallel()

	c, clk := newTestCodec(t)
	valid, err := c.Issue("alice", []string{"USER"}, time.Hour)
	require.NoError(t, err)

	other, err := NewCodec([]byte("ffffffffffffffffffffffffffffffff"), WithIssuer("marketgw"), WithClock(clk.Now))
	require.NoError(t, err)
	foreignKey, err := other.Issue("alice", nil, time.Hour)
	require.NoError(t, err)

	otherIssuer, err := NewCodec(testSecret, WithIssuer("someone-else"), WithClock(clk.Now))
	require.NoError(t, err)
	foreignIssuer, err := otherIssuer.Issue("alice", nil, time.Hour)
	require.NoError(t, err)

	parts := strings.Split(valid, ".")
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	forged := strings.Replace(string(payload), `"alice"`, `"mallory"`, 1)
	tampered := parts[0] + "." + base64.RawURLEncoding.EncodeToString([]byte(forged)) + "." + parts[2]

	noneHeader := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	unsigned := noneHeader + "." + parts[1] + "."

	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty", raw: ""},
		{name: "garbage", raw: "not-a-token"},
		{name: "truncated", raw: parts[0] + "." + parts[1]},
		{name: "tampered payload", raw: tampered},
		{name: "wrong key", raw: foreignKey},
		{name: "wrong issuer", raw: foreignIssuer},
		{name: "alg none", raw: unsigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			claims, err := c.Verify(tt.raw)
			assert.Nil(t, claims)
			assert.ErrorIs(t, err, ErrTokenMalformed)
			assert.NotErrorIs(t, err, ErrTokenExpired)
		})
	}
}

func TestCodec_ExpiredWithBadSignatureIsMalformed(t *testing.T) {
	t.Parallel()

	c, clk := newTestCodec(t)
	other, err := NewCodec([]byte("ffffffffffffffffffffffffffffffff"), WithIssuer("marketgw"), WithClock(clk.Now))
	require.NoError(t, err)

	raw, err := other.Issue("alice", nil, time.Minute)
	require.NoError(t, err)
	clk.Advance(time.Hour)

	_, err = c.Verify(raw)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}
