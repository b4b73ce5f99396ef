// Package token issues and verifies the HS256 signed tokens carried in the
// auth cookie or the Authorization header.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// MinSecretLength is the smallest accepted HMAC key.
const MinSecretLength = 32

const (
	claimRoles  = "roles"
	claimUserID = "uid"
)

// Claims is the verified payload of a token. Values only come from Verify.
type Claims struct {
	ID        string
	Issuer    string
	Subject   string
	UserID    string
	Roles     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec signs and verifies tokens with a shared secret.
type Codec struct {
	key    []byte
	issuer string
	now    func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithIssuer sets the iss claim written and required.
func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) { c.issuer = issuer }
}

// WithClock replaces time.Now for issuance and expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) { c.now = now }
}

// NewCodec returns a codec for secret, which must hold at least
// MinSecretLength bytes.
func NewCodec(secret []byte, opts ...CodecOption) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidSecret, MinSecretLength, len(secret))
	}
	c := &Codec{
		key: append([]byte(nil), secret...),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// IssueOption adds optional claims at issuance.
type IssueOption func(*jwt.Builder) *jwt.Builder

// WithUserID sets the uid claim.
func WithUserID(id string) IssueOption {
	return func(b *jwt.Builder) *jwt.Builder { return b.Claim(claimUserID, id) }
}

// Issue signs a token for subject that expires ttl from now.
func (c *Codec) Issue(subject string, roles []string, ttl time.Duration, opts ...IssueOption) (string, error) {
	if ttl <= 0 {
		return "", ErrInvalidTTL
	}
	if roles == nil {
		roles = []string{}
	}

	now := c.now()
	b := jwt.NewBuilder().
		JwtID(uuid.NewString()).
		Subject(subject).
		IssuedAt(now).
		Expiration(now.Add(ttl)).
		Claim(claimRoles, roles)
	if c.issuer != "" {
		b = b.Issuer(c.issuer)
	}
	for _, opt := range opts {
		b = opt(b)
	}

	tok, err := b.Build()
	if err != nil {
		return "", fmt.Errorf("failed to build token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, c.key))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return string(signed), nil
}

// Verify checks the signature first and the expiry second. It returns
// ErrTokenMalformed or ErrTokenExpired, each wrapping the parser's error.
func (c *Codec) Verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, ErrEmptyToken)
	}

	opts := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, c.key),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(c.now)),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	tok, err := jwt.ParseString(raw, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}

	if tok.Subject() == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrTokenMalformed)
	}
	if tok.Expiration().IsZero() {
		return nil, fmt.Errorf("%w: missing exp", ErrTokenMalformed)
	}

	claims := &Claims{
		ID:        tok.JwtID(),
		Issuer:    tok.Issuer(),
		Subject:   tok.Subject(),
		IssuedAt:  tok.IssuedAt(),
		ExpiresAt: tok.Expiration(),
	}
	if v, ok := tok.Get(claimUserID); ok {
		claims.UserID, _ = v.(string)
	}
	if v, ok := tok.Get(claimRoles); ok {
		roles, err := stringSlice(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
		}
		claims.Roles = roles
	}
	return claims, nil
}

// ExpiresIn returns the time left until exp, relative to the codec clock.
func (c *Codec) ExpiresIn(claims *Claims) time.Duration {
	return claims.ExpiresAt.Sub(c.now())
}

func stringSlice(v interface{}) ([]string, error) {
	switch vv := v.(type) {
	case []string:
		return vv, nil
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("roles claim holds %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("roles claim is %T", v)
	}
}
