package token

import "errors"

var (
	// ErrTokenMalformed covers bad structure, a bad signature, a foreign
	// issuer and missing required claims.
	ErrTokenMalformed = errors.New("token is malformed")

	// ErrTokenExpired means the signature is good but exp has passed.
	ErrTokenExpired = errors.New("token has expired")

	// ErrEmptyToken is returned for an empty string.
	ErrEmptyToken = errors.New("token is empty")

	// ErrInvalidTTL is returned by Issue for a non-positive ttl.
	ErrInvalidTTL = errors.New("token ttl must be positive")

	// ErrInvalidSecret is returned by NewCodec for a short key.
	ErrInvalidSecret = errors.New("token secret is too short")
)

// IsExpired reports whether err marks an expired token.
func IsExpired(err error) bool {
	return errors.Is(err, ErrTokenExpired)
}
