package auth

import (
	"errors"
	"fmt"
)

// Reason classifies a rejection.
type Reason string

// Rejection reasons.
const (
	ReasonMissing          Reason = "missing"
	ReasonMalformed        Reason = "malformed"
	ReasonExpired          Reason = "expired"
	ReasonRevoked          Reason = "revoked"
	ReasonStoreUnavailable Reason = "store_unavailable"
)

var (
	// ErrTokenMissing means neither the cookie nor the Authorization header
	// carried a token.
	ErrTokenMissing = errors.New("no token presented")

	// ErrTokenRevoked means the token verified but has been revoked.
	ErrTokenRevoked = errors.New("token revoked")
)

// RejectionError is the error form of a rejected Decision.
type RejectionError struct {
	Reason Reason
	Err    error
}

// Error implements the error interface.
func (e *RejectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication rejected (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication rejected (%s)", e.Reason)
}

// Unwrap returns the underlying error.
func (e *RejectionError) Unwrap() error {
	return e.Err
}

// ReasonOf returns the rejection reason carried by err, or "" when err is
// not a RejectionError.
func ReasonOf(err error) Reason {
	var re *RejectionError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}
