package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vyrodovalexey/marketgw/internal/circuitbreaker"
)

const validatePath = "/api/member/validate-credentials"

var (
	// ErrInvalidCredentials means the member service refused the credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrMemberServiceUnavailable covers transport failures, unexpected
	// responses and an open breaker.
	ErrMemberServiceUnavailable = errors.New("member service unavailable")
)

// Member is the account returned by a successful credential check.
type Member struct {
	ID       MemberID `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

// MemberID accepts both JSON numbers and strings.
type MemberID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *MemberID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = MemberID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("member id: %w", err)
	}
	*id = MemberID(n.String())
	return nil
}

// MemberClient validates credentials against the member service.
type MemberClient interface {
	ValidateCredentials(ctx context.Context, username, password string) (*Member, error)
}

// HTTPMemberClient calls the member service over HTTP.
type HTTPMemberClient struct {
	baseURL string
	client  *http.Client
	breaker *circuitbreaker.Breaker
}

// MemberClientOption configures an HTTPMemberClient.
type MemberClientOption func(*HTTPMemberClient)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) MemberClientOption {
	return func(m *HTTPMemberClient) { m.client = c }
}

// WithMemberBreaker guards calls with b.
func WithMemberBreaker(b *circuitbreaker.Breaker) MemberClientOption {
	return func(m *HTTPMemberClient) { m.breaker = b }
}

// NewHTTPMemberClient returns a client for the service at baseURL.
func NewHTTPMemberClient(baseURL string, timeout time.Duration, opts ...MemberClientOption) *HTTPMemberClient {
	m := &HTTPMemberClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type envelope struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Data    *Member `json:"data"`
}

// ValidateCredentials implements MemberClient. A refused login returns
// ErrInvalidCredentials; every other failure wraps ErrMemberServiceUnavailable.
func (m *HTTPMemberClient) ValidateCredentials(ctx context.Context, username, password string) (*Member, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return nil, fmt.Errorf("failed to encode credentials: %w", err)
	}

	var member *Member
	var refused bool
	err = m.breaker.Execute(func() error {
		var callErr error
		member, refused, callErr = m.call(ctx, body)
		return callErr
	})
	if refused {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMemberServiceUnavailable, err)
	}
	return member, nil
}

// call returns refused=true for an explicit rejection, which does not count
// against the breaker.
func (m *HTTPMemberClient) call(ctx context.Context, body []byte) (*Member, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+validatePath, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, false, fmt.Errorf("member service returned %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, true, nil
	}

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return nil, false, fmt.Errorf("failed to decode member response: %w", err)
	}
	if !env.Success || env.Data == nil || env.Data.Username == "" {
		return nil, true, nil
	}
	return env.Data, false, nil
}
