// Package authapi serves the login and logout endpoints. Login checks
// credentials with the member service and issues a token; logout revokes the
// presented token until it would have expired.
package authapi

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/marketgw/internal/auth"
	"github.com/vyrodovalexey/marketgw/internal/observability"
	"github.com/vyrodovalexey/marketgw/internal/revocation"
	"github.com/vyrodovalexey/marketgw/internal/token"
)

// Paths served by the engine.
const (
	LoginPath  = "/api/auth/login"
	LogoutPath = "/api/auth/logout"
)

const tokenType = "Bearer"

var ginModeOnce sync.Once

// TokenIssuer signs new tokens.
type TokenIssuer interface {
	Issue(subject string, roles []string, ttl time.Duration, opts ...token.IssueOption) (string, error)
}

// Revoker revokes tokens.
type Revoker interface {
	Revoke(ctx context.Context, raw string) error
}

// Config holds the cookie and token settings.
type Config struct {
	TokenTTL     time.Duration
	CookieName   string
	SecureCookie bool
}

// Handler serves login and logout.
type Handler struct {
	members MemberClient
	issuer  TokenIssuer
	revoker Revoker
	cfg     Config
	logger  observability.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// NewHandler returns a Handler.
func NewHandler(members MemberClient, issuer TokenIssuer, revoker Revoker, cfg Config, opts ...Option) *Handler {
	if cfg.CookieName == "" {
		cfg.CookieName = auth.DefaultCookieName
	}
	h := &Handler{
		members: members,
		issuer:  issuer,
		revoker: revoker,
		cfg:     cfg,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginData struct {
	Token    string `json:"token"`
	Type     string `json:"type"`
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// Engine returns a gin engine serving LoginPath and LogoutPath.
func (h *Handler) Engine() *gin.Engine {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	engine := gin.New()
	engine.POST(LoginPath, h.Login)
	engine.POST(LogoutPath, h.Logout)
	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	engine.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
	})
	engine.HandleMethodNotAllowed = true
	return engine
}

// Login validates credentials and sets the auth cookie.
func (h *Handler) Login(c *gin.Context) {
	ctx := c.Request.Context()

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response{Message: "Username and password are required"})
		return
	}

	member, err := h.members.ValidateCredentials(ctx, req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			h.logger.WithContext(ctx).Info("login refused", observability.String("username", req.Username))
		} else {
			h.logger.WithContext(ctx).Error("credential check failed",
				observability.String("username", req.Username),
				observability.Error(err),
			)
		}
		c.JSON(http.StatusUnauthorized, response{Message: "Invalid credentials"})
		return
	}

	raw, err := h.issuer.Issue(member.Username, member.Roles, h.cfg.TokenTTL, token.WithUserID(string(member.ID)))
	if err != nil {
		h.logger.WithContext(ctx).Error("token issuance failed", observability.Error(err))
		c.JSON(http.StatusInternalServerError, response{Message: "Login failed"})
		return
	}

	h.setCookie(c, raw, int(h.cfg.TokenTTL/time.Second))
	h.logger.WithContext(ctx).Info("login succeeded", observability.String("username", member.Username))

	c.JSON(http.StatusOK, response{
		Success: true,
		Message: "Login successful",
		Data: loginData{
			Token:    raw,
			Type:     tokenType,
			ID:       string(member.ID),
			Username: member.Username,
			Email:    member.Email,
		},
	})
}

// Logout revokes the presented token, if any, and clears the cookie.
func (h *Handler) Logout(c *gin.Context) {
	ctx := c.Request.Context()

	if raw, _ := auth.ExtractToken(c.Request, h.cfg.CookieName); raw != "" {
		if err := h.revoker.Revoke(ctx, raw); err != nil {
			if errors.Is(err, revocation.ErrStoreUnavailable) {
				h.logger.WithContext(ctx).Error("token revocation failed", observability.Error(err))
				c.JSON(http.StatusServiceUnavailable, response{Message: "Logout failed"})
				return
			}
			h.logger.WithContext(ctx).Debug("logout with unusable token", observability.Error(err))
		}
	}

	h.setCookie(c, "", -1)
	c.JSON(http.StatusOK, response{Success: true, Message: "Logout successful"})
}

// setCookie writes the auth cookie. A negative maxAge deletes it.
func (h *Handler) setCookie(c *gin.Context, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.SecureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}
