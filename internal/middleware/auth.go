package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ayosleepy/polls/internal/lib/jwt"
)

const (
	ContextUserID    = "userID"
	ContextUserEmail = "userEmail"

	HeaderRefreshToken    = "X-Refresh-Token"
	HeaderNewAccessToken  = "X-New-Access-Token"
	HeaderNewRefreshToken = "X-New-Refresh-Token"
)

type TokenService interface {
	ValidateToken(ctx context.Context, accessToken string) (int64, string, error)
	RefreshTokens(ctx context.Context, refreshToken string) (jwt.TokenPair, error)
}

type AuthMiddleware struct {
	tokens TokenService
}

func NewAuthMiddleware(tokens TokenService) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Required rejects requests without a valid access token. An expired access
// token is renewed transparently when the client also sends its refresh token;
// the new pair is returned in the X-New-* headers.
func (m *AuthMiddleware) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.authenticate(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// Optional identifies the user when a valid token is present and lets
// anonymous requests through otherwise.
func (m *AuthMiddleware) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != "" {
			m.authenticate(c)
		}
		c.Next()
	}
}

func (m *AuthMiddleware) authenticate(c *gin.Context) bool {
	ctx := c.Request.Context()

	accessToken := extractTokenFromHeader(c.GetHeader("Authorization"))
	if accessToken == "" {
		return false
	}

	uid, email, err := m.tokens.ValidateToken(ctx, accessToken)
	if err == nil {
		c.Set(ContextUserID, uid)
		c.Set(ContextUserEmail, email)
		return true
	}

	refreshToken := c.GetHeader(HeaderRefreshToken)
	if refreshToken == "" {
		return false
	}

	newTokens, err := m.tokens.RefreshTokens(ctx, refreshToken)
	if err != nil {
		return false
	}

	uid, email, err = m.tokens.ValidateToken(ctx, newTokens.AccessToken)
	if err != nil {
		return false
	}

	c.Header(HeaderNewAccessToken, newTokens.AccessToken)
	c.Header(HeaderNewRefreshToken, newTokens.RefreshToken)

	c.Request.Header.Set("Authorization", "Bearer "+newTokens.AccessToken)
	c.Request.Header.Set(HeaderRefreshToken, newTokens.RefreshToken)
	c.Set(ContextUserID, uid)
	c.Set(ContextUserEmail, email)

	return true
}

// UserID returns the authenticated user of the request, if any.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return 0, false
	}
	uid, ok := v.(int64)
	return uid, ok
}

func extractTokenFromHeader(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
