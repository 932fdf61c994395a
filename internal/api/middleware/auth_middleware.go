package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ericfisherdev/roomgate/internal/domain"
	"github.com/ericfisherdev/roomgate/internal/services"
)

// ClaimsContextKeyType is the type used for the claims context key.
type ClaimsContextKeyType string

// ClaimsContextKey is the key used to store verified session claims in context.
const ClaimsContextKey ClaimsContextKeyType = "session_claims"

// TokenQueryParam is the query parameter accepted by the websocket gate.
const TokenQueryParam = "token"

// AuthMiddleware verifies session tokens.
type AuthMiddleware struct {
	sessions services.SessionTokenService
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(sessions services.SessionTokenService) *AuthMiddleware {
	return &AuthMiddleware{
		sessions: sessions,
	}
}

// RequireAuth rejects requests without a valid bearer token with 401 {"error":"unauthorized"}.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := m.sessions.Verify(TokenFromHeader(c))
		if err != nil {
			abortWithCode(c, http.StatusUnauthorized, "unauthorized")
			return
		}

		SetClaims(c, claims)
		c.Next()
	}
}

// Authenticate verifies the token from the query string or the Authorization header.
// This is the websocket gate: it runs before any upgrade.
func (m *AuthMiddleware) Authenticate(c *gin.Context) (domain.SessionClaims, error) {
	token := c.Query(TokenQueryParam)
	if token == "" {
		token = TokenFromHeader(c)
	}
	return m.sessions.Verify(token)
}

// TokenFromHeader extracts a bearer token from the Authorization header.
func TokenFromHeader(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// SetClaims stores verified claims on both the gin and the request context.
func SetClaims(c *gin.Context, claims domain.SessionClaims) {
	c.Set(string(ClaimsContextKey), claims)
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), ClaimsContextKey, claims))
}

// GetClaimsFromContext extracts the verified claims from Gin context.
func GetClaimsFromContext(c *gin.Context) (domain.SessionClaims, bool) {
	if value, exists := c.Get(string(ClaimsContextKey)); exists {
		if claims, ok := value.(domain.SessionClaims); ok {
			return claims, true
		}
	}
	return domain.SessionClaims{}, false
}

// GetClaimsFromRequestContext extracts the verified claims from request context.
func GetClaimsFromRequestContext(ctx context.Context) (domain.SessionClaims, bool) {
	if claims, ok := ctx.Value(ClaimsContextKey).(domain.SessionClaims); ok {
		return claims, true
	}
	return domain.SessionClaims{}, false
}
