package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/EternisAI/keygate/internal/api/http/dto"
	"github.com/EternisAI/keygate/internal/auth"
	"github.com/gin-gonic/gin"
)

const (
	AdminKeyHeader = "X-Admin-Key"

	// ContextSessionClaims holds the *auth.SessionClaims of a bearer token.
	ContextSessionClaims = "session_claims"
)

func APIKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			slog.Warn("Admin API key not configured, rejecting request",
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, dto.Fail("Admin API is not configured", nil))
			return
		}

		providedKey := c.GetHeader(AdminKeyHeader)
		if providedKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.Fail("Missing admin key", nil))
			return
		}

		if !auth.CheckAdminKey(providedKey, apiKey) {
			slog.Warn("Invalid admin key attempt",
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.Fail("Invalid admin key", nil))
			return
		}

		c.Next()
	}
}

// OptionalSessionToken parses an "Authorization: Bearer" session token when
// one is present. A present but invalid token is rejected.
func OptionalSessionToken(cfg auth.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		if !strings.HasPrefix(header, "Bearer ") || cfg.JWTSecret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.Fail("invalid authorization header", nil))
			return
		}

		claims, err := auth.ValidateToken(cfg, strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.Fail("invalid session token", nil))
			return
		}

		c.Set(ContextSessionClaims, claims)
		c.Next()
	}
}
