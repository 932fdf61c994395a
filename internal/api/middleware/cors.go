package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORSMiddleware returns a CORS middleware with configurable options.
//
//nolint:gofumpt
func CORSMiddleware(allowedOrigins []string, allowedMethods []string, allowedHeaders []string, allowCredentials bool) gin.HandlerFunc {
	methods := "GET, OPTIONS"
	if len(allowedMethods) > 0 {
		methods = strings.Join(allowedMethods, ", ")
	}
	headers := "Content-Type, Authorization, X-Request-ID"
	if len(allowedHeaders) > 0 {
		headers = strings.Join(allowedHeaders, ", ")
	}
	wildcard := len(allowedOrigins) == 0 || contains(allowedOrigins, "*")

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		switch {
		case wildcard:
			c.Header("Access-Control-Allow-Origin", "*")
		case contains(allowedOrigins, origin):
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}

		c.Header("Access-Control-Allow-Methods", methods)
		c.Header("Access-Control-Allow-Headers", headers)

		// Browsers reject credentials combined with a wildcard origin.
		if allowCredentials && !wildcard {
			c.Header("Access-Control-Allow-Credentials", "true")
		}

		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// DefaultCORSMiddleware allows the configured origins to call the read-only API.
func DefaultCORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return CORSMiddleware(
		allowedOrigins,
		[]string{"GET", "OPTIONS"},
		[]string{"Content-Type", "Authorization", "X-Request-ID"},
		true,
	)
}

// contains checks if a slice contains a specific string.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
