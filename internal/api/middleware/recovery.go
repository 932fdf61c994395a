package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// RecoveryConfig holds configuration for the recovery middleware.
type RecoveryConfig struct {
	Logger *slog.Logger
	// PrintStack attaches the goroutine stack to the log record.
	PrintStack bool
}

// RecoveryMiddleware converts a handler panic into a 500 response.
func RecoveryMiddleware(config RecoveryConfig) gin.HandlerFunc {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		attrs := []any{
			"request_id", GetRequestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"panic", recovered,
		}
		if config.PrintStack {
			attrs = append(attrs, "stack", string(debug.Stack()))
		}
		config.Logger.Error("Panic recovered", attrs...)

		abortWithCode(c, http.StatusInternalServerError, "internal_error")
	})
}

// DefaultRecoveryMiddleware returns a recovery middleware that logs stacks.
func DefaultRecoveryMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return RecoveryMiddleware(RecoveryConfig{
		Logger:     logger,
		PrintStack: true,
	})
}
