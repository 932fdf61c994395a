package middleware

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// LoggingConfig holds configuration for the logging middleware.
type LoggingConfig struct {
	Logger *slog.Logger
	// SkipPaths are not logged, nor is anything below them ("/health" covers "/health/live").
	SkipPaths []string
}

// LoggingMiddleware emits one structured log line per request.
func LoggingMiddleware(config LoggingConfig) gin.HandlerFunc {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		if skipped(path, config.SkipPaths) {
			return
		}

		status := c.Writer.Status()
		attrs := []any{
			"request_id", GetRequestID(c),
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}

		switch {
		case status >= 500:
			config.Logger.Error("Request completed", attrs...)
		case status >= 400:
			config.Logger.Warn("Request completed", attrs...)
		default:
			config.Logger.Info("Request completed", attrs...)
		}
	}
}

func skipped(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// DefaultLoggingMiddleware logs every request except health checks.
func DefaultLoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return LoggingMiddleware(LoggingConfig{
		Logger: logger,
		SkipPaths: []string{
			"/health",
			"/ping",
			"/metrics",
		},
	})
}
