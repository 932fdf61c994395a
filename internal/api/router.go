package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ericfisherdev/roomgate/internal/api/middleware"
)

// RouterConfig holds the handlers and middleware mounted on the engine
type RouterConfig struct {
	Logger             *slog.Logger
	CORSAllowedOrigins []string
	AuthMiddleware     *middleware.AuthMiddleware
	AuthHandler        *AuthHandler
	WebSocketHandler   *WebSocketHandler
	HealthHandler      *HealthHandler
	// AuthRateLimiter throttles /auth routes when set.
	AuthRateLimiter gin.HandlerFunc
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
}

// NewRouter configures the Gin engine with all middleware and routes.
func NewRouter(config RouterConfig) *gin.Engine {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.DefaultLoggingMiddleware(config.Logger))
	router.Use(middleware.DefaultRecoveryMiddleware(config.Logger))
	router.Use(middleware.DefaultCORSMiddleware(config.CORSAllowedOrigins))

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": PublicNotFound})
	})

	config.HealthHandler.RegisterRoutes(router)
	config.AuthHandler.RegisterRoutes(router, config.AuthMiddleware, config.AuthRateLimiter)
	config.WebSocketHandler.RegisterRoutes(router)

	if config.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(config.MetricsHandler))
	}

	return router
}
