package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ericfisherdev/roomgate/internal/services"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	healthService *services.HealthService
	timeout       time.Duration
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(healthService *services.HealthService) *HealthHandler {
	return &HealthHandler{
		healthService: healthService,
		timeout:       5 * time.Second,
	}
}

// RegisterRoutes registers health check routes.
func (h *HealthHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/ping", PingHandler)

	health := router.Group("/health")
	{
		// Every registered checker
		health.GET("", h.HealthCheck)

		// Liveness probe - is the process serving requests at all?
		health.GET("/live", h.Liveness)
	}
}

// HealthCheck runs every registered checker.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	response := h.healthService.Check(ctx)
	c.JSON(mapHealthStatusToHTTP(response.Status), gin.H{
		"status":      string(response.Status),
		"timestamp":   response.Timestamp,
		"version":     response.Version,
		"uptime":      response.Uptime.String(),
		"environment": response.Environment,
		"checks":      response.Checks,
		"system":      response.System,
	})
}

// Liveness returns the liveness status
func (h *HealthHandler) Liveness(c *gin.Context) {
	response := h.healthService.Liveness()
	c.JSON(http.StatusOK, gin.H{
		"status":      "alive",
		"timestamp":   response.Timestamp,
		"version":     response.Version,
		"uptime":      response.Uptime.String(),
		"environment": response.Environment,
	})
}

// mapHealthStatusToHTTP maps health status to HTTP status code
func mapHealthStatusToHTTP(status services.HealthStatus) int {
	switch status {
	case services.HealthStatusHealthy, services.HealthStatusDegraded:
		return http.StatusOK
	case services.HealthStatusUnhealthy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PingHandler provides a simple ping endpoint
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
		"time":    time.Now().Unix(),
	})
}
