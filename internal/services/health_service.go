package services

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
)

// HealthStatus represents the health status of a component.
type HealthStatus string

const (
	// HealthStatusHealthy indicates the component is fully operational.
	HealthStatusHealthy HealthStatus = "healthy"
	// HealthStatusUnhealthy indicates the component is not operational.
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	// HealthStatusDegraded indicates the component has issues but is still functional.
	HealthStatusDegraded HealthStatus = "degraded"
)

// HealthCheck represents a single health check.
type HealthCheck struct {
	LastChecked time.Time              `json:"last_checked"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Name        string                 `json:"name"`
	Message     string                 `json:"message,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Status      HealthStatus           `json:"status"`
	Duration    time.Duration          `json:"duration"`
}

// HealthResponse represents the overall health response.
type HealthResponse struct {
	Timestamp   time.Time              `json:"timestamp"`
	System      map[string]interface{} `json:"system,omitempty"`
	Version     string                 `json:"version"`
	Environment string                 `json:"environment"`
	Status      HealthStatus           `json:"status"`
	Checks      []HealthCheck          `json:"checks"`
	Uptime      time.Duration          `json:"uptime"`
}

// HealthChecker defines the interface for health checkers.
type HealthChecker interface {
	Check(ctx context.Context) HealthCheck
	Name() string
}

// HealthService manages health checks for the application.
type HealthService struct {
	startTime time.Time
	version   string
	env       string
	checkers  []HealthChecker
}

// NewHealthService creates a new health service.
func NewHealthService(version, env string) *HealthService {
	return &HealthService{
		checkers:  make([]HealthChecker, 0),
		startTime: time.Now(),
		version:   version,
		env:       env,
	}
}

// RegisterChecker registers a health checker.
func (h *HealthService) RegisterChecker(checker HealthChecker) {
	h.checkers = append(h.checkers, checker)
}

// Check performs all health checks and returns the overall health status.
func (h *HealthService) Check(ctx context.Context) HealthResponse {
	checks := make([]HealthCheck, 0, len(h.checkers))
	overallStatus := HealthStatusHealthy

	for _, checker := range h.checkers {
		start := time.Now()
		check := checker.Check(ctx)
		check.Duration = time.Since(start)
		check.LastChecked = time.Now()

		checks = append(checks, check)

		if check.Status == HealthStatusUnhealthy {
			overallStatus = HealthStatusUnhealthy
		} else if check.Status == HealthStatusDegraded && overallStatus == HealthStatusHealthy {
			overallStatus = HealthStatusDegraded
		}
	}

	return HealthResponse{
		Status:      overallStatus,
		Timestamp:   time.Now(),
		Version:     h.version,
		Uptime:      time.Since(h.startTime),
		Checks:      checks,
		System:      systemInfo(),
		Environment: h.env,
	}
}

// Liveness returns a simple liveness probe (application is running).
func (h *HealthService) Liveness() HealthResponse {
	return HealthResponse{
		Status:      HealthStatusHealthy,
		Timestamp:   time.Now(),
		Version:     h.version,
		Uptime:      time.Since(h.startTime),
		Environment: h.env,
		Checks:      []HealthCheck{},
	}
}

func systemInfo() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return map[string]interface{}{
		"go_version":  runtime.Version(),
		"goroutines":  runtime.NumGoroutine(),
		"heap_alloc":  memStats.HeapAlloc,
		"heap_in_use": memStats.HeapInuse,
		"gc_cycles":   memStats.NumGC,
	}
}

// RedisHealthChecker pings the redis state store.
type RedisHealthChecker struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisHealthChecker creates a checker for the redis state store.
func NewRedisHealthChecker(client *redis.Client, timeout time.Duration) *RedisHealthChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &RedisHealthChecker{client: client, timeout: timeout}
}

// Name returns the checker name.
func (r *RedisHealthChecker) Name() string {
	return "state_store"
}

// Check pings redis.
func (r *RedisHealthChecker) Check(ctx context.Context) HealthCheck {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return HealthCheck{
			Name:   r.Name(),
			Status: HealthStatusUnhealthy,
			Error:  fmt.Sprintf("redis ping failed: %v", err),
		}
	}

	return HealthCheck{
		Name:    r.Name(),
		Status:  HealthStatusHealthy,
		Message: "redis reachable",
	}
}

// RoomHealthChecker reports room occupancy. It is informational and always healthy.
type RoomHealthChecker struct {
	broadcaster *RoomBroadcaster
}

// NewRoomHealthChecker creates a checker reporting broadcaster stats.
func NewRoomHealthChecker(broadcaster *RoomBroadcaster) *RoomHealthChecker {
	return &RoomHealthChecker{broadcaster: broadcaster}
}

// Name returns the checker name.
func (r *RoomHealthChecker) Name() string {
	return "rooms"
}

// Check returns the current room stats.
func (r *RoomHealthChecker) Check(_ context.Context) HealthCheck {
	stats := r.broadcaster.Stats()
	return HealthCheck{
		Name:   r.Name(),
		Status: HealthStatusHealthy,
		Details: map[string]interface{}{
			"rooms":       stats.Rooms,
			"members":     stats.Members,
			"connections": stats.Connections,
		},
	}
}
