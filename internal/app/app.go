// Package app assembles the roomgate HTTP server from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/ericfisherdev/roomgate/internal/api"
	"github.com/ericfisherdev/roomgate/internal/api/middleware"
	"github.com/ericfisherdev/roomgate/internal/config"
	"github.com/ericfisherdev/roomgate/internal/container"
	"github.com/ericfisherdev/roomgate/internal/metrics"
	"github.com/ericfisherdev/roomgate/internal/repository"
	"github.com/ericfisherdev/roomgate/internal/services"
)

// Options configures New.
type Options struct {
	Version string
	Logger  *slog.Logger
	// Registry receives the application metrics; a fresh registry is created when nil.
	Registry *prometheus.Registry
}

// App is a fully wired server.
type App struct {
	Router      *gin.Engine
	Container   container.Container
	States      *services.StateRegistry
	Broadcaster *services.RoomBroadcaster
	Identities  repository.IdentityRepository

	cfg         *config.AppConfig
	logger      *slog.Logger
	rateLimiter *middleware.RateLimitManager
	redis       *redis.Client
	cancel      context.CancelFunc
}

// New builds every service and the router. Close must be called to release background work.
func New(ctx context.Context, cfg *config.AppConfig, opts Options) (*App, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
		opts.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := container.NewContainer()
	if err := container.RegisterServices(c, cfg, container.Options{
		Version:    opts.Version,
		Logger:     opts.Logger,
		Registerer: opts.Registry,
	}); err != nil {
		return nil, err
	}

	appCtx, cancel := context.WithCancel(ctx)
	a := &App{
		Container: c,
		cfg:       cfg,
		logger:    opts.Logger,
		cancel:    cancel,
	}

	if err := a.build(appCtx, opts.Registry); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func (a *App) build(ctx context.Context, registry *prometheus.Registry) error {
	var err error

	if a.Container.Has(container.RedisClientService) {
		if a.redis, err = container.ResolveAs[*redis.Client](ctx, a.Container, container.RedisClientService); err != nil {
			return err
		}
	}

	recorder, err := container.ResolveAs[metrics.Recorder](ctx, a.Container, container.MetricsService)
	if err != nil {
		return err
	}
	oauth, err := container.ResolveAs[services.OAuthService](ctx, a.Container, container.OAuthService)
	if err != nil {
		return err
	}
	sessions, err := container.ResolveAs[services.SessionTokenService](ctx, a.Container, container.SessionTokenService)
	if err != nil {
		return err
	}
	health, err := container.ResolveAs[*services.HealthService](ctx, a.Container, container.HealthService)
	if err != nil {
		return err
	}
	if a.States, err = container.ResolveAs[*services.StateRegistry](ctx, a.Container, container.StateRegistryService); err != nil {
		return err
	}
	if a.Broadcaster, err = container.ResolveAs[*services.RoomBroadcaster](ctx, a.Container, container.RoomBroadcasterService); err != nil {
		return err
	}
	if a.Identities, err = container.ResolveAs[repository.IdentityRepository](ctx, a.Container, container.IdentityRepositoryService); err != nil {
		return err
	}

	var limiter gin.HandlerFunc
	if a.cfg.GetAuthRateLimit() > 0 {
		a.rateLimiter = middleware.NewRateLimitManager(ctx, middleware.RateLimitConfig{
			RequestsPerMinute: a.cfg.GetAuthRateLimit(),
			Redis:             a.redis,
			Logger:            a.logger,
		})
		limiter = a.rateLimiter.Middleware()
	}

	authMiddleware := middleware.NewAuthMiddleware(sessions)

	a.Router = api.NewRouter(api.RouterConfig{
		Logger:             a.logger,
		CORSAllowedOrigins: a.cfg.GetCORSAllowedOrigins(),
		AuthMiddleware:     authMiddleware,
		AuthHandler:        api.NewAuthHandler(oauth, a.Identities, a.logger),
		WebSocketHandler: api.NewWebSocketHandler(api.WebSocketHandlerConfig{
			Broadcaster:    a.Broadcaster,
			Auth:           authMiddleware,
			AllowedOrigins: a.cfg.GetCORSAllowedOrigins(),
			Logger:         a.logger,
			Metrics:        recorder,
		}),
		HealthHandler:   api.NewHealthHandler(health),
		AuthRateLimiter: limiter,
		MetricsHandler:  metrics.Handler(registry),
	})

	a.States.StartSweeper(ctx, a.cfg.GetStateSweepInterval())

	return nil
}

// Close stops background work and releases the redis connection.
func (a *App) Close() {
	a.cancel()
	if a.rateLimiter != nil {
		a.rateLimiter.Shutdown()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("Failed to close redis client", "error", err)
		}
	}
}

// Describe returns the startup summary logged by the server.
func (a *App) Describe() []any {
	return []any{
		"environment", a.cfg.GetEnvironment(),
		"state_store", a.cfg.GetStateStore(),
		"state_ttl", a.cfg.GetStateTTL().String(),
		"session_ttl", a.cfg.GetJWTExpiration().String(),
		"auth_rate_limit", fmt.Sprintf("%d/min", a.cfg.GetAuthRateLimit()),
	}
}
