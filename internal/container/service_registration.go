package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/ericfisherdev/roomgate/internal/config"
	"github.com/ericfisherdev/roomgate/internal/metrics"
	"github.com/ericfisherdev/roomgate/internal/repository"
	"github.com/ericfisherdev/roomgate/internal/services"
)

// ServiceNames contains constants for service names used in DI container
const (
	ConfigService               = "config"
	LoggerService               = "logger"
	MetricsService              = "metrics"
	RedisClientService          = "redis_client"
	StateTokenRepositoryService = "state_token_repository"
	IdentityRepositoryService   = "identity_repository"
	StateRegistryService        = "state_registry"
	SessionTokenService         = "session_token_service"
	GitHubProviderService       = "github_provider"
	OAuthService                = "oauth_service"
	RoomBroadcasterService      = "room_broadcaster"
	HealthService               = "health_service"
)

// Options carries the process-level collaborators the container does not build.
type Options struct {
	Version    string
	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

// RegisterServices registers all application services with the DI container
func RegisterServices(container Container, cfg *config.AppConfig, opts Options) error {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	err := container.RegisterSingleton(ConfigService, func(context.Context, Container) (interface{}, error) {
		return cfg, nil
	})
	if err != nil {
		return fmt.Errorf("failed to register config service: %w", err)
	}

	err = container.RegisterSingleton(LoggerService, func(context.Context, Container) (interface{}, error) {
		return opts.Logger, nil
	})
	if err != nil {
		return fmt.Errorf("failed to register logger: %w", err)
	}

	err = container.RegisterSingleton(MetricsService, func(context.Context, Container) (interface{}, error) {
		if opts.Registerer == nil {
			return metrics.Recorder(metrics.Noop{}), nil
		}
		return metrics.Recorder(metrics.NewCollector(opts.Registerer)), nil
	})
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	if err := registerRepositories(container, cfg); err != nil {
		return fmt.Errorf("failed to register repositories: %w", err)
	}

	if err := registerBusinessServices(container, cfg, opts); err != nil {
		return fmt.Errorf("failed to register business services: %w", err)
	}

	return nil
}

// registerRepositories registers the state token store and the identity store
func registerRepositories(container Container, cfg *config.AppConfig) error {
	if cfg.GetStateStore() == config.StateStoreRedis {
		err := container.RegisterSingleton(RedisClientService, func(ctx context.Context, _ Container) (interface{}, error) {
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.GetRedisAddr(),
				Password: cfg.GetRedisPassword(),
				DB:       cfg.GetRedisDB(),
			})
			if err := client.Ping(ctx).Err(); err != nil {
				_ = client.Close()
				return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.GetRedisAddr(), err)
			}
			return client, nil
		})
		if err != nil {
			return fmt.Errorf("failed to register redis client: %w", err)
		}
	}

	err := container.RegisterSingleton(StateTokenRepositoryService, func(ctx context.Context, c Container) (interface{}, error) {
		if !c.Has(RedisClientService) {
			return repository.NewMemoryStateTokenRepository(), nil
		}
		client, err := ResolveAs[*redis.Client](ctx, c, RedisClientService)
		if err != nil {
			return nil, err
		}
		return repository.NewRedisStateTokenRepository(client, repository.DefaultStateKeyPrefix), nil
	})
	if err != nil {
		return fmt.Errorf("failed to register state token repository: %w", err)
	}

	err = container.RegisterSingleton(IdentityRepositoryService, func(context.Context, Container) (interface{}, error) {
		return repository.NewMemoryIdentityRepository(), nil
	})
	if err != nil {
		return fmt.Errorf("failed to register identity repository: %w", err)
	}

	return nil
}

// registerBusinessServices registers the login flow and the room engine
func registerBusinessServices(container Container, cfg *config.AppConfig, opts Options) error {
	err := container.RegisterSingleton(StateRegistryService, func(ctx context.Context, c Container) (interface{}, error) {
		repo, err := ResolveAs[repository.StateTokenRepository](ctx, c, StateTokenRepositoryService)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve state token repository: %w", err)
		}
		recorder, err := ResolveAs[metrics.Recorder](ctx, c, MetricsService)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve metrics: %w", err)
		}

		return services.NewStateRegistry(repo, services.StateRegistryConfig{
			TTL:     cfg.GetStateTTL(),
			Logger:  opts.Logger,
			Metrics: recorder,
		}), nil
	})
	if err != nil {
		return fmt.Errorf("failed to register state registry: %w", err)
	}

	err = container.RegisterSingleton(SessionTokenService, func(context.Context, Container) (interface{}, error) {
		return services.NewSessionTokenService(cfg.GetJWTSecret(), cfg.GetJWTExpiration(), nil)
	})
	if err != nil {
		return fmt.Errorf("failed to register session token service: %w", err)
	}

	err = container.RegisterSingleton(GitHubProviderService, func(context.Context, Container) (interface{}, error) {
		var endpoint *oauth2.Endpoint
		if cfg.GetGitHubAuthURL() != "" {
			endpoint = &oauth2.Endpoint{
				AuthURL:  cfg.GetGitHubAuthURL(),
				TokenURL: cfg.GetGitHubTokenURL(),
			}
		}

		return services.NewGitHubProvider(services.GitHubProviderConfig{
			ClientID:     cfg.GetGitHubClientID(),
			ClientSecret: cfg.GetGitHubClientSecret(),
			CallbackURL:  cfg.GetGitHubCallbackURL(),
			Endpoint:     endpoint,
			APIBaseURL:   cfg.GetGitHubAPIURL(),
			HTTPTimeout:  cfg.GetOAuthHTTPTimeout(),
		})
	})
	if err != nil {
		return fmt.Errorf("failed to register github provider: %w", err)
	}

	err = container.RegisterSingleton(OAuthService, func(ctx context.Context, c Container) (interface{}, error) {
		states, err := ResolveAs[*services.StateRegistry](ctx, c, StateRegistryService)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve state registry: %w", err)
		}
		identities, err := ResolveAs[repository.IdentityRepository](ctx, c, IdentityRepositoryService)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve identity repository: %w", err)
		}
		sessions, err := ResolveAs[services.SessionTokenService](ctx, c, SessionTokenService)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve session token service: %w", err)
		}
		github, err := ResolveAs[*services.GitHubProvider](ctx, c, GitHubProviderService)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve github provider: %w", err)
		}
		recorder, err := ResolveAs[metrics.Recorder](ctx, c, MetricsService)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve metrics: %w", err)
		}

		return services.NewOAuthService(services.OAuthServiceConfig{
			Providers:  []services.OAuthProvider{github},
			States:     states,
			Identities: identities,
			Sessions:   sessions,
			Logger:     opts.Logger,
			Metrics:    recorder,
		}), nil
	})
	if err != nil {
		return fmt.Errorf("failed to register oauth service: %w", err)
	}

	err = container.RegisterSingleton(RoomBroadcasterService, func(ctx context.Context, c Container) (interface{}, error) {
		recorder, err := ResolveAs[metrics.Recorder](ctx, c, MetricsService)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve metrics: %w", err)
		}
		return services.NewRoomBroadcaster(services.RoomBroadcasterConfig{
			Logger:  opts.Logger,
			Metrics: recorder,
		}), nil
	})
	if err != nil {
		return fmt.Errorf("failed to register room broadcaster: %w", err)
	}

	err = container.RegisterSingleton(HealthService, func(ctx context.Context, c Container) (interface{}, error) {
		health := services.NewHealthService(opts.Version, cfg.GetEnvironment())

		broadcaster, err := ResolveAs[*services.RoomBroadcaster](ctx, c, RoomBroadcasterService)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve room broadcaster: %w", err)
		}
		health.RegisterChecker(services.NewRoomHealthChecker(broadcaster))

		if c.Has(RedisClientService) {
			client, err := ResolveAs[*redis.Client](ctx, c, RedisClientService)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve redis client: %w", err)
			}
			health.RegisterChecker(services.NewRedisHealthChecker(client, 0))
		}

		return health, nil
	})
	if err != nil {
		return fmt.Errorf("failed to register health service: %w", err)
	}

	return nil
}
