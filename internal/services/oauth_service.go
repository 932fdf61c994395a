// Package services provides the login flow, session tokens and the room engine.
package services

import (
	"context"
	"log/slog"

	"github.com/ericfisherdev/roomgate/internal/domain"
	"github.com/ericfisherdev/roomgate/internal/metrics"
	"github.com/ericfisherdev/roomgate/internal/repository"
)

// OAuthService defines the login flow operations.
type OAuthService interface {
	// BeginLogin mints a state token and returns the provider authorization URL.
	BeginLogin(ctx context.Context, provider string) (*LoginRedirect, error)

	// CompleteLogin validates state, exchanges the code and issues a session token.
	CompleteLogin(ctx context.Context, provider, code, state string) (*LoginResult, error)

	// Providers returns the registered provider names.
	Providers() []string
}

// LoginRedirect is the destination of the login redirect.
type LoginRedirect struct {
	Provider string `json:"provider"`
	URL      string `json:"url"`
}

// LoginResult is returned after a successful callback.
type LoginResult struct {
	SessionToken string              `json:"jwt"`
	User         *domain.UserProfile `json:"user"`
}

// OAuthServiceConfig holds the collaborators of the login flow
type OAuthServiceConfig struct {
	Providers  []OAuthProvider
	States     *StateRegistry
	Identities repository.IdentityRepository
	Sessions   SessionTokenService
	Logger     *slog.Logger
	Metrics    metrics.Recorder
}

// oauthService implements OAuthService.
type oauthService struct {
	providers  map[string]OAuthProvider
	order      []string
	states     *StateRegistry
	identities repository.IdentityRepository
	sessions   SessionTokenService
	logger     *slog.Logger
	metrics    metrics.Recorder
}

// NewOAuthService creates a new OAuth login flow service
func NewOAuthService(config OAuthServiceConfig) OAuthService {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Metrics == nil {
		config.Metrics = metrics.Noop{}
	}

	s := &oauthService{
		providers:  make(map[string]OAuthProvider, len(config.Providers)),
		states:     config.States,
		identities: config.Identities,
		sessions:   config.Sessions,
		logger:     config.Logger,
		metrics:    config.Metrics,
	}
	for _, p := range config.Providers {
		s.providers[p.Name()] = p
		s.order = append(s.order, p.Name())
	}

	return s
}

// Providers returns the registered provider names.
func (s *oauthService) Providers() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// BeginLogin mints a state token and returns the provider authorization URL.
func (s *oauthService) BeginLogin(ctx context.Context, providerName string) (*LoginRedirect, error) {
	provider, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}

	flow := s.newFlow(providerName)

	state, err := s.states.Create(ctx)
	if err != nil {
		flow.fail(err)
		return nil, err
	}

	flow.advance(domain.StageRedirected)

	return &LoginRedirect{
		Provider: providerName,
		URL:      provider.AuthCodeURL(state.Value),
	}, nil
}

// CompleteLogin validates state, exchanges the code and issues a session token.
func (s *oauthService) CompleteLogin(ctx context.Context, providerName, code, state string) (*LoginResult, error) {
	provider, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}

	flow := s.newFlow(providerName)
	flow.stage = domain.StageRedirected

	if !s.states.Redeem(ctx, state) {
		err := domain.NewInvalidStateError("Invalid or expired state")
		flow.fail(err)
		s.metrics.RecordLogin(providerName, "invalid_state")
		return nil, err
	}
	if code == "" {
		err := domain.NewInvalidStateError("Invalid state or code")
		flow.fail(err)
		s.metrics.RecordLogin(providerName, "invalid_state")
		return nil, err
	}

	flow.advance(domain.StageExchanging)

	token, err := provider.Exchange(ctx, code)
	if err != nil {
		return nil, s.upstreamFailure(flow, providerName, "OAuth code exchange failed", err)
	}

	profile, err := provider.FetchProfile(ctx, token)
	if err != nil {
		return nil, s.upstreamFailure(flow, providerName, "OAuth profile fetch failed", err)
	}

	if err := s.identities.Upsert(ctx, profile); err != nil {
		return nil, s.upstreamFailure(flow, providerName, "Failed to store profile", err)
	}

	sessionToken, _, err := s.sessions.Issue(profile.ID, profile.DisplayName())
	if err != nil {
		flow.fail(err)
		s.metrics.RecordLogin(providerName, "error")
		return nil, err
	}

	flow.advance(domain.StageCompleted)
	s.metrics.RecordLogin(providerName, "success")

	return &LoginResult{SessionToken: sessionToken, User: profile}, nil
}

func (s *oauthService) provider(name string) (OAuthProvider, error) {
	provider, ok := s.providers[name]
	if !ok {
		return nil, domain.NewNotFoundError(domain.CodeUnknownProvider, "Unknown OAuth provider")
	}
	return provider, nil
}

func (s *oauthService) upstreamFailure(flow *loginFlow, provider, message string, cause error) error {
	err := domain.NewUpstreamError(message, cause)
	flow.fail(err)
	s.metrics.RecordLogin(provider, "upstream_error")
	return err
}

func (s *oauthService) newFlow(provider string) *loginFlow {
	return &loginFlow{
		stage:  domain.StageInitiated,
		logger: s.logger.With("provider", provider),
	}
}

// loginFlow tracks the stage of one login attempt.
type loginFlow struct {
	stage  domain.OAuthStage
	logger *slog.Logger
}

func (f *loginFlow) advance(next domain.OAuthStage) {
	if !f.stage.CanTransitionTo(next) {
		f.logger.Warn("Illegal OAuth stage transition", "from", f.stage, "to", next)
		return
	}
	f.logger.Debug("OAuth stage transition", "from", f.stage, "to", next)
	f.stage = next
}

func (f *loginFlow) fail(err error) {
	f.logger.Info("OAuth login failed", "stage", f.stage, "error", err)
	f.advance(domain.StageFailed)
}
