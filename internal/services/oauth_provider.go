package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/ericfisherdev/roomgate/internal/domain"
)

// ProviderGitHub is the route name of the GitHub provider.
const ProviderGitHub = "github"

// OAuthProvider is one third-party identity provider.
type OAuthProvider interface {
	// Name returns the route segment identifying the provider
	Name() string

	// AuthCodeURL returns the authorization URL carrying state
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for an access token
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// FetchProfile loads the authenticated user's profile
	FetchProfile(ctx context.Context, token *oauth2.Token) (*domain.UserProfile, error)
}

// GitHubProviderConfig holds configuration for the GitHub provider
type GitHubProviderConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Endpoint     *oauth2.Endpoint // Overrides endpoints.GitHub (tests)
	APIBaseURL   string           // Overrides https://api.github.com/ (tests)
	HTTPTimeout  time.Duration    // Outbound request timeout (default: 15 seconds)
	Now          func() time.Time
}

// GitHubProvider authenticates users against GitHub.
type GitHubProvider struct {
	config     *oauth2.Config
	apiBaseURL *url.URL
	httpClient *http.Client
	now        func() time.Time
}

// NewGitHubProvider creates a new GitHub OAuth provider
func NewGitHubProvider(cfg GitHubProviderConfig) (*GitHubProvider, error) {
	endpoint := endpoints.GitHub
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 15 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	provider := &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     endpoint,
		},
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		now:        cfg.Now,
	}

	if cfg.APIBaseURL != "" {
		base := cfg.APIBaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		parsed, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub API base URL: %w", err)
		}
		provider.apiBaseURL = parsed
	}

	return provider, nil
}

// Name returns the route segment identifying the provider
func (p *GitHubProvider) Name() string {
	return ProviderGitHub
}

// AuthCodeURL returns the GitHub authorization URL carrying state
func (p *GitHubProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for an access token. There is no retry.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.config.Exchange(p.withHTTPClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}
	return token, nil
}

// FetchProfile loads the authenticated GitHub user and maps it to a profile.
func (p *GitHubProvider) FetchProfile(ctx context.Context, token *oauth2.Token) (*domain.UserProfile, error) {
	client := github.NewClient(p.config.Client(p.withHTTPClient(ctx), token))
	if p.apiBaseURL != nil {
		client.BaseURL = p.apiBaseURL
	}

	user, _, err := client.Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to get user information: %w", err)
	}

	return MapGitHubUser(user, p.now())
}

// withHTTPClient makes oauth2 use the provider's timeout-bound client.
func (p *GitHubProvider) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// MapGitHubUser converts a GitHub user into a profile.
// The display name falls back to the login.
func MapGitHubUser(user *github.User, now time.Time) (*domain.UserProfile, error) {
	if user == nil || user.GetID() == 0 {
		return nil, domain.NewValidationError("INVALID_PROVIDER_PROFILE", "GitHub profile has no user id", nil)
	}

	profile := &domain.UserProfile{
		ID:        domain.IdentityID(ProviderGitHub, strconv.FormatInt(user.GetID(), 10)),
		Provider:  ProviderGitHub,
		Login:     user.GetLogin(),
		Name:      user.GetName(),
		AvatarURL: user.GetAvatarURL(),
		UpdatedAt: now,
	}
	if profile.Name == "" {
		profile.Name = profile.Login
	}

	return profile, profile.Validate()
}
