package api

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/roomgate/internal/api/middleware"
	"github.com/ericfisherdev/roomgate/internal/metrics"
	"github.com/ericfisherdev/roomgate/internal/repository"
	"github.com/ericfisherdev/roomgate/internal/services"
	"github.com/ericfisherdev/roomgate/internal/testutil"
)

type apiFixture struct {
	router      *gin.Engine
	github      *testutil.FakeGitHub
	sessions    services.SessionTokenService
	identities  repository.IdentityRepository
	states      *services.StateRegistry
	broadcaster *services.RoomBroadcaster
	registry    *prometheus.Registry
	helper      *testutil.HTTPTestHelper
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	logger := testutil.DiscardLogger()
	registry := prometheus.NewRegistry()
	recorder := metrics.NewCollector(registry)

	gh := testutil.NewFakeGitHub(t)
	provider, err := services.NewGitHubProvider(services.GitHubProviderConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		CallbackURL:  "http://localhost:3000/auth/github/callback",
		Endpoint:     gh.Endpoint(),
		APIBaseURL:   gh.APIBaseURL(),
		HTTPTimeout:  5 * time.Second,
	})
	require.NoError(t, err)

	sessions, err := services.NewSessionTokenService(testutil.TestSecret, time.Hour, nil)
	require.NoError(t, err)

	states := services.NewStateRegistry(repository.NewMemoryStateTokenRepository(), services.StateRegistryConfig{
		Logger:  logger,
		Metrics: recorder,
	})
	identities := repository.NewMemoryIdentityRepository()
	broadcaster := services.NewRoomBroadcaster(services.RoomBroadcasterConfig{
		Logger:  logger,
		Metrics: recorder,
	})

	oauth := services.NewOAuthService(services.OAuthServiceConfig{
		Providers:  []services.OAuthProvider{provider},
		States:     states,
		Identities: identities,
		Sessions:   sessions,
		Logger:     logger,
		Metrics:    recorder,
	})

	health := services.NewHealthService("test", "development")
	health.RegisterChecker(services.NewRoomHealthChecker(broadcaster))

	authMiddleware := middleware.NewAuthMiddleware(sessions)
	gin.SetMode(gin.TestMode)
	router := NewRouter(RouterConfig{
		Logger:             logger,
		CORSAllowedOrigins: []string{"*"},
		AuthMiddleware:     authMiddleware,
		AuthHandler:        NewAuthHandler(oauth, identities, logger),
		WebSocketHandler: NewWebSocketHandler(WebSocketHandlerConfig{
			Broadcaster: broadcaster,
			Auth:        authMiddleware,
			Logger:      logger,
			Metrics:     recorder,
		}),
		HealthHandler:  NewHealthHandler(health),
		MetricsHandler: metrics.Handler(registry),
	})

	return &apiFixture{
		router:      router,
		github:      gh,
		sessions:    sessions,
		identities:  identities,
		states:      states,
		broadcaster: broadcaster,
		registry:    registry,
		helper:      testutil.NewHTTPTestHelper(t, router),
	}
}

// loginState runs the login redirect and returns the minted state.
func (f *apiFixture) loginState(t *testing.T) string {
	t.Helper()

	recorder := f.helper.GET("/auth/github/login", nil)
	require.Equal(t, http.StatusFound, recorder.Code)

	location, err := url.Parse(recorder.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

// issueToken signs a session for subject without going through OAuth.
func (f *apiFixture) issueToken(t *testing.T, subject, name string) string {
	t.Helper()

	token, _, err := f.sessions.Issue(subject, name)
	require.NoError(t, err)
	return token
}

func (f *apiFixture) server(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(f.router)
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server, token string) string {
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	return u
}
