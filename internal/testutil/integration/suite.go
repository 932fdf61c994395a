//go:build integration
// +build integration

// Package integration runs the full server against a fake GitHub for end-to-end tests
package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/roomgate/internal/app"
	"github.com/ericfisherdev/roomgate/internal/config"
	"github.com/ericfisherdev/roomgate/internal/testutil"
)

// ServerTestSuite is a running server wired exactly as in production
type ServerTestSuite struct {
	App    *app.App
	Server *httptest.Server
	GitHub *testutil.FakeGitHub
	Redis  *miniredis.Miniredis
	Assert *AssertServerState

	client *http.Client
	ctx    context.Context
}

// ServerSuiteOptions configures the suite
type ServerSuiteOptions struct {
	// UseRedis backs state tokens and rate limits with an in-process redis
	UseRedis bool
	// AuthRateLimit is the per-minute limit on /auth routes; 0 disables it
	AuthRateLimit int
}

// LoginResult is the decoded callback response
type LoginResult struct {
	JWT  string                 `json:"jwt"`
	User map[string]interface{} `json:"user"`
}

// SetupServerTest starts an isolated server with the in-memory state store
func SetupServerTest(t *testing.T) *ServerTestSuite {
	return SetupServerTestWithOptions(t, nil)
}

// SetupServerTestWithOptions starts an isolated server
func SetupServerTestWithOptions(t *testing.T, options *ServerSuiteOptions) *ServerTestSuite {
	t.Helper()

	if options == nil {
		options = &ServerSuiteOptions{}
	}

	gh := testutil.NewFakeGitHub(t)
	endpoint := gh.Endpoint()

	v := viper.New()
	config.SetDefaults(v)
	v.Set("JWT_SECRET", testutil.TestSecret)
	v.Set("GITHUB_CLIENT_ID", "integration-client")
	v.Set("GITHUB_CLIENT_SECRET", "integration-secret")
	v.Set("GITHUB_AUTH_URL", endpoint.AuthURL)
	v.Set("GITHUB_TOKEN_URL", endpoint.TokenURL)
	v.Set("GITHUB_API_URL", gh.APIBaseURL())
	v.Set("AUTH_RATE_LIMIT", options.AuthRateLimit)

	var mr *miniredis.Miniredis
	if options.UseRedis {
		mr = miniredis.RunT(t)
		v.Set("STATE_STORE", config.StateStoreRedis)
		v.Set("REDIS_ADDR", mr.Addr())
	}

	cfg := config.FromViper(v)
	require.NoError(t, cfg.Validate(), "integration config must validate")

	ctx := context.Background()
	application, err := app.New(ctx, cfg, app.Options{
		Version:  "integration",
		Logger:   testutil.DiscardLogger(),
		Registry: prometheus.NewRegistry(),
	})
	require.NoError(t, err, "Failed to build application")

	server := httptest.NewServer(application.Router)

	suite := &ServerTestSuite{
		App:    application,
		Server: server,
		GitHub: gh,
		Redis:  mr,
		client: &http.Client{
			Timeout: 5 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		ctx: ctx,
	}
	suite.Assert = &AssertServerState{t: t, suite: suite}

	t.Cleanup(suite.Cleanup)

	return suite
}

// Context returns the test context
func (s *ServerTestSuite) Context() context.Context {
	return s.ctx
}

// Cleanup stops the server and background work
func (s *ServerTestSuite) Cleanup() {
	s.Server.Close()
	s.App.Close()
}

// URL resolves path against the server
func (s *ServerTestSuite) URL(path string) string {
	return s.Server.URL + path
}

// Get issues a GET without following redirects
func (s *ServerTestSuite) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()

	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.URL(path), nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// StartLogin follows the login route and returns the minted state
func (s *ServerTestSuite) StartLogin(t *testing.T) string {
	t.Helper()

	resp := s.Get(t, "/auth/github/login", "")
	require.Equal(t, http.StatusFound, resp.StatusCode)

	location, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(location.String(), s.GitHub.Server.URL), "redirect must target the provider")

	state := location.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

// Login performs the full redirect and callback flow against the fake provider
func (s *ServerTestSuite) Login(t *testing.T) LoginResult {
	t.Helper()

	state := s.StartLogin(t)
	resp := s.Get(t, "/auth/github/callback?code="+testutil.FakeGitHubCode+"&state="+url.QueryEscape(state), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result LoginResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.NotEmpty(t, result.JWT)
	return result
}

// Dial opens an authorized websocket connection
func (s *ServerTestSuite) Dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()

	target := "ws" + strings.TrimPrefix(s.Server.URL, "http") + "/ws?token=" + url.QueryEscape(token)
	conn, resp, err := websocket.DefaultDialer.Dial(target, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// AssertServerState provides assertions over the running server
type AssertServerState struct {
	t     *testing.T
	suite *ServerTestSuite
}

// RoomSize waits until room has exactly n members
func (a *AssertServerState) RoomSize(room string, n int) {
	a.t.Helper()
	require.Eventually(a.t, func() bool {
		return a.suite.App.Broadcaster.Stats().RoomSizes[room] == n
	}, 2*time.Second, 10*time.Millisecond, "room %s should have %d members", room, n)
}

// ConnectionCount waits until n connections are registered
func (a *AssertServerState) ConnectionCount(n int) {
	a.t.Helper()
	require.Eventually(a.t, func() bool {
		return a.suite.App.Broadcaster.Stats().Connections == n
	}, 2*time.Second, 10*time.Millisecond, "expected %d connections", n)
}

// ProfileStored asserts the identity store holds id
func (a *AssertServerState) ProfileStored(id string) {
	a.t.Helper()
	profile, err := a.suite.App.Identities.GetByID(a.suite.ctx, id)
	require.NoError(a.t, err, "profile should be stored: %s", id)
	assert.Equal(a.t, id, profile.ID)
}

// ProfileCount asserts the number of stored profiles
func (a *AssertServerState) ProfileCount(n int) {
	a.t.Helper()
	count, err := a.suite.App.Identities.Count(a.suite.ctx)
	require.NoError(a.t, err)
	assert.Equal(a.t, n, count)
}

// StateKeyCount asserts the number of state tokens held in redis
func (a *AssertServerState) StateKeyCount(n int) {
	a.t.Helper()
	require.NotNil(a.t, a.suite.Redis, "suite was not configured with UseRedis")

	count := 0
	for _, key := range a.suite.Redis.Keys() {
		if strings.HasPrefix(key, "roomgate:state:") {
			count++
		}
	}
	assert.Equal(a.t, n, count, "state keys in redis")
}
