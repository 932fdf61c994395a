package api

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/roomgate/internal/testutil"
)

func TestAuthHandler_Login(t *testing.T) {
	f := newAPIFixture(t)

	recorder := f.helper.GET("/auth/github/login", nil)
	f.helper.AssertStatus(recorder, http.StatusFound)

	location, err := url.Parse(recorder.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, f.github.Server.URL+"/login/oauth/authorize", location.Scheme+"://"+location.Host+location.Path)
	assert.Equal(t, "client-id", location.Query().Get("client_id"))

	state := location.Query().Get("state")
	require.NotEmpty(t, state)
	assert.True(t, f.states.Redeem(context.Background(), state), "login must register the state")
}

func TestAuthHandler_UnknownProvider(t *testing.T) {
	f := newAPIFixture(t)

	f.helper.RunTestCases([]testutil.TestCase{
		{
			Name:           "login",
			Method:         http.MethodGet,
			URL:            "/auth/gitlab/login",
			ExpectedStatus: http.StatusNotFound,
			ExpectedBody:   map[string]interface{}{"error": PublicUnknownProvider},
		},
		{
			Name:           "callback",
			Method:         http.MethodGet,
			URL:            "/auth/gitlab/callback?code=x&state=y",
			ExpectedStatus: http.StatusNotFound,
			ExpectedBody:   map[string]interface{}{"error": PublicUnknownProvider},
		},
	})
}

func TestAuthHandler_CallbackSuccess(t *testing.T) {
	f := newAPIFixture(t)
	state := f.loginState(t)

	recorder := f.helper.GET("/auth/github/callback?code="+testutil.FakeGitHubCode+"&state="+url.QueryEscape(state), nil)
	f.helper.AssertStatus(recorder, http.StatusOK)

	body := f.helper.DecodeJSON(recorder)
	token, ok := body["jwt"].(string)
	require.True(t, ok, "response must carry a jwt")

	user, ok := body["user"].(map[string]interface{})
	require.True(t, ok, "response must carry the user")
	assert.Equal(t, "github:42", user["id"])
	assert.Equal(t, "octocat", user["login"])
	assert.Equal(t, "The Octocat", user["name"])
	assert.Equal(t, "https://avatars.example/42", user["avatar"])

	claims, err := f.sessions.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "github:42", claims.Subject)
	assert.Equal(t, "The Octocat", claims.Name)

	replay := f.helper.GET("/auth/github/callback?code="+testutil.FakeGitHubCode+"&state="+url.QueryEscape(state), nil)
	f.helper.AssertStatus(replay, http.StatusBadRequest)
	f.helper.AssertJSON(replay, map[string]interface{}{"error": PublicInvalidState})
}

func TestAuthHandler_CallbackFailures(t *testing.T) {
	tests := []struct {
		name           string
		setup          func(f *apiFixture)
		query          func(state string) string
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "missing state",
			query:          func(string) string { return "?code=" + testutil.FakeGitHubCode },
			expectedStatus: http.StatusBadRequest,
			expectedCode:   PublicInvalidState,
		},
		{
			name:           "forged state",
			query:          func(string) string { return "?code=" + testutil.FakeGitHubCode + "&state=forged" },
			expectedStatus: http.StatusBadRequest,
			expectedCode:   PublicInvalidState,
		},
		{
			name:           "missing code",
			query:          func(state string) string { return "?state=" + url.QueryEscape(state) },
			expectedStatus: http.StatusBadRequest,
			expectedCode:   PublicInvalidState,
		},
		{
			name:           "provider denied access",
			query:          func(state string) string { return "?error=access_denied&state=" + url.QueryEscape(state) },
			expectedStatus: http.StatusBadRequest,
			expectedCode:   PublicInvalidState,
		},
		{
			name:           "rejected code",
			query:          func(state string) string { return "?code=bad-code&state=" + url.QueryEscape(state) },
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   PublicOAuthFailed,
		},
		{
			name:           "profile fetch fails",
			setup:          func(f *apiFixture) { f.github.SetUserStatus(http.StatusServiceUnavailable) },
			query:          func(state string) string { return "?code=" + testutil.FakeGitHubCode + "&state=" + url.QueryEscape(state) },
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   PublicOAuthFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newAPIFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}
			state := f.loginState(t)

			recorder := f.helper.GET("/auth/github/callback"+tt.query(state), nil)
			f.helper.AssertStatus(recorder, tt.expectedStatus)
			f.helper.AssertJSON(recorder, map[string]interface{}{"error": tt.expectedCode})
		})
	}
}

func TestAuthHandler_Me(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	profile := testutil.MockProfile("7", "mona", "Mona Lisa")
	require.NoError(t, f.identities.Upsert(ctx, profile))

	known := f.issueToken(t, profile.ID, profile.Name)
	unknown := f.issueToken(t, "github:999", "ghost")

	t.Run("stored profile", func(t *testing.T) {
		recorder := f.helper.GET("/me", testutil.BearerHeader(known))
		f.helper.AssertStatus(recorder, http.StatusOK)

		user, ok := f.helper.DecodeJSON(recorder)["user"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "github:7", user["id"])
		assert.Equal(t, "mona", user["login"])
		assert.Equal(t, "Mona Lisa", user["name"])
	})

	t.Run("no stored profile", func(t *testing.T) {
		recorder := f.helper.GET("/me", testutil.BearerHeader(unknown))
		f.helper.AssertStatus(recorder, http.StatusOK)
		assert.JSONEq(t, `{"user":null}`, recorder.Body.String())
	})

	t.Run("missing token", func(t *testing.T) {
		recorder := f.helper.GET("/me", nil)
		f.helper.AssertStatus(recorder, http.StatusUnauthorized)
		f.helper.AssertJSON(recorder, map[string]interface{}{"error": PublicUnauthorized})
	})

	t.Run("tampered token", func(t *testing.T) {
		recorder := f.helper.GET("/me", testutil.BearerHeader(known[:len(known)-2]+"xx"))
		f.helper.AssertStatus(recorder, http.StatusUnauthorized)
	})
}
