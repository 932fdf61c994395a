package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"golang.org/x/oauth2"
)

// FakeGitHubCode is the only authorization code the fake token endpoint accepts.
const FakeGitHubCode = "good-code"

// FakeGitHub serves the OAuth token endpoint and the /user API.
type FakeGitHub struct {
	Server *httptest.Server

	mu            sync.Mutex
	tokenStatus   int
	userStatus    int
	user          map[string]interface{}
	tokenRequests int32
}

// NewFakeGitHub starts a fake GitHub that is closed with the test.
func NewFakeGitHub(t *testing.T) *FakeGitHub {
	t.Helper()

	f := &FakeGitHub{
		tokenStatus: http.StatusOK,
		userStatus:  http.StatusOK,
		user: map[string]interface{}{
			"id":         42,
			"login":      "octocat",
			"name":       "The Octocat",
			"avatar_url": "https://avatars.example/42",
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", f.handleToken)
	mux.HandleFunc("/api/user", f.handleUser)

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// Endpoint returns the OAuth endpoint of the fake.
func (f *FakeGitHub) Endpoint() *oauth2.Endpoint {
	return &oauth2.Endpoint{
		AuthURL:   f.Server.URL + "/login/oauth/authorize",
		TokenURL:  f.Server.URL + "/login/oauth/access_token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

// APIBaseURL returns the REST API base URL of the fake.
func (f *FakeGitHub) APIBaseURL() string {
	return f.Server.URL + "/api/"
}

// SetTokenStatus makes the token endpoint fail with status.
func (f *FakeGitHub) SetTokenStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenStatus = status
}

// SetUserStatus makes the /user endpoint fail with status.
func (f *FakeGitHub) SetUserStatus(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userStatus = status
}

// SetUserField overrides a field of the returned user; a nil value removes it.
func (f *FakeGitHub) SetUserField(key string, value interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if value == nil {
		delete(f.user, key)
		return
	}
	f.user[key] = value
}

// TokenRequests returns how many times the token endpoint was called.
func (f *FakeGitHub) TokenRequests() int {
	return int(atomic.LoadInt32(&f.tokenRequests))
}

func (f *FakeGitHub) handleToken(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&f.tokenRequests, 1)

	f.mu.Lock()
	status := f.tokenStatus
	f.mu.Unlock()

	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	_ = r.ParseForm()
	w.Header().Set("Content-Type", "application/json")
	if r.Form.Get("code") != FakeGitHubCode {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad_verification_code"}`))
		return
	}
	_, _ = w.Write([]byte(`{"access_token":"gho_test","token_type":"bearer","scope":"read:user"}`))
}

func (f *FakeGitHub) handleUser(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer gho_test" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.userStatus != http.StatusOK {
		w.WriteHeader(f.userStatus)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(f.user)
}
