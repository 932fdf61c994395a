// Package testutil provides testing utilities and helpers.
package testutil

//nolint:gofumpt
import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ericfisherdev/roomgate/internal/domain"
)

// TestSecret satisfies the minimum JWT secret length.
const TestSecret = "roomgate-test-secret-0123456789abcdef"

// NewTestRouter creates a new Gin router for testing.
func NewTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// TestCase represents a test case for HTTP handlers.
type TestCase struct {
	ExpectedBody   interface{}
	Headers        map[string]string
	SetupFunc      func(t *testing.T)
	Name           string
	Method         string
	URL            string
	ExpectedStatus int
}

// HTTPTestHelper provides utilities for HTTP testing.
type HTTPTestHelper struct {
	router *gin.Engine
	t      *testing.T
}

// NewHTTPTestHelper creates a new HTTP test helper.
func NewHTTPTestHelper(t *testing.T, router *gin.Engine) *HTTPTestHelper {
	return &HTTPTestHelper{
		router: router,
		t:      t,
	}
}

// Request performs an HTTP request and returns the response.
func (h *HTTPTestHelper) Request(
	method,
	url string,
	body interface{},
	headers map[string]string,
) *httptest.ResponseRecorder {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("Failed to marshal request body: %v", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		h.t.Fatalf("Failed to create request: %v", err)
	}

	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	recorder := httptest.NewRecorder()
	h.router.ServeHTTP(recorder, req)
	return recorder
}

// GET performs a GET request.
func (h *HTTPTestHelper) GET(url string, headers map[string]string) *httptest.ResponseRecorder {
	return h.Request(http.MethodGet, url, nil, headers)
}

// BearerHeader returns headers carrying token as a bearer credential.
func BearerHeader(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// DecodeJSON unmarshals the response body into a generic map.
func (h *HTTPTestHelper) DecodeJSON(recorder *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		h.t.Fatalf("Failed to unmarshal response %q: %v", recorder.Body.String(), err)
	}
	return body
}

// AssertJSON asserts that the response body matches the expected JSON.
func (h *HTTPTestHelper) AssertJSON(recorder *httptest.ResponseRecorder, expected interface{}) {
	actualMap := h.DecodeJSON(recorder)

	expectedBytes, err := json.Marshal(expected)
	if err != nil {
		h.t.Fatalf("Failed to marshal expected response: %v", err)
	}

	var expectedMap map[string]interface{}
	if err := json.Unmarshal(expectedBytes, &expectedMap); err != nil {
		h.t.Fatalf("Failed to unmarshal expected response: %v", err)
	}

	if !jsonEqual(actualMap, expectedMap) {
		h.t.Errorf("Response body mismatch.\nExpected: %s\nActual: %s",
			string(expectedBytes), recorder.Body.String())
	}
}

// AssertStatus asserts that the response has the expected status code.
func (h *HTTPTestHelper) AssertStatus(recorder *httptest.ResponseRecorder, expectedStatus int) {
	if recorder.Code != expectedStatus {
		h.t.Errorf("Status code mismatch. Expected: %d, Actual: %d", expectedStatus, recorder.Code)
	}
}

// AssertHeader asserts that the response has the expected header value.
func (h *HTTPTestHelper) AssertHeader(recorder *httptest.ResponseRecorder, header, expectedValue string) {
	actualValue := recorder.Header().Get(header)
	if actualValue != expectedValue {
		h.t.Errorf("Header %s mismatch. Expected: %s, Actual: %s", header, expectedValue, actualValue)
	}
}

// RunTestCases runs a slice of test cases.
func (h *HTTPTestHelper) RunTestCases(testCases []TestCase) {
	for _, tc := range testCases {
		h.t.Run(tc.Name, func(t *testing.T) {
			if tc.SetupFunc != nil {
				tc.SetupFunc(t)
			}

			recorder := h.Request(tc.Method, tc.URL, nil, tc.Headers)

			h.AssertStatus(recorder, tc.ExpectedStatus)

			if tc.ExpectedBody != nil {
				h.AssertJSON(recorder, tc.ExpectedBody)
			}
		})
	}
}

// DiscardLogger returns a logger that drops every record.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockProfile creates a GitHub profile for testing.
func MockProfile(githubID, login, name string) *domain.UserProfile {
	return &domain.UserProfile{
		ID:        domain.IdentityID("github", githubID),
		Provider:  "github",
		Login:     login,
		Name:      name,
		AvatarURL: "https://avatars.example/" + githubID,
		UpdatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// jsonEqual compares two JSON objects for equality.
func jsonEqual(a, b map[string]interface{}) bool {
	aBytes, _ := json.Marshal(a)
	bBytes, _ := json.Marshal(b)
	return bytes.Equal(aBytes, bBytes)
}
