package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ericfisherdev/roomgate/internal/domain"
)

// APIClient handles communication with a roomgate server
type APIClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
}

// NewAPIClient creates a new API client
func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
			// The login route answers with a redirect we want to read, not follow.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		Dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// NewAPIClientFromProfile creates an API client from a profile
func NewAPIClientFromProfile(profile *Profile) *APIClient {
	if profile == nil {
		return nil
	}
	return NewAPIClient(profile.ServerURL, profile.Token)
}

// APIError is a non-2xx answer from the server. Code is the public error code.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("API error (%d)", e.StatusCode)
}

// doRequest performs an HTTP request with authentication
func (c *APIClient) doRequest(ctx context.Context, method, endpoint string) (*http.Response, error) {
	fullURL := c.BaseURL + endpoint

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	return resp, nil
}

// handleResponse decodes a JSON body into result and closes it.
//
//nolint:bodyclose // Response body is closed by this function
func (c *APIClient) handleResponse(resp *http.Response, result interface{}) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiError := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(body, apiError)
		return apiError
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

// Health checks that the server is live
func (c *APIClient) Health(ctx context.Context) error {
	//nolint:bodyclose // Response body is closed by handleResponse
	resp, err := c.doRequest(ctx, http.MethodGet, "/health/live")
	if err != nil {
		return err
	}
	return c.handleResponse(resp, nil)
}

// LoginURL starts the login flow and returns the provider authorization URL
func (c *APIClient) LoginURL(ctx context.Context, provider string) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/auth/"+url.PathEscape(provider)+"/login")
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusFound {
		//nolint:bodyclose // Response body is closed by handleResponse
		if err := c.handleResponse(resp, nil); err != nil {
			return "", err
		}
		return "", fmt.Errorf("unexpected status %d from login", resp.StatusCode)
	}
	_ = resp.Body.Close()

	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("login redirect has no location")
	}
	return location, nil
}

// Me returns the stored profile of the session owner, or nil when none is stored
func (c *APIClient) Me(ctx context.Context) (*domain.UserProfile, error) {
	//nolint:bodyclose // Response body is closed by handleResponse
	resp, err := c.doRequest(ctx, http.MethodGet, "/me")
	if err != nil {
		return nil, err
	}

	var body struct {
		User *domain.UserProfile `json:"user"`
	}
	if err := c.handleResponse(resp, &body); err != nil {
		return nil, err
	}
	return body.User, nil
}

// websocketURL maps the server URL onto the /ws endpoint
func (c *APIClient) websocketURL() (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse base URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// DialRooms opens an authorized realtime connection
func (c *APIClient) DialRooms(ctx context.Context) (*RoomConn, error) {
	target, err := c.websocketURL()
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if c.Token != "" {
		header.Set("Authorization", "Bearer "+c.Token)
	}

	conn, resp, err := c.Dialer.DialContext(ctx, target, header)
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			apiError := &APIError{StatusCode: resp.StatusCode}
			_ = json.NewDecoder(resp.Body).Decode(apiError)
			return nil, apiError
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", target, err)
	}

	return &RoomConn{conn: conn}, nil
}

// TestConnection tests the connection to the API
func (c *APIClient) TestConnection(ctx context.Context) error {
	return c.Health(ctx)
}

// RoomConn is a client side realtime connection
type RoomConn struct {
	conn *websocket.Conn
}

// RoomEvent is a server event as received on the wire
type RoomEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (r *RoomConn) send(eventType string, data interface{}) error {
	return r.conn.WriteJSON(map[string]interface{}{"type": eventType, "data": data})
}

// Join asks to join room
func (r *RoomConn) Join(room string) error {
	return r.send("join", domain.JoinRequest{Room: room})
}

// Send posts text to room
func (r *RoomConn) Send(room, text string) error {
	return r.send("message", domain.MessageRequest{Room: room, Text: text})
}

// Next blocks for the next server event
func (r *RoomConn) Next() (RoomEvent, error) {
	var event RoomEvent
	err := r.conn.ReadJSON(&event)
	return event, err
}

// Close sends a close frame and closes the connection
func (r *RoomConn) Close() error {
	_ = r.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return r.conn.Close()
}
