package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/roomgate/internal/services"
	"github.com/ericfisherdev/roomgate/internal/testutil"
)

type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type wireIdentity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type wireNotification struct {
	Type string       `json:"type"`
	Room string       `json:"room"`
	User wireIdentity `json:"user"`
}

type wireMessage struct {
	Room string       `json:"room"`
	User wireIdentity `json:"user"`
	Text string       `json:"text"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, eventType string, data interface{}) {
	t.Helper()

	frame := map[string]interface{}{"type": eventType}
	if data != nil {
		frame["data"] = data
	}
	require.NoError(t, conn.WriteJSON(frame))
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event wireEvent
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func readTyped[T any](t *testing.T, conn *websocket.Conn, eventType string) T {
	t.Helper()

	event := readEvent(t, conn)
	require.Equal(t, eventType, event.Type, "unexpected event: %s", string(event.Data))

	var data T
	require.NoError(t, json.Unmarshal(event.Data, &data))
	return data
}

// expectPongNext proves nothing else was queued for conn before the pong.
func expectPongNext(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	sendEvent(t, conn, "ping", nil)
	assert.Equal(t, "pong", readEvent(t, conn).Type)
}

// expiredToken signs a session that lapsed an hour ago with the fixture's secret.
func expiredToken(t *testing.T) string {
	t.Helper()

	past := time.Now().Add(-2 * time.Hour)
	issuer, err := services.NewSessionTokenService(testutil.TestSecret, time.Hour, func() time.Time { return past })
	require.NoError(t, err)

	token, _, err := issuer.Issue("github:1", "one")
	require.NoError(t, err)
	return token
}

func TestWebSocket_RejectsUnauthorized(t *testing.T) {
	f := newAPIFixture(t)
	server := f.server(t)

	tests := []struct {
		name  string
		token string
	}{
		{name: "no token", token: ""},
		{name: "garbage token", token: "not-a-jwt"},
		{name: "tampered token", token: f.issueToken(t, "github:1", "one") + "x"},
		{name: "expired token", token: expiredToken(t)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL(server, tt.token), nil)
			if conn != nil {
				_ = conn.Close()
			}
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Zero(t, f.broadcaster.Stats().Connections)
		})
	}

	assert.Zero(t, f.broadcaster.Stats().Rooms)
}

func TestWebSocket_AcceptsBearerHeader(t *testing.T) {
	f := newAPIFixture(t)
	server := f.server(t)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+f.issueToken(t, "github:1", "one"))
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(server, ""), header)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	expectPongNext(t, conn)
}

func TestWebSocket_JoinNotifiesEveryMember(t *testing.T) {
	f := newAPIFixture(t)
	server := f.server(t)

	alice := dial(t, wsURL(server, f.issueToken(t, "github:1", "Alice")))
	bob := dial(t, wsURL(server, f.issueToken(t, "github:2", "Bob")))

	sendEvent(t, alice, "join", map[string]string{"room": "lobby"})
	first := readTyped[wireNotification](t, alice, "notification")
	assert.Equal(t, wireNotification{Type: "join", Room: "lobby", User: wireIdentity{ID: "github:1", Name: "Alice"}}, first)

	sendEvent(t, bob, "join", map[string]string{"room": "lobby"})
	for _, conn := range []*websocket.Conn{alice, bob} {
		n := readTyped[wireNotification](t, conn, "notification")
		assert.Equal(t, "join", n.Type)
		assert.Equal(t, "lobby", n.Room)
		assert.Equal(t, wireIdentity{ID: "github:2", Name: "Bob"}, n.User)
	}
}

func TestWebSocket_JoinNotificationStaysInRoom(t *testing.T) {
	f := newAPIFixture(t)
	server := f.server(t)

	alice := dial(t, wsURL(server, f.issueToken(t, "github:1", "Alice")))
	bob := dial(t, wsURL(server, f.issueToken(t, "github:2", "Bob")))
	carol := dial(t, wsURL(server, f.issueToken(t, "github:3", "Carol")))

	sendEvent(t, alice, "join", map[string]string{"room": "general"})
	readTyped[wireNotification](t, alice, "notification")
	sendEvent(t, carol, "join", map[string]string{"room": "random"})
	readTyped[wireNotification](t, carol, "notification")

	sendEvent(t, bob, "join", map[string]string{"room": "general"})
	n := readTyped[wireNotification](t, alice, "notification")
	assert.Equal(t, "general", n.Room)
	assert.Equal(t, "github:2", n.User.ID)
	readTyped[wireNotification](t, bob, "notification")

	expectPongNext(t, carol)
}

func TestWebSocket_MessageReachesMembersWithTokenIdentity(t *testing.T) {
	f := newAPIFixture(t)
	server := f.server(t)

	alice := dial(t, wsURL(server, f.issueToken(t, "github:1", "Alice")))
	bob := dial(t, wsURL(server, f.issueToken(t, "github:2", "Bob")))

	sendEvent(t, alice, "join", map[string]string{"room": "lobby"})
	readTyped[wireNotification](t, alice, "notification")
	sendEvent(t, bob, "join", map[string]string{"room": "lobby"})
	readTyped[wireNotification](t, alice, "notification")
	readTyped[wireNotification](t, bob, "notification")

	// A user field in the payload must not override the token identity.
	sendEvent(t, bob, "message", map[string]interface{}{
		"room": "lobby",
		"text": "hi",
		"user": map[string]string{"id": "github:1", "name": "Alice"},
	})

	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := readTyped[wireMessage](t, conn, "message")
		assert.Equal(t, "lobby", msg.Room)
		assert.Equal(t, "hi", msg.Text)
		assert.Equal(t, wireIdentity{ID: "github:2", Name: "Bob"}, msg.User)
	}
}

func TestWebSocket_NonMemberCanSend(t *testing.T) {
	f := newAPIFixture(t)
	server := f.server(t)

	member := dial(t, wsURL(server, f.issueToken(t, "github:1", "Member")))
	outsider := dial(t, wsURL(server, f.issueToken(t, "github:2", "Outsider")))

	sendEvent(t, member, "join", map[string]string{"room": "lobby"})
	readTyped[wireNotification](t, member, "notification")

	sendEvent(t, outsider, "message", map[string]string{"room": "lobby", "text": "knock knock"})

	msg := readTyped[wireMessage](t, member, "message")
	assert.Equal(t, "knock knock", msg.Text)
	assert.Equal(t, "github:2", msg.User.ID)

	// The outsider is not a member, so nothing is delivered back to it.
	expectPongNext(t, outsider)
}

func TestWebSocket_UnknownRoomIsNoop(t *testing.T) {
	f := newAPIFixture(t)
	server := f.server(t)

	conn := dial(t, wsURL(server, f.issueToken(t, "github:1", "Alice")))

	sendEvent(t, conn, "message", map[string]string{"room": "nowhere", "text": "echo?"})
	expectPongNext(t, conn)
	assert.Zero(t, f.broadcaster.Stats().Rooms)
}

func TestWebSocket_InvalidEventsErrorToSenderOnly(t *testing.T) {
	f := newAPIFixture(t)
	server := f.server(t)

	sender := dial(t, wsURL(server, f.issueToken(t, "github:1", "Alice")))
	bystander := dial(t, wsURL(server, f.issueToken(t, "github:2", "Bob")))

	sendEvent(t, bystander, "join", map[string]string{"room": "lobby"})
	readTyped[wireNotification](t, bystander, "notification")
	sendEvent(t, sender, "join", map[string]string{"room": "lobby"})
	readTyped[wireNotification](t, sender, "notification")
	readTyped[wireNotification](t, bystander, "notification")

	tests := []struct {
		name         string
		frame        []byte
		expectedCode string
	}{
		{name: "not json", frame: []byte("{not json"), expectedCode: "MALFORMED_EVENT"},
		{name: "missing type", frame: []byte(`{"data":{}}`), expectedCode: "MISSING_EVENT_TYPE"},
		{name: "unknown type", frame: []byte(`{"type":"dance"}`), expectedCode: "UNKNOWN_EVENT_TYPE"},
		{name: "missing data", frame: []byte(`{"type":"join"}`), expectedCode: "MISSING_EVENT_DATA"},
		{name: "empty room", frame: []byte(`{"type":"join","data":{"room":"  "}}`), expectedCode: "INVALID_ROOM"},
		{name: "empty text", frame: []byte(`{"type":"message","data":{"room":"lobby","text":""}}`), expectedCode: "INVALID_TEXT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, sender.WriteMessage(websocket.TextMessage, tt.frame))

			e := readTyped[wireError](t, sender, "error")
			assert.Equal(t, tt.expectedCode, e.Code)
			assert.NotEmpty(t, e.Message)
		})
	}

	expectPongNext(t, bystander)
}

func TestWebSocket_DisconnectIsSilent(t *testing.T) {
	f := newAPIFixture(t)
	server := f.server(t)

	stayer := dial(t, wsURL(server, f.issueToken(t, "github:1", "Stayer")))
	leaver := dial(t, wsURL(server, f.issueToken(t, "github:2", "Leaver")))

	sendEvent(t, stayer, "join", map[string]string{"room": "lobby"})
	readTyped[wireNotification](t, stayer, "notification")
	sendEvent(t, leaver, "join", map[string]string{"room": "lobby"})
	readTyped[wireNotification](t, stayer, "notification")
	readTyped[wireNotification](t, leaver, "notification")

	require.NoError(t, leaver.Close())

	require.Eventually(t, func() bool {
		stats := f.broadcaster.Stats()
		return stats.Connections == 1 && stats.RoomSizes["lobby"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	expectPongNext(t, stayer)
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		name     string
		allowed  []string
		origin   string
		expected bool
	}{
		{name: "no origin header", allowed: []string{"https://app.example"}, origin: "", expected: true},
		{name: "no allow list", allowed: nil, origin: "https://evil.example", expected: true},
		{name: "wildcard", allowed: []string{"*"}, origin: "https://any.example", expected: true},
		{name: "listed", allowed: []string{"https://app.example"}, origin: "https://app.example", expected: true},
		{name: "unlisted", allowed: []string{"https://app.example"}, origin: "https://evil.example", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, originAllowed(tt.allowed, tt.origin))
		})
	}
}
