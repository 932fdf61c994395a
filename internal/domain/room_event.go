package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Payload limits enforced before an event reaches the room engine.
const (
	MaxRoomNameLength = 64
	MaxMessageLength  = 4096
)

// RoomEventType identifies the kind of a realtime event.
type RoomEventType string

// Client to server event types
const (
	EventJoin RoomEventType = "join"
	EventPing RoomEventType = "ping"
)

// EventMessage flows in both directions: a send request from the client, a delivery from the server.
const EventMessage RoomEventType = "message"

// Server to client event types
const (
	EventNotification RoomEventType = "notification"
	EventError        RoomEventType = "error"
	EventPong         RoomEventType = "pong"
)

// NotificationJoin is the only notification kind; leaving a room is silent.
const NotificationJoin = "join"

// String returns the string representation of the event type
func (t RoomEventType) String() string {
	return string(t)
}

// envelope is the wire frame shared by every event.
type envelope struct {
	Type RoomEventType   `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ClientEvent is a validated event sent by a connected client.
type ClientEvent interface {
	EventType() RoomEventType
	Validate() error
}

// JoinRequest asks to add the connection to a room.
type JoinRequest struct {
	Room string `json:"room"`
}

// EventType implements ClientEvent
func (JoinRequest) EventType() RoomEventType { return EventJoin }

// Validate implements ClientEvent
func (r JoinRequest) Validate() error {
	return validateRoomName(r.Room)
}

// MessageRequest asks to broadcast text to a room.
type MessageRequest struct {
	Room string `json:"room"`
	Text string `json:"text"`
}

// EventType implements ClientEvent
func (MessageRequest) EventType() RoomEventType { return EventMessage }

// Validate implements ClientEvent
func (r MessageRequest) Validate() error {
	if err := validateRoomName(r.Room); err != nil {
		return err
	}
	if r.Text == "" {
		return NewValidationError("INVALID_TEXT", "Message text cannot be empty", map[string]interface{}{
			"field": "text",
		})
	}
	if len(r.Text) > MaxMessageLength {
		return NewValidationError("TEXT_TOO_LONG",
			fmt.Sprintf("Message text cannot exceed %d bytes", MaxMessageLength),
			map[string]interface{}{"field": "text"})
	}
	if !utf8.ValidString(r.Text) {
		return NewValidationError("INVALID_TEXT", "Message text must be valid UTF-8", map[string]interface{}{
			"field": "text",
		})
	}
	return nil
}

// PingRequest is an application level keepalive.
type PingRequest struct{}

// EventType implements ClientEvent
func (PingRequest) EventType() RoomEventType { return EventPing }

// Validate implements ClientEvent
func (PingRequest) Validate() error { return nil }

func validateRoomName(room string) error {
	if strings.TrimSpace(room) == "" {
		return NewValidationError("INVALID_ROOM", "Room name cannot be empty", map[string]interface{}{
			"field": "room",
		})
	}
	if utf8.RuneCountInString(room) > MaxRoomNameLength {
		return NewValidationError("INVALID_ROOM",
			fmt.Sprintf("Room name cannot exceed %d characters", MaxRoomNameLength),
			map[string]interface{}{"field": "room"})
	}
	return nil
}

// DecodeClientEvent parses and validates a raw client frame.
func DecodeClientEvent(raw []byte) (ClientEvent, error) {
	var frame envelope
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, NewValidationError("MALFORMED_EVENT", "Event is not valid JSON", nil)
	}

	var event ClientEvent
	switch frame.Type {
	case EventJoin:
		var req JoinRequest
		if err := decodeData(frame.Data, &req); err != nil {
			return nil, err
		}
		event = req
	case EventMessage:
		var req MessageRequest
		if err := decodeData(frame.Data, &req); err != nil {
			return nil, err
		}
		event = req
	case EventPing:
		event = PingRequest{}
	case "":
		return nil, NewValidationError("MISSING_EVENT_TYPE", "Event type is required", nil)
	default:
		return nil, NewValidationError("UNKNOWN_EVENT_TYPE", fmt.Sprintf("Unknown event type: %s", frame.Type), nil)
	}

	if err := event.Validate(); err != nil {
		return nil, err
	}
	return event, nil
}

func decodeData(data json.RawMessage, target interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return NewValidationError("MISSING_EVENT_DATA", "Event data is required", nil)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return NewValidationError("MALFORMED_EVENT", "Event data does not match its type", nil)
	}
	return nil
}

// ServerEvent is an event delivered to clients.
type ServerEvent struct {
	Type RoomEventType `json:"type"`
	Data interface{}   `json:"data"`
}

// MessageData is the payload of a delivered room message.
type MessageData struct {
	Room   string    `json:"room"`
	User   Identity  `json:"user"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// NotificationData is the payload of a room notification.
type NotificationData struct {
	Type string   `json:"type"`
	Room string   `json:"room"`
	User Identity `json:"user"`
}

// ErrorData is the payload of an error event sent to a single connection.
type ErrorData struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// PongData answers a ping.
type PongData struct {
	ServerTime int64 `json:"server_time"`
}

// NewMessageEvent builds a message delivery.
func NewMessageEvent(room string, sender Identity, text string, sentAt time.Time) ServerEvent {
	return ServerEvent{
		Type: EventMessage,
		Data: MessageData{Room: room, User: sender, Text: text, SentAt: sentAt.UTC()},
	}
}

// NewJoinNotification builds the notification fanned out when someone joins.
func NewJoinNotification(room string, joiner Identity) ServerEvent {
	return ServerEvent{
		Type: EventNotification,
		Data: NotificationData{Type: NotificationJoin, Room: room, User: joiner},
	}
}

// NewErrorEvent builds an error event.
func NewErrorEvent(code, message string) ServerEvent {
	return ServerEvent{Type: EventError, Data: ErrorData{Code: code, Message: message}}
}

// NewPongEvent builds a pong.
func NewPongEvent(now time.Time) ServerEvent {
	return ServerEvent{Type: EventPong, Data: PongData{ServerTime: now.Unix()}}
}

// ToJSON converts the event to JSON bytes for transmission
func (e ServerEvent) ToJSON() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, NewInternalError("EVENT_MARSHAL_FAILED", "Failed to marshal room event", err)
	}
	return data, nil
}
