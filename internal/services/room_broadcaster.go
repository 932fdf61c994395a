package services

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/roomgate/internal/domain"
	"github.com/ericfisherdev/roomgate/internal/metrics"
)

// RoomClient is an authorized connection that can be admitted to rooms.
type RoomClient interface {
	// ID returns the connection id
	ID() string

	// Identity returns the identity bound to the connection at upgrade time
	Identity() domain.Identity

	// Enqueue queues an encoded event without blocking; false means the queue is full
	Enqueue(payload []byte) bool

	// Close terminates the connection without calling back into the broadcaster
	Close()
}

// RoomStats is a snapshot of room occupancy.
type RoomStats struct {
	Rooms       int            `json:"rooms"`
	Members     int            `json:"members"`
	Connections int            `json:"connections"`
	RoomSizes   map[string]int `json:"room_sizes"`
}

// RoomBroadcasterConfig holds configuration for the room broadcaster
type RoomBroadcasterConfig struct {
	Now     func() time.Time
	Logger  *slog.Logger
	Metrics metrics.Recorder
}

// RoomBroadcaster fans room events out to member connections.
// Events are enqueued while holding the lock, so every member of a room
// observes that room's events in emission order.
type RoomBroadcaster struct {
	rooms       map[string]map[string]RoomClient
	memberships map[string]map[string]struct{}
	clients     map[string]RoomClient
	mu          sync.Mutex

	now     func() time.Time
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewRoomBroadcaster creates an empty room broadcaster
func NewRoomBroadcaster(config RoomBroadcasterConfig) *RoomBroadcaster {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Metrics == nil {
		config.Metrics = metrics.Noop{}
	}

	return &RoomBroadcaster{
		rooms:       make(map[string]map[string]RoomClient),
		memberships: make(map[string]map[string]struct{}),
		clients:     make(map[string]RoomClient),
		now:         config.Now,
		logger:      config.Logger,
		metrics:     config.Metrics,
	}
}

// Register tracks a newly upgraded connection.
func (b *RoomBroadcaster) Register(client RoomClient) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.clients[client.ID()] = client
}

// Join adds client to room and notifies every member, the joiner included.
// Joining a room twice keeps a single membership but notifies again.
func (b *RoomBroadcaster) Join(client RoomClient, room string) error {
	if err := (domain.JoinRequest{Room: room}).Validate(); err != nil {
		return err
	}

	event, err := domain.NewJoinNotification(room, client.Identity()).ToJSON()
	if err != nil {
		return domain.NewInternalError("EVENT_ENCODING_FAILED", "Failed to encode join notification", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	members, ok := b.rooms[room]
	if !ok {
		members = make(map[string]RoomClient)
		b.rooms[room] = members
	}
	members[client.ID()] = client

	joined, ok := b.memberships[client.ID()]
	if !ok {
		joined = make(map[string]struct{})
		b.memberships[client.ID()] = joined
	}
	joined[room] = struct{}{}
	b.clients[client.ID()] = client

	b.logger.Debug("Client joined room", "client_id", client.ID(), "room", room, "members", len(members))
	b.broadcastLocked(room, event)
	b.metrics.RecordRoomEvent(string(domain.EventNotification))

	return nil
}

// Message delivers text to every member of room, the sender included.
// The sender does not need to be a member. Unknown rooms are a no-op.
func (b *RoomBroadcaster) Message(client RoomClient, room, text string) error {
	if err := (domain.MessageRequest{Room: room, Text: text}).Validate(); err != nil {
		return err
	}

	event, err := domain.NewMessageEvent(room, client.Identity(), text, b.now()).ToJSON()
	if err != nil {
		return domain.NewInternalError("EVENT_ENCODING_FAILED", "Failed to encode message", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.rooms[room]; !ok {
		b.logger.Debug("Message to unknown room dropped", "client_id", client.ID(), "room", room)
		return nil
	}

	b.broadcastLocked(room, event)
	b.metrics.RecordRoomEvent(string(domain.EventMessage))

	return nil
}

// Disconnect silently removes client from every room.
func (b *RoomBroadcaster) Disconnect(client RoomClient) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.removeLocked(client.ID())
}

// Stats returns a snapshot of room occupancy.
func (b *RoomBroadcaster) Stats() RoomStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := RoomStats{
		Rooms:       len(b.rooms),
		Connections: len(b.clients),
		RoomSizes:   make(map[string]int, len(b.rooms)),
	}
	for name, members := range b.rooms {
		stats.RoomSizes[name] = len(members)
		stats.Members += len(members)
	}
	return stats
}

// broadcastLocked enqueues payload for every member of room.
// Members whose queue is full are evicted. Callers must hold b.mu.
func (b *RoomBroadcaster) broadcastLocked(room string, payload []byte) {
	var evicted []RoomClient
	for _, member := range b.rooms[room] {
		if !member.Enqueue(payload) {
			evicted = append(evicted, member)
		}
	}

	for _, member := range evicted {
		b.logger.Warn("Evicting slow client", "client_id", member.ID(), "room", room)
		b.removeLocked(member.ID())
		member.Close()
	}
}

// removeLocked drops every membership of clientID. Callers must hold b.mu.
func (b *RoomBroadcaster) removeLocked(clientID string) {
	for room := range b.memberships[clientID] {
		members := b.rooms[room]
		delete(members, clientID)
		if len(members) == 0 {
			delete(b.rooms, room)
		}
	}
	delete(b.memberships, clientID)
	delete(b.clients, clientID)
}
