package api

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ericfisherdev/roomgate/internal/api/middleware"
	"github.com/ericfisherdev/roomgate/internal/domain"
	"github.com/ericfisherdev/roomgate/internal/metrics"
	"github.com/ericfisherdev/roomgate/internal/services"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 32 << 10
	sendBufferSize = 256
)

// WebSocketHandlerConfig holds the collaborators of the websocket endpoint
type WebSocketHandlerConfig struct {
	Broadcaster    *services.RoomBroadcaster
	Auth           *middleware.AuthMiddleware
	AllowedOrigins []string
	Logger         *slog.Logger
	Metrics        metrics.Recorder
	Now            func() time.Time
}

// WebSocketHandler upgrades authorized connections and feeds their events to the broadcaster.
type WebSocketHandler struct {
	upgrader    websocket.Upgrader
	broadcaster *services.RoomBroadcaster
	auth        *middleware.AuthMiddleware
	errors      *ErrorResponder
	logger      *slog.Logger
	metrics     metrics.Recorder
	now         func() time.Time
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(config WebSocketHandlerConfig) *WebSocketHandler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Metrics == nil {
		config.Metrics = metrics.Noop{}
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	origins := config.AllowedOrigins
	return &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(origins, r.Header.Get("Origin"))
			},
		},
		broadcaster: config.Broadcaster,
		auth:        config.Auth,
		errors:      NewErrorResponder(config.Logger),
		logger:      config.Logger,
		metrics:     config.Metrics,
		now:         config.Now,
	}
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/ws", h.HandleWebSocketUpgrade)
}

// Authorize verifies the session token before any upgrade.
// On failure the request is answered with 401 and false is returned.
func (h *WebSocketHandler) Authorize(c *gin.Context) (domain.SessionClaims, bool) {
	claims, err := h.auth.Authenticate(c)
	if err != nil {
		h.metrics.RecordRejectedConnection()
		h.errors.Respond(c, err)
		return domain.SessionClaims{}, false
	}
	return claims, true
}

// HandleWebSocketUpgrade upgrades an authorized request and starts its pumps.
func (h *WebSocketHandler) HandleWebSocketUpgrade(c *gin.Context) {
	claims, ok := h.Authorize(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.logger.Info("WebSocket upgrade failed",
			"request_id", middleware.GetRequestID(c),
			"error", err,
		)
		return
	}

	client := newWSClient(conn, claims.Identity())
	h.broadcaster.Register(client)
	h.metrics.ConnectionOpened()

	h.logger.Info("WebSocket connection established",
		"request_id", middleware.GetRequestID(c),
		"client_id", client.id,
		"user_id", claims.Subject,
	)

	go client.writePump(h.logger)
	go h.readPump(client)
}

// readPump reads events until the connection fails, then releases every membership.
func (h *WebSocketHandler) readPump(client *wsClient) {
	defer func() {
		h.broadcaster.Disconnect(client)
		client.Close()
		h.metrics.ConnectionClosed()
		h.logger.Info("WebSocket connection closed", "client_id", client.id, "user_id", client.identity.ID)
	}()

	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket read error", "client_id", client.id, "error", err)
			}
			return
		}

		h.handleEvent(client, raw)
	}
}

// handleEvent dispatches one client frame. Failures go back to the sender only.
func (h *WebSocketHandler) handleEvent(client *wsClient, raw []byte) {
	event, err := domain.DecodeClientEvent(raw)
	if err != nil {
		h.sendError(client, err)
		return
	}

	switch e := event.(type) {
	case domain.JoinRequest:
		err = h.broadcaster.Join(client, e.Room)
	case domain.MessageRequest:
		err = h.broadcaster.Message(client, e.Room, e.Text)
	case domain.PingRequest:
		h.send(client, domain.NewPongEvent(h.now()))
	}

	if err != nil {
		h.sendError(client, err)
	}
}

func (h *WebSocketHandler) sendError(client *wsClient, err error) {
	code, message := "INTERNAL_ERROR", "An unexpected error occurred"

	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) && domainErr.Type == domain.ValidationError {
		code, message = domainErr.Code, domainErr.Message
	} else {
		h.logger.Error("Room event failed", "client_id", client.id, "error", err)
	}

	h.send(client, domain.NewErrorEvent(code, message))
}

// send delivers a reply to a single connection.
func (h *WebSocketHandler) send(client *wsClient, event domain.ServerEvent) {
	payload, err := event.ToJSON()
	if err != nil {
		h.logger.Error("Failed to encode reply", "client_id", client.id, "error", err)
		return
	}

	if !client.Enqueue(payload) {
		h.logger.Warn("Closing client with a full send queue", "client_id", client.id)
		client.Close()
	}
}

// wsClient is one upgraded connection. Its identity is fixed at upgrade time.
type wsClient struct {
	id        string
	identity  domain.Identity
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newWSClient(conn *websocket.Conn, identity domain.Identity) *wsClient {
	return &wsClient{
		id:       uuid.New().String(),
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
	}
}

// ID implements services.RoomClient
func (c *wsClient) ID() string { return c.id }

// Identity implements services.RoomClient
func (c *wsClient) Identity() domain.Identity { return c.identity }

// Enqueue implements services.RoomClient. Payloads for a closed client are dropped.
func (c *wsClient) Enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}

	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close implements services.RoomClient. The writer sends the close frame.
func (c *wsClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// writePump is the only writer of the connection.
func (c *wsClient) writePump(logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("WebSocket write failed", "client_id", c.id, "error", err)
				c.Close()
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			c.flush()
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is already queued before the close frame.
func (c *wsClient) flush() {
	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

// originAllowed accepts same-host requests, listed origins, or anything under "*".
func originAllowed(allowed []string, origin string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}
	for _, candidate := range allowed {
		if candidate == "*" || candidate == origin {
			return true
		}
	}
	return false
}
