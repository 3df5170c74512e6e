package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/openwot/webthing-core/internal/infrastructure/config"
	"github.com/openwot/webthing-core/internal/infrastructure/logging"
	"github.com/openwot/webthing-core/internal/thing"
)

// Inbound WebSocket message types (the WoT WebSocket protocol).
const (
	WSTypeSetProperty          = "setProperty"
	WSTypeRequestAction        = "requestAction"
	WSTypeAddEventSubscription = "addEventSubscription"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256
)

// WSMessage is the envelope for inbound client messages.
type WSMessage struct {
	MessageType string          `json:"messageType"`
	Data        json.RawMessage `json:"data"`
}

// Hub tracks WebSocket connections so shutdown can close them cleanly.
// Notification fan-out itself is owned by the Thing's subscriber sets;
// the hub only manages connection lifecycle.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one connected WebSocket client. It implements
// thing.Subscriber: the Thing pushes serialised notifications through
// Send, and the client relays them over the connection.
type WSClient struct {
	id    string
	hub   *Hub
	thing *thing.Thing
	conn  *websocket.Conn
	send  chan []byte
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then closes all clients.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", h.ClientCount())
}

// Unregister removes a client from the hub and detaches it from the
// thing's subscriber sets. Only the goroutine that successfully removes
// the client from the map closes the send channel, preventing
// double-close panics during shutdown.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		client.thing.RemoveSubscriber(client)
		close(client.send)
	}
	h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients and closes their send channels so
// writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.thing.RemoveSubscriber(client)
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// handleWebSocket upgrades the HTTP connection and registers the client
// as a global subscriber on the thing. Per-event delivery requires an
// explicit addEventSubscription message from the client.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		id:    uuid.New().String(),
		hub:   s.hub,
		thing: s.thing,
		conn:  conn,
		send:  make(chan []byte, wsSendBufferSize),
	}

	s.hub.Register(client)
	s.thing.AddSubscriber(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

// ID implements thing.Subscriber.
func (c *WSClient) ID() string { return c.id }

// Send implements thing.Subscriber. It must not block notification
// fan-out, so delivery goes through the buffered channel and drops when
// the client is slow or already gone.
func (c *WSClient) Send(message []byte) {
	c.trySend(message)
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline (keeps connection
		// alive even if the client doesn't answer protocol-level pings).
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming WebSocket message.
func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(http.StatusBadRequest, "invalid JSON message")
		return
	}

	switch msg.MessageType {
	case WSTypeSetProperty:
		c.handleSetProperty(msg)
	case WSTypeRequestAction:
		c.handleRequestAction(msg)
	case WSTypeAddEventSubscription:
		c.handleAddEventSubscription(msg)
	default:
		c.sendError(http.StatusBadRequest, "unknown messageType: "+msg.MessageType)
	}
}

// handleSetProperty applies property updates from the client. Each key in
// data is a property name. Rejections come back as error messages;
// accepted values are announced via the normal propertyStatus fan-out.
func (c *WSClient) handleSetProperty(msg WSMessage) {
	var values map[string]any
	if err := json.Unmarshal(msg.Data, &values); err != nil {
		c.sendError(http.StatusBadRequest, "invalid setProperty data")
		return
	}

	for name, value := range values {
		if err := c.thing.SetProperty(name, value); err != nil {
			c.sendError(http.StatusBadRequest, err.Error())
		}
	}
}

// handleRequestAction creates and starts action instances requested by
// the client. Each key in data is an action name.
func (c *WSClient) handleRequestAction(msg WSMessage) {
	var requests map[string]struct {
		Input any `json:"input"`
	}
	if err := json.Unmarshal(msg.Data, &requests); err != nil {
		c.sendError(http.StatusBadRequest, "invalid requestAction data")
		return
	}

	for name, req := range requests {
		action, err := c.thing.PerformAction(name, req.Input)
		if err != nil {
			c.sendError(http.StatusBadRequest, err.Error())
			continue
		}
		if runner, ok := action.(interface{ Start() }); ok {
			go runner.Start()
		}
	}
}

// handleAddEventSubscription joins the client to the subscriber subset of
// each named event. Event messages are delivered only to subscribers that
// asked for that event name; global membership alone is not enough.
func (c *WSClient) handleAddEventSubscription(msg WSMessage) {
	var events map[string]json.RawMessage
	if err := json.Unmarshal(msg.Data, &events); err != nil {
		c.sendError(http.StatusBadRequest, "invalid addEventSubscription data")
		return
	}

	for name := range events {
		c.thing.AddEventSubscriber(name, c)
	}
}

// trySend attempts to send data to the client's send channel. It silently
// handles closed channels (client disconnected during fan-out) and full
// buffers (slow client).
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		// Client buffer full, skip
	}
}

// sendError sends a protocol error message to the client.
func (c *WSClient) sendError(status int, message string) {
	data, err := json.Marshal(map[string]any{
		"messageType": "error",
		"data": map[string]any{
			"status":  http.StatusText(status),
			"message": message,
		},
	})
	if err != nil {
		return
	}
	c.trySend(data)
}
