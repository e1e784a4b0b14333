package http

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mayura26/strategy-analyser-sub000/internal/events"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	// Size of the send buffer for each client.
	sendBufferSize = 256
)

// Event types pushed to dashboard clients.
const (
	EventTypeRunIngested  = events.EventTypeRunIngested
	EventTypeRunDeleted   = events.EventTypeRunDeleted
	EventTypeIngestFailed = events.EventTypeIngestFailed
)

// WSMessage represents a WebSocket message sent to clients.
type WSMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// SubscriptionMessage represents a subscription request from a client.
type SubscriptionMessage struct {
	Action     string   `json:"action"` // "subscribe" or "unsubscribe"
	EventTypes []string `json:"event_types"`
}

// outbound is an encoded message and the event type it carries.
type outbound struct {
	eventType string
	payload   []byte
}

// Client represents a WebSocket client connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send   chan []byte
	sendMu sync.Mutex
	closed bool

	// Subscribed event types (if empty, receives all events).
	subscriptions map[string]bool
	mu            sync.RWMutex

	logger *zap.Logger
}

// Hub fans run events out to the connected dashboard clients.
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex

	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client

	logger *zap.Logger

	done     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a new Hub instance.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns after Shutdown.
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	defer h.logger.Info("WebSocket hub stopped")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("Client registered", zap.Int("total_clients", total))

		case client := <-h.unregister:
			h.removeClient(client)

		case msg := <-h.broadcast:
			h.fanOut(msg)

		case <-h.done:
			h.closeAll()
			return
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.closeSend()
		h.logger.Debug("Client unregistered", zap.Int("total_clients", len(h.clients)))
	}
}

// fanOut sends msg to every subscribed client, dropping clients that cannot keep up.
func (h *Hub) fanOut(msg outbound) {
	var slow []*Client

	h.mu.RLock()
	for client := range h.clients {
		if !client.isSubscribed(msg.eventType) {
			continue
		}
		if !client.trySend(msg.payload) {
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("Dropping slow WebSocket client")
		h.removeClient(client)
	}
}

// BroadcastEvent broadcasts an event to all connected clients.
func (h *Hub) BroadcastEvent(eventType string, data interface{}) {
	payload, err := json.Marshal(WSMessage{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	})
	if err != nil {
		h.logger.Error("Failed to marshal event", zap.Error(err), zap.String("event_type", eventType))
		return
	}

	select {
	case h.broadcast <- outbound{eventType: eventType, payload: payload}:
	default:
		h.logger.Warn("Broadcast channel full, dropping message", zap.String("event_type", eventType))
	}
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown stops the hub and disconnects every client. It is safe to call twice.
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		client.closeSend()
		if client.conn != nil {
			_ = client.conn.Close()
		}
	}
	h.clients = make(map[*Client]bool)
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// trySend queues msg without blocking. It reports false when the buffer is full or closed.
func (c *Client) trySend(msg []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// isSubscribed checks if the client is subscribed to the given event type.
func (c *Client) isSubscribed(eventType string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.subscriptions) == 0 {
		return true
	}
	return c.subscriptions[eventType]
}

func (c *Client) subscribe(eventTypes []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subscriptions == nil {
		c.subscriptions = make(map[string]bool)
	}
	for _, eventType := range eventTypes {
		c.subscriptions[eventType] = true
	}

	c.logger.Debug("Client subscribed to events", zap.Strings("event_types", eventTypes))
}

func (c *Client) unsubscribe(eventTypes []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, eventType := range eventTypes {
		delete(c.subscriptions, eventType)
	}

	c.logger.Debug("Client unsubscribed from events", zap.Strings("event_types", eventTypes))
}

// handleMessage applies a text message from the client.
// It returns the reply to send, if any.
func (c *Client) handleMessage(message []byte) []byte {
	if string(message) == "ping" {
		return []byte("pong")
	}

	var sub SubscriptionMessage
	if err := json.Unmarshal(message, &sub); err != nil {
		c.logger.Debug("Ignoring non-JSON message", zap.String("message", string(message)))
		return nil
	}

	switch sub.Action {
	case "subscribe":
		c.subscribe(sub.EventTypes)
	case "unsubscribe":
		c.unsubscribe(sub.EventTypes)
	default:
		c.logger.Debug("Unknown subscription action", zap.String("action", sub.Action))
	}
	return nil
}

// readPump pumps messages from the websocket connection to the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}

		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if reply := c.handleMessage(message); reply != nil {
			c.trySend(reply)
		}
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from the same binary; API clients may connect from anywhere.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}

	client := &Client{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		subscriptions: make(map[string]bool),
		logger:        h.logger.With(zap.String("remote_addr", r.RemoteAddr)),
	}

	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
