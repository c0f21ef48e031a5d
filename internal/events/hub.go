// Package events pushes execution progress, actions and suggestions to
// connected WebSocket clients.
package events

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"adpilot/internal/domain"
	"adpilot/internal/observability"
)

// Event types carried on the feed.
const (
	TypeExecution  = "execution"
	TypeAction     = "action"
	TypeSuggestion = "suggestion"
)

// Event is one feed message.
type Event struct {
	Type string      `json:"type"`
	At   int64       `json:"at"`
	Data interface{} `json:"data"`
}

// HubConfig configures hub behavior.
type HubConfig struct {
	// WriteTimeout is the per-message write deadline.
	WriteTimeout time.Duration
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// SendBuffer is the per-client outbound buffer. A client that falls
	// this far behind is disconnected rather than slowing the feed.
	SendBuffer int
}

// DefaultHubConfig returns default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
		SendBuffer:   64,
	}
}

type client struct {
	conn *websocket.Conn
	send chan Event
	done chan struct{}
	once sync.Once
}

// Hub fans events out to all connected clients. Implements the Publisher
// contracts of the orchestrator and the autopilot engine.
type Hub struct {
	config   HubConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a Hub. A nil config uses defaults.
func NewHub(config *HubConfig, logger *zap.Logger) *Hub {
	cfg := DefaultHubConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Hub{
		config: cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The feed is read-only broadcast data; any origin may watch.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the client on the feed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade", zap.Error(err))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan Event, h.config.SendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	observability.DefaultMetrics.WSClientsConnected.Inc()
	h.logger.Debug("websocket client connected", zap.String("remote", conn.RemoteAddr().String()))

	go h.writeLoop(c)
	go h.readLoop(c)
}

// PublishExecution broadcasts a pipeline execution snapshot.
func (h *Hub) PublishExecution(e *domain.PipelineExecution) {
	h.broadcast(Event{Type: TypeExecution, At: time.Now().UnixMilli(), Data: e})
}

// PublishAction broadcasts a recorded action.
func (h *Hub) PublishAction(a *domain.Action) {
	h.broadcast(Event{Type: TypeAction, At: time.Now().UnixMilli(), Data: a})
}

// PublishSuggestion broadcasts a queued suggestion.
func (h *Hub) PublishSuggestion(s *domain.Suggestion) {
	h.broadcast(Event{Type: TypeSuggestion, At: time.Now().UnixMilli(), Data: s})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients and rejects new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.drop(c)
	}
	return nil
}

func (h *Hub) broadcast(e Event) {
	observability.RecordEventPublished(e.Type)

	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		select {
		case c.send <- e:
		default:
			// The client's buffer is full; it cannot keep up with the feed.
			h.logger.Warn("dropping slow websocket client",
				zap.String("remote", c.conn.RemoteAddr().String()))
			h.drop(c)
		}
	}
}

// drop removes a client exactly once.
func (h *Hub) drop(c *client) {
	c.once.Do(func() {
		close(c.done)
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()

		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			observability.DefaultMetrics.WSClientsConnected.Dec()
		}
		h.mu.Unlock()
	})
}

// writeLoop serializes all writes for one client: events and ping frames.
func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case e := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteJSON(e); err != nil {
				h.drop(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

// readLoop discards inbound frames; its job is noticing a closed peer.
func (h *Hub) readLoop(c *client) {
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}
