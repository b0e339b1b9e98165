package statusfeed

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aurora-dispenser/aurora-sync/internal/logging"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Subscribers only send control frames
	maxMessageSize = 512

	// Queued messages per subscriber before it is dropped as too slow
	sendBuffer = 16
)

// Hub fans status updates out to WebSocket subscribers. It implements
// http.Handler; mount it wherever the feed should be served.
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*subscriber]struct{}
	last    []byte
	status  *Status
	closed  bool
}

type subscriber struct {
	conn   *websocket.Conn
	remote string
	send   chan []byte
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			// Local operator tooling only; there is no browser origin to check.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*subscriber]struct{}),
	}
}

// Publish stores st as the latest status and queues it for every subscriber.
// Subscribers whose queue is full are disconnected.
func (h *Hub) Publish(st Status) {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now()
	}
	data, err := json.Marshal(envelope{Type: MessageTypeStatus, Data: &st})
	if err != nil {
		logging.Error("Failed to encode status", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.last = data
	h.status = &st
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			logging.Warn("Status subscriber too slow, dropping",
				zap.String("remote_addr", c.remote),
			)
			h.removeLocked(c)
		}
	}
}

// Last returns the most recently published status.
func (h *Hub) Last() (Status, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status == nil {
		return Status{}, false
	}
	return *h.status, true
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// ServeHTTP upgrades the request and streams status updates until the peer
// goes away or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("Status feed upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	c := &subscriber{
		conn:   conn,
		remote: r.RemoteAddr,
		send:   make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- h.last
	}
	h.mu.Unlock()

	logging.Debug("Status subscriber connected", zap.String("remote_addr", c.remote))

	go h.readPump(c)
	h.writePump(c)
}

func (h *Hub) remove(c *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *subscriber) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// readPump drains control frames so pongs extend the deadline and a closed
// peer is noticed.
func (h *Hub) readPump(c *subscriber) {
	defer h.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug("Status subscriber read error",
					zap.String("remote_addr", c.remote),
					zap.Error(err),
				)
			}
			return
		}
	}
}

func (h *Hub) writePump(c *subscriber) {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
		logging.Debug("Status subscriber disconnected", zap.String("remote_addr", c.remote))
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.remove(c)
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.remove(c)
				return
			}
		}
	}
}

// decode parses one feed message.
func decode(data []byte) (Status, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Status{}, fmt.Errorf("invalid status message: %w", err)
	}
	if env.Type != MessageTypeStatus || env.Data == nil {
		return Status{}, fmt.Errorf("unexpected status message type %q", env.Type)
	}
	return *env.Data, nil
}
