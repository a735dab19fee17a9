package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"bintunet/internal/core/domain"
	"bintunet/internal/core/ports"
	"bintunet/pkg/tracing"
)

const (
	sendBufferSize = 64
	maxReadBytes   = 4096
)

type HubConfig struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		AllowedOrigins: []string{"*"},
	}
}

type client struct {
	conn   *websocket.Conn
	userID domain.UserID
	send   chan []byte
	once   sync.Once
	done   chan struct{}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub pushes stream events to every websocket connection of the owning user.
// Clients are read-only subscribers; commands go through the HTTP API.
type Hub struct {
	cfg      HubConfig
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger

	mu      sync.RWMutex
	clients map[domain.UserID]map[*client]struct{}
}

func NewHub(cfg HubConfig, logger *zap.SugaredLogger) *Hub {
	h := &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[domain.UserID]map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Serve upgrades the request, sends the user's current streams as a snapshot
// and keeps the connection registered until the peer goes away. snapshot runs
// under the registration lock, so no event falls between the two.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID domain.UserID, snapshot func() []*domain.Stream) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade failed: %w", err)
	}

	c := &client{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}

	if err := h.registerWithSnapshot(c, snapshot); err != nil {
		conn.Close()
		return err
	}
	h.logger.Infow("websocket client connected", "user_id", userID)

	go h.writePump(c)
	h.readPump(c)

	h.unregister(c)
	h.logger.Infow("websocket client disconnected", "user_id", userID)
	return nil
}

// Publish sends the event to the owner's connections. A client whose buffer
// is full is disconnected rather than allowed to stall the others.
func (h *Hub) Publish(ctx context.Context, event domain.StreamEvent) error {
	_, span := tracing.TraceWebSocketMessage(ctx, string(event.Type), string(event.UserID))
	defer span.End()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[event.UserID] {
		select {
		case c.send <- data:
		case <-c.done:
		default:
			h.logger.Warnw("websocket client too slow, disconnecting", "user_id", c.userID)
			c.close()
		}
	}
	return nil
}

// Deliver forwards an event received from another instance.
func (h *Hub) Deliver(event domain.StreamEvent) {
	if err := h.Publish(context.Background(), event); err != nil {
		h.logger.Warnw("failed to deliver remote event", "type", event.Type, "error", err)
	}
}

// ConnectedClients returns the number of open connections of a user.
func (h *Hub) ConnectedClients(userID domain.UserID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.clients {
		for c := range set {
			c.close()
		}
	}
}

// registerWithSnapshot queues the snapshot as the client's first message and
// registers it under the write lock, which holds off Publish until both are
// done.
func (h *Hub) registerWithSnapshot(c *client, snapshot func() []*domain.Stream) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var streams []*domain.Stream
	if snapshot != nil {
		streams = snapshot()
	}
	first, err := json.Marshal(domain.StreamEvent{
		Type:      domain.EventSnapshot,
		UserID:    c.userID,
		Streams:   streams,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	c.send <- first

	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
	return nil
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	c.close()
}

func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(maxReadBytes)
	c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Infow("websocket read error", "user_id", c.userID, "error", err)
			}
			c.close()
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

var _ ports.EventPublisher = (*Hub)(nil)
