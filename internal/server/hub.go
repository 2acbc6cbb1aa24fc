package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/santelle/santelle/internal/contract"
)

const (
	writeTimeout   = 10 * time.Second
	pongTimeout    = 60 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 16
)

// Hub fans session change events out to every connection of an actor.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]map[*connection]struct{}
	upgrader websocket.Upgrader
	logger   *zap.Logger
	closed   bool
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		conns: make(map[string]map[*connection]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger.Named("hub"),
	}
}

// Publish queues ev for every connection of actor. Slow connections drop
// events rather than block the publisher.
func (h *Hub) Publish(actor string, ev contract.Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encoding event", zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns[actor] {
		c.enqueue(msg)
	}
}

// Connections returns the number of open connections of actor.
func (h *Hub) Connections(actor string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[actor])
}

// ServeWS upgrades an authenticated request and registers the connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, contract.CodeUnauthorized, "missing actor")
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &connection{
		actor: actor,
		ws:    ws,
		send:  make(chan []byte, sendBufferSize),
		done:  make(chan struct{}),
		hub:   h,
	}
	if !h.add(c) {
		_ = ws.Close()
		return
	}
	h.logger.Debug("client connected", zap.String("actor", actor))

	go c.writePump()
	go c.readPump()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*connection
	for _, set := range h.conns {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.Unlock()

	for _, c := range all {
		c.close()
	}
}

func (h *Hub) add(c *connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.conns[c.actor]
	if !ok {
		set = make(map[*connection]struct{})
		h.conns[c.actor] = set
	}
	set[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.conns[c.actor]
	delete(set, c)
	if len(set) == 0 {
		delete(h.conns, c.actor)
	}
}

type connection struct {
	actor string
	ws    *websocket.Conn
	send  chan []byte
	done  chan struct{}
	once  sync.Once
	hub   *Hub
}

func (c *connection) enqueue(msg []byte) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		c.hub.logger.Warn("dropping event, buffer full", zap.String("actor", c.actor))
	}
}

// readPump only services control frames; clients do not send events.
func (c *connection) readPump() {
	defer c.close()
	c.ws.SetReadLimit(4096)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			c.hub.logger.Debug("connection read closed", zap.String("actor", c.actor), zap.Error(err))
			return
		}
	}
}

func (c *connection) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, []byte("ping")); err != nil {
				return
			}
		}
	}
}

func (c *connection) write(messageType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(messageType, data)
}

func (c *connection) close() {
	c.once.Do(func() {
		close(c.done)
		c.hub.remove(c)
		// Give the write pump a moment to send the close frame.
		time.AfterFunc(time.Second, func() { _ = c.ws.Close() })
	})
}
