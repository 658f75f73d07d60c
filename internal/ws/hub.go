// Package ws maintains the registry of live WebSocket subscribers and fans
// event notifications out to them.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gitpulse/gitpulse/internal/metrics"
)

// Hub tracks connected WebSocket clients. It is safe for concurrent
// registration, removal, and broadcast.
type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

// NewHub creates an empty hub. checkOrigin decides whether an upgrade
// request's Origin is acceptable; nil allows all origins.
func NewHub(checkOrigin func(r *http.Request) bool) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		conns: make(map[string]*websocket.Conn),
	}
}

// Broadcast sends v as JSON to every connected client. Clients whose write
// fails are dropped from the registry; delivery is best-effort.
func (h *Hub) Broadcast(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal broadcast message", slog.String("error", err.Error()))
		metrics.FanoutErrors.WithLabelValues("websocket").Inc()
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, conn := range h.conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			slog.Debug("dropping websocket client after failed write",
				slog.String("client_id", id),
				slog.String("error", err.Error()),
			)
			metrics.FanoutErrors.WithLabelValues("websocket").Inc()
			conn.Close()
			delete(h.conns, id)
			metrics.WSClients.Set(float64(len(h.conns)))
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// ServeHTTP upgrades the request to a WebSocket connection, registers it,
// and reads (and discards) client messages until disconnect. Client-sent
// text is keep-alive only.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		slog.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	id := uuid.New().String()
	h.register(id, conn)
	defer h.unregister(id)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) register(id string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[id] = conn
	metrics.WSClients.Set(float64(len(h.conns)))
}

func (h *Hub) unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conn, ok := h.conns[id]; ok {
		conn.Close()
		delete(h.conns, id)
	}
	metrics.WSClients.Set(float64(len(h.conns)))
}
