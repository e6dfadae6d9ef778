// Package ws streams task lifecycle events to connected clients over
// WebSocket. The poll endpoint stays authoritative; this is a push
// channel so UIs do not have to poll tightly.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	// writeTimeout bounds a single frame write per client.
	writeTimeout = 5 * time.Second
	// sendQueueSize is the per-client event backlog. A client that
	// falls further behind starts losing events rather than blocking
	// the task runners that publish them.
	sendQueueSize = 16
)

// Envelope wraps every outbound frame with its event type.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type client struct {
	send chan []byte
}

// Hub tracks connected clients and fans task events out to them.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// HandleWS upgrades the request and streams events until the client
// disconnects. Clients are write-only; inbound frames are consumed and
// discarded by CloseRead.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // origin checks happen in the CORS middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	c := &client{send: make(chan []byte, sendQueueSize)}
	h.add(c)
	defer h.drop(c)

	slog.Info("websocket client connected", "remote", r.RemoteAddr)

	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case frame := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				_ = conn.Close(websocket.StatusAbnormalClosure, "write failed")
				slog.Info("websocket client dropped", "remote", r.RemoteAddr)
				return
			}
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			slog.Info("websocket client disconnected", "remote", r.RemoteAddr)
			return
		}
	}
}

// BroadcastEvent sends one event to every connected client. Clients
// whose queue is full miss this event; delivery is best-effort and the
// caller is never blocked.
func (h *Hub) BroadcastEvent(_ context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal event payload", "type", eventType, "error", err)
		return
	}
	frame, err := json.Marshal(Envelope{Type: eventType, Payload: data})
	if err != nil {
		slog.Error("marshal event envelope", "type", eventType, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- frame:
		default:
			slog.Debug("websocket client lagging, event dropped", "type", eventType)
		}
	}
}

// ConnectionCount returns the number of connected clients.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}
