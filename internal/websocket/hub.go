// Package websocket pushes session changes to every open tab of a browser.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"sitedash/internal/domain"
	"sitedash/internal/observability"
	"sitedash/internal/service"
)

const (
	EventSnapshot       = "session.snapshot"
	EventSessionChanged = "session.changed"
)

// Event is the frame sent to browser tabs.
type Event struct {
	Type       string                 `json:"type"`
	Reason     string                 `json:"reason,omitempty"`
	Generation uint64                 `json:"generation,omitempty"`
	Snapshot   domain.SessionSnapshot `json:"snapshot"`
	SentAt     time.Time              `json:"sent_at"`
}

// BroadcastMessage is a frame addressed to one browser session id.
type BroadcastMessage struct {
	SessionID string
	Message   []byte
}

// Hub maintains active clients grouped by browser session id and fans out
// session changes to them.
type Hub struct {
	// Registered clients by sid
	clients map[string]map[*Client]bool

	broadcast  chan *BroadcastMessage
	register   chan *Client
	unregister chan *Client

	// Shutdown signal
	done chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan *BroadcastMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub shutting down gracefully")
			return ctx.Err()

		case client := <-h.register:
			if h.clients[client.sessionID] == nil {
				h.clients[client.sessionID] = make(map[*Client]bool)
			}
			h.clients[client.sessionID][client] = true
			observability.WebSocketConnectionsActive.Inc()
			slog.Debug("client registered", slog.String("session_id", client.sessionID))

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			for client := range h.clients[message.SessionID] {
				select {
				case client.send <- message.Message:
					observability.WebSocketMessagesSent.WithLabelValues("broadcast").Inc()
				default:
					// Client's send buffer is full, drop the connection.
					h.unregisterClient(client)
				}
			}
		}
	}
}

func (h *Hub) unregisterClient(client *Client) {
	clients, ok := h.clients[client.sessionID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.send)
	observability.WebSocketConnectionsActive.Dec()
	slog.Debug("client unregistered", slog.String("session_id", client.sessionID))

	if len(clients) == 0 {
		delete(h.clients, client.sessionID)
	}
}

// shutdown performs graceful cleanup of all connections
func (h *Hub) shutdown() {
	close(h.done)

	for _, clients := range h.clients {
		for client := range clients {
			close(client.send)
			observability.WebSocketConnectionsActive.Dec()
		}
	}
	h.clients = make(map[string]map[*Client]bool)

	slog.Info("hub shutdown complete")
}

// Broadcast queues message for every client of sessionID. It never blocks:
// when the hub is stopped or backed up the message is dropped.
func (h *Hub) Broadcast(sessionID string, message []byte) bool {
	select {
	case <-h.done:
		return false
	case h.broadcast <- &BroadcastMessage{SessionID: sessionID, Message: message}:
		return true
	default:
		slog.Warn("hub backlog full, dropping session event", slog.String("session_id", sessionID))
		return false
	}
}

// SessionChanged implements service.Observer.
func (h *Hub) SessionChanged(ctx context.Context, change service.Change) {
	data, err := json.Marshal(Event{
		Type:       EventSessionChanged,
		Reason:     string(change.Reason),
		Generation: change.Generation,
		Snapshot:   change.Snapshot,
		SentAt:     time.Now().UTC(),
	})
	if err != nil {
		observability.FromContext(ctx).Error("failed to marshal session event", slog.String("error", err.Error()))
		return
	}
	h.Broadcast(change.SessionID, data)
}

// Register registers a client with the hub. It reports false when the hub
// has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
