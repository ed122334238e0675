package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/KevinKickass/CorrectorMux/internal/auth"
	"github.com/KevinKickass/CorrectorMux/internal/mux"
	"go.uber.org/zap"
)

// TokenValidator checks the token of the auth message.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// SnapshotProvider returns the current supply state.
type SnapshotProvider interface {
	Snapshot() mux.Snapshot
}

// Hub maintains authenticated WebSocket clients and broadcasts messages
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// closed when Run returns
	done chan struct{}

	mu sync.RWMutex

	logger    *zap.Logger
	validator TokenValidator

	// optional, answers snapshot requests and greets new clients
	snapshots SnapshotProvider
}

// NewHub creates a new Hub instance
func NewHub(logger *zap.Logger, validator TokenValidator) *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		clients:    make(map[*Client]bool),
		logger:     logger,
		validator:  validator,
	}
}

// SetSnapshotProvider sets the provider for snapshot requests. Call before Run.
func (h *Hub) SetSnapshotProvider(provider SnapshotProvider) {
	h.snapshots = provider
}

// Run starts the hub's main event loop. It disconnects all clients when
// ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	h.logger.Info("WebSocket Hub started")

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("WebSocket client registered",
				zap.String("remote_addr", client.conn.RemoteAddr().String()),
				zap.String("username", client.username),
				zap.Int("total_clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("WebSocket client unregistered",
					zap.String("remote_addr", client.conn.RemoteAddr().String()),
					zap.Int("total_clients", len(h.clients)))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
				continue
			}

			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Client send channel full - unregister slow/dead client
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("Client send buffer full, unregistering",
						zap.String("remote_addr", client.conn.RemoteAddr().String()))
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Hub broadcast channel full, message dropped",
			zap.String("message_type", string(msg.Type)))
	}
}

// ForwardSnapshots broadcasts every snapshot from snaps until ctx is done
// or snaps is closed.
func (h *Hub) ForwardSnapshots(ctx context.Context, snaps <-chan mux.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			h.Broadcast(NewSnapshotMessage(snap))
		}
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// registerClient hands c to Run. It reports false when the hub is stopped.
func (h *Hub) registerClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
