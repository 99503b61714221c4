package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukerupert/village/internal/metrics"
)

// Message is a realtime change notification. Entity mutations carry only the
// id; message deliveries carry the message itself in Data.
type Message struct {
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     int64          `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
	Data   any            `json:"data,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// Hub tracks connected clients by household and user.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	metrics.ClientConnected()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	if ok {
		metrics.ClientDisconnected()
	}
}

// DisconnectSession closes every connection opened under sessionID and
// returns how many were closed.
func (h *Hub) DisconnectSession(sessionID int64) int {
	if sessionID == 0 {
		return 0
	}
	return h.disconnect(func(c *Client) bool { return c.sessionID == sessionID })
}

// DisconnectUser closes the user's connections except those belonging to
// keepSessionID.
func (h *Hub) DisconnectUser(userID, keepSessionID int64) int {
	return h.disconnect(func(c *Client) bool { return c.userID == userID && c.sessionID != keepSessionID })
}

func (h *Hub) disconnect(match func(*Client) bool) int {
	h.mu.Lock()
	n := 0
	for c := range h.clients {
		if match(c) {
			delete(h.clients, c)
			close(c.send)
			n++
		}
	}
	h.mu.Unlock()

	for range n {
		metrics.ClientDisconnected()
	}
	if n > 0 {
		h.logger.Debug("closed realtime connections", "count", n)
	}
	return n
}

// BroadcastHousehold sends msg to every connection in the household.
func (h *Hub) BroadcastHousehold(householdID int64, msg Message) {
	h.deliver(msg, func(c *Client) bool { return c.householdID == householdID })
}

// SendToUsers sends msg to the given users' connections in the household.
func (h *Hub) SendToUsers(householdID int64, userIDs []int64, msg Message) {
	want := make(map[int64]bool, len(userIDs))
	for _, id := range userIDs {
		want[id] = true
	}
	h.deliver(msg, func(c *Client) bool { return c.householdID == householdID && want[c.userID] })
}

func (h *Hub) deliver(msg Message, match func(*Client) bool) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !match(c) {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Slow client; the event is lost rather than blocking the sender.
			metrics.EventDropped()
			h.logger.Debug("dropped realtime event", "user_id", c.userID, "type", msg.Type)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
