// Package realtime fans task events out to websocket clients.
//
// Every connected client receives task-changed events. task-assigned events
// go only to the room of the task's assignee. A client is placed in the room
// of the user id taken from its verified session token when it connects.
// Delivery is at-most-once: clients that are offline or too slow to drain
// their buffer miss the event, and nothing is replayed.
package realtime

import (
	"encoding/json"
	"sync"

	"taskhub/internal/domain/models"

	"github.com/rs/zerolog"
)

const (
	EventConnected    = "connected"
	EventTaskChanged  = "task-changed"
	EventTaskAssigned = "task-assigned"
)

type Event struct {
	Type   string       `json:"type"`
	UserID string       `json:"userId,omitempty"`
	Task   *models.Task `json:"task,omitempty"`
}

func roomName(userID string) string {
	return "user:" + userID
}

type Hub struct {
	logger zerolog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	closed  bool
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:  logger.With().Str("component", "realtime").Logger(),
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
	}
}

// Register adds c to the hub and to the room of its user, and queues a
// "connected" event as the first message the client sees. It returns false
// when the hub is already closed.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}

	h.clients[c] = struct{}{}
	if c.userID != "" {
		room := roomName(c.userID)
		members, ok := h.rooms[room]
		if !ok {
			members = make(map[*Client]struct{})
			h.rooms[room] = members
		}
		members[c] = struct{}{}
	}
	if hello, err := json.Marshal(Event{Type: EventConnected, UserID: c.userID}); err == nil {
		h.deliver(c, EventConnected, hello)
	}
	h.logger.Debug().
		Str("user_id", c.userID).
		Int("clients", len(h.clients)).
		Msg("client registered")
	return true
}

// Unregister removes c and closes its send buffer. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	room := roomName(c.userID)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	close(c.send)
	h.logger.Debug().
		Str("user_id", c.userID).
		Int("clients", len(h.clients)).
		Msg("client unregistered")
}

func (h *Hub) TaskChanged(task *models.Task) {
	payload, err := json.Marshal(Event{Type: EventTaskChanged, Task: task})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		h.deliver(c, EventTaskChanged, payload)
	}
}

func (h *Hub) TaskAssigned(task *models.Task) {
	payload, err := json.Marshal(Event{Type: EventTaskAssigned, Task: task})
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to encode event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[roomName(task.AssignedToID)] {
		h.deliver(c, EventTaskAssigned, payload)
	}
}

// deliver must be called with at least the read lock held, so that the send
// channel cannot be closed underneath it.
func (h *Hub) deliver(c *Client, event string, payload []byte) {
	select {
	case c.send <- payload:
	default:
		h.logger.Warn().
			Str("user_id", c.userID).
			Str("event", event).
			Msg("client buffer full, event dropped")
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RoomSize(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomName(userID)])
}

// Close disconnects every client and rejects further registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
	h.logger.Info().Msg("realtime hub closed")
}
