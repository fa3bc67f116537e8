// Package ws is the real-time channel: authenticated WebSocket
// connections grouped into per-user rooms.
package ws

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/cofounder/internal/logging"
	"github.com/dmitrijs2005/cofounder/internal/server/metrics"
)

// RoomForUser names the room every connection of userID joins.
func RoomForUser(userID string) string { return "user_" + userID }

// Hub tracks open connections and fans messages out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}

	logger  logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewHub(logger logging.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		rooms:   make(map[string]map[*Client]struct{}),
		logger:  logger.With("module", "ws_hub"),
		metrics: m,
		now:     time.Now,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
	room := RoomForUser(c.userID)
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	h.metrics.WSConnected()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(c)
}

// remove must be called with mu held.
func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	room := RoomForUser(c.userID)
	delete(h.rooms[room], c)
	if len(h.rooms[room]) == 0 {
		delete(h.rooms, room)
	}
	close(c.send)
	h.metrics.WSDisconnected()
}

// BroadcastToUser sends event to every connection of userID.
func (h *Hub) BroadcastToUser(userID, event string, data any) error {
	payload, err := json.Marshal(Message{Event: event, Data: data})
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[RoomForUser(userID)] {
		h.deliver(c, payload)
	}
	return nil
}

// BroadcastToAll sends event to every open connection.
func (h *Hub) BroadcastToAll(event string, data any) error {
	return h.broadcastExcept(nil, Message{Event: event, Data: data})
}

func (h *Hub) broadcastExcept(sender *Client, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c != sender {
			h.deliver(c, payload)
		}
	}
	return nil
}

// deliver queues payload for c, dropping clients that cannot keep up.
// Must be called with mu held.
func (h *Hub) deliver(c *Client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		h.logger.Warn(context.Background(), "dropping slow WebSocket client", "userId", c.userID, "connId", c.id)
		h.remove(c)
	}
}

// ConnectedUsers returns the ids of users with at least one open
// connection, sorted.
func (h *Hub) ConnectedUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.rooms))
	for c := range h.clients {
		ids = append(ids, c.userID)
	}
	sort.Strings(ids)
	return compact(ids)
}

func compact(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}

// Close drops every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.remove(c)
	}
}

// handle re-broadcasts a client event to every other connection.
func (h *Hub) handle(c *Client, in inbound) {
	ctx := context.Background()

	msg, err := translate(c.userID, in, h.now())
	if err != nil {
		h.logger.Warn(ctx, "ignoring WebSocket message", "userId", c.userID, "event", in.Event, "error", err)
		return
	}
	h.metrics.WSEvent(in.Event)

	if err := h.broadcastExcept(c, msg); err != nil {
		h.logger.Error(ctx, "broadcast failed", "event", msg.Event, "error", err)
	}
}

// EmitAgentTyping tells userID's connections whether an agent is typing.
func (h *Hub) EmitAgentTyping(userID, agentName string, isTyping bool) error {
	return h.BroadcastToUser(userID, EventAgentTyping, typingData{
		AgentName: agentName,
		IsTyping:  isTyping,
		Timestamp: timestamp(h.now()),
	})
}

func (h *Hub) EmitAgentStatus(userID, agentName, status, currentTask string) error {
	return h.BroadcastToUser(userID, EventAgentStatusUpdate, agentStatusData{
		AgentName:   agentName,
		Status:      status,
		CurrentTask: currentTask,
		Timestamp:   timestamp(h.now()),
	})
}

func (h *Hub) EmitDashboardUpdate(userID, widget string, data any) error {
	return h.BroadcastToUser(userID, EventDashboardRefresh, dashboardData{
		Widget:    widget,
		Data:      data,
		Timestamp: timestamp(h.now()),
	})
}

// EmitNotification sends an unread notification to userID. An empty
// level means "info".
func (h *Hub) EmitNotification(userID, typ, title, message, level string) error {
	now := h.now()
	id, err := NotificationID(now)
	if err != nil {
		return err
	}
	if level == "" {
		level = "info"
	}
	return h.BroadcastToUser(userID, EventNewNotification, notificationData{
		ID:        id,
		Type:      typ,
		Title:     title,
		Message:   message,
		Level:     level,
		Timestamp: timestamp(now),
	})
}
