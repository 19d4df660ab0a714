package realtime

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"tlu-support/internal/metrics"
)

// Client is one live connection as seen by the hub.
type Client interface {
	ID() string
	UserID() string
	Send(payload []byte) error
	Close()
}

// Hub tracks connections and the rooms they are subscribed to. Membership lives only
// as long as the connection; nothing here is persisted.
type Hub struct {
	mu          sync.RWMutex
	clients     map[string]Client
	rooms       map[string]map[string]Client   // roomID -> clientID -> client
	memberships map[string]map[string]struct{} // clientID -> set of roomIDs
	log         zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:     make(map[string]Client),
		rooms:       make(map[string]map[string]Client),
		memberships: make(map[string]map[string]struct{}),
		log:         log.With().Str("component", "hub").Logger(),
	}
}

// Register tracks the client and subscribes it to its personal room.
func (h *Hub) Register(c Client) {
	h.mu.Lock()
	h.clients[c.ID()] = c
	h.memberships[c.ID()] = make(map[string]struct{})
	h.subscribeLocked(c, UserRoom(c.UserID()))
	h.mu.Unlock()

	metrics.ActiveConnections.Inc()
}

// Unregister removes the client from every room. No one is notified.
func (h *Hub) Unregister(c Client) {
	h.mu.Lock()
	_, ok := h.clients[c.ID()]
	if ok {
		h.detachLocked(c.ID())
	}
	h.mu.Unlock()

	if ok {
		metrics.ActiveConnections.Dec()
	}
}

// Join subscribes the client to the room and announces it to every member,
// the joiner included.
func (h *Hub) Join(c Client, roomID string) bool {
	if !h.Subscribe(c, roomID) {
		return false
	}
	h.Broadcast(roomID, EventSystemNotification, Notice{
		Content: "User joined room",
		Type:    "SYSTEM",
		RoomID:  roomID,
		UserID:  c.UserID(),
	})
	return true
}

// Subscribe adds the client to the room without announcing it.
func (h *Hub) Subscribe(c Client, roomID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.ID()]; !ok {
		return false
	}
	h.subscribeLocked(c, roomID)
	return true
}

func (h *Hub) Leave(c Client, roomID string) {
	h.mu.Lock()
	h.leaveLocked(roomID, c.ID())
	h.mu.Unlock()
}

func (h *Hub) InRoom(c Client, roomID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[roomID][c.ID()]
	return ok
}

func (h *Hub) RoomSize(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Broadcast delivers the event to the current members of the room and returns how many
// accepted it. An empty or unknown room is a no-op.
func (h *Hub) Broadcast(roomID, event string, payload interface{}) int {
	return h.broadcast(roomID, event, payload, "")
}

// BroadcastExcept is Broadcast without the client identified by exceptID.
func (h *Hub) BroadcastExcept(roomID, event string, payload interface{}, exceptID string) int {
	return h.broadcast(roomID, event, payload, exceptID)
}

// RelayTyping forwards a typing indicator to everyone in the room but its origin.
func (h *Hub) RelayTyping(roomID string, origin Client, payload interface{}) int {
	return h.broadcast(roomID, EventTyping, payload, origin.ID())
}

func (h *Hub) EmitToRoom(roomID, event string, payload interface{}) {
	h.Broadcast(roomID, event, payload)
}

func (h *Hub) EmitToUser(userID, event string, payload interface{}) {
	h.Broadcast(UserRoom(userID), event, payload)
}

// EmitToRooms delivers the event once to every client that is a member of at least
// one of the rooms, however many of them it belongs to.
func (h *Hub) EmitToRooms(event string, payload interface{}, roomIDs ...string) {
	h.broadcastRooms(roomIDs, event, payload, "")
}

// SendTo writes one event to a single client.
func (h *Hub) SendTo(c Client, event string, payload interface{}) error {
	data, err := encode(event, payload)
	if err != nil {
		return err
	}
	return c.Send(data)
}

// Shutdown closes every tracked connection and clears all rooms.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	clients := make([]Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]Client)
	h.rooms = make(map[string]map[string]Client)
	h.memberships = make(map[string]map[string]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	metrics.ActiveConnections.Sub(float64(len(clients)))
	return nil
}

func (h *Hub) broadcast(roomID, event string, payload interface{}, exceptID string) int {
	return h.broadcastRooms([]string{roomID}, event, payload, exceptID)
}

func (h *Hub) broadcastRooms(roomIDs []string, event string, payload interface{}, exceptID string) int {
	data, err := encode(event, payload)
	if err != nil {
		h.log.Error().Err(err).Str("event", event).Msg("failed to encode frame")
		return 0
	}

	h.mu.RLock()
	seen := make(map[string]struct{})
	recipients := make([]Client, 0)
	for _, roomID := range roomIDs {
		for id, c := range h.rooms[roomID] {
			if id == exceptID {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			recipients = append(recipients, c)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range recipients {
		if err := c.Send(data); err != nil {
			metrics.FanoutDropped.WithLabelValues(event).Inc()
			h.log.Debug().Err(err).Strs("rooms", roomIDs).Str("client", c.ID()).Msg("frame dropped")
			continue
		}
		delivered++
	}
	metrics.FanoutDelivered.WithLabelValues(event).Add(float64(delivered))
	return delivered
}

func (h *Hub) subscribeLocked(c Client, roomID string) {
	room := h.rooms[roomID]
	if room == nil {
		room = make(map[string]Client)
		h.rooms[roomID] = room
	}
	room[c.ID()] = c

	set := h.memberships[c.ID()]
	if set == nil {
		set = make(map[string]struct{})
		h.memberships[c.ID()] = set
	}
	set[roomID] = struct{}{}
}

func (h *Hub) detachLocked(clientID string) {
	for roomID := range h.memberships[clientID] {
		h.leaveLocked(roomID, clientID)
	}
	delete(h.memberships, clientID)
	delete(h.clients, clientID)
}

func (h *Hub) leaveLocked(roomID, clientID string) {
	room := h.rooms[roomID]
	if room == nil {
		return
	}
	delete(room, clientID)
	if len(room) == 0 {
		delete(h.rooms, roomID)
	}
	if set, ok := h.memberships[clientID]; ok {
		delete(set, roomID)
	}
}
