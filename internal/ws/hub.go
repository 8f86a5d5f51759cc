package ws

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

// Hub is the broadcast router: it resolves user ids and conversation ids to
// live connections and forwards events. Every user joins a personal channel
// keyed by user id on connect; conversation rooms are joined explicitly
// while a chat view is open.
type Hub struct {
	mu          sync.RWMutex
	users       map[int64]*Conn
	rooms       map[int64]map[string]*Conn
	roomsByConn map[string]map[int64]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		users:       make(map[int64]*Conn),
		rooms:       make(map[int64]map[string]*Conn),
		roomsByConn: make(map[string]map[int64]struct{}),
	}
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func encodeEvent(event string, data any) []byte {
	payload, err := json.Marshal(outbound{Event: event, Data: data})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("event encode failed")
		return nil
	}
	return payload
}

// AddUser joins the connection to its personal channel, replacing any prior
// connection of the same user.
func (h *Hub) AddUser(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.users[conn.UserID] = conn
	if _, ok := h.roomsByConn[conn.ID]; !ok {
		h.roomsByConn[conn.ID] = make(map[int64]struct{})
	}
}

// JoinRoom subscribes the connection to a conversation room.
func (h *Hub) JoinRoom(conversationID int64, conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[string]*Conn)
	}
	h.rooms[conversationID][conn.ID] = conn
	if _, ok := h.roomsByConn[conn.ID]; !ok {
		h.roomsByConn[conn.ID] = make(map[int64]struct{})
	}
	h.roomsByConn[conn.ID][conversationID] = struct{}{}
}

// LeaveRoom unsubscribes the connection from a conversation room.
func (h *Hub) LeaveRoom(conversationID int64, conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveRoomLocked(conversationID, conn.ID)
}

func (h *Hub) leaveRoomLocked(conversationID int64, connID string) {
	if conns, ok := h.rooms[conversationID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	if rooms, ok := h.roomsByConn[connID]; ok {
		delete(rooms, conversationID)
	}
}

// Remove detaches the connection from its personal channel and every room.
// Idempotent: removing an already-removed connection is a no-op.
func (h *Hub) Remove(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.users[conn.UserID]; ok && current.ID == conn.ID {
		delete(h.users, conn.UserID)
	}
	for conversationID := range h.roomsByConn[conn.ID] {
		h.leaveRoomLocked(conversationID, conn.ID)
	}
	delete(h.roomsByConn, conn.ID)
}

// SendToUser forwards an event to the user's personal channel. An offline
// target is a normal outcome, not an error: the lookup miss branch is an
// explicit no-op.
func (h *Hub) SendToUser(userID int64, event string, data any) {
	h.mu.RLock()
	conn, ok := h.users[userID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if payload := encodeEvent(event, data); payload != nil {
		_ = conn.Send(payload)
	}
}

// SendToConversation forwards an event to every connection joined to the
// conversation room.
func (h *Hub) SendToConversation(conversationID int64, event string, data any) {
	h.SendToConversationExcept(conversationID, "", event, data)
}

// SendToConversationExcept forwards to the room, skipping one connection
// (typically the originator of the event).
func (h *Hub) SendToConversationExcept(conversationID int64, exceptConnID, event string, data any) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.rooms[conversationID]))
	for connID, conn := range h.rooms[conversationID] {
		if connID == exceptConnID {
			continue
		}
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	payload := encodeEvent(event, data)
	if payload == nil {
		return
	}
	for _, conn := range conns {
		_ = conn.Send(payload)
	}
}

// BroadcastAll forwards an event to every live connection.
func (h *Hub) BroadcastAll(event string, data any) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.users))
	for _, conn := range h.users {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	payload := encodeEvent(event, data)
	if payload == nil {
		return
	}
	for _, conn := range conns {
		_ = conn.Send(payload)
	}
}
