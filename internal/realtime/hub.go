package realtime

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"PrivateLine/server/pkg/logger"
)

// Publisher is what the pipeline sees: fire an event at every live session
// of one user. Delivery is at-most-once; nobody queues for offline users.
type Publisher interface {
	Publish(userID int64, event string, payload any)
}

// Event envelope written to each socket, same shape for every event name.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Conn is the subset of *websocket.Conn the hub writes to; tests substitute
// a recording implementation.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

type session struct {
	id   uuid.UUID
	conn Conn
}

// Hub maps user ids to their live sessions. A user may hold several
// sessions at once (multiple devices); all of them receive every event.
type Hub struct {
	mu       sync.Mutex
	sessions map[int64]map[uuid.UUID]*session
	logger   *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		sessions: make(map[int64]map[uuid.UUID]*session),
		logger:   log,
	}
}

// Subscribe registers a connection under the user's channel and returns the
// session id used to unsubscribe it.
func (h *Hub) Subscribe(userID int64, conn Conn) uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := uuid.New()
	if h.sessions[userID] == nil {
		h.sessions[userID] = make(map[uuid.UUID]*session)
	}
	h.sessions[userID][id] = &session{id: id, conn: conn}
	h.logger.Debug("session subscribed", "user_id", userID, "session_id", id)
	return id
}

func (h *Hub) Unsubscribe(userID int64, sessionID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(userID, sessionID)
}

// Publish delivers the event to every live session of userID. Write errors
// kill the session; the already-committed database write stays committed.
func (h *Hub) Publish(userID int64, event string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, s := range h.sessions[userID] {
		if err := s.conn.WriteJSON(Event{Event: event, Data: payload}); err != nil {
			h.logger.Warn("dropping dead session", "user_id", userID, "session_id", id, "err", err)
			h.removeLocked(userID, id)
		}
	}
}

// SessionCount reports live sessions for a user.
func (h *Hub) SessionCount(userID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[userID])
}

func (h *Hub) removeLocked(userID int64, sessionID uuid.UUID) {
	if s, ok := h.sessions[userID][sessionID]; ok {
		_ = s.conn.Close()
		delete(h.sessions[userID], sessionID)
		if len(h.sessions[userID]) == 0 {
			delete(h.sessions, userID)
		}
	}
}

var _ Publisher = (*Hub)(nil)

// WebsocketConn adapts *websocket.Conn with a write lock: gorilla allows a
// single concurrent writer per connection.
type WebsocketConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWebsocketConn(conn *websocket.Conn) *WebsocketConn {
	return &WebsocketConn{conn: conn}
}

func (c *WebsocketConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *WebsocketConn) Close() error {
	return c.conn.Close()
}
