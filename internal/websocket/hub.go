package websocket

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Conn is the minimal write surface of a live connection. *websocket.Conn
// from gorilla satisfies it; tests plug in fakes.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// ConnectionManager is the registry capability the broadcaster and the
// handlers build on. The production implementation is Hub; tests use a
// recording fake.
//
// Connect returns the write-serialized handle; callers that write to the
// connection themselves (the session socket's pong loop) must write through
// it, never through the raw connection.
type ConnectionManager interface {
	Connect(sessionID, userID uuid.UUID, conn Conn) Conn
	Disconnect(sessionID, userID uuid.UUID, handle Conn)
	BroadcastToSession(sessionID uuid.UUID, message interface{})
	SendPersonalMessage(sessionID, userID uuid.UUID, message interface{})
	ConnectedUsers(sessionID uuid.UUID) []uuid.UUID
	IsUserConnected(sessionID, userID uuid.UUID) bool
}

// handle wraps a registered connection with a write lock. gorilla permits
// at most one concurrent writer per connection, and writes come from
// independent goroutines: any two broadcasts, or a broadcast racing the
// read loop's pong. Every write to a registered connection funnels through
// this lock.
type handle struct {
	mu   sync.Mutex
	conn Conn
}

func (h *handle) WriteJSON(v interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return writeWithDeadline(h.conn, v)
}

func (h *handle) Close() error { return h.conn.Close() }

// Hub is the in-process connection registry: sessionID → userID → handle.
//
// This is the one long-lived structure mutated concurrently by independent
// network callbacks, so every map access goes through the mutex. Sends
// happen outside the lock against a snapshot; handles that fail to write
// are evicted, which keeps half-open sockets from accumulating.
type Hub struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]map[uuid.UUID]*handle
	log      zerolog.Logger
}

// NewHub creates an empty registry.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		sessions: make(map[uuid.UUID]map[uuid.UUID]*handle),
		log:      log.With().Str("component", "ws_hub").Logger(),
	}
}

// Connect registers the connection, replacing any prior handle for the same
// session+user (a reconnect evicts the stale one). The returned handle is
// the only safe way to write to the connection from here on.
func (h *Hub) Connect(sessionID, userID uuid.UUID, conn Conn) Conn {
	fresh := &handle{conn: conn}

	h.mu.Lock()
	bucket, ok := h.sessions[sessionID]
	if !ok {
		bucket = make(map[uuid.UUID]*handle)
		h.sessions[sessionID] = bucket
	}
	stale := bucket[userID]
	bucket[userID] = fresh
	h.mu.Unlock()

	if stale != nil && stale.conn != conn {
		_ = stale.Close()
	}

	h.log.Info().
		Str("session_id", sessionID.String()).
		Str("user_id", userID.String()).
		Msg("User connected")
	return fresh
}

// Disconnect removes the registration if it still maps to the given handle
// and drops the session bucket once empty. A stale handle (the user
// reconnected since) is a no-op, so a slow teardown never deregisters the
// fresh connection.
func (h *Hub) Disconnect(sessionID, userID uuid.UUID, hd Conn) {
	h.mu.Lock()
	removed := false
	if bucket, ok := h.sessions[sessionID]; ok {
		if registered, exists := bucket[userID]; exists && Conn(registered) == hd {
			delete(bucket, userID)
			if len(bucket) == 0 {
				delete(h.sessions, sessionID)
			}
			removed = true
		}
	}
	h.mu.Unlock()

	if removed {
		h.log.Info().
			Str("session_id", sessionID.String()).
			Str("user_id", userID.String()).
			Msg("User disconnected")
	}
}

// BroadcastToSession sends the message to every registered handle for the
// session. A failed send on one handle never blocks the others; failed
// handles are evicted as a side effect.
func (h *Hub) BroadcastToSession(sessionID uuid.UUID, message interface{}) {
	type target struct {
		userID uuid.UUID
		hd     *handle
	}

	h.mu.Lock()
	bucket := h.sessions[sessionID]
	targets := make([]target, 0, len(bucket))
	for userID, hd := range bucket {
		targets = append(targets, target{userID: userID, hd: hd})
	}
	h.mu.Unlock()

	for _, t := range targets {
		if err := t.hd.WriteJSON(message); err != nil {
			h.log.Warn().Err(err).
				Str("session_id", sessionID.String()).
				Str("user_id", t.userID.String()).
				Msg("Broadcast send failed, evicting handle")
			h.evict(sessionID, t.userID, t.hd)
		}
	}
}

// SendPersonalMessage sends to exactly one handle if present. A missing
// recipient is a silent no-op: they may simply have left.
func (h *Hub) SendPersonalMessage(sessionID, userID uuid.UUID, message interface{}) {
	h.mu.Lock()
	hd := h.sessions[sessionID][userID]
	h.mu.Unlock()

	if hd == nil {
		return
	}
	if err := hd.WriteJSON(message); err != nil {
		h.log.Warn().Err(err).
			Str("session_id", sessionID.String()).
			Str("user_id", userID.String()).
			Msg("Personal send failed, evicting handle")
		h.evict(sessionID, userID, hd)
	}
}

// evict closes a failed handle and removes it only while it is still the
// registered one. The snapshot taken for a broadcast can outlive a
// reconnect; deleting by key alone would deregister the fresh handle.
func (h *Hub) evict(sessionID, userID uuid.UUID, failed *handle) {
	h.mu.Lock()
	if bucket, ok := h.sessions[sessionID]; ok && bucket[userID] == failed {
		delete(bucket, userID)
		if len(bucket) == 0 {
			delete(h.sessions, sessionID)
		}
	}
	h.mu.Unlock()

	_ = failed.Close()
}

// ConnectedUsers returns a point-in-time snapshot of user ids registered
// for the session.
func (h *Hub) ConnectedUsers(sessionID uuid.UUID) []uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()

	bucket := h.sessions[sessionID]
	users := make([]uuid.UUID, 0, len(bucket))
	for userID := range bucket {
		users = append(users, userID)
	}
	return users
}

// IsUserConnected reports whether the user has a registered handle.
func (h *Hub) IsUserConnected(sessionID, userID uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.sessions[sessionID][userID]
	return ok
}
