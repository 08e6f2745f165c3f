package websocket

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// fakeConn records writes and can be told to fail.
type fakeConn struct {
	mu     sync.Mutex
	writes []interface{}
	failed bool
	closed bool
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed {
		return errors.New("write failed")
	}
	f.writes = append(f.writes, v)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newTestHub() *Hub {
	return NewHub(zerolog.Nop())
}

func TestConnectAndBroadcast(t *testing.T) {
	hub := newTestHub()
	sessionID := uuid.New()

	c1, c2 := &fakeConn{}, &fakeConn{}
	u1, u2 := uuid.New(), uuid.New()
	hub.Connect(sessionID, u1, c1)
	hub.Connect(sessionID, u2, c2)

	hub.BroadcastToSession(sessionID, "hello")

	if c1.writeCount() != 1 || c2.writeCount() != 1 {
		t.Fatalf("expected 1 write each, got %d and %d", c1.writeCount(), c2.writeCount())
	}
	if !hub.IsUserConnected(sessionID, u1) || !hub.IsUserConnected(sessionID, u2) {
		t.Error("both users should be registered")
	}
}

func TestReconnectReplacesAndClosesStaleHandle(t *testing.T) {
	hub := newTestHub()
	sessionID, userID := uuid.New(), uuid.New()

	stale, fresh := &fakeConn{}, &fakeConn{}
	hub.Connect(sessionID, userID, stale)
	hub.Connect(sessionID, userID, fresh)

	if !stale.isClosed() {
		t.Error("stale handle should be closed on reconnect")
	}

	hub.BroadcastToSession(sessionID, "msg")
	if stale.writeCount() != 0 {
		t.Error("stale handle must not receive messages")
	}
	if fresh.writeCount() != 1 {
		t.Error("fresh handle should receive the message")
	}
}

func TestBroadcastEvictsFailedHandles(t *testing.T) {
	hub := newTestHub()
	sessionID := uuid.New()

	good1, bad, good2 := &fakeConn{}, &fakeConn{failed: true}, &fakeConn{}
	uGood1, uBad, uGood2 := uuid.New(), uuid.New(), uuid.New()
	hub.Connect(sessionID, uGood1, good1)
	hub.Connect(sessionID, uBad, bad)
	hub.Connect(sessionID, uGood2, good2)

	hub.BroadcastToSession(sessionID, "msg")

	// One failed handle never blocks the others.
	if good1.writeCount() != 1 || good2.writeCount() != 1 {
		t.Errorf("healthy handles should receive despite a failure, got %d and %d",
			good1.writeCount(), good2.writeCount())
	}
	if hub.IsUserConnected(sessionID, uBad) {
		t.Error("failed handle should be evicted")
	}
	if !bad.isClosed() {
		t.Error("failed handle should be closed")
	}
	if !hub.IsUserConnected(sessionID, uGood1) || !hub.IsUserConnected(sessionID, uGood2) {
		t.Error("healthy handles must stay registered")
	}
}

// reconnectingConn fails its first write after re-registering the user with
// a fresh connection, reproducing a reconnect landing between a broadcast's
// snapshot and its failed send.
type reconnectingConn struct {
	hub       *Hub
	sessionID uuid.UUID
	userID    uuid.UUID
	fresh     *fakeConn
	swapped   bool
	closed    bool
}

func (c *reconnectingConn) WriteJSON(v interface{}) error {
	if !c.swapped {
		c.swapped = true
		c.hub.Connect(c.sessionID, c.userID, c.fresh)
	}
	return errors.New("write failed")
}

func (c *reconnectingConn) Close() error {
	c.closed = true
	return nil
}

func TestEvictionSparesFreshHandleAfterReconnect(t *testing.T) {
	hub := newTestHub()
	sessionID, userID := uuid.New(), uuid.New()

	fresh := &fakeConn{}
	dying := &reconnectingConn{hub: hub, sessionID: sessionID, userID: userID, fresh: fresh}
	hub.Connect(sessionID, userID, dying)

	hub.BroadcastToSession(sessionID, "msg")

	if !hub.IsUserConnected(sessionID, userID) {
		t.Fatal("fresh handle must survive the stale handle's eviction")
	}
	if !dying.closed {
		t.Error("failed handle should be closed")
	}

	hub.BroadcastToSession(sessionID, "again")
	if fresh.writeCount() != 1 {
		t.Errorf("fresh handle should receive after the eviction, got %d writes", fresh.writeCount())
	}
}

func TestStaleDisconnectSparesFreshHandle(t *testing.T) {
	hub := newTestHub()
	sessionID, userID := uuid.New(), uuid.New()

	staleHandle := hub.Connect(sessionID, userID, &fakeConn{})
	fresh := &fakeConn{}
	hub.Connect(sessionID, userID, fresh)

	// The old socket's teardown runs after the reconnect.
	hub.Disconnect(sessionID, userID, staleHandle)

	if !hub.IsUserConnected(sessionID, userID) {
		t.Fatal("stale teardown must not deregister the fresh handle")
	}
	hub.BroadcastToSession(sessionID, "msg")
	if fresh.writeCount() != 1 {
		t.Error("fresh handle should still receive")
	}
}

// overlapConn detects concurrent WriteJSON calls.
type overlapConn struct {
	inWrite  int32
	overlaps int32
	writes   int32
}

func (c *overlapConn) WriteJSON(v interface{}) error {
	if atomic.AddInt32(&c.inWrite, 1) > 1 {
		atomic.AddInt32(&c.overlaps, 1)
	}
	time.Sleep(50 * time.Microsecond)
	atomic.AddInt32(&c.inWrite, -1)
	atomic.AddInt32(&c.writes, 1)
	return nil
}

func (c *overlapConn) Close() error { return nil }

func TestWritesToOneConnectionAreSerialized(t *testing.T) {
	hub := newTestHub()
	sessionID, userID := uuid.New(), uuid.New()

	conn := &overlapConn{}
	handle := hub.Connect(sessionID, userID, conn)

	const goroutines = 8
	const perGoroutine = 20

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				switch g % 3 {
				case 0:
					hub.BroadcastToSession(sessionID, "broadcast")
				case 1:
					hub.SendPersonalMessage(sessionID, userID, "personal")
				default:
					// The read loop's pong replies use the handle directly.
					_ = handle.WriteJSON("pong")
				}
			}
		}(g)
	}
	wg.Wait()

	if n := atomic.LoadInt32(&conn.overlaps); n != 0 {
		t.Fatalf("detected %d concurrent writes to one connection", n)
	}
	if n := atomic.LoadInt32(&conn.writes); n != goroutines*perGoroutine {
		t.Errorf("expected %d writes, got %d", goroutines*perGoroutine, n)
	}
}

func TestSendPersonalMessage(t *testing.T) {
	hub := newTestHub()
	sessionID := uuid.New()

	target, other := &fakeConn{}, &fakeConn{}
	uTarget, uOther := uuid.New(), uuid.New()
	hub.Connect(sessionID, uTarget, target)
	hub.Connect(sessionID, uOther, other)

	hub.SendPersonalMessage(sessionID, uTarget, "private")

	if target.writeCount() != 1 {
		t.Errorf("target should receive, got %d writes", target.writeCount())
	}
	if other.writeCount() != 0 {
		t.Errorf("other user must not receive, got %d writes", other.writeCount())
	}

	// Missing recipient is a silent no-op.
	hub.SendPersonalMessage(sessionID, uuid.New(), "ghost")
	hub.SendPersonalMessage(uuid.New(), uTarget, "wrong session")
	if target.writeCount() != 1 {
		t.Error("wrong-session send must not reach the user")
	}
}

func TestDisconnectDropsEmptySession(t *testing.T) {
	hub := newTestHub()
	sessionID, userID := uuid.New(), uuid.New()

	handle := hub.Connect(sessionID, userID, &fakeConn{})
	hub.Disconnect(sessionID, userID, handle)

	if hub.IsUserConnected(sessionID, userID) {
		t.Error("user should be gone after disconnect")
	}
	if users := hub.ConnectedUsers(sessionID); len(users) != 0 {
		t.Errorf("expected empty session, got %d users", len(users))
	}

	// Disconnecting an unknown user is a no-op.
	hub.Disconnect(uuid.New(), uuid.New(), nil)
}
