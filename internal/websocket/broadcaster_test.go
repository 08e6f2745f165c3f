package websocket

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/readspace/ielts-backend/internal/model"
	"github.com/rs/zerolog"
)

// fakeManager records per-user deliveries.
type fakeManager struct {
	connected []uuid.UUID
	personal  map[uuid.UUID][]interface{}
	broadcast []interface{}
}

func newFakeManager(users ...uuid.UUID) *fakeManager {
	return &fakeManager{connected: users, personal: make(map[uuid.UUID][]interface{})}
}

func (f *fakeManager) Connect(sessionID, userID uuid.UUID, conn Conn) Conn { return conn }
func (f *fakeManager) Disconnect(sessionID, userID uuid.UUID, handle Conn) {}
func (f *fakeManager) BroadcastToSession(sessionID uuid.UUID, message interface{}) {
	f.broadcast = append(f.broadcast, message)
}
func (f *fakeManager) SendPersonalMessage(sessionID, userID uuid.UUID, message interface{}) {
	f.personal[userID] = append(f.personal[userID], message)
}
func (f *fakeManager) ConnectedUsers(sessionID uuid.UUID) []uuid.UUID { return f.connected }
func (f *fakeManager) IsUserConnected(sessionID, userID uuid.UUID) bool {
	for _, u := range f.connected {
		if u == userID {
			return true
		}
	}
	return false
}

// fakeDirectory resolves roles from a fixed map.
type fakeDirectory struct {
	roles map[uuid.UUID]model.UserRole
}

func (f *fakeDirectory) GetRole(ctx context.Context, userID uuid.UUID) (model.UserRole, error) {
	role, ok := f.roles[userID]
	if !ok {
		return "", errors.New("unknown user")
	}
	return role, nil
}

func TestBroadcastToTeachersFiltersByRole(t *testing.T) {
	teacher, admin, student := uuid.New(), uuid.New(), uuid.New()
	manager := newFakeManager(teacher, admin, student)
	directory := &fakeDirectory{roles: map[uuid.UUID]model.UserRole{
		teacher: model.RoleTeacher,
		admin:   model.RoleAdmin,
		student: model.RoleStudent,
	}}

	b := NewBroadcaster(manager, directory, zerolog.Nop())
	b.BroadcastToTeachers(context.Background(), uuid.New(), "monitoring-event")

	if len(manager.personal[teacher]) != 1 {
		t.Error("teacher should receive the event")
	}
	if len(manager.personal[admin]) != 1 {
		t.Error("admin should receive the event")
	}
	if len(manager.personal[student]) != 0 {
		t.Error("student must not receive teacher events")
	}
}

func TestBroadcastToTeachersSwallowsLookupFailures(t *testing.T) {
	teacher, unknown := uuid.New(), uuid.New()
	manager := newFakeManager(unknown, teacher)
	directory := &fakeDirectory{roles: map[uuid.UUID]model.UserRole{
		teacher: model.RoleTeacher,
	}}

	b := NewBroadcaster(manager, directory, zerolog.Nop())
	b.BroadcastToTeachers(context.Background(), uuid.New(), "event")

	// The failed lookup is skipped, the teacher still gets the event.
	if len(manager.personal[teacher]) != 1 {
		t.Error("teacher should receive despite another user's lookup failure")
	}
	if len(manager.personal[unknown]) != 0 {
		t.Error("unresolvable user must be skipped")
	}
}

func TestBroadcastToAll(t *testing.T) {
	manager := newFakeManager(uuid.New())
	b := NewBroadcaster(manager, &fakeDirectory{}, zerolog.Nop())

	b.BroadcastToAll(context.Background(), uuid.New(), "everyone")
	if len(manager.broadcast) != 1 {
		t.Fatalf("expected 1 session broadcast, got %d", len(manager.broadcast))
	}
}
