package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/readspace/ielts-backend/internal/model"
	"github.com/redis/go-redis/v9"
)

// newTestRedis returns a client pointing at a closed port with aggressive
// timeouts. Every Redis side effect in the services is best effort, so
// tests exercise the degraded path without a server.
func newTestRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 10 * time.Millisecond,
		ReadTimeout: 10 * time.Millisecond,
		MaxRetries:  -1,
	})
}

// ─── Stores ─────────────────────────────────────────────────────────────────

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*model.Session
	updates  int
}

func newFakeSessionStore(sessions ...*model.Session) *fakeSessionStore {
	store := &fakeSessionStore{sessions: make(map[uuid.UUID]*model.Session)}
	for _, s := range sessions {
		store.sessions[s.ID] = s
	}
	return store
}

func (f *fakeSessionStore) Create(ctx context.Context, s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = s
	return nil
}

func (f *fakeSessionStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, model.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeSessionStore) Update(ctx context.Context, s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[s.ID]; !ok {
		return model.ErrSessionNotFound
	}
	f.sessions[s.ID] = s
	f.updates++
	return nil
}

func (f *fakeSessionStore) ListByClass(ctx context.Context, classID uuid.UUID) ([]model.Session, error) {
	return f.list(func(s *model.Session) bool { return s.ClassID == classID }), nil
}

func (f *fakeSessionStore) ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]model.Session, error) {
	return f.list(func(s *model.Session) bool { return true }), nil
}

func (f *fakeSessionStore) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]model.Session, error) {
	return f.list(func(s *model.Session) bool { return s.HasParticipant(studentID) }), nil
}

func (f *fakeSessionStore) ListActive(ctx context.Context) ([]model.Session, error) {
	return f.list(func(s *model.Session) bool {
		return s.Status == model.SessionStatusWaiting || s.Status == model.SessionStatusInProgress
	}), nil
}

func (f *fakeSessionStore) list(keep func(*model.Session) bool) []model.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Session
	for _, s := range f.sessions {
		if keep(s) {
			out = append(out, *s)
		}
	}
	return out
}

type fakeAttemptStore struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*model.Attempt
}

func newFakeAttemptStore(attempts ...*model.Attempt) *fakeAttemptStore {
	store := &fakeAttemptStore{attempts: make(map[uuid.UUID]*model.Attempt)}
	for _, a := range attempts {
		store.attempts[a.ID] = a
	}
	return store
}

func (f *fakeAttemptStore) Create(ctx context.Context, a *model.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[a.ID] = a
	return nil
}

func (f *fakeAttemptStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	if !ok {
		return nil, model.ErrAttemptNotFound
	}
	return a, nil
}

func (f *fakeAttemptStore) GetByStudentAndSession(ctx context.Context, studentID, sessionID uuid.UUID) (*model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.attempts {
		if a.StudentID == studentID && a.SessionID != nil && *a.SessionID == sessionID {
			return a, nil
		}
	}
	return nil, model.ErrAttemptNotFound
}

func (f *fakeAttemptStore) Update(ctx context.Context, a *model.Attempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.attempts[a.ID]; !ok {
		return model.ErrAttemptNotFound
	}
	f.attempts[a.ID] = a
	return nil
}

func (f *fakeAttemptStore) ListBySession(ctx context.Context, sessionID uuid.UUID, inProgressOnly bool) ([]model.Attempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Attempt
	for _, a := range f.attempts {
		if a.SessionID == nil || *a.SessionID != sessionID {
			continue
		}
		if inProgressOnly && a.Status != model.AttemptStatusInProgress {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

type fakeClassStore struct {
	classes map[uuid.UUID]*model.Class
}

func newFakeClassStore(classes ...*model.Class) *fakeClassStore {
	store := &fakeClassStore{classes: make(map[uuid.UUID]*model.Class)}
	for _, c := range classes {
		store.classes[c.ID] = c
	}
	return store
}

func (f *fakeClassStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Class, error) {
	c, ok := f.classes[id]
	if !ok {
		return nil, model.ErrClassNotFound
	}
	return c, nil
}

func (f *fakeClassStore) IsTeacherOf(ctx context.Context, classID, teacherID uuid.UUID) (bool, error) {
	c, ok := f.classes[classID]
	if !ok {
		return false, nil
	}
	return c.HasTeacher(teacherID), nil
}

type fakeUserStore struct {
	users map[uuid.UUID]*model.User
}

func newFakeUserStore(users ...*model.User) *fakeUserStore {
	store := &fakeUserStore{users: make(map[uuid.UUID]*model.User)}
	for _, u := range users {
		store.users[u.ID] = u
	}
	return store
}

func (f *fakeUserStore) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	return u, nil
}

type fakeTestStore struct {
	test      *model.Test
	questions map[uuid.UUID]model.Question
}

func (f *fakeTestStore) GetTestInfo(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	if f.test == nil || f.test.ID != id {
		return nil, model.ErrTestNotFound
	}
	return f.test, nil
}

func (f *fakeTestStore) GetQuestionSet(ctx context.Context, testID uuid.UUID) (map[uuid.UUID]model.Question, error) {
	if f.test == nil || f.test.ID != testID {
		return nil, model.ErrTestNotFound
	}
	return f.questions, nil
}

// ─── Notifier ───────────────────────────────────────────────────────────────

type notification struct {
	sessionID uuid.UUID
	message   interface{}
}

type fakeNotifier struct {
	mu       sync.Mutex
	all      []notification
	teachers []notification
}

func (f *fakeNotifier) BroadcastToAll(ctx context.Context, sessionID uuid.UUID, message interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.all = append(f.all, notification{sessionID: sessionID, message: message})
}

func (f *fakeNotifier) BroadcastToTeachers(ctx context.Context, sessionID uuid.UUID, message interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.teachers = append(f.teachers, notification{sessionID: sessionID, message: message})
}

func (f *fakeNotifier) lastAll() interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.all) == 0 {
		return nil
	}
	return f.all[len(f.all)-1].message
}

func (f *fakeNotifier) lastTeachers() interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.teachers) == 0 {
		return nil
	}
	return f.teachers[len(f.teachers)-1].message
}
