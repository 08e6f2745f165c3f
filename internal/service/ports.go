package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/readspace/ielts-backend/internal/model"
)

// The interfaces below are the storage and delivery capabilities the
// orchestration services consume. The repository package implements the
// stores over PostgreSQL and the websocket package implements Notifier;
// tests substitute in-memory fakes.

// SessionStore persists session aggregates.
type SessionStore interface {
	Create(ctx context.Context, s *model.Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error)
	Update(ctx context.Context, s *model.Session) error
	ListByClass(ctx context.Context, classID uuid.UUID) ([]model.Session, error)
	ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]model.Session, error)
	ListByStudent(ctx context.Context, studentID uuid.UUID) ([]model.Session, error)
	ListActive(ctx context.Context) ([]model.Session, error)
}

// AttemptStore persists attempt aggregates.
type AttemptStore interface {
	Create(ctx context.Context, a *model.Attempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	GetByStudentAndSession(ctx context.Context, studentID, sessionID uuid.UUID) (*model.Attempt, error)
	Update(ctx context.Context, a *model.Attempt) error
	ListBySession(ctx context.Context, sessionID uuid.UUID, inProgressOnly bool) ([]model.Attempt, error)
}

// ClassStore reads class membership.
type ClassStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Class, error)
	IsTeacherOf(ctx context.Context, classID, teacherID uuid.UUID) (bool, error)
}

// UserStore reads user identity.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// TestStore reads tests and grading data.
type TestStore interface {
	GetTestInfo(ctx context.Context, id uuid.UUID) (*model.Test, error)
	GetQuestionSet(ctx context.Context, testID uuid.UUID) (map[uuid.UUID]model.Question, error)
}

// Notifier is the live delivery surface. Delivery is best effort: the
// implementation logs and swallows failures.
type Notifier interface {
	BroadcastToAll(ctx context.Context, sessionID uuid.UUID, message interface{})
	BroadcastToTeachers(ctx context.Context, sessionID uuid.UUID, message interface{})
}
