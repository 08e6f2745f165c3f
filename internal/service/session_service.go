package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/readspace/ielts-backend/internal/config"
	"github.com/readspace/ielts-backend/internal/model"
	"github.com/readspace/ielts-backend/internal/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CreateSessionRequest is the payload for scheduling a session.
type CreateSessionRequest struct {
	ClassID     uuid.UUID `json:"class_id" binding:"required"`
	TestID      uuid.UUID `json:"test_id" binding:"required"`
	Title       string    `json:"title" binding:"required,max=200"`
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
}

// SessionService orchestrates the session lifecycle: scheduling, the waiting
// room, the global start, completion and cancellation. State transitions live
// on the Session aggregate; this layer adds authorization, persistence, the
// Redis deadline cache and live notifications.
type SessionService struct {
	sessions SessionStore
	attempts AttemptStore
	classes  ClassStore
	tests    TestStore
	notifier Notifier
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	sessions SessionStore,
	attempts AttemptStore,
	classes ClassStore,
	tests TestStore,
	notifier Notifier,
	rdb *redis.Client,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		sessions: sessions,
		attempts: attempts,
		classes:  classes,
		tests:    tests,
		notifier: notifier,
		rdb:      rdb,
		log:      log.With().Str("component", "session_service").Logger(),
	}
}

// Create schedules a new session. Teachers may only schedule for classes
// they are assigned to; the roster is a snapshot of the class's current
// student list.
func (s *SessionService) Create(ctx context.Context, actor model.Actor, req CreateSessionRequest) (*model.Session, error) {
	if err := s.requireManagerOfClass(ctx, actor, req.ClassID); err != nil {
		return nil, err
	}

	class, err := s.classes.GetByID(ctx, req.ClassID)
	if err != nil {
		return nil, err
	}
	if _, err := s.tests.GetTestInfo(ctx, req.TestID); err != nil {
		return nil, err
	}

	session := model.NewSession(req.ClassID, req.TestID, actor.ID, req.Title, req.ScheduledAt, class.StudentIDs)
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.log.Info().
		Str("session_id", session.ID.String()).
		Str("class_id", req.ClassID.String()).
		Int("roster", len(session.Participants)).
		Msg("Session scheduled")
	return session, nil
}

// StartWaiting opens the waiting room so students can connect.
func (s *SessionService) StartWaiting(ctx context.Context, actor model.Actor, sessionID uuid.UUID) (*model.Session, error) {
	session, err := s.loadManaged(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if err := session.StartWaitingPhase(); err != nil {
		return nil, err
	}
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	s.notifier.BroadcastToAll(ctx, session.ID, websocket.WaitingRoomOpenedMessage{
		Type:      websocket.TypeWaitingRoomOpened,
		SessionID: session.ID,
		Timestamp: time.Now().UTC(),
	})
	s.log.Info().Str("session_id", session.ID.String()).Msg("Waiting room opened")
	return session, nil
}

// Join marks a student connected to the session and tells everyone. Called
// by the WebSocket handler once the socket is registered; reconnects are
// idempotent.
func (s *SessionService) Join(ctx context.Context, studentID, sessionID uuid.UUID) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := session.StudentJoin(studentID); err != nil {
		return nil, err
	}
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	s.notifier.BroadcastToAll(ctx, session.ID, websocket.ParticipantJoinedMessage{
		Type:           websocket.TypeParticipantJoined,
		SessionID:      session.ID,
		StudentID:      studentID,
		ConnectedCount: session.ConnectedCount(),
		Timestamp:      time.Now().UTC(),
	})
	return session, nil
}

// Disconnect marks a student disconnected. The socket may already be gone,
// so delivery failures to the leaver are expected and ignored downstream.
func (s *SessionService) Disconnect(ctx context.Context, studentID, sessionID uuid.UUID) error {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.HasParticipant(studentID) {
		return nil
	}
	session.StudentDisconnect(studentID)
	if err := s.sessions.Update(ctx, session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	s.notifier.BroadcastToAll(ctx, session.ID, websocket.ParticipantDisconnectedMessage{
		Type:           websocket.TypeParticipantDisconnected,
		SessionID:      session.ID,
		StudentID:      studentID,
		ConnectedCount: session.ConnectedCount(),
		Timestamp:      time.Now().UTC(),
	})
	return nil
}

// Start begins the test for everyone currently connected. One attempt is
// created per connected student and the shared deadline is cached in Redis
// for the timer worker.
func (s *SessionService) Start(ctx context.Context, actor model.Actor, sessionID uuid.UUID) (*model.Session, error) {
	session, err := s.loadManaged(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	test, err := s.tests.GetTestInfo(ctx, session.TestID)
	if err != nil {
		return nil, err
	}

	connected, err := session.Start()
	if err != nil {
		return nil, err
	}

	for _, studentID := range connected {
		attempt := model.NewAttempt(session.TestID, studentID, &session.ID)
		if err := s.attempts.Create(ctx, attempt); err != nil {
			return nil, fmt.Errorf("create attempt for student %s: %w", studentID, err)
		}
		session.LinkAttempt(studentID, attempt.ID)
	}

	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	s.cacheDeadline(ctx, session, test)

	s.notifier.BroadcastToAll(ctx, session.ID, websocket.SessionStartedMessage{
		Type:              websocket.TypeSessionStarted,
		SessionID:         session.ID,
		StartedAt:         *session.StartedAt,
		ConnectedStudents: connected,
		Timestamp:         time.Now().UTC(),
	})
	s.log.Info().
		Str("session_id", session.ID.String()).
		Int("students", len(connected)).
		Int("time_limit_minutes", test.TimeLimitMinutes).
		Msg("Session started")
	return session, nil
}

// Complete finishes a running session.
func (s *SessionService) Complete(ctx context.Context, actor model.Actor, sessionID uuid.UUID) (*model.Session, error) {
	session, err := s.loadManaged(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if err := session.Complete(); err != nil {
		return nil, err
	}
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	s.dropDeadline(ctx, session.ID)
	s.notifier.BroadcastToAll(ctx, session.ID, websocket.SessionCompletedMessage{
		Type:        websocket.TypeSessionCompleted,
		SessionID:   session.ID,
		CompletedAt: *session.CompletedAt,
		Timestamp:   time.Now().UTC(),
	})
	s.log.Info().Str("session_id", session.ID.String()).Msg("Session completed")
	return session, nil
}

// Cancel aborts a session that has not started.
func (s *SessionService) Cancel(ctx context.Context, actor model.Actor, sessionID uuid.UUID) (*model.Session, error) {
	session, err := s.loadManaged(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if err := session.Cancel(); err != nil {
		return nil, err
	}
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	s.log.Info().Str("session_id", session.ID.String()).Msg("Session cancelled")
	return session, nil
}

// GetByID retrieves a session for any party with a stake in it: its
// managers or a roster student.
func (s *SessionService) GetByID(ctx context.Context, actor model.Actor, sessionID uuid.UUID) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if actor.Role == model.RoleStudent {
		if !session.HasParticipant(actor.ID) {
			return nil, model.ErrNotRosterStudent
		}
		return session, nil
	}
	if err := s.requireManagerOfClass(ctx, actor, session.ClassID); err != nil {
		return nil, err
	}
	return session, nil
}

// ListForActor lists the actor's sessions: roster membership for students,
// class assignment for teachers, everything active for admins.
func (s *SessionService) ListForActor(ctx context.Context, actor model.Actor) ([]model.Session, error) {
	switch actor.Role {
	case model.RoleStudent:
		return s.sessions.ListByStudent(ctx, actor.ID)
	case model.RoleTeacher:
		return s.sessions.ListByTeacher(ctx, actor.ID)
	case model.RoleAdmin:
		return s.sessions.ListActive(ctx)
	default:
		return nil, model.ErrNotSessionManager
	}
}

// RemainingSeconds returns the seconds left on a running session's clock,
// reading the Redis deadline cache first and falling back to the aggregate.
func (s *SessionService) RemainingSeconds(ctx context.Context, session *model.Session) (int, error) {
	if session.Status != model.SessionStatusInProgress || session.StartedAt == nil {
		return 0, nil
	}

	deadline, err := s.cachedDeadline(ctx, session.ID)
	if err != nil {
		test, terr := s.tests.GetTestInfo(ctx, session.TestID)
		if terr != nil {
			return 0, terr
		}
		deadline = session.StartedAt.Add(time.Duration(test.TimeLimitMinutes) * time.Minute)
	}

	remaining := int(time.Until(deadline).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ────────────────────────────────────────────────────────────────────────────
// Authorization and deadline helpers
// ────────────────────────────────────────────────────────────────────────────

func (s *SessionService) loadManaged(ctx context.Context, actor model.Actor, sessionID uuid.UUID) (*model.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.requireManagerOfClass(ctx, actor, session.ClassID); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionService) requireManagerOfClass(ctx context.Context, actor model.Actor, classID uuid.UUID) error {
	switch actor.Role {
	case model.RoleAdmin, model.RoleSystem:
		return nil
	case model.RoleTeacher:
		ok, err := s.classes.IsTeacherOf(ctx, classID, actor.ID)
		if err != nil {
			return err
		}
		if !ok {
			return model.ErrNotSessionManager
		}
		return nil
	default:
		return model.ErrNotSessionManager
	}
}

func (s *SessionService) cacheDeadline(ctx context.Context, session *model.Session, test *model.Test) {
	timeLimit := time.Duration(test.TimeLimitMinutes) * time.Minute
	deadline := session.StartedAt.Add(timeLimit)
	key := config.CacheKey.SessionDeadlineKey(session.ID.String())

	// Keep the key a little past the deadline for late remaining-time reads.
	if err := s.rdb.Set(ctx, key, deadline.Unix(), timeLimit+time.Hour).Err(); err != nil {
		s.log.Warn().Err(err).
			Str("session_id", session.ID.String()).
			Msg("Failed to cache session deadline")
	}
}

func (s *SessionService) cachedDeadline(ctx context.Context, sessionID uuid.UUID) (time.Time, error) {
	key := config.CacheKey.SessionDeadlineKey(sessionID.String())
	raw, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		return time.Time{}, err
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cached deadline: %w", err)
	}
	return time.Unix(unix, 0), nil
}

func (s *SessionService) dropDeadline(ctx context.Context, sessionID uuid.UUID) {
	key := config.CacheKey.SessionDeadlineKey(sessionID.String())
	if err := s.rdb.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).
			Str("session_id", sessionID.String()).
			Msg("Failed to drop session deadline key")
	}
}
