package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/readspace/ielts-backend/internal/config"
	"github.com/readspace/ielts-backend/internal/model"
	"github.com/readspace/ielts-backend/internal/scoring"
	"github.com/readspace/ielts-backend/internal/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrInvalidViolationType rejects violation reports of unknown kinds.
var ErrInvalidViolationType = errors.New("unknown violation type")

// highlightColors maps the color names clients send to stored hex codes.
// Unknown names fall back to yellow.
var highlightColors = map[string]string{
	"yellow": "#FFFF00",
	"green":  "#00FF00",
	"blue":   "#0000FF",
	"red":    "#FF0000",
	"orange": "#FFA500",
	"pink":   "#FFC0CB",
}

const defaultHighlightColor = "#FFFF00"

// highlightPreviewLimit bounds the text echoed to teacher dashboards.
const highlightPreviewLimit = 100

// RecordHighlightRequest is the payload for a highlight action. The
// position pair is validated again by the aggregate; the binding tags just
// reject obvious junk before it reaches the domain.
type RecordHighlightRequest struct {
	Text          string    `json:"text" binding:"required,max=5000"`
	PassageID     uuid.UUID `json:"passage_id" binding:"required"`
	PositionStart int       `json:"position_start" binding:"min=0"`
	PositionEnd   int       `json:"position_end" binding:"min=0,gtfield=PositionStart"`
	Color         string    `json:"color"`
}

// AttemptService orchestrates everything a student does inside a running
// test: answers, progress, violations, highlights and submission. The
// attempt aggregate owns the state rules; this layer adds authorization,
// persistence, grading inputs and teacher notifications.
type AttemptService struct {
	attempts      AttemptStore
	sessions      SessionStore
	tests         TestStore
	users         UserStore
	limiter       *ViolationLimiter
	notifier      Notifier
	rdb           *redis.Client
	band          scoring.Table
	maxHighlights int
	log           zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	attempts AttemptStore,
	sessions SessionStore,
	tests TestStore,
	users UserStore,
	limiter *ViolationLimiter,
	notifier Notifier,
	rdb *redis.Client,
	band scoring.Table,
	maxHighlights int,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		attempts:      attempts,
		sessions:      sessions,
		tests:         tests,
		users:         users,
		limiter:       limiter,
		notifier:      notifier,
		rdb:           rdb,
		band:          band,
		maxHighlights: maxHighlights,
		log:           log.With().Str("component", "attempt_service").Logger(),
	}
}

// GetOrCreate returns the student's attempt for a running session, creating
// it lazily for students who joined after the start. The session must be
// IN_PROGRESS and the student on its roster.
func (s *AttemptService) GetOrCreate(ctx context.Context, actor model.Actor, sessionID uuid.UUID) (*model.Attempt, error) {
	if actor.Role != model.RoleStudent {
		return nil, model.ErrNotAttemptOwner
	}
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionStatusInProgress {
		return nil, &model.InvalidSessionStatusError{
			SessionID: session.ID,
			Current:   session.Status,
			Expected:  model.SessionStatusInProgress,
		}
	}
	if !session.HasParticipant(actor.ID) {
		return nil, model.ErrNotRosterStudent
	}

	attempt, err := s.attempts.GetByStudentAndSession(ctx, actor.ID, sessionID)
	if err == nil {
		return attempt, nil
	}
	if !errors.Is(err, model.ErrAttemptNotFound) {
		return nil, err
	}

	attempt = model.NewAttempt(session.TestID, actor.ID, &session.ID)
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}
	session.LinkAttempt(actor.ID, attempt.ID)
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, fmt.Errorf("link attempt to session: %w", err)
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("session_id", sessionID.String()).
		Str("student_id", actor.ID.String()).
		Msg("Attempt created for late joiner")
	return attempt, nil
}

// GetByID retrieves an attempt for its owner or a teacher/admin.
func (s *AttemptService) GetByID(ctx context.Context, actor model.Actor, attemptID uuid.UUID) (*model.Attempt, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if actor.Role == model.RoleStudent && attempt.StudentID != actor.ID {
		return nil, model.ErrNotAttemptOwner
	}
	return attempt, nil
}

// SubmitAnswer stores an answer and mirrors it to the teacher dashboards.
// Re-answering the same question replaces the prior value.
func (s *AttemptService) SubmitAnswer(ctx context.Context, actor model.Actor, attemptID, questionID uuid.UUID, value model.AnswerValue) (*model.Attempt, error) {
	attempt, err := s.loadOwned(ctx, actor, attemptID)
	if err != nil {
		return nil, err
	}

	questions, err := s.tests.GetQuestionSet(ctx, attempt.TestID)
	if err != nil {
		return nil, err
	}
	question, ok := questions[questionID]
	if !ok {
		return nil, model.ErrQuestionNotInTest
	}

	isUpdate := attempt.HasAnswer(questionID)
	if err := attempt.SubmitAnswer(questionID, value); err != nil {
		return nil, err
	}
	if err := s.attempts.Update(ctx, attempt); err != nil {
		return nil, fmt.Errorf("update attempt: %w", err)
	}

	if attempt.SessionID != nil {
		s.notifier.BroadcastToTeachers(ctx, *attempt.SessionID, websocket.StudentAnswerMessage{
			Type:           websocket.TypeStudentAnswer,
			SessionID:      *attempt.SessionID,
			StudentID:      attempt.StudentID,
			StudentName:    s.studentName(ctx, attempt.StudentID),
			QuestionID:     questionID,
			QuestionNumber: question.QuestionNumber,
			Answered:       len(attempt.Answers),
			IsUpdate:       isUpdate,
			Timestamp:      time.Now().UTC(),
		})
	}
	return attempt, nil
}

// UpdateProgress moves the student's reading position and mirrors it live.
// questionNumber is the client's 1-based global question counter, carried
// only on the wire.
func (s *AttemptService) UpdateProgress(ctx context.Context, actor model.Actor, attemptID uuid.UUID, passageIndex, questionIndex, questionNumber int) (*model.Attempt, error) {
	attempt, err := s.loadOwned(ctx, actor, attemptID)
	if err != nil {
		return nil, err
	}
	if err := attempt.UpdateProgress(passageIndex, questionIndex); err != nil {
		return nil, err
	}
	if err := s.attempts.Update(ctx, attempt); err != nil {
		return nil, fmt.Errorf("update attempt: %w", err)
	}

	if attempt.SessionID != nil {
		s.notifier.BroadcastToTeachers(ctx, *attempt.SessionID, websocket.StudentProgressMessage{
			Type:           websocket.TypeStudentProgress,
			SessionID:      *attempt.SessionID,
			StudentID:      attempt.StudentID,
			StudentName:    s.studentName(ctx, attempt.StudentID),
			PassageIndex:   passageIndex,
			QuestionIndex:  questionIndex,
			QuestionNumber: questionNumber,
			Timestamp:      time.Now().UTC(),
		})
	}
	return attempt, nil
}

// RecordViolation stores an anti-cheating event, throttled per attempt and
// type, queues the durable audit copy and alerts the teachers.
func (s *AttemptService) RecordViolation(ctx context.Context, actor model.Actor, attemptID uuid.UUID, violationType model.ViolationType, metadata map[string]string) (*model.Attempt, error) {
	if !model.ValidViolationType(violationType) {
		return nil, ErrInvalidViolationType
	}
	attempt, err := s.loadOwned(ctx, actor, attemptID)
	if err != nil {
		return nil, err
	}
	if err := s.limiter.Allow(attemptID, violationType); err != nil {
		return nil, err
	}
	if err := attempt.RecordViolation(violationType, metadata); err != nil {
		return nil, err
	}
	if err := s.attempts.Update(ctx, attempt); err != nil {
		return nil, fmt.Errorf("update attempt: %w", err)
	}

	s.queueAuditRecord(ctx, attempt, violationType, metadata)

	if attempt.SessionID != nil {
		s.notifier.BroadcastToTeachers(ctx, *attempt.SessionID, websocket.ViolationMessage{
			Type:          websocket.TypeViolation,
			SessionID:     *attempt.SessionID,
			StudentID:     attempt.StudentID,
			ViolationType: violationType,
			Timestamp:     time.Now().UTC(),
			TotalCount:    attempt.ViolationCount(),
		})
	}
	return attempt, nil
}

// RecordHighlight stores a text highlight and mirrors a preview to the
// teachers.
func (s *AttemptService) RecordHighlight(ctx context.Context, actor model.Actor, attemptID uuid.UUID, req RecordHighlightRequest) (*model.Highlight, error) {
	attempt, err := s.loadOwned(ctx, actor, attemptID)
	if err != nil {
		return nil, err
	}

	color, ok := highlightColors[req.Color]
	if !ok {
		color = defaultHighlightColor
	}
	highlight, err := attempt.RecordHighlight(req.Text, req.PassageID, req.PositionStart, req.PositionEnd, color, s.maxHighlights)
	if err != nil {
		return nil, err
	}
	if err := s.attempts.Update(ctx, attempt); err != nil {
		return nil, fmt.Errorf("update attempt: %w", err)
	}

	if attempt.SessionID != nil {
		preview := req.Text
		if len(preview) > highlightPreviewLimit {
			preview = preview[:highlightPreviewLimit]
		}
		s.notifier.BroadcastToTeachers(ctx, *attempt.SessionID, websocket.StudentHighlightMessage{
			Type:        websocket.TypeStudentHighlight,
			SessionID:   *attempt.SessionID,
			StudentID:   attempt.StudentID,
			StudentName: s.studentName(ctx, attempt.StudentID),
			Text:        preview,
			PassageID:   req.PassageID,
			Timestamp:   time.Now().UTC(),
		})
	}
	return highlight, nil
}

// Submit grades and finalizes an attempt. Who may submit depends on the
// reason: students submit their own work, teachers and admins force-submit,
// and only the internal system actor may claim time expiry.
func (s *AttemptService) Submit(ctx context.Context, actor model.Actor, attemptID uuid.UUID, reason model.SubmitReason) (*model.Attempt, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if err := authorizeSubmit(actor, attempt, reason); err != nil {
		return nil, err
	}

	questions, err := s.tests.GetQuestionSet(ctx, attempt.TestID)
	if err != nil {
		return nil, err
	}

	attempt.Grade(questions, s.band.Score)
	if err := attempt.Submit(reason); err != nil {
		return nil, err
	}
	if err := s.attempts.Update(ctx, attempt); err != nil {
		return nil, fmt.Errorf("update attempt: %w", err)
	}

	if attempt.SessionID != nil {
		timeTaken := int(attempt.SubmittedAt.Sub(attempt.StartedAt).Seconds())
		s.notifier.BroadcastToTeachers(ctx, *attempt.SessionID, websocket.StudentSubmittedMessage{
			Type:              websocket.TypeStudentSubmitted,
			SessionID:         *attempt.SessionID,
			StudentID:         attempt.StudentID,
			StudentName:       s.studentName(ctx, attempt.StudentID),
			Score:             *attempt.BandScore,
			TimeTakenSeconds:  timeTaken,
			AnsweredQuestions: len(attempt.Answers),
			TotalQuestions:    len(questions),
			Timestamp:         time.Now().UTC(),
		})
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("reason", string(reason)).
		Int("correct", *attempt.TotalCorrectAnswers).
		Float64("band", *attempt.BandScore).
		Msg("Attempt submitted")
	return attempt, nil
}

// ────────────────────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────────────────────

func authorizeSubmit(actor model.Actor, attempt *model.Attempt, reason model.SubmitReason) error {
	switch reason {
	case model.SubmitReasonManual:
		if actor.Role != model.RoleStudent || attempt.StudentID != actor.ID {
			return model.ErrSubmitNotAllowed
		}
	case model.SubmitReasonForced:
		if actor.Role != model.RoleTeacher && actor.Role != model.RoleAdmin {
			return model.ErrSubmitNotAllowed
		}
	case model.SubmitReasonTimeExpired:
		if actor.Role != model.RoleSystem {
			return model.ErrSubmitNotAllowed
		}
	default:
		return model.ErrSubmitNotAllowed
	}
	return nil
}

func (s *AttemptService) loadOwned(ctx context.Context, actor model.Actor, attemptID uuid.UUID) (*model.Attempt, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if actor.Role != model.RoleStudent || attempt.StudentID != actor.ID {
		return nil, model.ErrNotAttemptOwner
	}
	return attempt, nil
}

// studentName resolves the display name for teacher-facing messages.
// Lookup failures degrade to an empty name; live mirroring never fails a
// student write.
func (s *AttemptService) studentName(ctx context.Context, studentID uuid.UUID) string {
	user, err := s.users.GetByID(ctx, studentID)
	if err != nil {
		s.log.Warn().Err(err).
			Str("student_id", studentID.String()).
			Msg("Student name lookup failed")
		return ""
	}
	return user.Name
}

// queueAuditRecord pushes the durable audit copy onto the Redis queue for
// the background flusher. Queue failures are logged, not returned: the
// event is already in the attempt log.
func (s *AttemptService) queueAuditRecord(ctx context.Context, attempt *model.Attempt, violationType model.ViolationType, metadata map[string]string) {
	record := model.ViolationAuditRecord{
		AttemptID:     attempt.ID,
		SessionID:     attempt.SessionID,
		StudentID:     attempt.StudentID,
		ViolationType: violationType,
		Metadata:      metadata,
		OccurredAt:    time.Now().UTC(),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal violation audit record")
		return
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.ViolationAuditQueue, payload).Err(); err != nil {
		s.log.Warn().Err(err).
			Str("attempt_id", attempt.ID.String()).
			Msg("Failed to queue violation audit record")
	}
}
