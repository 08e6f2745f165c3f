package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/readspace/ielts-backend/internal/model"
)

const sessionColumns = `id, class_id, test_id, title, scheduled_at, started_at,
	completed_at, status, participants, created_by, created_at, updated_at`

// SessionRepository handles test session persistence. The participant list
// is stored as a JSONB document alongside the session row so the whole
// aggregate loads and saves in one round trip.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	participants, err := json.Marshal(s.Participants)
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO sessions (id, class_id, test_id, title, scheduled_at, started_at,
			completed_at, status, participants, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID, s.ClassID, s.TestID, s.Title, s.ScheduledAt, s.StartedAt,
		s.CompletedAt, s.Status, participants, s.CreatedBy, s.CreatedAt, s.UpdatedAt)
	return err
}

// GetByID retrieves one session by its id.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

// Update saves the full session aggregate, participants included.
func (r *SessionRepository) Update(ctx context.Context, s *model.Session) error {
	participants, err := json.Marshal(s.Participants)
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE sessions
		 SET title = $1, scheduled_at = $2, started_at = $3, completed_at = $4,
		     status = $5, participants = $6, updated_at = $7
		 WHERE id = $8`,
		s.Title, s.ScheduledAt, s.StartedAt, s.CompletedAt,
		s.Status, participants, s.UpdatedAt, s.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrSessionNotFound
	}
	return nil
}

// ListByClass retrieves all sessions for a class, newest schedule first.
func (r *SessionRepository) ListByClass(ctx context.Context, classID uuid.UUID) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE class_id = $1
		 ORDER BY scheduled_at DESC`, classID)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// ListByTeacher retrieves sessions in any class the teacher is assigned to.
func (r *SessionRepository) ListByTeacher(ctx context.Context, teacherID uuid.UUID) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+prefixedSessionColumns("s")+`
		 FROM sessions s
		 JOIN class_teachers ct ON ct.class_id = s.class_id
		 WHERE ct.teacher_id = $1
		 ORDER BY s.scheduled_at DESC`, teacherID)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// ListByStudent retrieves sessions the student participates in. Matching
// is against the stored participant list, so late roster additions are
// included even when the student is no longer in the class.
func (r *SessionRepository) ListByStudent(ctx context.Context, studentID uuid.UUID) ([]model.Session, error) {
	filter, err := json.Marshal([]map[string]string{{"student_id": studentID.String()}})
	if err != nil {
		return nil, fmt.Errorf("marshal participant filter: %w", err)
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE participants @> $1::jsonb
		 ORDER BY scheduled_at DESC`, filter)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// ListActive retrieves sessions that are waiting for students or running.
// The timer worker sweeps this set for expiry.
func (r *SessionRepository) ListActive(ctx context.Context) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE status IN ($1, $2)
		 ORDER BY scheduled_at`, model.SessionStatusWaiting, model.SessionStatusInProgress)
	if err != nil {
		return nil, err
	}
	return collectSessions(rows)
}

// ────────────────────────────────────────────────────────────────────────────
// Scanning helpers
// ────────────────────────────────────────────────────────────────────────────

func scanSession(row pgx.Row) (*model.Session, error) {
	s := &model.Session{}
	var participants []byte
	err := row.Scan(&s.ID, &s.ClassID, &s.TestID, &s.Title, &s.ScheduledAt, &s.StartedAt,
		&s.CompletedAt, &s.Status, &participants, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(participants, &s.Participants); err != nil {
		return nil, fmt.Errorf("unmarshal participants: %w", err)
	}
	return s, nil
}

func collectSessions(rows pgx.Rows) ([]model.Session, error) {
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func prefixedSessionColumns(alias string) string {
	return fmt.Sprintf(`%[1]s.id, %[1]s.class_id, %[1]s.test_id, %[1]s.title,
		%[1]s.scheduled_at, %[1]s.started_at, %[1]s.completed_at, %[1]s.status,
		%[1]s.participants, %[1]s.created_by, %[1]s.created_at, %[1]s.updated_at`, alias)
}
