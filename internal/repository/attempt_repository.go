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

const attemptColumns = `id, test_id, student_id, session_id, status, started_at,
	submitted_at, submit_reason, time_remaining_seconds, answers, tab_violations,
	highlighted_text, total_correct_answers, band_score,
	current_passage_index, current_question_index`

// AttemptRepository handles attempt persistence. Answers, violations and
// highlights are append-heavy logs stored as JSONB documents on the
// attempt row.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Create inserts a new attempt.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	answers, violations, highlights, err := marshalAttemptLogs(a)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO attempts (id, test_id, student_id, session_id, status, started_at,
			submitted_at, submit_reason, time_remaining_seconds, answers, tab_violations,
			highlighted_text, total_correct_answers, band_score,
			current_passage_index, current_question_index)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		a.ID, a.TestID, a.StudentID, a.SessionID, a.Status, a.StartedAt,
		a.SubmittedAt, a.SubmitReason, a.TimeRemainingSeconds, answers, violations,
		highlights, a.TotalCorrectAnswers, a.BandScore,
		a.CurrentPassageIndex, a.CurrentQuestionIndex)
	return err
}

// GetByID retrieves one attempt by its id.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id)
	return scanAttempt(row)
}

// GetByStudentAndSession retrieves the student's attempt within a session.
func (r *AttemptRepository) GetByStudentAndSession(ctx context.Context, studentID, sessionID uuid.UUID) (*model.Attempt, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE student_id = $1 AND session_id = $2`, studentID, sessionID)
	return scanAttempt(row)
}

// Update saves the full attempt aggregate, logs included.
func (r *AttemptRepository) Update(ctx context.Context, a *model.Attempt) error {
	answers, violations, highlights, err := marshalAttemptLogs(a)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, submitted_at = $2, submit_reason = $3,
		     time_remaining_seconds = $4, answers = $5, tab_violations = $6,
		     highlighted_text = $7, total_correct_answers = $8, band_score = $9,
		     current_passage_index = $10, current_question_index = $11
		 WHERE id = $12`,
		a.Status, a.SubmittedAt, a.SubmitReason,
		a.TimeRemainingSeconds, answers, violations,
		highlights, a.TotalCorrectAnswers, a.BandScore,
		a.CurrentPassageIndex, a.CurrentQuestionIndex, a.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrAttemptNotFound
	}
	return nil
}

// ListBySession retrieves attempts for a session, optionally only those
// still in progress (the force-submit sweep).
func (r *AttemptRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, inProgressOnly bool) ([]model.Attempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM attempts WHERE session_id = $1`
	args := []any{sessionID}
	if inProgressOnly {
		args = append(args, model.AttemptStatusInProgress)
		query += ` AND status = $2`
	}
	query += ` ORDER BY started_at`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

// ────────────────────────────────────────────────────────────────────────────
// Scanning helpers
// ────────────────────────────────────────────────────────────────────────────

func marshalAttemptLogs(a *model.Attempt) (answers, violations, highlights []byte, err error) {
	if answers, err = json.Marshal(a.Answers); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal answers: %w", err)
	}
	if violations, err = json.Marshal(a.TabViolations); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal violations: %w", err)
	}
	if highlights, err = json.Marshal(a.HighlightedText); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal highlights: %w", err)
	}
	return answers, violations, highlights, nil
}

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	var answers, violations, highlights []byte
	err := row.Scan(&a.ID, &a.TestID, &a.StudentID, &a.SessionID, &a.Status, &a.StartedAt,
		&a.SubmittedAt, &a.SubmitReason, &a.TimeRemainingSeconds, &answers, &violations,
		&highlights, &a.TotalCorrectAnswers, &a.BandScore,
		&a.CurrentPassageIndex, &a.CurrentQuestionIndex)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &a.Answers); err != nil {
		return nil, fmt.Errorf("unmarshal answers: %w", err)
	}
	if err := json.Unmarshal(violations, &a.TabViolations); err != nil {
		return nil, fmt.Errorf("unmarshal violations: %w", err)
	}
	if err := json.Unmarshal(highlights, &a.HighlightedText); err != nil {
		return nil, fmt.Errorf("unmarshal highlights: %w", err)
	}
	return a, nil
}
