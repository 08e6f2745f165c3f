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

// TestRepository handles read access to tests and their question sets.
// Authoring lives outside this subsystem; sessions and grading only read.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

// GetTestInfo retrieves a test's identity, time limit and question count.
func (r *TestRepository) GetTestInfo(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t := &model.Test{}
	err := r.pool.QueryRow(ctx,
		`SELECT t.id, t.title, t.time_limit_minutes, t.created_at,
			(SELECT COUNT(*) FROM questions q WHERE q.test_id = t.id)
		 FROM tests t
		 WHERE t.id = $1`, id,
	).Scan(&t.ID, &t.Title, &t.TimeLimitMinutes, &t.CreatedAt, &t.QuestionCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrTestNotFound
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// GetQuestionSet retrieves the grading view of a test's questions, keyed by
// question id for the submit-time grading pass.
func (r *TestRepository) GetQuestionSet(ctx context.Context, testID uuid.UUID) (map[uuid.UUID]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, passage_id, question_number, correct_answer
		 FROM questions
		 WHERE test_id = $1
		 ORDER BY question_number`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := make(map[uuid.UUID]model.Question)
	for rows.Next() {
		var q model.Question
		var correct []byte
		if err := rows.Scan(&q.ID, &q.PassageID, &q.QuestionNumber, &correct); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(correct, &q.CorrectAnswer); err != nil {
			return nil, fmt.Errorf("unmarshal correct answer for question %s: %w", q.ID, err)
		}
		questions[q.ID] = q
	}
	return questions, rows.Err()
}
