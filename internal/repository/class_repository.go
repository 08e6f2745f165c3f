package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/readspace/ielts-backend/internal/model"
)

// ClassRepository handles class data access. This subsystem reads classes
// only: rosters seed session participants and teacher membership gates
// session management.
type ClassRepository struct {
	pool *pgxpool.Pool
}

// NewClassRepository creates a new ClassRepository.
func NewClassRepository(pool *pgxpool.Pool) *ClassRepository {
	return &ClassRepository{pool: pool}
}

// GetByID retrieves a class with its teacher and student membership.
func (r *ClassRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Class, error) {
	c := &model.Class{}
	err := r.pool.QueryRow(ctx,
		`SELECT c.id, c.name, c.created_at, c.updated_at,
			COALESCE((SELECT array_agg(ct.teacher_id) FROM class_teachers ct WHERE ct.class_id = c.id), '{}'),
			COALESCE((SELECT array_agg(cs.student_id ORDER BY cs.added_at) FROM class_students cs WHERE cs.class_id = c.id), '{}')
		 FROM classes c
		 WHERE c.id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.CreatedAt, &c.UpdatedAt, &c.TeacherIDs, &c.StudentIDs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrClassNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// IsTeacherOf reports whether the teacher is assigned to the class.
func (r *ClassRepository) IsTeacherOf(ctx context.Context, classID, teacherID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM class_teachers WHERE class_id = $1 AND teacher_id = $2
		 )`, classID, teacherID).Scan(&exists)
	return exists, err
}
