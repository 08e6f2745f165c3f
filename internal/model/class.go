package model

import (
	"time"

	"github.com/google/uuid"
)

// Class represents a student group taught by one or more teachers.
// This subsystem only reads classes: the roster seeds session participants
// and teacher membership gates session management.
type Class struct {
	ID         uuid.UUID   `json:"id"`
	Name       string      `json:"name"`
	TeacherIDs []uuid.UUID `json:"teacher_ids"`
	StudentIDs []uuid.UUID `json:"student_ids"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// HasTeacher reports whether the given user is assigned to this class.
func (c *Class) HasTeacher(teacherID uuid.UUID) bool {
	for _, id := range c.TeacherIDs {
		if id == teacherID {
			return true
		}
	}
	return false
}
