package model

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Test is the read-only view of an IELTS reading test that the live
// subsystem needs: identity, the global time limit, and the question set.
type Test struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	TimeLimitMinutes int       `json:"time_limit_minutes"`
	QuestionCount    int       `json:"question_count"`
	CreatedAt        time.Time `json:"created_at"`
}

// Question is the grading view of a single test question.
type Question struct {
	ID             uuid.UUID   `json:"id"`
	PassageID      uuid.UUID   `json:"passage_id"`
	QuestionNumber int         `json:"question_number"`
	CorrectAnswer  AnswerValue `json:"correct_answer"`
}

// AnswerValue holds one or many answer strings. Questions like
// "choose TWO letters" have multi-value answers; most have a single value.
// The JSON form is a bare string for single values and an array otherwise,
// matching what clients send.
type AnswerValue []string

// UnmarshalJSON accepts either "A" or ["A","C"].
func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '[' {
		var values []string
		if err := json.Unmarshal(data, &values); err != nil {
			return err
		}
		*v = values
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*v = AnswerValue{s}
	return nil
}

// MarshalJSON emits a bare string for single values, an array otherwise.
func (v AnswerValue) MarshalJSON() ([]byte, error) {
	if len(v) == 1 {
		return json.Marshal(v[0])
	}
	return json.Marshal([]string(v))
}

// Matches reports whether a student answer matches this value.
// Single values compare exactly; multi-value answers compare as sets,
// order-independent.
func (v AnswerValue) Matches(student AnswerValue) bool {
	if len(v) != len(student) {
		return false
	}
	if len(v) == 1 {
		return v[0] == student[0]
	}
	a := append([]string(nil), v...)
	b := append([]string(nil), student...)
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
