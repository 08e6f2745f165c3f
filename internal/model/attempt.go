package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt lifecycle states. SUBMITTED and
// ABANDONED are terminal.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusSubmitted  AttemptStatus = "SUBMITTED"
	AttemptStatusAbandoned  AttemptStatus = "ABANDONED"
)

// SubmitReason records what triggered the submission. It is kept for
// auditing and does not change submission behavior.
type SubmitReason string

const (
	SubmitReasonManual      SubmitReason = "MANUAL"
	SubmitReasonTimeExpired SubmitReason = "AUTO_TIME_EXPIRED"
	SubmitReasonForced      SubmitReason = "TEACHER_FORCED"
)

// ViolationType enumerates the anti-cheating signals clients report.
type ViolationType string

const (
	ViolationTabSwitch      ViolationType = "TAB_SWITCH"
	ViolationWindowBlur     ViolationType = "WINDOW_BLUR"
	ViolationCopyPaste      ViolationType = "COPY_PASTE"
	ViolationFullScreenExit ViolationType = "FULL_SCREEN_EXIT"
	ViolationContextMenu    ViolationType = "CONTEXT_MENU"
)

// ValidViolationType reports whether t is a known violation type.
func ValidViolationType(t ViolationType) bool {
	switch t {
	case ViolationTabSwitch, ViolationWindowBlur, ViolationCopyPaste,
		ViolationFullScreenExit, ViolationContextMenu:
		return true
	}
	return false
}

// InvalidAttemptStatusError is returned when a mutation is attempted on an
// attempt that is no longer IN_PROGRESS.
type InvalidAttemptStatusError struct {
	AttemptID uuid.UUID
	Current   AttemptStatus
}

func (e *InvalidAttemptStatusError) Error() string {
	return fmt.Sprintf("attempt %s is %s, mutations require IN_PROGRESS", e.AttemptID, e.Current)
}

// HighlightLimitError is returned once the highlight cap is reached.
type HighlightLimitError struct {
	AttemptID uuid.UUID
	Limit     int
}

func (e *HighlightLimitError) Error() string {
	return fmt.Sprintf("attempt %s reached the highlight limit of %d", e.AttemptID, e.Limit)
}

// Answer is one stored response. IsCorrect stays false until the grading
// pass at submit time.
type Answer struct {
	QuestionID    uuid.UUID   `json:"question_id"`
	StudentAnswer AnswerValue `json:"student_answer"`
	IsCorrect     bool        `json:"is_correct"`
	PointsEarned  int         `json:"points_earned"`
	AnsweredAt    time.Time   `json:"answered_at"`
}

// Violation is one recorded anti-cheating event. The log is append-only.
type Violation struct {
	Timestamp     time.Time         `json:"timestamp"`
	ViolationType ViolationType     `json:"violation_type"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Highlight is one text-highlighting action in a passage.
type Highlight struct {
	ID            uuid.UUID `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Text          string    `json:"text"`
	PassageID     uuid.UUID `json:"passage_id"`
	PositionStart int       `json:"position_start"`
	PositionEnd   int       `json:"position_end"`
	ColorCode     string    `json:"color_code"`
	Comment       *string   `json:"comment,omitempty"`
}

// Attempt is one student's answer sheet and activity log for a single test,
// optionally scoped to a session.
//
// Every mutation re-checks the IN_PROGRESS guard: callers hold no lock
// across the repository read-modify-write round trip, so each loaded copy
// validates independently.
type Attempt struct {
	ID                   uuid.UUID     `json:"id"`
	TestID               uuid.UUID     `json:"test_id"`
	StudentID            uuid.UUID     `json:"student_id"`
	SessionID            *uuid.UUID    `json:"session_id,omitempty"`
	Status               AttemptStatus `json:"status"`
	StartedAt            time.Time     `json:"started_at"`
	SubmittedAt          *time.Time    `json:"submitted_at,omitempty"`
	SubmitReason         *SubmitReason `json:"submit_reason,omitempty"`
	TimeRemainingSeconds *int          `json:"time_remaining_seconds,omitempty"`
	Answers              []Answer      `json:"answers"`
	TabViolations        []Violation   `json:"tab_violations"`
	HighlightedText      []Highlight   `json:"highlighted_text"`
	TotalCorrectAnswers  *int          `json:"total_correct_answers,omitempty"`
	BandScore            *float64      `json:"band_score,omitempty"`
	CurrentPassageIndex  int           `json:"current_passage_index"`
	CurrentQuestionIndex int           `json:"current_question_index"`
}

// NewAttempt builds an IN_PROGRESS attempt for the student, scoped to the
// given session when non-nil.
func NewAttempt(testID, studentID uuid.UUID, sessionID *uuid.UUID) *Attempt {
	return &Attempt{
		ID:              uuid.New(),
		TestID:          testID,
		StudentID:       studentID,
		SessionID:       sessionID,
		Status:          AttemptStatusInProgress,
		StartedAt:       time.Now().UTC(),
		Answers:         []Answer{},
		TabViolations:   []Violation{},
		HighlightedText: []Highlight{},
	}
}

func (a *Attempt) ensureInProgress() error {
	if a.Status != AttemptStatusInProgress {
		return &InvalidAttemptStatusError{AttemptID: a.ID, Current: a.Status}
	}
	return nil
}

// SubmitAnswer stores or replaces the answer for a question. The last write
// for a given question wins; no duplicates are kept.
func (a *Attempt) SubmitAnswer(questionID uuid.UUID, value AnswerValue) error {
	if err := a.ensureInProgress(); err != nil {
		return err
	}
	answer := Answer{
		QuestionID:    questionID,
		StudentAnswer: value,
		AnsweredAt:    time.Now().UTC(),
	}
	for i := range a.Answers {
		if a.Answers[i].QuestionID == questionID {
			a.Answers[i] = answer
			return nil
		}
	}
	a.Answers = append(a.Answers, answer)
	return nil
}

// HasAnswer reports whether an answer for the question is already stored.
func (a *Attempt) HasAnswer(questionID uuid.UUID) bool {
	for _, ans := range a.Answers {
		if ans.QuestionID == questionID {
			return true
		}
	}
	return false
}

// RecordViolation appends an anti-cheating event. Rate limiting is enforced
// by the caller before this point.
func (a *Attempt) RecordViolation(violationType ViolationType, metadata map[string]string) error {
	if err := a.ensureInProgress(); err != nil {
		return err
	}
	a.TabViolations = append(a.TabViolations, Violation{
		Timestamp:     time.Now().UTC(),
		ViolationType: violationType,
		Metadata:      metadata,
	})
	return nil
}

// RecordHighlight appends a text highlight, bounded by maxHighlights.
// The position pair must be a valid half-open range.
func (a *Attempt) RecordHighlight(text string, passageID uuid.UUID, start, end int, colorCode string, maxHighlights int) (*Highlight, error) {
	if err := a.ensureInProgress(); err != nil {
		return nil, err
	}
	if start < 0 || end <= start {
		return nil, ErrInvalidHighlightRange
	}
	if len(a.HighlightedText) >= maxHighlights {
		return nil, &HighlightLimitError{AttemptID: a.ID, Limit: maxHighlights}
	}
	h := Highlight{
		ID:            uuid.New(),
		Timestamp:     time.Now().UTC(),
		Text:          text,
		PassageID:     passageID,
		PositionStart: start,
		PositionEnd:   end,
		ColorCode:     colorCode,
	}
	a.HighlightedText = append(a.HighlightedText, h)
	return &a.HighlightedText[len(a.HighlightedText)-1], nil
}

// UpdateProgress moves the student's current position in the test.
func (a *Attempt) UpdateProgress(passageIndex, questionIndex int) error {
	if err := a.ensureInProgress(); err != nil {
		return err
	}
	a.CurrentPassageIndex = passageIndex
	a.CurrentQuestionIndex = questionIndex
	return nil
}

// Grade marks each stored answer correct or not against the question set
// and records the totals. Called by the submit path only.
func (a *Attempt) Grade(questions map[uuid.UUID]Question, bandScore func(correct int) float64) {
	correct := 0
	for i := range a.Answers {
		q, ok := questions[a.Answers[i].QuestionID]
		if ok && q.CorrectAnswer.Matches(a.Answers[i].StudentAnswer) {
			a.Answers[i].IsCorrect = true
			a.Answers[i].PointsEarned = 1
			correct++
		} else {
			a.Answers[i].IsCorrect = false
			a.Answers[i].PointsEarned = 0
		}
	}
	band := bandScore(correct)
	a.TotalCorrectAnswers = &correct
	a.BandScore = &band
}

// Submit finalizes the attempt. Terminal states reject resubmission.
func (a *Attempt) Submit(reason SubmitReason) error {
	if err := a.ensureInProgress(); err != nil {
		return err
	}
	now := time.Now().UTC()
	a.Status = AttemptStatusSubmitted
	a.SubmittedAt = &now
	a.SubmitReason = &reason
	return nil
}

// Abandon marks the attempt abandoned (disconnect/timeout policy owned by
// the surrounding system).
func (a *Attempt) Abandon() error {
	if err := a.ensureInProgress(); err != nil {
		return err
	}
	now := time.Now().UTC()
	a.Status = AttemptStatusAbandoned
	a.SubmittedAt = &now
	return nil
}

// ViolationCount returns the number of recorded violations.
func (a *Attempt) ViolationCount() int { return len(a.TabViolations) }
