package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exercise session lifecycle states.
type SessionStatus string

const (
	SessionStatusScheduled  SessionStatus = "SCHEDULED"
	SessionStatusWaiting    SessionStatus = "WAITING_FOR_STUDENTS"
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusCompleted  SessionStatus = "COMPLETED"
	SessionStatusCancelled  SessionStatus = "CANCELLED"
)

// ConnectionStatus is a participant's live-connection flag.
type ConnectionStatus string

const (
	ConnectionStatusConnected    ConnectionStatus = "CONNECTED"
	ConnectionStatusDisconnected ConnectionStatus = "DISCONNECTED"
)

// InvalidSessionStatusError is returned when a transition is attempted
// from the wrong state.
type InvalidSessionStatusError struct {
	SessionID uuid.UUID
	Current   SessionStatus
	Expected  SessionStatus
}

func (e *InvalidSessionStatusError) Error() string {
	return fmt.Sprintf("session %s is %s, expected %s", e.SessionID, e.Current, e.Expected)
}

// SessionNotJoinableError is returned when a student tries to join a
// session that is not accepting participants.
type SessionNotJoinableError struct {
	SessionID uuid.UUID
	Current   SessionStatus
}

func (e *SessionNotJoinableError) Error() string {
	return fmt.Sprintf("session %s is not joinable in status %s", e.SessionID, e.Current)
}

// NoStudentsConnectedError is returned by Start when the waiting room is empty.
type NoStudentsConnectedError struct {
	SessionID uuid.UUID
}

func (e *NoStudentsConnectedError) Error() string {
	return fmt.Sprintf("session %s has no connected students", e.SessionID)
}

// CannotCancelActiveSessionError is returned when cancelling a running session.
type CannotCancelActiveSessionError struct {
	SessionID uuid.UUID
}

func (e *CannotCancelActiveSessionError) Error() string {
	return fmt.Sprintf("session %s is in progress and cannot be cancelled", e.SessionID)
}

// SessionParticipant tracks one student's membership in a session.
// It has no identity outside its session and is mutated only through
// Session methods.
type SessionParticipant struct {
	StudentID        uuid.UUID        `json:"student_id"`
	AttemptID        *uuid.UUID       `json:"attempt_id,omitempty"`
	JoinedAt         *time.Time       `json:"joined_at,omitempty"`
	ConnectionStatus ConnectionStatus `json:"connection_status"`
	LastActivity     *time.Time       `json:"last_activity,omitempty"`
}

// Session is one scheduled group test event: a class takes a test together,
// with the teacher watching live.
//
// All transitions are monotonic: there is no path from a later state back to
// an earlier one, so a COMPLETED or CANCELLED session deterministically
// rejects further joins and starts.
type Session struct {
	ID           uuid.UUID            `json:"id"`
	ClassID      uuid.UUID            `json:"class_id"`
	TestID       uuid.UUID            `json:"test_id"`
	Title        string               `json:"title"`
	ScheduledAt  time.Time            `json:"scheduled_at"`
	StartedAt    *time.Time           `json:"started_at,omitempty"`
	CompletedAt  *time.Time           `json:"completed_at,omitempty"`
	Status       SessionStatus        `json:"status"`
	Participants []SessionParticipant `json:"participants"`
	CreatedBy    uuid.UUID            `json:"created_by"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    *time.Time           `json:"updated_at,omitempty"`
}

// NewSession builds a SCHEDULED session with the roster seeded from the
// class's current student list, everyone DISCONNECTED.
func NewSession(classID, testID, createdBy uuid.UUID, title string, scheduledAt time.Time, roster []uuid.UUID) *Session {
	participants := make([]SessionParticipant, 0, len(roster))
	for _, studentID := range roster {
		participants = append(participants, SessionParticipant{
			StudentID:        studentID,
			ConnectionStatus: ConnectionStatusDisconnected,
		})
	}
	return &Session{
		ID:           uuid.New(),
		ClassID:      classID,
		TestID:       testID,
		Title:        title,
		ScheduledAt:  scheduledAt,
		Status:       SessionStatusScheduled,
		Participants: participants,
		CreatedBy:    createdBy,
		CreatedAt:    time.Now().UTC(),
	}
}

// StartWaitingPhase opens the waiting room. Only valid from SCHEDULED.
func (s *Session) StartWaitingPhase() error {
	if s.Status != SessionStatusScheduled {
		return &InvalidSessionStatusError{SessionID: s.ID, Current: s.Status, Expected: SessionStatusScheduled}
	}
	s.Status = SessionStatusWaiting
	s.touch()
	return nil
}

// StudentJoin marks the student CONNECTED. Reconnects are idempotent:
// an existing participant flips back to CONNECTED keeping its first
// JoinedAt; an unknown student is appended (late roster additions).
func (s *Session) StudentJoin(studentID uuid.UUID) error {
	if s.Status != SessionStatusWaiting && s.Status != SessionStatusInProgress {
		return &SessionNotJoinableError{SessionID: s.ID, Current: s.Status}
	}

	now := time.Now().UTC()
	if p := s.participant(studentID); p != nil {
		p.ConnectionStatus = ConnectionStatusConnected
		p.LastActivity = &now
		if p.JoinedAt == nil {
			p.JoinedAt = &now
		}
	} else {
		s.Participants = append(s.Participants, SessionParticipant{
			StudentID:        studentID,
			JoinedAt:         &now,
			ConnectionStatus: ConnectionStatusConnected,
			LastActivity:     &now,
		})
	}
	s.touch()
	return nil
}

// StudentDisconnect marks the student DISCONNECTED. The participant entry is
// retained for reconnection and auditing. Unknown students are a no-op.
func (s *Session) StudentDisconnect(studentID uuid.UUID) {
	p := s.participant(studentID)
	if p == nil {
		return
	}
	now := time.Now().UTC()
	p.ConnectionStatus = ConnectionStatusDisconnected
	p.LastActivity = &now
	s.touch()
}

// Start begins the global countdown. Only valid from WAITING_FOR_STUDENTS
// with at least one connected participant. It returns the connected student
// ids so the caller can create their attempts. StartedAt is the single timer
// anchor for every participant's deadline.
func (s *Session) Start() ([]uuid.UUID, error) {
	if s.Status != SessionStatusWaiting {
		return nil, &InvalidSessionStatusError{SessionID: s.ID, Current: s.Status, Expected: SessionStatusWaiting}
	}

	var connected []uuid.UUID
	for _, p := range s.Participants {
		if p.ConnectionStatus == ConnectionStatusConnected {
			connected = append(connected, p.StudentID)
		}
	}
	if len(connected) == 0 {
		return nil, &NoStudentsConnectedError{SessionID: s.ID}
	}

	now := time.Now().UTC()
	s.Status = SessionStatusInProgress
	s.StartedAt = &now
	s.touch()
	return connected, nil
}

// Complete finishes a running session.
func (s *Session) Complete() error {
	if s.Status != SessionStatusInProgress {
		return &InvalidSessionStatusError{SessionID: s.ID, Current: s.Status, Expected: SessionStatusInProgress}
	}
	now := time.Now().UTC()
	s.Status = SessionStatusCompleted
	s.CompletedAt = &now
	s.touch()
	return nil
}

// Cancel aborts the session. Not allowed while IN_PROGRESS.
func (s *Session) Cancel() error {
	if s.Status == SessionStatusInProgress {
		return &CannotCancelActiveSessionError{SessionID: s.ID}
	}
	s.Status = SessionStatusCancelled
	s.touch()
	return nil
}

// LinkAttempt records the attempt back-reference on the matching
// participant. Unknown students are a no-op.
func (s *Session) LinkAttempt(studentID, attemptID uuid.UUID) {
	p := s.participant(studentID)
	if p == nil {
		return
	}
	p.AttemptID = &attemptID
	s.touch()
}

// ConnectedCount returns the number of currently connected participants.
func (s *Session) ConnectedCount() int {
	n := 0
	for _, p := range s.Participants {
		if p.ConnectionStatus == ConnectionStatusConnected {
			n++
		}
	}
	return n
}

// HasParticipant reports whether the student is on the roster.
func (s *Session) HasParticipant(studentID uuid.UUID) bool {
	return s.participant(studentID) != nil
}

func (s *Session) participant(studentID uuid.UUID) *SessionParticipant {
	for i := range s.Participants {
		if s.Participants[i].StudentID == studentID {
			return &s.Participants[i]
		}
	}
	return nil
}

func (s *Session) touch() {
	now := time.Now().UTC()
	s.UpdatedAt = &now
}
