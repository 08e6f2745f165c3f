package websocket

import (
	"time"

	"github.com/google/uuid"
	"github.com/readspace/ielts-backend/internal/model"
)

// MessageType discriminates every frame this subsystem emits or accepts.
type MessageType string

const (
	// ─── Client → Server ───────────────────────────────────────────────
	TypeHeartbeat MessageType = "heartbeat"

	// ─── Server → Client ───────────────────────────────────────────────
	TypePong                    MessageType = "pong"
	TypeError                   MessageType = "error"
	TypeConnected               MessageType = "connected"
	TypeWaitingRoomOpened       MessageType = "waiting_room_opened"
	TypeParticipantJoined       MessageType = "participant_joined"
	TypeParticipantDisconnected MessageType = "participant_disconnected"
	TypeSessionStarted          MessageType = "session_started"
	TypeSessionCompleted        MessageType = "session_completed"
	TypeStudentProgress         MessageType = "student_progress"
	TypeStudentAnswer           MessageType = "student_answer"
	TypeStudentHighlight        MessageType = "student_highlight"
	TypeStudentSubmitted        MessageType = "student_submitted"
	TypeViolation               MessageType = "violation"
)

// InboundFrame is the envelope for client control frames.
type InboundFrame struct {
	Type MessageType `json:"type"`
}

type PongMessage struct {
	Type MessageType `json:"type"`
}

type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

type ConnectedMessage struct {
	Type      MessageType `json:"type"`
	SessionID uuid.UUID   `json:"session_id"`
	Timestamp time.Time   `json:"timestamp"`
}

type WaitingRoomOpenedMessage struct {
	Type      MessageType `json:"type"`
	SessionID uuid.UUID   `json:"session_id"`
	Timestamp time.Time   `json:"timestamp"`
}

type ParticipantJoinedMessage struct {
	Type           MessageType `json:"type"`
	SessionID      uuid.UUID   `json:"session_id"`
	StudentID      uuid.UUID   `json:"student_id"`
	ConnectedCount int         `json:"connected_count"`
	Timestamp      time.Time   `json:"timestamp"`
}

type ParticipantDisconnectedMessage struct {
	Type           MessageType `json:"type"`
	SessionID      uuid.UUID   `json:"session_id"`
	StudentID      uuid.UUID   `json:"student_id"`
	ConnectedCount int         `json:"connected_count"`
	Timestamp      time.Time   `json:"timestamp"`
}

type SessionStartedMessage struct {
	Type              MessageType `json:"type"`
	SessionID         uuid.UUID   `json:"session_id"`
	StartedAt         time.Time   `json:"started_at"`
	ConnectedStudents []uuid.UUID `json:"connected_students"`
	Timestamp         time.Time   `json:"timestamp"`
}

type SessionCompletedMessage struct {
	Type        MessageType `json:"type"`
	SessionID   uuid.UUID   `json:"session_id"`
	CompletedAt time.Time   `json:"completed_at"`
	Timestamp   time.Time   `json:"timestamp"`
}

type StudentProgressMessage struct {
	Type           MessageType `json:"type"`
	SessionID      uuid.UUID   `json:"session_id"`
	StudentID      uuid.UUID   `json:"student_id"`
	StudentName    string      `json:"student_name"`
	PassageIndex   int         `json:"passage_index"`
	QuestionIndex  int         `json:"question_index"`
	QuestionNumber int         `json:"question_number"`
	Timestamp      time.Time   `json:"timestamp"`
}

type StudentAnswerMessage struct {
	Type           MessageType `json:"type"`
	SessionID      uuid.UUID   `json:"session_id"`
	StudentID      uuid.UUID   `json:"student_id"`
	StudentName    string      `json:"student_name"`
	QuestionID     uuid.UUID   `json:"question_id"`
	QuestionNumber int         `json:"question_number"`
	Answered       int         `json:"answered"`
	IsUpdate       bool        `json:"is_update"`
	Timestamp      time.Time   `json:"timestamp"`
}

// StudentHighlightMessage carries at most the first 100 characters of the
// highlighted text; teachers need the gist, not the whole passage chunk.
type StudentHighlightMessage struct {
	Type        MessageType `json:"type"`
	SessionID   uuid.UUID   `json:"session_id"`
	StudentID   uuid.UUID   `json:"student_id"`
	StudentName string      `json:"student_name"`
	Text        string      `json:"text"`
	PassageID   uuid.UUID   `json:"passage_id"`
	Timestamp   time.Time   `json:"timestamp"`
}

type StudentSubmittedMessage struct {
	Type              MessageType `json:"type"`
	SessionID         uuid.UUID   `json:"session_id"`
	StudentID         uuid.UUID   `json:"student_id"`
	StudentName       string      `json:"student_name"`
	Score             float64     `json:"score"`
	TimeTakenSeconds  int         `json:"time_taken_seconds"`
	AnsweredQuestions int         `json:"answered_questions"`
	TotalQuestions    int         `json:"total_questions"`
	Timestamp         time.Time   `json:"timestamp"`
}

type ViolationMessage struct {
	Type          MessageType         `json:"type"`
	SessionID     uuid.UUID           `json:"session_id"`
	StudentID     uuid.UUID           `json:"student_id"`
	ViolationType model.ViolationType `json:"violation_type"`
	Timestamp     time.Time           `json:"timestamp"`
	TotalCount    int                 `json:"total_count"`
}
