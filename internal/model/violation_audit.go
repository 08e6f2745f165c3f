package model

import (
	"time"

	"github.com/google/uuid"
)

// ViolationAuditRecord is the durable per-event audit row mirrored out of
// the attempt's embedded violation log. Events are queued to Redis on the
// hot path and flushed to PostgreSQL in batches by a background worker.
type ViolationAuditRecord struct {
	AttemptID     uuid.UUID         `json:"attempt_id"`
	SessionID     *uuid.UUID        `json:"session_id,omitempty"`
	StudentID     uuid.UUID         `json:"student_id"`
	ViolationType ViolationType     `json:"violation_type"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}
