package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/readspace/ielts-backend/internal/model"
	"github.com/readspace/ielts-backend/internal/service"
	"github.com/rs/zerolog"
)

// SessionCompleter finishes a session on behalf of the system actor.
type SessionCompleter interface {
	Complete(ctx context.Context, actor model.Actor, sessionID uuid.UUID) (*model.Session, error)
}

// AttemptSubmitter force-submits an attempt on behalf of the system actor.
type AttemptSubmitter interface {
	Submit(ctx context.Context, actor model.Actor, attemptID uuid.UUID, reason model.SubmitReason) (*model.Attempt, error)
}

// SessionTimerWorker enforces the shared deadline. The session's StartedAt
// plus the test time limit is the single timer anchor; once it passes, every
// attempt still in progress is auto-submitted with whatever answers exist
// and the session is completed.
//
// Submissions go through the same service path as manual submits, so grading
// and teacher notifications behave identically.
type SessionTimerWorker struct {
	sessions  service.SessionStore
	attempts  service.AttemptStore
	tests     service.TestStore
	completer SessionCompleter
	submitter AttemptSubmitter
	interval  time.Duration
	log       zerolog.Logger
}

// NewSessionTimerWorker creates a new SessionTimerWorker.
func NewSessionTimerWorker(
	sessions service.SessionStore,
	attempts service.AttemptStore,
	tests service.TestStore,
	completer SessionCompleter,
	submitter AttemptSubmitter,
	interval time.Duration,
	log zerolog.Logger,
) *SessionTimerWorker {
	return &SessionTimerWorker{
		sessions:  sessions,
		attempts:  attempts,
		tests:     tests,
		completer: completer,
		submitter: submitter,
		interval:  interval,
		log:       log.With().Str("component", "session_timer_worker").Logger(),
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (w *SessionTimerWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("Session timer worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Session timer worker stopping")
			return
		case now := <-ticker.C:
			w.sweep(ctx, now.UTC())
		}
	}
}

func (w *SessionTimerWorker) sweep(ctx context.Context, now time.Time) {
	sessions, err := w.sessions.ListActive(ctx)
	if err != nil {
		w.log.Error().Err(err).Msg("Failed to list active sessions")
		return
	}

	for i := range sessions {
		session := &sessions[i]
		if session.Status != model.SessionStatusInProgress || session.StartedAt == nil {
			continue
		}

		test, err := w.tests.GetTestInfo(ctx, session.TestID)
		if err != nil {
			w.log.Error().Err(err).
				Str("session_id", session.ID.String()).
				Msg("Failed to load test for deadline check")
			continue
		}

		deadline := session.StartedAt.Add(time.Duration(test.TimeLimitMinutes) * time.Minute)
		if now.Before(deadline) {
			continue
		}

		w.expire(ctx, session)
	}
}

// expire force-submits the session's remaining attempts and completes it.
// Per-attempt failures are logged and skipped; the next sweep retries them
// because an unfinished session stays IN_PROGRESS.
func (w *SessionTimerWorker) expire(ctx context.Context, session *model.Session) {
	system := model.Actor{Role: model.RoleSystem}

	attempts, err := w.attempts.ListBySession(ctx, session.ID, true)
	if err != nil {
		w.log.Error().Err(err).
			Str("session_id", session.ID.String()).
			Msg("Failed to list attempts for expiry")
		return
	}

	failed := 0
	for i := range attempts {
		if _, err := w.submitter.Submit(ctx, system, attempts[i].ID, model.SubmitReasonTimeExpired); err != nil {
			// Someone may have submitted manually between list and submit.
			var statusErr *model.InvalidAttemptStatusError
			if errors.As(err, &statusErr) {
				continue
			}
			w.log.Error().Err(err).
				Str("attempt_id", attempts[i].ID.String()).
				Msg("Auto-submit failed")
			failed++
		}
	}
	if failed > 0 {
		return
	}

	if _, err := w.completer.Complete(ctx, system, session.ID); err != nil {
		w.log.Error().Err(err).
			Str("session_id", session.ID.String()).
			Msg("Failed to complete expired session")
		return
	}

	w.log.Info().
		Str("session_id", session.ID.String()).
		Int("auto_submitted", len(attempts)).
		Msg("Session expired and completed")
}
