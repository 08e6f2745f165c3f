package websocket

import (
	"context"

	"github.com/google/uuid"
	"github.com/readspace/ielts-backend/internal/model"
	"github.com/rs/zerolog"
)

// UserDirectory resolves a connected user's role for delivery filtering.
type UserDirectory interface {
	GetRole(ctx context.Context, userID uuid.UUID) (model.UserRole, error)
}

// Broadcaster is the role-aware delivery layer over a ConnectionManager.
//
// Broadcast is a best-effort side channel: every failure here — role lookup
// or send — is logged and swallowed so a monitoring outage can never fail
// the student-facing write that triggered it.
type Broadcaster struct {
	manager ConnectionManager
	users   UserDirectory
	log     zerolog.Logger
}

// NewBroadcaster creates a Broadcaster.
func NewBroadcaster(manager ConnectionManager, users UserDirectory, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		manager: manager,
		users:   users,
		log:     log.With().Str("component", "broadcaster").Logger(),
	}
}

// BroadcastToTeachers delivers the message to every connected user in the
// session whose role is TEACHER (admins observing the session count too).
func (b *Broadcaster) BroadcastToTeachers(ctx context.Context, sessionID uuid.UUID, message interface{}) {
	userIDs := b.manager.ConnectedUsers(sessionID)
	if len(userIDs) == 0 {
		return
	}

	delivered := 0
	for _, userID := range userIDs {
		role, err := b.users.GetRole(ctx, userID)
		if err != nil {
			b.log.Warn().Err(err).
				Str("session_id", sessionID.String()).
				Str("user_id", userID.String()).
				Msg("Role lookup failed during broadcast")
			continue
		}
		if role != model.RoleTeacher && role != model.RoleAdmin {
			continue
		}
		b.manager.SendPersonalMessage(sessionID, userID, message)
		delivered++
	}

	b.log.Debug().
		Str("session_id", sessionID.String()).
		Int("teachers", delivered).
		Msg("Broadcasted to teachers")
}

// BroadcastToAll delivers the message to every connected user in the session.
func (b *Broadcaster) BroadcastToAll(ctx context.Context, sessionID uuid.UUID, message interface{}) {
	b.manager.BroadcastToSession(sessionID, message)
}
