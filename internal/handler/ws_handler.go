package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/readspace/ielts-backend/internal/middleware"
	"github.com/readspace/ielts-backend/internal/model"
	"github.com/readspace/ielts-backend/internal/service"
	ws "github.com/readspace/ielts-backend/internal/websocket"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler owns the live session socket: one connection per user per
// session, carrying waiting-room presence, monitoring events and the
// heartbeat exchange.
type WSHandler struct {
	hub            ws.ConnectionManager
	sessionService *service.SessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(hub ws.ConnectionManager, sessionService *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hub:            hub,
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/:session_id?token=...
// Upgrades to WebSocket for live session participation and monitoring.
// Students auto-join the waiting room; teachers and admins observe.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	actor := claims.Actor()

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return
	}

	// Access check before the upgrade: roster membership for students,
	// class assignment for teachers.
	if _, err := h.sessionService.GetByID(c.Request.Context(), actor, sessionID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "no access to this session"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	wsLog := h.log.With().
		Str("user_id", actor.ID.String()).
		Str("session_id", sessionID.String()).
		Str("role", string(actor.Role)).
		Logger()

	// All writes from here on go through the handle: the hub's broadcasts
	// and this goroutine's pong replies share one connection, and gorilla
	// allows a single writer at a time.
	handle := h.hub.Connect(sessionID, actor.ID, conn)
	defer func() {
		h.hub.Disconnect(sessionID, actor.ID, handle)
		_ = conn.Close()
		if actor.Role == model.RoleStudent {
			// The request context is gone once the socket drops.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.sessionService.Disconnect(ctx, actor.ID, sessionID); err != nil {
				wsLog.Warn().Err(err).Msg("Failed to record disconnect")
			}
		}
	}()

	if actor.Role == model.RoleStudent {
		if _, err := h.sessionService.Join(c.Request.Context(), actor.ID, sessionID); err != nil {
			wsLog.Warn().Err(err).Msg("Join rejected")
			_ = ws.WriteError(handle, "session is not accepting participants")
			return
		}
	}

	_ = ws.WriteTyped(handle, ws.ConnectedMessage{
		Type:      ws.TypeConnected,
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	})
	wsLog.Info().Msg("Session socket open")

	h.readLoop(conn, handle, wsLog)
}

// readLoop services client control frames until the connection drops.
// Heartbeats double as the idle-timeout refresh. Replies go through the
// hub handle so they serialize with concurrent broadcasts.
func (h *WSHandler) readLoop(conn *websocket.Conn, handle ws.Conn, wsLog zerolog.Logger) {
	for {
		var frame ws.InboundFrame
		if err := ws.ReadJSON(conn, &frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch frame.Type {
		case ws.TypeHeartbeat:
			_ = ws.WriteTyped(handle, ws.PongMessage{Type: ws.TypePong})
		default:
			wsLog.Warn().Str("type", string(frame.Type)).Msg("Unknown frame type")
			_ = ws.WriteError(handle, "unknown message type: "+string(frame.Type))
		}
	}
}
