package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/readspace/ielts-backend/internal/middleware"
	"github.com/readspace/ielts-backend/internal/model"
	"github.com/readspace/ielts-backend/internal/response"
	"github.com/readspace/ielts-backend/internal/service"
	"github.com/readspace/ielts-backend/internal/validator"
)

// SessionHandler handles the session lifecycle endpoints.
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// Create godoc
// POST /api/v1/sessions
// Schedules a new session for a class and test.
func (h *SessionHandler) Create(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req service.CreateSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	session, err := h.sessionService.Create(c.Request.Context(), actor, req)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"session": session})
}

// List godoc
// GET /api/v1/sessions
// Lists the caller's sessions.
func (h *SessionHandler) List(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessions, err := h.sessionService.ListForActor(c.Request.Context(), actor)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}

// Get godoc
// GET /api/v1/sessions/:session_id
// Returns one session with its live participant state and remaining time.
func (h *SessionHandler) Get(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sessionID, ok := parseIDParam(c, "session_id")
	if !ok {
		return
	}

	session, err := h.sessionService.GetByID(c.Request.Context(), actor, sessionID)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	remaining, err := h.sessionService.RemainingSeconds(c.Request.Context(), session)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"session":                session,
		"connected_count":        session.ConnectedCount(),
		"remaining_time_seconds": remaining,
	})
}

// StartWaiting godoc
// POST /api/v1/sessions/:session_id/waiting
// Opens the waiting room so students can connect.
func (h *SessionHandler) StartWaiting(c *gin.Context) {
	h.transition(c, h.sessionService.StartWaiting)
}

// Start godoc
// POST /api/v1/sessions/:session_id/start
// Starts the test for everyone currently connected.
func (h *SessionHandler) Start(c *gin.Context) {
	h.transition(c, h.sessionService.Start)
}

// Complete godoc
// POST /api/v1/sessions/:session_id/complete
// Finishes a running session.
func (h *SessionHandler) Complete(c *gin.Context) {
	h.transition(c, h.sessionService.Complete)
}

// Cancel godoc
// POST /api/v1/sessions/:session_id/cancel
// Aborts a session that has not started.
func (h *SessionHandler) Cancel(c *gin.Context) {
	h.transition(c, h.sessionService.Cancel)
}

// transition runs one lifecycle operation with the shared
// auth/parse/respond plumbing. All four transitions have the same shape.
func (h *SessionHandler) transition(c *gin.Context, op func(ctx context.Context, actor model.Actor, sessionID uuid.UUID) (*model.Session, error)) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sessionID, ok := parseIDParam(c, "session_id")
	if !ok {
		return
	}

	session, err := op(c.Request.Context(), actor, sessionID)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}
