package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/readspace/ielts-backend/internal/model"
	"github.com/readspace/ielts-backend/internal/response"
	"github.com/readspace/ielts-backend/internal/service"
	"github.com/rs/zerolog/log"
)

// writeDomainError maps service/model errors onto the API error envelope.
// Every handler funnels its error paths through here so a given domain
// error always produces the same status and code.
func writeDomainError(c *gin.Context, err error) {
	var rateLimited *service.RateLimitedError
	if errors.As(err, &rateLimited) {
		response.FailRateLimited(c, http.StatusTooManyRequests, rateLimited.RetryAfter)
		return
	}

	switch {
	case errors.Is(err, model.ErrSessionNotFound),
		errors.Is(err, model.ErrAttemptNotFound),
		errors.Is(err, model.ErrClassNotFound),
		errors.Is(err, model.ErrUserNotFound),
		errors.Is(err, model.ErrTestNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return

	case errors.Is(err, model.ErrNotSessionManager),
		errors.Is(err, model.ErrNotAttemptOwner),
		errors.Is(err, model.ErrSubmitNotAllowed),
		errors.Is(err, model.ErrNotRosterStudent):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return

	case errors.Is(err, model.ErrQuestionNotInTest):
		response.Fail(c, http.StatusBadRequest, response.ErrQuestionNotInTest)
		return

	case errors.Is(err, model.ErrInvalidHighlightRange):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return

	case errors.Is(err, service.ErrInvalidViolationType):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return

	case errors.Is(err, service.ErrInvalidCredentials):
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return

	case errors.Is(err, service.ErrSessionAlreadyActive):
		response.Fail(c, http.StatusConflict, response.ErrSessionActive)
		return
	}

	var sessionStatus *model.InvalidSessionStatusError
	var notJoinable *model.SessionNotJoinableError
	var noStudents *model.NoStudentsConnectedError
	var cannotCancel *model.CannotCancelActiveSessionError
	var attemptStatus *model.InvalidAttemptStatusError
	var highlightLimit *model.HighlightLimitError

	switch {
	case errors.As(err, &sessionStatus):
		response.Fail(c, http.StatusConflict, response.ErrInvalidSessionStatus)
	case errors.As(err, &notJoinable):
		response.Fail(c, http.StatusConflict, response.ErrSessionNotJoinable)
	case errors.As(err, &noStudents):
		response.Fail(c, http.StatusConflict, response.ErrNoStudentsConnected)
	case errors.As(err, &cannotCancel):
		response.Fail(c, http.StatusConflict, response.ErrCannotCancelActive)
	case errors.As(err, &attemptStatus):
		response.Fail(c, http.StatusConflict, response.ErrInvalidAttemptStatus)
	case errors.As(err, &highlightLimit):
		response.Fail(c, http.StatusBadRequest, response.ErrHighlightLimit)
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Unhandled service error")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// parseIDParam parses a UUID path parameter, writing the error response on
// failure. The bool reports success.
func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
