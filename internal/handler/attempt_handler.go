package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/readspace/ielts-backend/internal/middleware"
	"github.com/readspace/ielts-backend/internal/model"
	"github.com/readspace/ielts-backend/internal/response"
	"github.com/readspace/ielts-backend/internal/service"
	"github.com/readspace/ielts-backend/internal/validator"
)

// SubmitAnswerRequest is the payload for answering a question.
type SubmitAnswerRequest struct {
	QuestionID uuid.UUID         `json:"question_id" binding:"required"`
	Answer     model.AnswerValue `json:"answer" binding:"required"`
}

// UpdateProgressRequest moves the student's position in the test.
type UpdateProgressRequest struct {
	PassageIndex   int `json:"passage_index" binding:"min=0"`
	QuestionIndex  int `json:"question_index" binding:"min=0"`
	QuestionNumber int `json:"question_number" binding:"min=0"`
}

// RecordViolationRequest reports one anti-cheating event.
type RecordViolationRequest struct {
	ViolationType string            `json:"violation_type" binding:"required"`
	Metadata      map[string]string `json:"metadata"`
}

// AttemptHandler handles everything a student does inside a running test.
type AttemptHandler struct {
	attemptService *service.AttemptService
}

// NewAttemptHandler creates a new AttemptHandler.
func NewAttemptHandler(attemptService *service.AttemptService) *AttemptHandler {
	return &AttemptHandler{attemptService: attemptService}
}

// GetOrCreate godoc
// POST /api/v1/sessions/:session_id/attempt
// Returns the caller's attempt for the session, creating it for late joiners.
func (h *AttemptHandler) GetOrCreate(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sessionID, ok := parseIDParam(c, "session_id")
	if !ok {
		return
	}

	attempt, err := h.attemptService.GetOrCreate(c.Request.Context(), actor, sessionID)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// Get godoc
// GET /api/v1/attempts/:attempt_id
// Returns one attempt for its owner or a teacher/admin.
func (h *AttemptHandler) Get(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	attemptID, ok := parseIDParam(c, "attempt_id")
	if !ok {
		return
	}

	attempt, err := h.attemptService.GetByID(c.Request.Context(), actor, attemptID)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// SubmitAnswer godoc
// PUT /api/v1/attempts/:attempt_id/answers
// Stores or replaces the answer for one question.
func (h *AttemptHandler) SubmitAnswer(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	attemptID, ok := parseIDParam(c, "attempt_id")
	if !ok {
		return
	}

	var req SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attemptService.SubmitAnswer(c.Request.Context(), actor, attemptID, req.QuestionID, req.Answer)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"answered": len(attempt.Answers)})
}

// UpdateProgress godoc
// PUT /api/v1/attempts/:attempt_id/progress
// Moves the student's reading position.
func (h *AttemptHandler) UpdateProgress(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	attemptID, ok := parseIDParam(c, "attempt_id")
	if !ok {
		return
	}

	var req UpdateProgressRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	_, err := h.attemptService.UpdateProgress(c.Request.Context(), actor, attemptID,
		req.PassageIndex, req.QuestionIndex, req.QuestionNumber)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// RecordViolation godoc
// POST /api/v1/attempts/:attempt_id/violations
// Reports an anti-cheating event, throttled per attempt and type.
func (h *AttemptHandler) RecordViolation(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	attemptID, ok := parseIDParam(c, "attempt_id")
	if !ok {
		return
	}

	var req RecordViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attemptService.RecordViolation(c.Request.Context(), actor, attemptID,
		model.ViolationType(req.ViolationType), req.Metadata)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"violation_count": attempt.ViolationCount()})
}

// RecordHighlight godoc
// POST /api/v1/attempts/:attempt_id/highlights
// Stores a text highlight.
func (h *AttemptHandler) RecordHighlight(c *gin.Context) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	attemptID, ok := parseIDParam(c, "attempt_id")
	if !ok {
		return
	}

	var req service.RecordHighlightRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	highlight, err := h.attemptService.RecordHighlight(c.Request.Context(), actor, attemptID, req)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"highlight": highlight})
}

// Submit godoc
// POST /api/v1/attempts/:attempt_id/submit
// Finalizes and grades the caller's own attempt.
func (h *AttemptHandler) Submit(c *gin.Context) {
	h.submitWithReason(c, model.SubmitReasonManual)
}

// ForceSubmit godoc
// POST /api/v1/attempts/:attempt_id/force-submit
// Teacher/admin submits a student's attempt on their behalf.
func (h *AttemptHandler) ForceSubmit(c *gin.Context) {
	h.submitWithReason(c, model.SubmitReasonForced)
}

func (h *AttemptHandler) submitWithReason(c *gin.Context, reason model.SubmitReason) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	attemptID, ok := parseIDParam(c, "attempt_id")
	if !ok {
		return
	}

	attempt, err := h.attemptService.Submit(c.Request.Context(), actor, attemptID, reason)
	if err != nil {
		writeDomainError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"attempt_id":     attempt.ID,
		"status":         attempt.Status,
		"correct":        attempt.TotalCorrectAnswers,
		"band_score":     attempt.BandScore,
		"submitted_at":   attempt.SubmittedAt,
		"submit_reason":  attempt.SubmitReason,
		"answered_count": len(attempt.Answers),
	})
}
