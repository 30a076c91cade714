package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/invigilo/invigilo-backend/internal/middleware"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/repository"
	"github.com/invigilo/invigilo-backend/internal/response"
	"github.com/invigilo/invigilo-backend/internal/service"
	"github.com/invigilo/invigilo-backend/internal/validator"
)

// ProctoringHandler exposes the proctor review surface: event history,
// violation summaries, manual flags and the live monitor.
type ProctoringHandler struct {
	proctoringService *service.ProctoringService
	sessionService    *service.ExamSessionService
	authzService      *service.AuthzService
}

// NewProctoringHandler creates a new ProctoringHandler.
func NewProctoringHandler(
	proctoringService *service.ProctoringService,
	sessionService *service.ExamSessionService,
	authzService *service.AuthzService,
) *ProctoringHandler {
	return &ProctoringHandler{
		proctoringService: proctoringService,
		sessionService:    sessionService,
		authzService:      authzService,
	}
}

// loadSessionAsProctor fetches the session and requires the caller to be an
// assigned proctor of its exam, or an admin.
func (h *ProctoringHandler) loadSessionAsProctor(c *gin.Context) (*model.ExamSession, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}
	sessionID, ok := parseIDParam(c, "session_id")
	if !ok {
		return nil, false
	}

	session, err := h.sessionService.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		failFromErr(c, err)
		return nil, false
	}
	if err := h.authzService.RequireAssignedProctor(c.Request.Context(), claims, session.ExamID); err != nil {
		failFromErr(c, err)
		return nil, false
	}
	return session, true
}

// ListEvents godoc
// GET /api/proctoring/sessions/:session_id/events?event_type=&severity=&source=&page=&per_page=
func (h *ProctoringHandler) ListEvents(c *gin.Context) {
	session, ok := h.loadSessionAsProctor(c)
	if !ok {
		return
	}
	page, perPage := pageParams(c)

	var filter repository.EventFilter
	if raw := c.Query("event_type"); raw != "" {
		t := model.EventType(raw)
		filter.EventType = &t
	}
	if raw := c.Query("severity"); raw != "" {
		s := model.Severity(raw)
		filter.Severity = &s
	}
	if raw := c.Query("source"); raw != "" {
		s := model.EventSource(raw)
		filter.Source = &s
	}

	events, total, err := h.proctoringService.ListEvents(c.Request.Context(), session.ID, filter, page, perPage)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"events": events}, buildPagination(page, perPage, total))
}

// GetSummary godoc
// GET /api/proctoring/sessions/:session_id/summary
func (h *ProctoringHandler) GetSummary(c *gin.Context) {
	session, ok := h.loadSessionAsProctor(c)
	if !ok {
		return
	}

	summary, err := h.proctoringService.GetSummary(c.Request.Context(), session.ID)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"summary": summary})
}

// ListBehaviorEvents godoc
// GET /api/proctoring/sessions/:session_id/behavior-events?limit=
func (h *ProctoringHandler) ListBehaviorEvents(c *gin.Context) {
	session, ok := h.loadSessionAsProctor(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit < 1 || limit > 1000 {
		limit = 100
	}

	events, err := h.proctoringService.ListBehaviorEvents(c.Request.Context(), session.ID, limit)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"events": events})
}

// Flag godoc
// POST /api/proctoring/sessions/:session_id/flag
// Records a MANUAL_FLAG event and marks the summary for review.
func (h *ProctoringHandler) Flag(c *gin.Context) {
	session, ok := h.loadSessionAsProctor(c)
	if !ok {
		return
	}

	var req model.FlagSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.proctoringService.FlagSession(c.Request.Context(), session.ID, req.Reason); err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"message": "session flagged"})
}

// ClearFlag godoc
// DELETE /api/proctoring/sessions/:session_id/flag
func (h *ProctoringHandler) ClearFlag(c *gin.Context) {
	session, ok := h.loadSessionAsProctor(c)
	if !ok {
		return
	}

	if err := h.proctoringService.ClearFlag(c.Request.Context(), session.ID); err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "flag cleared"})
}

// SetNote godoc
// PUT /api/proctoring/sessions/:session_id/note
func (h *ProctoringHandler) SetNote(c *gin.Context) {
	session, ok := h.loadSessionAsProctor(c)
	if !ok {
		return
	}

	var req model.ProctorNoteRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.proctoringService.SetNote(c.Request.Context(), session.ID, req.Note); err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "note saved"})
}

// Monitor godoc
// GET /api/proctoring/exams/:exam_id/monitor
// Active sessions with violation summaries and live presence.
func (h *ProctoringHandler) Monitor(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := parseIDParam(c, "exam_id")
	if !ok {
		return
	}

	if err := h.authzService.RequireAssignedProctor(c.Request.Context(), claims, examID); err != nil {
		failFromErr(c, err)
		return
	}

	entries, err := h.proctoringService.MonitorSnapshot(c.Request.Context(), examID)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"sessions": entries})
}
