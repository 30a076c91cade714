package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/middleware"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/response"
	"github.com/invigilo/invigilo-backend/internal/service"
	"github.com/invigilo/invigilo-backend/internal/validator"
)

// SessionHandler handles the exam attempt lifecycle: start, heartbeat, answer
// saving, submission, identity verification and suspension control.
type SessionHandler struct {
	sessionService *service.ExamSessionService
	authzService   *service.AuthzService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.ExamSessionService, authzService *service.AuthzService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService, authzService: authzService}
}

// loadAuthorized fetches the session and enforces participant access
// (owner, assigned proctor or admin).
func (h *SessionHandler) loadAuthorized(c *gin.Context) (*model.ExamSession, *service.Claims, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, nil, false
	}
	sessionID, ok := parseIDParam(c, "session_id")
	if !ok {
		return nil, nil, false
	}

	session, err := h.sessionService.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		failFromErr(c, err)
		return nil, nil, false
	}
	if err := h.authzService.RequireSessionParticipant(c.Request.Context(), claims, session); err != nil {
		failFromErr(c, err)
		return nil, nil, false
	}
	return session, claims, true
}

// requireOwner rejects anyone but the student who owns the session.
func (h *SessionHandler) requireOwner(c *gin.Context, session *model.ExamSession, claims *service.Claims) bool {
	if session.UserID != claims.UserID() {
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
		return false
	}
	return true
}

// Start godoc
// POST /api/sessions/start?examId=
// Starts a fresh attempt or resumes the open one. The snake_case form of the
// exam parameter is accepted for older clients.
func (h *SessionHandler) Start(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	raw := c.Query("examId")
	if raw == "" {
		raw = c.Query("exam_id")
	}
	examID, err := uuid.Parse(raw)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	ip := c.ClientIP()
	userAgent := c.Request.UserAgent()
	session, err := h.sessionService.Start(c.Request.Context(), examID, claims.UserID(), &ip, &userAgent)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"session": session})
}

// Get godoc
// GET /api/sessions/:session_id
func (h *SessionHandler) Get(c *gin.Context) {
	session, _, ok := h.loadAuthorized(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// Heartbeat godoc
// POST /api/sessions/:session_id/heartbeat
func (h *SessionHandler) Heartbeat(c *gin.Context) {
	session, claims, ok := h.loadAuthorized(c)
	if !ok {
		return
	}
	if !h.requireOwner(c, session, claims) {
		return
	}

	if err := h.sessionService.Heartbeat(c.Request.Context(), session.ID); err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "ok"})
}

// SaveAnswer godoc
// POST /api/sessions/:session_id/answers
// Idempotent upsert keyed on (session, question).
func (h *SessionHandler) SaveAnswer(c *gin.Context) {
	session, claims, ok := h.loadAuthorized(c)
	if !ok {
		return
	}
	if !h.requireOwner(c, session, claims) {
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	answer, err := h.sessionService.SaveAnswer(c.Request.Context(), session, &req)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"answer": answer})
}

// ListAnswers godoc
// GET /api/sessions/:session_id/answers
func (h *SessionHandler) ListAnswers(c *gin.Context) {
	session, _, ok := h.loadAuthorized(c)
	if !ok {
		return
	}

	answers, err := h.sessionService.ListAnswers(c.Request.Context(), session.ID)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"answers": answers})
}

// Submit godoc
// POST /api/sessions/:session_id/submit
// Grades objective questions and finalizes the attempt.
func (h *SessionHandler) Submit(c *gin.Context) {
	session, claims, ok := h.loadAuthorized(c)
	if !ok {
		return
	}
	if !h.requireOwner(c, session, claims) {
		return
	}

	submitted, err := h.sessionService.SubmitWithRetry(c.Request.Context(), session.ID)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": submitted})
}

// VerifyIdentity godoc
// POST /api/sessions/:session_id/verify-identity
// Forwards the live selfie to the inference service; a mismatch is recorded
// as a critical proctoring event.
func (h *SessionHandler) VerifyIdentity(c *gin.Context) {
	session, claims, ok := h.loadAuthorized(c)
	if !ok {
		return
	}
	if !h.requireOwner(c, session, claims) {
		return
	}

	var req model.VerifyIdentityRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.sessionService.VerifyIdentity(c.Request.Context(), session, req.SelfieBase64)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// Suspend godoc
// POST /api/sessions/:session_id/suspend
// Proctor or admin action; idempotent when already suspended.
func (h *SessionHandler) Suspend(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sessionID, ok := parseIDParam(c, "session_id")
	if !ok {
		return
	}

	session, err := h.sessionService.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		failFromErr(c, err)
		return
	}
	if err := h.authzService.RequireAssignedProctor(c.Request.Context(), claims, session.ExamID); err != nil {
		failFromErr(c, err)
		return
	}

	var req model.SuspendSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.sessionService.Suspend(c.Request.Context(), sessionID, req.Reason); err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "session suspended"})
}

// Reinstate godoc
// POST /api/sessions/:session_id/reinstate
// Returns the session with its extended deadline.
func (h *SessionHandler) Reinstate(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sessionID, ok := parseIDParam(c, "session_id")
	if !ok {
		return
	}

	session, err := h.sessionService.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		failFromErr(c, err)
		return
	}
	if err := h.authzService.RequireAssignedProctor(c.Request.Context(), claims, session.ExamID); err != nil {
		failFromErr(c, err)
		return
	}

	var req model.ReinstateSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	reinstated, err := h.sessionService.Reinstate(c.Request.Context(), sessionID, req.Reason)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": reinstated})
}

// GradeShortAnswer godoc
// POST /api/sessions/:session_id/grade
// Manual short-answer grading after submission; recomputes the total.
func (h *SessionHandler) GradeShortAnswer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sessionID, ok := parseIDParam(c, "session_id")
	if !ok {
		return
	}

	session, err := h.sessionService.GetByID(c.Request.Context(), sessionID)
	if err != nil {
		failFromErr(c, err)
		return
	}
	if err := h.authzService.RequireAssignedProctor(c.Request.Context(), claims, session.ExamID); err != nil {
		failFromErr(c, err)
		return
	}

	var req model.GradeAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	graded, err := h.sessionService.GradeShortAnswer(c.Request.Context(), sessionID, &req)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session": graded})
}
