package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/invigilo/invigilo-backend/internal/middleware"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/response"
	"github.com/invigilo/invigilo-backend/internal/service"
	"github.com/invigilo/invigilo-backend/internal/validator"
)

// QuestionHandler handles question authoring and in-exam delivery.
type QuestionHandler struct {
	questionService *service.QuestionService
	examService     *service.ExamService
	sessionService  *service.ExamSessionService
	authzService    *service.AuthzService
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(
	questionService *service.QuestionService,
	examService *service.ExamService,
	sessionService *service.ExamSessionService,
	authzService *service.AuthzService,
) *QuestionHandler {
	return &QuestionHandler{
		questionService: questionService,
		examService:     examService,
		sessionService:  sessionService,
		authzService:    authzService,
	}
}

// Add godoc
// POST /api/admin/exams/:exam_id/questions
func (h *QuestionHandler) Add(c *gin.Context) {
	examID, ok := parseIDParam(c, "exam_id")
	if !ok {
		return
	}

	var req model.AddQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	question, err := h.questionService.Add(c.Request.Context(), examID, &req)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"question": question})
}

// Update godoc
// PUT /api/admin/exams/:exam_id/questions/:question_id
func (h *QuestionHandler) Update(c *gin.Context) {
	examID, ok := parseIDParam(c, "exam_id")
	if !ok {
		return
	}
	questionID, ok := parseIDParam(c, "question_id")
	if !ok {
		return
	}

	var req model.UpdateQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	question, err := h.questionService.Update(c.Request.Context(), examID, questionID, &req)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"question": question})
}

// Delete godoc
// DELETE /api/admin/exams/:exam_id/questions/:question_id
func (h *QuestionHandler) Delete(c *gin.Context) {
	examID, ok := parseIDParam(c, "exam_id")
	if !ok {
		return
	}
	questionID, ok := parseIDParam(c, "question_id")
	if !ok {
		return
	}

	if err := h.questionService.Delete(c.Request.Context(), examID, questionID); err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "question deleted"})
}

// List godoc
// GET /api/admin/exams/:exam_id/questions
// Full records including correct answers; admin only.
func (h *QuestionHandler) List(c *gin.Context) {
	examID, ok := parseIDParam(c, "exam_id")
	if !ok {
		return
	}

	questions, err := h.questionService.ListForAdmin(c.Request.Context(), examID)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// Deliver godoc
// GET /api/sessions/:session_id/questions
// Student-facing projection: stable shuffled order, no correct answers.
func (h *QuestionHandler) Deliver(c *gin.Context) {
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
	if err := h.authzService.RequireSessionParticipant(c.Request.Context(), claims, session); err != nil {
		failFromErr(c, err)
		return
	}

	exam, err := h.examService.GetByID(c.Request.Context(), session.ExamID)
	if err != nil {
		failFromErr(c, err)
		return
	}

	questions, err := h.questionService.DeliverForStudent(c.Request.Context(), exam, session.UserID)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}
