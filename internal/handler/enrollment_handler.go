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

// EnrollmentHandler handles exam enrollment administration.
type EnrollmentHandler struct {
	enrollmentService *service.EnrollmentService
}

// NewEnrollmentHandler creates a new EnrollmentHandler.
func NewEnrollmentHandler(enrollmentService *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollmentService: enrollmentService}
}

// Enroll godoc
// POST /api/admin/exams/:exam_id/enrollments
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	examID, ok := parseIDParam(c, "exam_id")
	if !ok {
		return
	}

	var req model.EnrollRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	enrollment, err := h.enrollmentService.Enroll(c.Request.Context(), examID, req.UserID)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"enrollment": enrollment})
}

// BulkEnroll godoc
// POST /api/admin/exams/:exam_id/enrollments/bulk
// Always 200: per-student failures are reported in the result body.
func (h *EnrollmentHandler) BulkEnroll(c *gin.Context) {
	examID, ok := parseIDParam(c, "exam_id")
	if !ok {
		return
	}

	var req model.BulkEnrollRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	result, err := h.enrollmentService.BulkEnroll(c.Request.Context(), examID, req.UserIDs)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// Unenroll godoc
// DELETE /api/admin/enrollments/:enrollment_id
func (h *EnrollmentHandler) Unenroll(c *gin.Context) {
	enrollmentID, ok := parseIDParam(c, "enrollment_id")
	if !ok {
		return
	}

	if err := h.enrollmentService.Unenroll(c.Request.Context(), enrollmentID); err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "enrollment removed"})
}

// ListByExam godoc
// GET /api/admin/exams/:exam_id/enrollments?page=&per_page=
func (h *EnrollmentHandler) ListByExam(c *gin.Context) {
	examID, ok := parseIDParam(c, "exam_id")
	if !ok {
		return
	}
	page, perPage := pageParams(c)

	enrollments, total, err := h.enrollmentService.ListByExam(c.Request.Context(), examID, page, perPage)
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"enrollments": enrollments}, buildPagination(page, perPage, total))
}

// ListMine godoc
// GET /api/enrollments/my
func (h *EnrollmentHandler) ListMine(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	enrollments, err := h.enrollmentService.ListMine(c.Request.Context(), claims.UserID())
	if err != nil {
		failFromErr(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"enrollments": enrollments})
}
