package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/invigilo/invigilo-backend/internal/repository"
	"github.com/invigilo/invigilo-backend/internal/response"
	"github.com/invigilo/invigilo-backend/internal/service"
)

// failFromErr translates service errors into the response envelope. Anything
// unmapped is an internal error; callers log those before returning here.
func failFromErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)

	case errors.Is(err, service.ErrForbidden):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)

	// ─── Auth ──────────────────────────────────────────────────────────
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrAccountDisabled):
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
	case errors.Is(err, service.ErrTokenRevoked):
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRevoked)
	case errors.Is(err, service.ErrWrongTokenType):
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenWrongType)
	case errors.Is(err, service.ErrEmailTaken):
		response.Fail(c, http.StatusConflict, response.ErrConflict)

	// ─── Exam lifecycle ────────────────────────────────────────────────
	case errors.Is(err, service.ErrExamNotDraft):
		response.Fail(c, http.StatusConflict, response.ErrExamNotDraft)
	case errors.Is(err, service.ErrExamCompleted):
		response.Fail(c, http.StatusConflict, response.ErrExamNotActive)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoQuestions)
	case errors.Is(err, service.ErrMarksMismatch),
		errors.Is(err, service.ErrInvalidWindow),
		errors.Is(err, service.ErrInvalidMCQ),
		errors.Is(err, service.ErrUnexpectedOptions):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrMarksMismatch)
	case errors.Is(err, service.ErrStartPassed):
		response.Fail(c, http.StatusConflict, response.ErrExamStartPassed)
	case errors.Is(err, service.ErrNotAProctor),
		errors.Is(err, service.ErrNotAStudent):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrValidation)
	case errors.Is(err, service.ErrProctorOverlap):
		response.Fail(c, http.StatusConflict, response.ErrProctorOverlap)

	// ─── Enrollments ───────────────────────────────────────────────────
	case errors.Is(err, service.ErrAlreadyEnrolled):
		response.Fail(c, http.StatusConflict, response.ErrDuplicateEnrollment)
	case errors.Is(err, service.ErrEnrollmentOngoing):
		response.Fail(c, http.StatusConflict, response.ErrConflict)
	case errors.Is(err, service.ErrEnrollmentNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)

	// ─── Session engine ────────────────────────────────────────────────
	case errors.Is(err, service.ErrNotEnrolled):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	case errors.Is(err, service.ErrExamNotActive):
		response.Fail(c, http.StatusConflict, response.ErrExamNotActive)
	case errors.Is(err, service.ErrExamWindowClosed):
		response.Fail(c, http.StatusConflict, response.ErrExamWindowClosed)
	case errors.Is(err, service.ErrLateEntry):
		response.Fail(c, http.StatusConflict, response.ErrExamStartPassed)
	case errors.Is(err, service.ErrSuspensionSticky):
		response.Fail(c, http.StatusConflict, response.ErrSuspensionSticky)
	case errors.Is(err, service.ErrEnrollmentDone):
		response.Fail(c, http.StatusConflict, response.ErrEnrollmentDone)
	case errors.Is(err, service.ErrSessionConflict):
		response.Fail(c, http.StatusConflict, response.ErrSessionConflict)
	case errors.Is(err, service.ErrSessionSubmitted):
		response.Fail(c, http.StatusConflict, response.ErrSessionSubmitted)
	case errors.Is(err, service.ErrSessionSuspended):
		response.Fail(c, http.StatusConflict, response.ErrSessionSuspended)
	case errors.Is(err, service.ErrNotSuspended):
		response.Fail(c, http.StatusConflict, response.ErrNotSuspended)
	case errors.Is(err, service.ErrNotSubmitted):
		response.Fail(c, http.StatusConflict, response.ErrSessionSubmitted)
	case errors.Is(err, service.ErrQuestionNotInExam):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrQuestionNotInExam)
	case errors.Is(err, service.ErrNotShortAnswer):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrNotShortAnswer)
	case errors.Is(err, service.ErrMarksOutOfRange):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrMarksOutOfRange)

	// ─── Infrastructure ────────────────────────────────────────────────
	case errors.Is(err, repository.ErrConcurrentModification):
		response.Fail(c, http.StatusConflict, response.ErrConcurrentModification)
	case errors.Is(err, service.ErrInferenceUnavailable):
		response.Fail(c, http.StatusServiceUnavailable, response.ErrInferenceUnavailable)

	// ─── Media ─────────────────────────────────────────────────────────
	case errors.Is(err, service.ErrUnsupportedMedia):
		response.Fail(c, http.StatusUnsupportedMediaType, response.ErrUnsupportedFile)
	case errors.Is(err, service.ErrNoProfilePhoto):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)

	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// parseIDParam reads a UUID path parameter, failing the request on bad input.
func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	parsed, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return parsed, true
}

// pageParams reads pagination query parameters with sane bounds.
func pageParams(c *gin.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}

// buildPagination assembles the pagination envelope from a total row count.
func buildPagination(page, perPage int, total int64) *response.Pagination {
	return &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: int(total),
		TotalPages: int(math.Ceil(float64(total) / float64(perPage))),
	}
}
