package model

import (
	"time"

	"github.com/google/uuid"
)

// EnrollmentStatus enumerates exam enrollment states. FLAGGED is terminal for
// the attempt: a flagged enrollment can never be resumed by the student.
type EnrollmentStatus string

const (
	EnrollmentStatusRegistered EnrollmentStatus = "REGISTERED"
	EnrollmentStatusOngoing    EnrollmentStatus = "ONGOING"
	EnrollmentStatusCompleted  EnrollmentStatus = "COMPLETED"
	EnrollmentStatusFlagged    EnrollmentStatus = "FLAGGED"
	EnrollmentStatusAbsent     EnrollmentStatus = "ABSENT"
)

// ExamEnrollment links a student to an exam. Unique per (exam, user),
// created by admins only.
type ExamEnrollment struct {
	ID        uuid.UUID        `json:"id"`
	ExamID    uuid.UUID        `json:"exam_id"`
	UserID    uuid.UUID        `json:"user_id"`
	Status    EnrollmentStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// EnrollmentWithUser is the admin listing projection.
type EnrollmentWithUser struct {
	ExamEnrollment
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
}

// EnrollmentWithExam is the student "my enrollments" projection.
type EnrollmentWithExam struct {
	ExamEnrollment
	ExamTitle   string     `json:"exam_title"`
	ExamSubject string     `json:"exam_subject"`
	ExamStatus  ExamStatus `json:"exam_status"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     time.Time  `json:"end_time"`
}

// EnrollRequest enrolls a single student.
type EnrollRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// BulkEnrollRequest enrolls many students; failures are reported per item.
type BulkEnrollRequest struct {
	UserIDs []uuid.UUID `json:"user_ids" binding:"required,min=1,max=500"`
}

// BulkEnrollResult summarizes a bulk enrollment.
type BulkEnrollResult struct {
	ExamID       uuid.UUID `json:"exam_id"`
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	Errors       []string  `json:"errors,omitempty"`
}
