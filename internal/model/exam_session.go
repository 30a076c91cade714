package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamSession represents a student's exam attempt. The version column backs
// optimistic concurrency: every mutation re-reads, bumps and checks it.
type ExamSession struct {
	ID               uuid.UUID  `json:"id"`
	EnrollmentID     uuid.UUID  `json:"enrollment_id"`
	ExamID           uuid.UUID  `json:"exam_id"`
	UserID           uuid.UUID  `json:"user_id"`
	StartedAt        time.Time  `json:"started_at"`
	SubmittedAt      *time.Time `json:"submitted_at,omitempty"`
	LastHeartbeatAt  time.Time  `json:"last_heartbeat_at"`
	IdentityVerified bool       `json:"identity_verified"`
	IsSuspended      bool       `json:"is_suspended"`
	SuspensionReason *string    `json:"suspension_reason,omitempty"`
	SuspendedAt      *time.Time `json:"suspended_at,omitempty"`
	ExtendedEndAt    *time.Time `json:"extended_end_at,omitempty"`
	IPAddress        *string    `json:"ip_address,omitempty"`
	UserAgent        *string    `json:"user_agent,omitempty"`
	Score            *float64   `json:"score,omitempty"`
	IsPassed         *bool      `json:"is_passed,omitempty"`
	Version          int64      `json:"-"`
}

// SessionWithUser is the proctor monitor projection.
type SessionWithUser struct {
	ExamSession
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
}

// IsOpen reports whether the session has not been submitted yet.
func (s *ExamSession) IsOpen() bool {
	return s.SubmittedAt == nil
}

// EffectiveDeadline is the session's submission deadline: the reinstatement
// extension when present, otherwise the exam's end time.
func (s *ExamSession) EffectiveDeadline(examEnd time.Time) time.Time {
	if s.ExtendedEndAt != nil {
		return *s.ExtendedEndAt
	}
	return examEnd
}

// SaveAnswerRequest upserts one answer. Exactly one of selected_answer
// (MCQ key) or text_answer is expected, by question type.
type SaveAnswerRequest struct {
	QuestionID     uuid.UUID `json:"question_id" binding:"required"`
	SelectedAnswer *string   `json:"selected_answer" binding:"omitempty,max=10"`
	TextAnswer     *string   `json:"text_answer" binding:"omitempty,max=10000"`
}

// SuspendSessionRequest carries the suspension reason.
type SuspendSessionRequest struct {
	Reason string `json:"reason" binding:"required,min=3,max=500"`
}

// ReinstateSessionRequest optionally documents why the session returns.
type ReinstateSessionRequest struct {
	Reason *string `json:"reason" binding:"omitempty,max=500"`
}

// VerifyIdentityRequest carries the live selfie for identity matching.
type VerifyIdentityRequest struct {
	SelfieBase64 string `json:"selfie_base64" binding:"required"`
}

// IdentityVerificationResult is returned by the verify-identity operation.
type IdentityVerificationResult struct {
	Match      bool    `json:"match"`
	Confidence float64 `json:"confidence"`
}

// GradeAnswerRequest awards marks for a short-answer question after submission.
type GradeAnswerRequest struct {
	QuestionID   uuid.UUID `json:"question_id" binding:"required"`
	MarksAwarded float64   `json:"marks_awarded" binding:"min=0"`
	Comment      *string   `json:"comment" binding:"omitempty,max=1000"`
}
