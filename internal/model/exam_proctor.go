package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamProctor assigns a proctor to an exam. Unique per (exam, proctor); the
// relation backs every assigned-proctor authorisation decision.
type ExamProctor struct {
	ID         uuid.UUID `json:"id"`
	ExamID     uuid.UUID `json:"exam_id"`
	ProctorID  uuid.UUID `json:"proctor_id"`
	AssignedAt time.Time `json:"assigned_at"`
}

// ProctorWithUser is the admin listing projection.
type ProctorWithUser struct {
	ExamProctor
	ProctorName  string `json:"proctor_name"`
	ProctorEmail string `json:"proctor_email"`
}

// AssignProctorRequest assigns one proctor to an exam.
type AssignProctorRequest struct {
	ProctorID uuid.UUID `json:"proctor_id" binding:"required"`
}
