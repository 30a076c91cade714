package model

import (
	"time"

	"github.com/google/uuid"
)

// QuestionType enumerates supported question kinds.
type QuestionType string

const (
	QuestionTypeMCQ         QuestionType = "MCQ"
	QuestionTypeShortAnswer QuestionType = "SHORT_ANSWER"
)

// QuestionOption is one selectable choice of an MCQ.
type QuestionOption struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Question belongs to one exam. MCQ questions carry an ordered option set and
// exactly one correct answer key. Mutations require the parent exam in DRAFT.
type Question struct {
	ID            uuid.UUID        `json:"id"`
	ExamID        uuid.UUID        `json:"exam_id"`
	Type          QuestionType     `json:"type"`
	Text          string           `json:"text"`
	Options       []QuestionOption `json:"options,omitempty"`
	CorrectAnswer *string          `json:"correct_answer,omitempty"`
	Marks         float64          `json:"marks"`
	NegativeMarks float64          `json:"negative_marks"`
	OrderIndex    int              `json:"order_index"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// QuestionForStudent is a question stripped of its correct answer. Option
// order is shuffled per response when the exam enables it.
type QuestionForStudent struct {
	ID            uuid.UUID        `json:"id"`
	Type          QuestionType     `json:"type"`
	Text          string           `json:"text"`
	Options       []QuestionOption `json:"options,omitempty"`
	Marks         float64          `json:"marks"`
	NegativeMarks float64          `json:"negative_marks"`
	OrderIndex    int              `json:"order_index"`
}

// ForStudent projects the question for exam delivery.
func (q *Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{
		ID:            q.ID,
		Type:          q.Type,
		Text:          q.Text,
		Options:       q.Options,
		Marks:         q.Marks,
		NegativeMarks: q.NegativeMarks,
		OrderIndex:    q.OrderIndex,
	}
}

// AddQuestionRequest is the payload for adding a question to a DRAFT exam.
type AddQuestionRequest struct {
	Type          string           `json:"type" binding:"required,oneof=MCQ SHORT_ANSWER"`
	Text          string           `json:"text" binding:"required,min=1,max=4000"`
	Options       []QuestionOption `json:"options" binding:"omitempty,max=10,dive"`
	CorrectAnswer *string          `json:"correct_answer" binding:"omitempty,max=10"`
	Marks         float64          `json:"marks" binding:"required,gt=0"`
	NegativeMarks float64          `json:"negative_marks" binding:"min=0"`
	OrderIndex    int              `json:"order_index" binding:"min=0"`
}

// UpdateQuestionRequest is the payload for editing a question of a DRAFT exam.
type UpdateQuestionRequest struct {
	Text          *string          `json:"text" binding:"omitempty,min=1,max=4000"`
	Options       []QuestionOption `json:"options" binding:"omitempty,max=10,dive"`
	CorrectAnswer *string          `json:"correct_answer" binding:"omitempty,max=10"`
	Marks         *float64         `json:"marks" binding:"omitempty,gt=0"`
	NegativeMarks *float64         `json:"negative_marks" binding:"omitempty,min=0"`
	OrderIndex    *int             `json:"order_index" binding:"omitempty,min=0"`
}
