package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func mcq(marks, negative float64, correct string) model.Question {
	return model.Question{
		ID:            uuid.New(),
		Type:          model.QuestionTypeMCQ,
		CorrectAnswer: strPtr(correct),
		Marks:         marks,
		NegativeMarks: negative,
	}
}

func TestSaveAnswerGuards(t *testing.T) {
	ctx := context.Background()
	svc := &ExamSessionService{}
	req := &model.SaveAnswerRequest{QuestionID: uuid.New(), SelectedAnswer: strPtr("B")}

	t.Run("submitted session rejects answers", func(t *testing.T) {
		now := time.Now()
		session := &model.ExamSession{ID: uuid.New(), SubmittedAt: &now}
		_, err := svc.SaveAnswer(ctx, session, req)
		assert.ErrorIs(t, err, ErrSessionSubmitted)
	})

	t.Run("suspended session rejects answers", func(t *testing.T) {
		session := &model.ExamSession{ID: uuid.New(), IsSuspended: true}
		_, err := svc.SaveAnswer(ctx, session, req)
		assert.ErrorIs(t, err, ErrSessionSuspended)
	})
}

func TestComputeScore(t *testing.T) {
	q1 := mcq(5, 1, "B")
	q2 := mcq(5, 1, "C")
	q3 := model.Question{ID: uuid.New(), Type: model.QuestionTypeShortAnswer, Marks: 10}
	questions := map[uuid.UUID]model.Question{q1.ID: q1, q2.ID: q2, q3.ID: q3}

	t.Run("correct and incorrect selections", func(t *testing.T) {
		answers := []model.Answer{
			{QuestionID: q1.ID, SelectedAnswer: strPtr("B")},
			{QuestionID: q2.ID, SelectedAnswer: strPtr("A")},
		}
		total, ids, marks := ComputeScore(answers, questions)
		assert.Equal(t, 4.0, total) // 5 - 1
		require.Len(t, ids, 2)
		assert.Equal(t, []float64{5, -1}, marks)
	})

	t.Run("short answers earn zero at submit time", func(t *testing.T) {
		answers := []model.Answer{
			{QuestionID: q3.ID, TextAnswer: strPtr("division by zero has no value")},
		}
		total, _, marks := ComputeScore(answers, questions)
		assert.Equal(t, 0.0, total)
		assert.Equal(t, []float64{0}, marks)
	})

	t.Run("unselected MCQ earns zero, not negative", func(t *testing.T) {
		answers := []model.Answer{{QuestionID: q1.ID}}
		total, _, marks := ComputeScore(answers, questions)
		assert.Equal(t, 0.0, total)
		assert.Equal(t, []float64{0}, marks)
	})

	t.Run("total floors at zero", func(t *testing.T) {
		answers := []model.Answer{
			{QuestionID: q1.ID, SelectedAnswer: strPtr("A")},
			{QuestionID: q2.ID, SelectedAnswer: strPtr("A")},
		}
		total, _, _ := ComputeScore(answers, questions)
		assert.Equal(t, 0.0, total)
	})

	t.Run("answer to unknown question is skipped", func(t *testing.T) {
		answers := []model.Answer{
			{QuestionID: uuid.New(), SelectedAnswer: strPtr("B")},
			{QuestionID: q1.ID, SelectedAnswer: strPtr("B")},
		}
		total, ids, _ := ComputeScore(answers, questions)
		assert.Equal(t, 5.0, total)
		assert.Len(t, ids, 1)
	})
}

func TestRecomputeScore(t *testing.T) {
	answers := []model.Answer{
		{MarksAwarded: floatPtr(5)},
		{MarksAwarded: floatPtr(7.555)},
		{MarksAwarded: nil},
	}
	assert.Equal(t, 12.56, RecomputeScore(answers))

	negative := []model.Answer{{MarksAwarded: floatPtr(-3)}}
	assert.Equal(t, 0.0, RecomputeScore(negative))
}

func TestRoundHalfUp2(t *testing.T) {
	assert.Equal(t, 1.23, RoundHalfUp2(1.234))
	assert.Equal(t, 1.24, RoundHalfUp2(1.235))
	assert.Equal(t, 0.0, RoundHalfUp2(0))
	assert.Equal(t, 10.0, RoundHalfUp2(10))
}

func TestExtendedDeadline(t *testing.T) {
	examEnd := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := examEnd.Add(-10 * time.Minute)

	t.Run("extends by time under suspension", func(t *testing.T) {
		suspendedAt := now.Add(-20 * time.Minute)
		got := ExtendedDeadline(examEnd, now, &suspendedAt, now.Add(-time.Hour))
		assert.Equal(t, examEnd.Add(20*time.Minute), got)
	})

	t.Run("falls back to last heartbeat", func(t *testing.T) {
		heartbeat := now.Add(-5 * time.Minute)
		got := ExtendedDeadline(examEnd, now, nil, heartbeat)
		assert.Equal(t, examEnd.Add(5*time.Minute), got)
	})

	t.Run("clamps a future suspension instant to zero", func(t *testing.T) {
		future := now.Add(time.Minute)
		got := ExtendedDeadline(examEnd, now, &future, now)
		assert.Equal(t, examEnd, got)
	})
}
