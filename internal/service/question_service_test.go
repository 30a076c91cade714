package service

import (
	"testing"

	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestValidateContent(t *testing.T) {
	options := []model.QuestionOption{
		{Key: "A", Text: "first"},
		{Key: "B", Text: "second"},
	}

	t.Run("valid MCQ", func(t *testing.T) {
		err := validateContent(model.QuestionTypeMCQ, options, strPtr("A"))
		assert.NoError(t, err)
	})

	t.Run("MCQ needs at least two options", func(t *testing.T) {
		err := validateContent(model.QuestionTypeMCQ, options[:1], strPtr("A"))
		assert.ErrorIs(t, err, ErrInvalidMCQ)
	})

	t.Run("MCQ needs a correct answer", func(t *testing.T) {
		err := validateContent(model.QuestionTypeMCQ, options, nil)
		assert.ErrorIs(t, err, ErrInvalidMCQ)
	})

	t.Run("correct answer must be an option key", func(t *testing.T) {
		err := validateContent(model.QuestionTypeMCQ, options, strPtr("Z"))
		assert.ErrorIs(t, err, ErrInvalidMCQ)
	})

	t.Run("duplicate option keys are rejected", func(t *testing.T) {
		dup := []model.QuestionOption{
			{Key: "A", Text: "first"},
			{Key: "A", Text: "second"},
		}
		err := validateContent(model.QuestionTypeMCQ, dup, strPtr("A"))
		assert.ErrorIs(t, err, ErrInvalidMCQ)
	})

	t.Run("empty option key is rejected", func(t *testing.T) {
		bad := []model.QuestionOption{
			{Key: "", Text: "first"},
			{Key: "B", Text: "second"},
		}
		err := validateContent(model.QuestionTypeMCQ, bad, strPtr("B"))
		assert.ErrorIs(t, err, ErrInvalidMCQ)
	})

	t.Run("valid short answer", func(t *testing.T) {
		err := validateContent(model.QuestionTypeShortAnswer, nil, nil)
		assert.NoError(t, err)
	})

	t.Run("short answer takes no options", func(t *testing.T) {
		err := validateContent(model.QuestionTypeShortAnswer, options, nil)
		assert.ErrorIs(t, err, ErrUnexpectedOptions)
	})

	t.Run("short answer takes no correct answer", func(t *testing.T) {
		err := validateContent(model.QuestionTypeShortAnswer, nil, strPtr("A"))
		assert.ErrorIs(t, err, ErrUnexpectedOptions)
	})
}

func TestJoinAndParseIDs(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}

	raw := joinIDs(ids)
	assert.Equal(t, ids, parseIDs(raw))

	t.Run("empty input", func(t *testing.T) {
		assert.Equal(t, "", joinIDs(nil))
		assert.Nil(t, parseIDs(""))
	})

	t.Run("garbage segments are skipped", func(t *testing.T) {
		got := parseIDs(ids[0].String() + ",not-a-uuid," + ids[1].String())
		assert.Equal(t, []uuid.UUID{ids[0], ids[1]}, got)
	})
}
