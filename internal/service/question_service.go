package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Question content errors.
var (
	ErrInvalidMCQ        = errors.New("MCQ requires at least two options and a correct answer matching an option key")
	ErrUnexpectedOptions = errors.New("short-answer questions carry no options or correct answer")
	ErrQuestionNotInExam = errors.New("question does not belong to this exam")
)

// shuffleGrace keeps a cached question order alive past the exam duration so a
// reinstated session still sees the same order.
const shuffleGrace = 30 * time.Minute

// QuestionService manages exam questions and their delivery to students.
type QuestionService struct {
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *QuestionService {
	return &QuestionService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "question_service").Logger(),
	}
}

// validateContent enforces the per-type shape of a question.
func validateContent(qType model.QuestionType, options []model.QuestionOption, correctAnswer *string) error {
	switch qType {
	case model.QuestionTypeMCQ:
		if len(options) < 2 || correctAnswer == nil {
			return ErrInvalidMCQ
		}
		seen := make(map[string]struct{}, len(options))
		found := false
		for _, opt := range options {
			if opt.Key == "" {
				return ErrInvalidMCQ
			}
			if _, dup := seen[opt.Key]; dup {
				return ErrInvalidMCQ
			}
			seen[opt.Key] = struct{}{}
			if opt.Key == *correctAnswer {
				found = true
			}
		}
		if !found {
			return ErrInvalidMCQ
		}
	case model.QuestionTypeShortAnswer:
		if len(options) > 0 || correctAnswer != nil {
			return ErrUnexpectedOptions
		}
	}
	return nil
}

func (s *QuestionService) draftExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, ErrExamNotDraft
	}
	return exam, nil
}

// Add appends a question to a DRAFT exam.
func (s *QuestionService) Add(ctx context.Context, examID uuid.UUID, req *model.AddQuestionRequest) (*model.Question, error) {
	if _, err := s.draftExam(ctx, examID); err != nil {
		return nil, err
	}

	qType := model.QuestionType(req.Type)
	if err := validateContent(qType, req.Options, req.CorrectAnswer); err != nil {
		return nil, err
	}

	q := &model.Question{
		ExamID:        examID,
		Type:          qType,
		Text:          req.Text,
		Options:       req.Options,
		CorrectAnswer: req.CorrectAnswer,
		Marks:         req.Marks,
		NegativeMarks: req.NegativeMarks,
	}
	var orderIndex *int
	if req.OrderIndex > 0 {
		orderIndex = &req.OrderIndex
	}
	if err := s.questionRepo.Create(ctx, q, orderIndex); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	return q, nil
}

// Update edits a question of a DRAFT exam.
func (s *QuestionService) Update(ctx context.Context, examID, questionID uuid.UUID, req *model.UpdateQuestionRequest) (*model.Question, error) {
	if _, err := s.draftExam(ctx, examID); err != nil {
		return nil, err
	}

	q, err := s.questionRepo.GetByIDInExam(ctx, questionID, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuestionNotInExam
		}
		return nil, err
	}

	if req.Text != nil {
		q.Text = *req.Text
	}
	if req.Options != nil {
		q.Options = req.Options
	}
	if req.CorrectAnswer != nil {
		q.CorrectAnswer = req.CorrectAnswer
	}
	if req.Marks != nil {
		q.Marks = *req.Marks
	}
	if req.NegativeMarks != nil {
		q.NegativeMarks = *req.NegativeMarks
	}
	if req.OrderIndex != nil {
		q.OrderIndex = *req.OrderIndex
	}

	if err := validateContent(q.Type, q.Options, q.CorrectAnswer); err != nil {
		return nil, err
	}
	if err := s.questionRepo.Update(ctx, q); err != nil {
		return nil, fmt.Errorf("update question: %w", err)
	}
	return q, nil
}

// Delete removes a question from a DRAFT exam.
func (s *QuestionService) Delete(ctx context.Context, examID, questionID uuid.UUID) error {
	if _, err := s.draftExam(ctx, examID); err != nil {
		return err
	}
	if _, err := s.questionRepo.GetByIDInExam(ctx, questionID, examID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrQuestionNotInExam
		}
		return err
	}
	return s.questionRepo.Delete(ctx, questionID)
}

// ListForAdmin retrieves an exam's questions with correct answers included.
func (s *QuestionService) ListForAdmin(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	if _, err := s.examRepo.GetByID(ctx, examID); err != nil {
		return nil, err
	}
	return s.questionRepo.ListByExam(ctx, examID)
}

// DeliverForStudent returns the exam's questions in the student's fixed order,
// stripped of correct answers. The order is decided once per (exam, student):
// the first request computes it and claims the cache slot with SET NX, losers
// of a concurrent race adopt the winner's order. Option order, when shuffled,
// is per response on purpose.
func (s *QuestionService) DeliverForStudent(ctx context.Context, exam *model.Exam, userID uuid.UUID) ([]model.QuestionForStudent, error) {
	questions, err := s.questionRepo.ListByExam(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	order := make([]uuid.UUID, len(questions))
	for i, q := range questions {
		order[i] = q.ID
	}
	if exam.ShuffleQuestions {
		rand.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	key := config.CacheKey.ShuffledQuestionsKey(exam.ID, userID)
	ttl := time.Duration(exam.DurationMinutes)*time.Minute + shuffleGrace
	claimed, err := s.rdb.SetNX(ctx, key, joinIDs(order), ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("claim question order: %w", err)
	}
	if !claimed {
		stored, err := s.rdb.Get(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("read question order: %w", err)
		}
		order = parseIDs(stored)
	}

	byID := make(map[uuid.UUID]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	out := make([]model.QuestionForStudent, 0, len(questions))
	seen := make(map[uuid.UUID]struct{}, len(order))
	for _, id := range order {
		q, ok := byID[id]
		if !ok {
			continue // question removed since the order was cached
		}
		seen[id] = struct{}{}
		out = append(out, s.projectForStudent(q, exam.ShuffleOptions))
	}
	// Questions added after caching still reach the student, at the end.
	for _, q := range questions {
		if _, ok := seen[q.ID]; !ok {
			out = append(out, s.projectForStudent(q, exam.ShuffleOptions))
		}
	}
	return out, nil
}

func (s *QuestionService) projectForStudent(q model.Question, shuffleOptions bool) model.QuestionForStudent {
	p := q.ForStudent()
	if shuffleOptions && len(p.Options) > 1 {
		shuffled := make([]model.QuestionOption, len(p.Options))
		copy(shuffled, p.Options)
		rand.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		p.Options = shuffled
	}
	return p
}

func joinIDs(ids []uuid.UUID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}

func parseIDs(raw string) []uuid.UUID {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]uuid.UUID, 0, len(parts))
	for _, p := range parts {
		if id, err := uuid.Parse(p); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}
