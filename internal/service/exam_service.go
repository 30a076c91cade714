package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// marksEpsilon is the tolerance when comparing the question-mark sum with the
// exam total at publish time.
const marksEpsilon = 0.01

// Exam lifecycle errors.
var (
	ErrExamNotDraft   = errors.New("exam is not in DRAFT status")
	ErrExamCompleted  = errors.New("exam is already completed")
	ErrNoQuestions    = errors.New("exam has no questions")
	ErrMarksMismatch  = errors.New("question marks do not sum to the exam total")
	ErrStartPassed    = errors.New("exam start time has already passed")
	ErrInvalidWindow  = errors.New("exam end time must follow its start time")
	ErrNotAProctor    = errors.New("target user does not hold the PROCTOR role")
	ErrProctorOverlap = errors.New("proctor already covers an overlapping exam window")
)

// ExamService handles exam administration and publication.
type ExamService struct {
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	proctorRepo  *repository.ExamProctorRepository
	userRepo     *repository.UserRepository
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	proctorRepo *repository.ExamProctorRepository,
	userRepo *repository.UserRepository,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		proctorRepo:  proctorRepo,
		userRepo:     userRepo,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// Create stores a new exam in DRAFT.
func (s *ExamService) Create(ctx context.Context, req *model.CreateExamRequest, createdBy uuid.UUID) (*model.Exam, error) {
	exam := &model.Exam{
		Title:            req.Title,
		Subject:          req.Subject,
		Description:      req.Description,
		StartTime:        req.StartTime.UTC(),
		EndTime:          req.EndTime.UTC(),
		DurationMinutes:  req.DurationMinutes,
		TotalMarks:       req.TotalMarks,
		PassingMarks:     req.PassingMarks,
		ShuffleQuestions: req.ShuffleQuestions,
		ShuffleOptions:   req.ShuffleOptions,
		AllowLateEntry:   req.AllowLateEntry,
		Status:           model.ExamStatusDraft,
		CreatedBy:        createdBy,
	}
	if exam.PassingMarks > exam.TotalMarks {
		return nil, ErrMarksMismatch
	}
	if err := s.examRepo.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}
	return exam, nil
}

// GetByID retrieves an exam. Soft-deleted exams behave as absent.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return s.examRepo.GetByID(ctx, id)
}

// Update edits an exam. Allowed only while DRAFT.
func (s *ExamService) Update(ctx context.Context, id uuid.UUID, req *model.UpdateExamRequest) (*model.Exam, error) {
	exam, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, ErrExamNotDraft
	}

	if req.Title != nil {
		exam.Title = *req.Title
	}
	if req.Subject != nil {
		exam.Subject = *req.Subject
	}
	if req.Description != nil {
		exam.Description = req.Description
	}
	if req.StartTime != nil {
		exam.StartTime = req.StartTime.UTC()
	}
	if req.EndTime != nil {
		exam.EndTime = req.EndTime.UTC()
	}
	if req.DurationMinutes != nil {
		exam.DurationMinutes = *req.DurationMinutes
	}
	if req.TotalMarks != nil {
		exam.TotalMarks = *req.TotalMarks
	}
	if req.PassingMarks != nil {
		exam.PassingMarks = *req.PassingMarks
	}
	if req.ShuffleQuestions != nil {
		exam.ShuffleQuestions = *req.ShuffleQuestions
	}
	if req.ShuffleOptions != nil {
		exam.ShuffleOptions = *req.ShuffleOptions
	}
	if req.AllowLateEntry != nil {
		exam.AllowLateEntry = *req.AllowLateEntry
	}

	if !exam.EndTime.After(exam.StartTime) {
		return nil, ErrInvalidWindow
	}
	if exam.PassingMarks > exam.TotalMarks {
		return nil, ErrMarksMismatch
	}

	if err := s.examRepo.Update(ctx, exam); err != nil {
		return nil, fmt.Errorf("update exam: %w", err)
	}
	return exam, nil
}

// Delete soft-deletes a DRAFT exam.
func (s *ExamService) Delete(ctx context.Context, id uuid.UUID) error {
	exam, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return s.examRepo.SoftDelete(ctx, id)
}

// List retrieves exams for administration, optionally filtered by status.
func (s *ExamService) List(ctx context.Context, status *model.ExamStatus, page, perPage int) ([]model.Exam, int64, error) {
	return s.examRepo.List(ctx, status, page, perPage)
}

// ListForStudent retrieves the published or ongoing exams the caller is
// enrolled in.
func (s *ExamService) ListForStudent(ctx context.Context, userID uuid.UUID) ([]model.Exam, error) {
	return s.examRepo.ListEnrolledActive(ctx, userID)
}

// Publish moves a DRAFT exam to PUBLISHED. Requires at least one question,
// question marks summing to the exam total within epsilon, and a start time
// still in the future.
func (s *ExamService) Publish(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, ErrExamNotDraft
	}
	if !exam.StartTime.After(time.Now()) {
		return nil, ErrStartPassed
	}

	count, err := s.questionRepo.CountByExam(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	if count == 0 {
		return nil, ErrNoQuestions
	}

	sum, err := s.questionRepo.SumMarksByExam(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("sum question marks: %w", err)
	}
	if math.Abs(sum-exam.TotalMarks) > marksEpsilon {
		return nil, fmt.Errorf("%w: questions total %.2f, exam expects %.2f", ErrMarksMismatch, sum, exam.TotalMarks)
	}

	if err := s.examRepo.UpdateStatus(ctx, id, model.ExamStatusPublished); err != nil {
		return nil, fmt.Errorf("publish exam: %w", err)
	}
	exam.Status = model.ExamStatusPublished

	s.log.Info().Str("exam_id", id.String()).Str("title", exam.Title).Msg("Exam published")
	return exam, nil
}

// AssignProctor attaches a proctor to an exam. The target must hold the
// PROCTOR role and must not already cover an exam with an overlapping window.
func (s *ExamService) AssignProctor(ctx context.Context, examID, proctorID uuid.UUID) (*model.ExamProctor, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status == model.ExamStatusCompleted {
		return nil, ErrExamCompleted
	}

	target, err := s.userRepo.GetByID(ctx, proctorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotAProctor
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if target.Role != model.RoleProctor || !target.IsActive {
		return nil, ErrNotAProctor
	}

	overlap, err := s.proctorRepo.HasOverlap(ctx, proctorID, examID, exam.StartTime, exam.EndTime)
	if err != nil {
		return nil, fmt.Errorf("check overlap: %w", err)
	}
	if overlap {
		return nil, ErrProctorOverlap
	}

	ep := &model.ExamProctor{ExamID: examID, ProctorID: proctorID}
	if err := s.proctorRepo.Assign(ctx, ep); err != nil {
		return nil, fmt.Errorf("assign proctor: %w", err)
	}
	return ep, nil
}

// UnassignProctor removes a proctor assignment.
func (s *ExamService) UnassignProctor(ctx context.Context, examID, proctorID uuid.UUID) error {
	return s.proctorRepo.Unassign(ctx, examID, proctorID)
}

// ListProctors retrieves the proctors assigned to an exam.
func (s *ExamService) ListProctors(ctx context.Context, examID uuid.UUID) ([]model.ProctorWithUser, error) {
	return s.proctorRepo.ListByExam(ctx, examID)
}
