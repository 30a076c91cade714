package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// Enrollment errors.
var (
	ErrAlreadyEnrolled    = errors.New("student is already enrolled in this exam")
	ErrNotAStudent        = errors.New("target user does not hold the STUDENT role")
	ErrEnrollmentOngoing  = errors.New("enrollment cannot be removed while the attempt is running")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
)

// EnrollmentService manages exam rosters. Enrollment is admin-only; students
// never self-enroll.
type EnrollmentService struct {
	enrollmentRepo *repository.EnrollmentRepository
	examRepo       *repository.ExamRepository
	userRepo       *repository.UserRepository
	log            zerolog.Logger
}

// NewEnrollmentService creates a new EnrollmentService.
func NewEnrollmentService(
	enrollmentRepo *repository.EnrollmentRepository,
	examRepo *repository.ExamRepository,
	userRepo *repository.UserRepository,
	log zerolog.Logger,
) *EnrollmentService {
	return &EnrollmentService{
		enrollmentRepo: enrollmentRepo,
		examRepo:       examRepo,
		userRepo:       userRepo,
		log:            log.With().Str("component", "enrollment_service").Logger(),
	}
}

// Enroll registers one student for an exam that has not completed yet.
func (s *EnrollmentService) Enroll(ctx context.Context, examID, userID uuid.UUID) (*model.ExamEnrollment, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status == model.ExamStatusCompleted {
		return nil, ErrExamCompleted
	}

	target, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotAStudent
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if target.Role != model.RoleStudent || !target.IsActive {
		return nil, ErrNotAStudent
	}

	en := &model.ExamEnrollment{ExamID: examID, UserID: userID}
	if err := s.enrollmentRepo.Create(ctx, en); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, ErrAlreadyEnrolled
		}
		return nil, fmt.Errorf("create enrollment: %w", err)
	}
	return en, nil
}

// BulkEnroll registers many students with per-item isolation: one bad id never
// fails the batch.
func (s *EnrollmentService) BulkEnroll(ctx context.Context, examID uuid.UUID, userIDs []uuid.UUID) (*model.BulkEnrollResult, error) {
	if _, err := s.examRepo.GetByID(ctx, examID); err != nil {
		return nil, err
	}

	result := &model.BulkEnrollResult{ExamID: examID}
	for _, userID := range userIDs {
		if _, err := s.Enroll(ctx, examID, userID); err != nil {
			result.FailureCount++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", userID, err))
			continue
		}
		result.SuccessCount++
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Int("enrolled", result.SuccessCount).
		Int("failed", result.FailureCount).
		Msg("Bulk enrollment finished")
	return result, nil
}

// Unenroll removes an enrollment. Refused while the student's attempt is
// actually running.
func (s *EnrollmentService) Unenroll(ctx context.Context, enrollmentID uuid.UUID) error {
	en, err := s.enrollmentRepo.GetByID(ctx, enrollmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrEnrollmentNotFound
		}
		return err
	}

	if en.Status == model.EnrollmentStatusOngoing {
		exam, err := s.examRepo.GetByID(ctx, en.ExamID)
		if err != nil {
			return err
		}
		if exam.Status == model.ExamStatusOngoing {
			return ErrEnrollmentOngoing
		}
	}
	return s.enrollmentRepo.Delete(ctx, enrollmentID)
}

// ListByExam retrieves the exam roster, paginated.
func (s *EnrollmentService) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.EnrollmentWithUser, int64, error) {
	return s.enrollmentRepo.ListByExam(ctx, examID, page, perPage)
}

// ListMine retrieves the caller's enrollments with exam context.
func (s *EnrollmentService) ListMine(ctx context.Context, userID uuid.UUID) ([]model.EnrollmentWithExam, error) {
	return s.enrollmentRepo.ListByUser(ctx, userID)
}
