package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/database"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Session lifecycle errors.
var (
	ErrNotEnrolled       = errors.New("caller is not enrolled in this exam")
	ErrExamNotActive     = errors.New("exam is not accepting sessions")
	ErrExamWindowClosed  = errors.New("exam window has closed")
	ErrLateEntry         = errors.New("exam has started and late entry is disabled")
	ErrSuspensionSticky  = errors.New("a suspended attempt cannot be restarted")
	ErrEnrollmentDone    = errors.New("enrollment is already completed")
	ErrSessionConflict   = errors.New("another active session exists")
	ErrSessionSubmitted  = errors.New("session is already submitted")
	ErrSessionSuspended  = errors.New("session is suspended")
	ErrNotSuspended      = errors.New("session is not suspended")
	ErrNotSubmitted      = errors.New("session has not been submitted")
	ErrNotShortAnswer    = errors.New("question is not a short-answer question")
	ErrMarksOutOfRange   = errors.New("awarded marks exceed the question's marks")
)

const (
	// presenceTTL is the rolling liveness window refreshed by heartbeats.
	presenceTTL = 30 * time.Minute
	// minReinstatePresence floors the presence TTL restored on reinstatement.
	minReinstatePresence = 5 * time.Minute
	// versionRetries bounds optimistic-concurrency retries in sweep paths.
	versionRetries = 2
)

// ExamSessionService is the session state machine: start, heartbeat, answers,
// submit with scoring, suspension, reinstatement, identity verification and
// manual grading.
type ExamSessionService struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	cfg  *config.Config

	sessionRepo    *repository.ExamSessionRepository
	enrollmentRepo *repository.EnrollmentRepository
	examRepo       *repository.ExamRepository
	questionRepo   *repository.QuestionRepository
	answerRepo     *repository.AnswerRepository
	summaryRepo    *repository.ViolationSummaryRepository
	eventRepo      *repository.ProctoringEventRepository

	inference *InferenceClient
	notifier  *NotificationService
	log       zerolog.Logger
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(
	pool *pgxpool.Pool,
	rdb *redis.Client,
	cfg *config.Config,
	sessionRepo *repository.ExamSessionRepository,
	enrollmentRepo *repository.EnrollmentRepository,
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	answerRepo *repository.AnswerRepository,
	summaryRepo *repository.ViolationSummaryRepository,
	eventRepo *repository.ProctoringEventRepository,
	inference *InferenceClient,
	notifier *NotificationService,
	log zerolog.Logger,
) *ExamSessionService {
	return &ExamSessionService{
		pool:           pool,
		rdb:            rdb,
		cfg:            cfg,
		sessionRepo:    sessionRepo,
		enrollmentRepo: enrollmentRepo,
		examRepo:       examRepo,
		questionRepo:   questionRepo,
		answerRepo:     answerRepo,
		summaryRepo:    summaryRepo,
		eventRepo:      eventRepo,
		inference:      inference,
		notifier:       notifier,
		log:            log.With().Str("component", "session_engine").Logger(),
	}
}

// GetByID retrieves a session. Authorisation happens at the handler.
func (s *ExamSessionService) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	return s.sessionRepo.GetByID(ctx, id)
}

// ListAnswers retrieves the session's saved answers.
func (s *ExamSessionService) ListAnswers(ctx context.Context, sessionID uuid.UUID) ([]model.Answer, error) {
	return s.answerRepo.ListBySession(ctx, sessionID)
}

// Start opens (or resumes) the caller's session for an exam.
func (s *ExamSessionService) Start(ctx context.Context, examID, userID uuid.UUID, ip, userAgent *string) (*model.ExamSession, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !exam.IsActive() {
		return nil, ErrExamNotActive
	}
	now := time.Now()
	if !now.Before(exam.EndTime) {
		return nil, ErrExamWindowClosed
	}

	enrollment, err := s.enrollmentRepo.GetByExamAndUser(ctx, examID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotEnrolled
		}
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	switch enrollment.Status {
	case model.EnrollmentStatusFlagged:
		return nil, ErrSuspensionSticky
	case model.EnrollmentStatusCompleted:
		return nil, ErrEnrollmentDone
	}

	// Resume an existing open attempt instead of conflicting with it.
	if open, err := s.sessionRepo.GetOpenByEnrollment(ctx, enrollment.ID); err == nil {
		if open.IsSuspended {
			return nil, ErrSuspensionSticky
		}
		_ = s.sessionRepo.UpdateHeartbeat(ctx, open.ID, now)
		s.refreshPresence(ctx, open.ID, presenceTTL)
		return open, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get open session: %w", err)
	}

	if !exam.AllowLateEntry && now.After(exam.StartTime) && exam.Status == model.ExamStatusOngoing {
		return nil, ErrLateEntry
	}

	conflict, err := s.sessionRepo.HasOtherActiveSession(ctx, userID, examID)
	if err != nil {
		return nil, fmt.Errorf("check active sessions: %w", err)
	}
	if conflict {
		return nil, ErrSessionConflict
	}

	session := &model.ExamSession{
		EnrollmentID: enrollment.ID,
		ExamID:       examID,
		UserID:       userID,
		IPAddress:    ip,
		UserAgent:    userAgent,
	}
	err = database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.sessionRepo.WithTx(tx).Create(ctx, session); err != nil {
			if repository.IsUniqueViolation(err) {
				return ErrSessionConflict
			}
			return fmt.Errorf("create session: %w", err)
		}
		if err := s.enrollmentRepo.WithTx(tx).UpdateStatus(ctx, enrollment.ID, model.EnrollmentStatusOngoing); err != nil {
			return fmt.Errorf("mark enrollment ongoing: %w", err)
		}
		return s.summaryRepo.WithTx(tx).EnsureRow(ctx, session.ID)
	})
	if err != nil {
		return nil, err
	}

	s.refreshPresence(ctx, session.ID, presenceTTL)
	s.log.Info().
		Str("session_id", session.ID.String()).
		Str("exam_id", examID.String()).
		Str("user_id", userID.String()).
		Msg("Session started")
	return session, nil
}

// Heartbeat touches the session's liveness marker.
func (s *ExamSessionService) Heartbeat(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.sessionRepo.UpdateHeartbeat(ctx, sessionID, time.Now()); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSessionSubmitted
		}
		return fmt.Errorf("update heartbeat: %w", err)
	}
	s.refreshPresence(ctx, sessionID, presenceTTL)
	return nil
}

// SaveAnswer upserts one answer on an open, unsuspended session.
func (s *ExamSessionService) SaveAnswer(ctx context.Context, session *model.ExamSession, req *model.SaveAnswerRequest) (*model.Answer, error) {
	if !session.IsOpen() {
		return nil, ErrSessionSubmitted
	}
	if session.IsSuspended {
		return nil, ErrSessionSuspended
	}

	if _, err := s.questionRepo.GetByIDInExam(ctx, req.QuestionID, session.ExamID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuestionNotInExam
		}
		return nil, fmt.Errorf("get question: %w", err)
	}

	answer := &model.Answer{
		SessionID:      session.ID,
		QuestionID:     req.QuestionID,
		SelectedAnswer: req.SelectedAnswer,
		TextAnswer:     req.TextAnswer,
	}
	if err := s.answerRepo.Upsert(ctx, answer); err != nil {
		return nil, fmt.Errorf("upsert answer: %w", err)
	}
	return answer, nil
}

// Submit closes the session and scores it. Answers and the session persist in
// the same unit of work; runtime keys and notifications follow the commit.
func (s *ExamSessionService) Submit(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsOpen() {
		return nil, ErrSessionSubmitted
	}
	if session.IsSuspended {
		return nil, ErrSessionSuspended
	}

	exam, err := s.examRepo.GetByID(ctx, session.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	answers, err := s.answerRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	questionIDs := make([]uuid.UUID, len(answers))
	for i, a := range answers {
		questionIDs[i] = a.QuestionID
	}
	questions, err := s.questionRepo.FindByIDs(ctx, questionIDs)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}

	score, gradedIDs, marks := ComputeScore(answers, questions)
	isPassed := score >= exam.PassingMarks
	now := time.Now()

	err = database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := s.answerRepo.WithTx(tx).BulkUpdateMarks(ctx, sessionID, gradedIDs, marks); err != nil {
			return fmt.Errorf("persist marks: %w", err)
		}
		session.SubmittedAt = &now
		session.Score = &score
		session.IsPassed = &isPassed
		if err := s.sessionRepo.WithTx(tx).Update(ctx, session); err != nil {
			return err
		}
		return s.enrollmentRepo.WithTx(tx).UpdateStatus(ctx, session.EnrollmentID, model.EnrollmentStatusCompleted)
	})
	if err != nil {
		return nil, err
	}

	s.clearRuntimeKeys(ctx, sessionID)
	s.notifier.NotifySessionUpdate(ctx, session, "SUBMITTED")
	// Result email dispatch is out of scope; the hand-off is logged instead.
	s.log.Info().
		Str("session_id", sessionID.String()).
		Float64("score", score).
		Bool("passed", isPassed).
		Msg("Session submitted, result notification handed off")
	return session, nil
}

// SubmitWithRetry reloads and resubmits on optimistic-concurrency conflicts.
// Sweep workers use it; interactive callers surface the conflict instead.
func (s *ExamSessionService) SubmitWithRetry(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, error) {
	var (
		session *model.ExamSession
		err     error
	)
	for attempt := 0; attempt <= versionRetries; attempt++ {
		session, err = s.Submit(ctx, sessionID)
		if !errors.Is(err, repository.ErrConcurrentModification) {
			return session, err
		}
	}
	return nil, err
}

// Suspend halts a session and flags its enrollment. Idempotent, and committed
// in an independent transaction so a later failure in the caller's work cannot
// roll back a suspension clients were already told about.
func (s *ExamSessionService) Suspend(ctx context.Context, sessionID uuid.UUID, reason string) error {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.IsSuspended {
		return nil
	}
	if !session.IsOpen() {
		return ErrSessionSubmitted
	}

	now := time.Now()
	failed := false
	err = database.WithNewTx(ctx, s.pool, func(tx pgx.Tx) error {
		session.IsSuspended = true
		session.SuspensionReason = &reason
		session.SuspendedAt = &now
		session.IsPassed = &failed
		if err := s.sessionRepo.WithTx(tx).Update(ctx, session); err != nil {
			return err
		}
		return s.enrollmentRepo.WithTx(tx).UpdateStatus(ctx, session.EnrollmentID, model.EnrollmentStatusFlagged)
	})
	if err != nil {
		return err
	}

	s.clearRuntimeKeys(ctx, sessionID)
	s.notifier.NotifySuspension(ctx, session, reason)
	s.log.Warn().
		Str("session_id", sessionID.String()).
		Str("reason", reason).
		Msg("Session suspended")
	return nil
}

// Reinstate returns a suspended session to the student with a deadline
// extension equal to the time lost under suspension.
func (s *ExamSessionService) Reinstate(ctx context.Context, sessionID uuid.UUID, reason *string) (*model.ExamSession, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsSuspended {
		return nil, ErrNotSuspended
	}
	if !session.IsOpen() {
		return nil, ErrSessionSubmitted
	}

	exam, err := s.examRepo.GetByID(ctx, session.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	now := time.Now()
	if !now.Before(exam.EndTime) {
		return nil, ErrExamWindowClosed
	}

	extendedEndAt := ExtendedDeadline(exam.EndTime, now, session.SuspendedAt, session.LastHeartbeatAt)
	err = database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		session.IsSuspended = false
		session.SuspensionReason = nil
		session.SuspendedAt = nil
		session.IsPassed = nil
		session.ExtendedEndAt = &extendedEndAt
		if err := s.sessionRepo.WithTx(tx).Update(ctx, session); err != nil {
			return err
		}
		return s.enrollmentRepo.WithTx(tx).UpdateStatus(ctx, session.EnrollmentID, model.EnrollmentStatusOngoing)
	})
	if err != nil {
		return nil, err
	}

	ttl := time.Until(extendedEndAt)
	if ttl < minReinstatePresence {
		ttl = minReinstatePresence
	}
	s.refreshPresence(ctx, sessionID, ttl)
	s.clearRiskKeys(ctx, sessionID)
	s.notifier.NotifySessionUpdate(ctx, session, "REINSTATED")

	evt := s.log.Info().
		Str("session_id", sessionID.String()).
		Time("extended_end_at", extendedEndAt)
	if reason != nil {
		evt = evt.Str("reason", *reason)
	}
	evt.Msg("Session reinstated")
	return session, nil
}

// VerifyIdentity matches the live selfie against the enrolled student. A
// mismatch is recorded as a CRITICAL system event and alerted to proctors.
func (s *ExamSessionService) VerifyIdentity(ctx context.Context, session *model.ExamSession, selfieBase64 string) (*model.IdentityVerificationResult, error) {
	if !session.IsOpen() {
		return nil, ErrSessionSubmitted
	}
	if session.IsSuspended {
		return nil, ErrSessionSuspended
	}

	match, confidence, err := s.inference.VerifyIdentity(ctx, session.UserID.String(), selfieBase64)
	if err != nil {
		return nil, err
	}

	if match {
		session.IdentityVerified = true
		if err := s.sessionRepo.Update(ctx, session); err != nil {
			return nil, err
		}
		return &model.IdentityVerificationResult{Match: true, Confidence: confidence}, nil
	}

	description := "live selfie did not match the enrolled student"
	err = database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		event := &model.ProctoringEvent{
			SessionID:   session.ID,
			EventType:   model.EventIdentityMismatch,
			Severity:    model.SeverityCritical,
			Confidence:  &confidence,
			Description: &description,
			Source:      model.SourceSystem,
		}
		if err := s.eventRepo.WithTx(tx).Create(ctx, event); err != nil {
			return fmt.Errorf("record mismatch event: %w", err)
		}
		return s.summaryRepo.WithTx(tx).IncrementCounter(ctx, session.ID, model.EventIdentityMismatch, 1.0)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.AlertProctors(ctx, session.ExamID, ProctorAlertPayload{
		SessionID:   session.ID,
		EventType:   string(model.EventIdentityMismatch),
		Severity:    string(model.SeverityCritical),
		Confidence:  &confidence,
		Description: &description,
		OccurredAt:  time.Now(),
	})
	return &model.IdentityVerificationResult{Match: false, Confidence: confidence}, nil
}

// GradeShortAnswer awards marks for one short-answer question after submission
// and recomputes the session score from all stored marks.
func (s *ExamSessionService) GradeShortAnswer(ctx context.Context, sessionID uuid.UUID, req *model.GradeAnswerRequest) (*model.ExamSession, error) {
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsOpen() {
		return nil, ErrNotSubmitted
	}

	question, err := s.questionRepo.GetByIDInExam(ctx, req.QuestionID, session.ExamID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuestionNotInExam
		}
		return nil, fmt.Errorf("get question: %w", err)
	}
	if question.Type != model.QuestionTypeShortAnswer {
		return nil, ErrNotShortAnswer
	}
	if req.MarksAwarded < 0 || req.MarksAwarded > question.Marks {
		return nil, ErrMarksOutOfRange
	}

	exam, err := s.examRepo.GetByID(ctx, session.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}

	err = database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		answerRepo := s.answerRepo.WithTx(tx)
		if err := answerRepo.UpdateMarks(ctx, sessionID, req.QuestionID, req.MarksAwarded, req.Comment); err != nil {
			return fmt.Errorf("update marks: %w", err)
		}

		answers, err := answerRepo.ListBySession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("list answers: %w", err)
		}
		score := RecomputeScore(answers)
		isPassed := score >= exam.PassingMarks
		session.Score = &score
		session.IsPassed = &isPassed
		return s.sessionRepo.WithTx(tx).Update(ctx, session)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.NotifySessionUpdate(ctx, session, "REGRADED")
	return session, nil
}

func (s *ExamSessionService) refreshPresence(ctx context.Context, sessionID uuid.UUID, ttl time.Duration) {
	if err := s.rdb.Set(ctx, config.CacheKey.SessionPresenceKey(sessionID), time.Now().UnixMilli(), ttl).Err(); err != nil {
		s.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("Presence refresh failed")
	}
}

func (s *ExamSessionService) clearRiskKeys(ctx context.Context, sessionID uuid.UUID) {
	if err := s.rdb.Del(ctx,
		config.CacheKey.RiskFramesKey(sessionID),
		config.CacheKey.RiskCriticalKey(sessionID),
	).Err(); err != nil {
		s.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("Risk key cleanup failed")
	}
}

func (s *ExamSessionService) clearRuntimeKeys(ctx context.Context, sessionID uuid.UUID) {
	if err := s.rdb.Del(ctx,
		config.CacheKey.SessionPresenceKey(sessionID),
		config.CacheKey.RiskFramesKey(sessionID),
		config.CacheKey.RiskCriticalKey(sessionID),
	).Err(); err != nil {
		s.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("Runtime key cleanup failed")
	}
}

// ComputeScore grades all answers against their questions in memory and
// returns the rounded total plus the per-question marks to persist. MCQ awards
// marks on a correct selection and subtracts negative marks otherwise; an
// answer without a selection earns zero, as do short answers at submit time.
func ComputeScore(answers []model.Answer, questions map[uuid.UUID]model.Question) (float64, []uuid.UUID, []float64) {
	total := 0.0
	ids := make([]uuid.UUID, 0, len(answers))
	marks := make([]float64, 0, len(answers))

	for _, a := range answers {
		q, ok := questions[a.QuestionID]
		if !ok {
			continue
		}
		awarded := 0.0
		if q.Type == model.QuestionTypeMCQ && a.SelectedAnswer != nil && q.CorrectAnswer != nil {
			if *a.SelectedAnswer == *q.CorrectAnswer {
				awarded = q.Marks
			} else {
				awarded = -q.NegativeMarks
			}
		}
		total += awarded
		ids = append(ids, a.QuestionID)
		marks = append(marks, awarded)
	}

	return RoundHalfUp2(math.Max(0, total)), ids, marks
}

// RecomputeScore sums the stored per-answer marks, floors at zero and rounds.
// Used after manual short-answer grading.
func RecomputeScore(answers []model.Answer) float64 {
	total := 0.0
	for _, a := range answers {
		if a.MarksAwarded != nil {
			total += *a.MarksAwarded
		}
	}
	return RoundHalfUp2(math.Max(0, total))
}

// RoundHalfUp2 rounds to two decimal places with halves going up.
func RoundHalfUp2(x float64) float64 {
	return math.Round(x*100) / 100
}

// ExtendedDeadline computes the reinstated deadline: the exam end pushed out by
// exactly the time lost under suspension. Falls back to the last heartbeat when
// the suspension instant was never recorded.
func ExtendedDeadline(examEnd, now time.Time, suspendedAt *time.Time, lastHeartbeatAt time.Time) time.Time {
	since := lastHeartbeatAt
	if suspendedAt != nil {
		since = *suspendedAt
	}
	suspendedFor := now.Sub(since)
	if suspendedFor < 0 {
		suspendedFor = 0
	}
	return examEnd.Add(suspendedFor)
}
