package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/repository"
	"github.com/invigilo/invigilo-backend/internal/service"
	"github.com/rs/zerolog"
)

const (
	statusInterval    = time.Minute
	extensionInterval = 30 * time.Second
)

// The worker's view of its collaborators, narrowed to what the sweeps use.
type examTransitioner interface {
	MarkOngoing(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	MarkCompleted(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

type sessionSweepSource interface {
	ListOpenByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamSession, error)
	ListExpiredExtensions(ctx context.Context, now time.Time) ([]model.ExamSession, error)
}

type absenceMarker interface {
	MarkAbsentForExam(ctx context.Context, examID uuid.UUID) (int64, error)
}

type sessionSubmitter interface {
	SubmitWithRetry(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, error)
}

// ExamStatusWorker advances exam statuses on schedule and force-submits the
// sessions an exam leaves behind when its window closes.
type ExamStatusWorker struct {
	examRepo       examTransitioner
	sessionRepo    sessionSweepSource
	enrollmentRepo absenceMarker
	sessions       sessionSubmitter
	log            zerolog.Logger
}

// NewExamStatusWorker creates a new ExamStatusWorker.
func NewExamStatusWorker(
	examRepo *repository.ExamRepository,
	sessionRepo *repository.ExamSessionRepository,
	enrollmentRepo *repository.EnrollmentRepository,
	sessions *service.ExamSessionService,
	log zerolog.Logger,
) *ExamStatusWorker {
	return &ExamStatusWorker{
		examRepo:       examRepo,
		sessionRepo:    sessionRepo,
		enrollmentRepo: enrollmentRepo,
		sessions:       sessions,
		log:            log.With().Str("component", "exam_status_worker").Logger(),
	}
}

func (w *ExamStatusWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ExamStatusWorker started")

	statusTicker := time.NewTicker(statusInterval)
	extensionTicker := time.NewTicker(extensionInterval)
	defer statusTicker.Stop()
	defer extensionTicker.Stop()

	// Catch up immediately on boot; the process may have been down across
	// a transition boundary.
	w.transition(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-statusTicker.C:
			w.transition(ctx)
		case <-extensionTicker.C:
			w.sweepExpiredExtensions(ctx)
		}
	}
}

// transition moves PUBLISHED exams to ONGOING and ONGOING exams to COMPLETED,
// then settles everything a completed exam leaves open.
func (w *ExamStatusWorker) transition(ctx context.Context) {
	now := time.Now()

	started, err := w.examRepo.MarkOngoing(ctx, now)
	if err != nil {
		w.log.Error().Err(err).Msg("Mark ongoing failed")
	} else if len(started) > 0 {
		w.log.Info().Int("count", len(started)).Msg("Exams moved to ONGOING")
	}

	completed, err := w.examRepo.MarkCompleted(ctx, now)
	if err != nil {
		w.log.Error().Err(err).Msg("Mark completed failed")
		return
	}
	for _, examID := range completed {
		w.settleCompletedExam(ctx, examID, now)
	}
}

// settleCompletedExam marks no-show enrollments absent and submits every open
// session whose deadline has truly passed. Reinstated sessions keep running
// until their extended deadline.
func (w *ExamStatusWorker) settleCompletedExam(ctx context.Context, examID uuid.UUID, now time.Time) {
	absent, err := w.enrollmentRepo.MarkAbsentForExam(ctx, examID)
	if err != nil {
		w.log.Error().Err(err).Str("exam_id", examID.String()).Msg("Mark absent failed")
	} else if absent > 0 {
		w.log.Info().Int64("count", absent).Str("exam_id", examID.String()).Msg("No-show enrollments marked absent")
	}

	open, err := w.sessionRepo.ListOpenByExam(ctx, examID)
	if err != nil {
		w.log.Error().Err(err).Str("exam_id", examID.String()).Msg("List open sessions failed")
		return
	}

	for _, session := range open {
		if session.IsSuspended {
			continue
		}
		if session.ExtendedEndAt != nil && session.ExtendedEndAt.After(now) {
			continue
		}
		w.forceSubmit(ctx, session.ID)
	}

	w.log.Info().Str("exam_id", examID.String()).Int("open_sessions", len(open)).Msg("Exam completed")
}

// sweepExpiredExtensions submits reinstated sessions whose extended deadline
// has lapsed between status ticks.
func (w *ExamStatusWorker) sweepExpiredExtensions(ctx context.Context) {
	expired, err := w.sessionRepo.ListExpiredExtensions(ctx, time.Now())
	if err != nil {
		w.log.Error().Err(err).Msg("List expired extensions failed")
		return
	}
	for _, session := range expired {
		// The query already filters suspended rows; keep the guard so a
		// session suspended between the query and the submit is skipped too.
		if session.IsSuspended {
			continue
		}
		w.forceSubmit(ctx, session.ID)
	}
}

func (w *ExamStatusWorker) forceSubmit(ctx context.Context, sessionID uuid.UUID) {
	if _, err := w.sessions.SubmitWithRetry(ctx, sessionID); err != nil {
		w.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("Force submit failed")
		return
	}
	w.log.Info().Str("session_id", sessionID.String()).Msg("Session auto-submitted at deadline")
}
