package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeSweepSource struct {
	expired []model.ExamSession
	open    map[uuid.UUID][]model.ExamSession
}

func (f *fakeSweepSource) ListOpenByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamSession, error) {
	return f.open[examID], nil
}

func (f *fakeSweepSource) ListExpiredExtensions(ctx context.Context, now time.Time) ([]model.ExamSession, error) {
	return f.expired, nil
}

type fakeSubmitter struct {
	submitted []uuid.UUID
}

func (f *fakeSubmitter) SubmitWithRetry(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, error) {
	f.submitted = append(f.submitted, sessionID)
	return &model.ExamSession{ID: sessionID}, nil
}

type fakeAbsenceMarker struct {
	marked []uuid.UUID
}

func (f *fakeAbsenceMarker) MarkAbsentForExam(ctx context.Context, examID uuid.UUID) (int64, error) {
	f.marked = append(f.marked, examID)
	return 0, nil
}

// A session suspended after reinstatement must stay untouched past its
// extended deadline; only a proctor can release it again.
func TestSweepExpiredExtensionsSkipsSuspended(t *testing.T) {
	lapsed := uuid.New()
	suspended := uuid.New()

	sessions := &fakeSweepSource{expired: []model.ExamSession{
		{ID: lapsed},
		{ID: suspended, IsSuspended: true},
	}}
	submitter := &fakeSubmitter{}
	w := &ExamStatusWorker{
		sessionRepo: sessions,
		sessions:    submitter,
		log:         zerolog.Nop(),
	}

	w.sweepExpiredExtensions(context.Background())

	assert.Equal(t, []uuid.UUID{lapsed}, submitter.submitted)
}

func TestSettleCompletedExam(t *testing.T) {
	examID := uuid.New()
	now := time.Now()
	future := now.Add(10 * time.Minute)

	plain := uuid.New()
	reinstated := uuid.New()
	suspended := uuid.New()

	sessions := &fakeSweepSource{open: map[uuid.UUID][]model.ExamSession{
		examID: {
			{ID: plain},
			{ID: reinstated, ExtendedEndAt: &future},
			{ID: suspended, IsSuspended: true},
		},
	}}
	submitter := &fakeSubmitter{}
	absence := &fakeAbsenceMarker{}
	w := &ExamStatusWorker{
		sessionRepo:    sessions,
		enrollmentRepo: absence,
		sessions:       submitter,
		log:            zerolog.Nop(),
	}

	w.settleCompletedExam(context.Background(), examID, now)

	// Only the plain open session is force-submitted; the reinstated one
	// keeps running until its extended deadline and the suspended one waits
	// for a proctor.
	assert.Equal(t, []uuid.UUID{plain}, submitter.submitted)
	assert.Equal(t, []uuid.UUID{examID}, absence.marked)
}
