package worker

import (
	"context"
	"errors"
	"time"

	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/repository"
	"github.com/invigilo/invigilo-backend/internal/service"
	"github.com/rs/zerolog"
)

const staleSweepInterval = 5 * time.Minute

// StaleSessionWorker submits sessions whose client went silent past the
// heartbeat timeout. A crashed browser must not leave an attempt open forever.
type StaleSessionWorker struct {
	sessionRepo *repository.ExamSessionRepository
	sessions    *service.ExamSessionService
	cfg         *config.Config
	log         zerolog.Logger
}

// NewStaleSessionWorker creates a new StaleSessionWorker.
func NewStaleSessionWorker(
	sessionRepo *repository.ExamSessionRepository,
	sessions *service.ExamSessionService,
	cfg *config.Config,
	log zerolog.Logger,
) *StaleSessionWorker {
	return &StaleSessionWorker{
		sessionRepo: sessionRepo,
		sessions:    sessions,
		cfg:         cfg,
		log:         log.With().Str("component", "stale_session_worker").Logger(),
	}
}

func (w *StaleSessionWorker) Start(ctx context.Context) {
	w.log.Info().Msg("StaleSessionWorker started")

	ticker := time.NewTicker(staleSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *StaleSessionWorker) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-w.cfg.HeartbeatTimeout)
	stale, err := w.sessionRepo.ListStale(ctx, cutoff)
	if err != nil {
		w.log.Error().Err(err).Msg("List stale sessions failed")
		return
	}

	for _, session := range stale {
		_, err := w.sessions.SubmitWithRetry(ctx, session.ID)
		if err != nil {
			// Lost the race with the student or another node; nothing to do.
			if errors.Is(err, service.ErrSessionSubmitted) {
				continue
			}
			w.log.Error().Err(err).Str("session_id", session.ID.String()).Msg("Stale submit failed")
			continue
		}
		w.log.Info().
			Str("session_id", session.ID.String()).
			Time("last_heartbeat_at", session.LastHeartbeatAt).
			Msg("Stale session submitted")
	}
}
