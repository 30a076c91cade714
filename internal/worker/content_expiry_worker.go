package worker

import (
	"context"
	"time"

	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/objectstore"
	"github.com/invigilo/invigilo-backend/internal/repository"
	"github.com/rs/zerolog"
)

const expirySweepInterval = 24 * time.Hour

// ContentExpiryWorker enforces the snapshot retention policy: media older
// than the configured horizon is removed from the object store and the
// corresponding event rows lose their snapshot references.
type ContentExpiryWorker struct {
	store     *objectstore.Store
	eventRepo *repository.ProctoringEventRepository
	cfg       *config.Config
	log       zerolog.Logger
}

// NewContentExpiryWorker creates a new ContentExpiryWorker.
func NewContentExpiryWorker(
	store *objectstore.Store,
	eventRepo *repository.ProctoringEventRepository,
	cfg *config.Config,
	log zerolog.Logger,
) *ContentExpiryWorker {
	return &ContentExpiryWorker{
		store:     store,
		eventRepo: eventRepo,
		cfg:       cfg,
		log:       log.With().Str("component", "content_expiry_worker").Logger(),
	}
}

func (w *ContentExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ContentExpiryWorker started")

	ticker := time.NewTicker(expirySweepInterval)
	defer ticker.Stop()

	// Run once on boot so retention holds even if the process rarely
	// survives a full day.
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ContentExpiryWorker) sweep(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -w.cfg.SnapshotRetentionDays)

	for _, bucket := range []string{objectstore.BucketViolationSnapshots, objectstore.BucketAudioClips} {
		removed, err := w.store.RemoveOlderThan(ctx, bucket, cutoff)
		if err != nil {
			w.log.Error().Err(err).Str("bucket", bucket).Msg("Retention sweep failed")
			continue
		}
		if removed > 0 {
			w.log.Info().Int("count", removed).Str("bucket", bucket).Msg("Expired objects removed")
		}
	}

	cleared, err := w.eventRepo.ClearSnapshotPathsBefore(ctx, cutoff)
	if err != nil {
		w.log.Error().Err(err).Msg("Clearing expired snapshot references failed")
		return
	}
	if cleared > 0 {
		w.log.Info().Int64("count", cleared).Msg("Expired snapshot references cleared")
	}
}
