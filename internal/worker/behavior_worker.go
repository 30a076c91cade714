package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/invigilo/invigilo-backend/internal/config"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/invigilo/invigilo-backend/internal/repository"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize    = 100
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// BehaviorWorker drains the Redis behaviour buffer into Postgres in batches.
// The HTTP/WS path only ever LPushes, so a slow database never blocks ingest.
type BehaviorWorker struct {
	repo *repository.BehaviorEventRepository
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewBehaviorWorker creates a new BehaviorWorker.
func NewBehaviorWorker(repo *repository.BehaviorEventRepository, rdb *redis.Client, log zerolog.Logger) *BehaviorWorker {
	return &BehaviorWorker{
		repo: repo,
		rdb:  rdb,
		log:  log.With().Str("component", "behavior_worker").Logger(),
	}
}

func (w *BehaviorWorker) Start(ctx context.Context) {
	w.log.Info().Msg("BehaviorWorker started")

	buffer := make([]*model.BehaviorEvent, 0, BatchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlush) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlush = time.Now()
			}
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, config.CacheKey.BehaviorQueue()).Result()
		if err != nil {
			if err == redis.Nil {
				continue // queue empty, loop back to check the flush timer
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var event model.BehaviorEvent
		if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
			// Malformed JSON can never succeed on retry. Log and discard.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed behaviour event")
			continue
		}
		buffer = append(buffer, &event)
	}
}

// flushSafe attempts bulk insert, then row-by-row recovery, then requeue.
func (w *BehaviorWorker) flushSafe(ctx context.Context, batch []*model.BehaviorEvent) {
	if err := w.repo.BulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *BehaviorWorker) fallbackInsert(ctx context.Context, batch []*model.BehaviorEvent) {
	requeueList := make([]*model.BehaviorEvent, 0)

	for _, e := range batch {
		if err := w.repo.Insert(ctx, e); err != nil {
			w.log.Error().Err(err).
				Str("session_id", e.SessionID.String()).
				Msg("Insert failed, requeueing")
			requeueList = append(requeueList, e)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *BehaviorWorker) requeue(ctx context.Context, items []*model.BehaviorEvent) {
	pipe := w.rdb.Pipeline()
	for _, e := range items {
		data, _ := json.Marshal(e)
		pipe.RPush(ctx, config.CacheKey.BehaviorQueue(), data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue behaviour events. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed behaviour events")
	// Avoid thrashing while the database is down hard.
	time.Sleep(2 * time.Second)
}

func (w *BehaviorWorker) shutdown(buffer []*model.BehaviorEvent) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
