package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/database"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BehaviorEventRepository handles raw browser telemetry data access.
type BehaviorEventRepository struct {
	db database.Querier
}

// NewBehaviorEventRepository creates a new BehaviorEventRepository.
func NewBehaviorEventRepository(pool *pgxpool.Pool) *BehaviorEventRepository {
	return &BehaviorEventRepository{db: pool}
}

// WithTx returns a copy bound to the given transaction.
func (r *BehaviorEventRepository) WithTx(tx pgx.Tx) *BehaviorEventRepository {
	return &BehaviorEventRepository{db: tx}
}

// BulkInsert copies a batch of events in one round trip.
func (r *BehaviorEventRepository) BulkInsert(ctx context.Context, events []*model.BehaviorEvent) error {
	rows := make([][]interface{}, 0, len(events))
	for _, e := range events {
		rows = append(rows, []interface{}{
			e.SessionID, e.EventType, e.Metadata, e.OccurredAt,
		})
	}

	_, err := r.db.CopyFrom(
		ctx,
		pgx.Identifier{"behavior_events"},
		[]string{"session_id", "event_type", "metadata", "occurred_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// Insert writes a single event, the fallback path when a bulk copy fails.
func (r *BehaviorEventRepository) Insert(ctx context.Context, e *model.BehaviorEvent) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO behavior_events (session_id, event_type, metadata, occurred_at)
		 VALUES ($1, $2, $3, $4)`,
		e.SessionID, e.EventType, e.Metadata, e.OccurredAt)
	return err
}

// ListBySession retrieves a session's raw events newest first.
func (r *BehaviorEventRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]model.BehaviorEvent, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, session_id, event_type, metadata, occurred_at, created_at
		 FROM behavior_events
		 WHERE session_id = $1
		 ORDER BY occurred_at DESC LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.BehaviorEvent
	for rows.Next() {
		var e model.BehaviorEvent
		if err := rows.Scan(&e.ID, &e.SessionID, &e.EventType, &e.Metadata, &e.OccurredAt,
			&e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
