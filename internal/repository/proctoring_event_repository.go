package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/database"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventFilter narrows proctoring event listings.
type EventFilter struct {
	EventType *model.EventType
	Severity  *model.Severity
	Source    *model.EventSource
}

// ProctoringEventRepository handles proctoring event data access.
type ProctoringEventRepository struct {
	db database.Querier
}

// NewProctoringEventRepository creates a new ProctoringEventRepository.
func NewProctoringEventRepository(pool *pgxpool.Pool) *ProctoringEventRepository {
	return &ProctoringEventRepository{db: pool}
}

// WithTx returns a copy bound to the given transaction.
func (r *ProctoringEventRepository) WithTx(tx pgx.Tx) *ProctoringEventRepository {
	return &ProctoringEventRepository{db: tx}
}

// Create inserts a proctoring event.
func (r *ProctoringEventRepository) Create(ctx context.Context, e *model.ProctoringEvent) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO proctoring_events (session_id, event_type, severity, source, confidence,
		 description, snapshot_path, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		e.SessionID, e.EventType, e.Severity, e.Source, e.Confidence,
		e.Description, e.SnapshotPath, e.Metadata,
	).Scan(&e.ID, &e.CreatedAt)
}

// ListBySession retrieves a session's events newest first, with optional filters.
func (r *ProctoringEventRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, filter EventFilter, page, perPage int) ([]model.ProctoringEvent, int64, error) {
	baseQuery := ` FROM proctoring_events WHERE session_id = $1`
	args := []any{sessionID}

	if filter.EventType != nil {
		args = append(args, *filter.EventType)
		baseQuery += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	if filter.Severity != nil {
		args = append(args, *filter.Severity)
		baseQuery += fmt.Sprintf(" AND severity = $%d", len(args))
	}
	if filter.Source != nil {
		args = append(args, *filter.Source)
		baseQuery += fmt.Sprintf(" AND source = $%d", len(args))
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*)`+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, perPage, (page-1)*perPage)
	rows, err := r.db.Query(ctx,
		`SELECT id, session_id, event_type, severity, source, confidence, description,
		        snapshot_path, metadata, created_at`+baseQuery+
			fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events, err := collectEvents(rows)
	return events, total, err
}

// ListRecentBySession retrieves the latest events for the monitor view.
func (r *ProctoringEventRepository) ListRecentBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]model.ProctoringEvent, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, session_id, event_type, severity, source, confidence, description,
		        snapshot_path, metadata, created_at
		 FROM proctoring_events
		 WHERE session_id = $1
		 ORDER BY created_at DESC LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectEvents(rows)
}

// ListSnapshotPathsBefore returns snapshot object paths attached to events
// older than the cutoff, for retention cleanup.
func (r *ProctoringEventRepository) ListSnapshotPathsBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT snapshot_path FROM proctoring_events
		 WHERE snapshot_path IS NOT NULL AND created_at < $1`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// ClearSnapshotPathsBefore nulls snapshot references on events older than the
// cutoff once the objects are gone.
func (r *ProctoringEventRepository) ClearSnapshotPathsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE proctoring_events SET snapshot_path = NULL
		 WHERE snapshot_path IS NOT NULL AND created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func collectEvents(rows pgx.Rows) ([]model.ProctoringEvent, error) {
	var events []model.ProctoringEvent
	for rows.Next() {
		var e model.ProctoringEvent
		if err := rows.Scan(&e.ID, &e.SessionID, &e.EventType, &e.Severity, &e.Source,
			&e.Confidence, &e.Description, &e.SnapshotPath, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
