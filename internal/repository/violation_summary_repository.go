package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/database"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const summaryColumns = `session_id, risk_score, face_away_count, multiple_face_count,
	gaze_away_count, mouth_open_count, phone_detected_count, notes_detected_count,
	multiple_persons_count, audio_violation_count, suspicious_behavior_count,
	tab_switch_count, fullscreen_exit_count, copy_paste_count, identity_mismatch_count,
	manual_flag_count, proctor_flag, proctor_note, last_updated_at`

// counterColumns maps each event type to its summary counter. Every type in
// the vocabulary has exactly one column.
var counterColumns = map[model.EventType]string{
	model.EventFaceMissing:        "face_away_count",
	model.EventMultipleFaces:      "multiple_face_count",
	model.EventGazeAway:           "gaze_away_count",
	model.EventMouthOpen:          "mouth_open_count",
	model.EventPhoneDetected:      "phone_detected_count",
	model.EventNotesDetected:      "notes_detected_count",
	model.EventMultiplePersons:    "multiple_persons_count",
	model.EventAudioSpeech:        "audio_violation_count",
	model.EventSuspiciousBehavior: "suspicious_behavior_count",
	model.EventTabSwitch:          "tab_switch_count",
	model.EventFullscreenExit:     "fullscreen_exit_count",
	model.EventCopyPaste:          "copy_paste_count",
	model.EventIdentityMismatch:   "identity_mismatch_count",
	model.EventManualFlag:         "manual_flag_count",
}

// CounterColumn resolves the summary column for an event type.
func CounterColumn(t model.EventType) (string, bool) {
	col, ok := counterColumns[t]
	return col, ok
}

// ViolationSummaryRepository handles per-session violation aggregates.
type ViolationSummaryRepository struct {
	db database.Querier
}

// NewViolationSummaryRepository creates a new ViolationSummaryRepository.
func NewViolationSummaryRepository(pool *pgxpool.Pool) *ViolationSummaryRepository {
	return &ViolationSummaryRepository{db: pool}
}

// WithTx returns a copy bound to the given transaction.
func (r *ViolationSummaryRepository) WithTx(tx pgx.Tx) *ViolationSummaryRepository {
	return &ViolationSummaryRepository{db: tx}
}

// EnsureRow creates the zeroed summary row for a session if it does not exist.
func (r *ViolationSummaryRepository) EnsureRow(ctx context.Context, sessionID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO violation_summaries (session_id)
		 VALUES ($1)
		 ON CONFLICT (session_id) DO NOTHING`, sessionID)
	return err
}

// GetBySessionID retrieves the summary for one session.
func (r *ViolationSummaryRepository) GetBySessionID(ctx context.Context, sessionID uuid.UUID) (*model.ViolationSummary, error) {
	return scanSummary(r.db.QueryRow(ctx,
		`SELECT `+summaryColumns+` FROM violation_summaries WHERE session_id = $1`, sessionID))
}

// FindBySessionIDs retrieves summaries for a set of sessions, for the monitor
// view. Sessions without a row are simply absent from the result.
func (r *ViolationSummaryRepository) FindBySessionIDs(ctx context.Context, sessionIDs []uuid.UUID) (map[uuid.UUID]model.ViolationSummary, error) {
	if len(sessionIDs) == 0 {
		return map[uuid.UUID]model.ViolationSummary{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+summaryColumns+` FROM violation_summaries WHERE session_id = ANY($1)`, sessionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make(map[uuid.UUID]model.ViolationSummary, len(sessionIDs))
	for rows.Next() {
		var s model.ViolationSummary
		if err := rows.Scan(&s.SessionID, &s.RiskScore, &s.FaceAwayCount, &s.MultipleFaceCount,
			&s.GazeAwayCount, &s.MouthOpenCount, &s.PhoneDetectedCount, &s.NotesDetectedCount,
			&s.MultiplePersonsCount, &s.AudioViolationCount, &s.SuspiciousBehaviorCount,
			&s.TabSwitchCount, &s.FullscreenExitCount, &s.CopyPasteCount,
			&s.IdentityMismatchCount, &s.ManualFlagCount, &s.ProctorFlag, &s.ProctorNote,
			&s.LastUpdatedAt); err != nil {
			return nil, err
		}
		summaries[s.SessionID] = s
	}
	return summaries, rows.Err()
}

// IncrementCounter bumps the counter for the event type and raises the risk
// score. The GREATEST keeps the score monotonic, the LEAST clamps it to 1.
func (r *ViolationSummaryRepository) IncrementCounter(ctx context.Context, sessionID uuid.UUID, eventType model.EventType, riskScore float64) error {
	col, ok := counterColumns[eventType]
	if !ok {
		return fmt.Errorf("no summary counter for event type %q", eventType)
	}

	if err := r.EnsureRow(ctx, sessionID); err != nil {
		return err
	}

	_, err := r.db.Exec(ctx,
		`UPDATE violation_summaries
		 SET `+col+` = `+col+` + 1,
		     risk_score = GREATEST(risk_score, LEAST($2, 1.0)),
		     last_updated_at = now()
		 WHERE session_id = $1`,
		sessionID, riskScore)
	return err
}

// SetProctorFlag sets or clears the manual flag.
func (r *ViolationSummaryRepository) SetProctorFlag(ctx context.Context, sessionID uuid.UUID, flagged bool) error {
	if err := r.EnsureRow(ctx, sessionID); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx,
		`UPDATE violation_summaries SET proctor_flag = $2, last_updated_at = now()
		 WHERE session_id = $1`, sessionID, flagged)
	return err
}

// SetProctorNote replaces the free-text note.
func (r *ViolationSummaryRepository) SetProctorNote(ctx context.Context, sessionID uuid.UUID, note *string) error {
	if err := r.EnsureRow(ctx, sessionID); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx,
		`UPDATE violation_summaries SET proctor_note = $2, last_updated_at = now()
		 WHERE session_id = $1`, sessionID, note)
	return err
}

func scanSummary(row pgx.Row) (*model.ViolationSummary, error) {
	s := &model.ViolationSummary{}
	err := row.Scan(&s.SessionID, &s.RiskScore, &s.FaceAwayCount, &s.MultipleFaceCount,
		&s.GazeAwayCount, &s.MouthOpenCount, &s.PhoneDetectedCount, &s.NotesDetectedCount,
		&s.MultiplePersonsCount, &s.AudioViolationCount, &s.SuspiciousBehaviorCount,
		&s.TabSwitchCount, &s.FullscreenExitCount, &s.CopyPasteCount,
		&s.IdentityMismatchCount, &s.ManualFlagCount, &s.ProctorFlag, &s.ProctorNote,
		&s.LastUpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}
