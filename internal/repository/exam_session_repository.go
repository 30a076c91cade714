package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/database"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `id, enrollment_id, exam_id, user_id, started_at, submitted_at,
	last_heartbeat_at, identity_verified, is_suspended, suspension_reason, suspended_at,
	extended_end_at, ip_address, user_agent, score, is_passed, version`

// ExamSessionRepository handles exam session data access.
type ExamSessionRepository struct {
	db database.Querier
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{db: pool}
}

// WithTx returns a copy bound to the given transaction.
func (r *ExamSessionRepository) WithTx(tx pgx.Tx) *ExamSessionRepository {
	return &ExamSessionRepository{db: tx}
}

func scanSession(row pgx.Row) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	err := row.Scan(&s.ID, &s.EnrollmentID, &s.ExamID, &s.UserID, &s.StartedAt, &s.SubmittedAt,
		&s.LastHeartbeatAt, &s.IdentityVerified, &s.IsSuspended, &s.SuspensionReason,
		&s.SuspendedAt, &s.ExtendedEndAt, &s.IPAddress, &s.UserAgent, &s.Score, &s.IsPassed,
		&s.Version)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Create inserts a new session. The partial unique index on open sessions per
// enrollment makes a second concurrent start fail with a unique violation.
func (r *ExamSessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO exam_sessions (enrollment_id, exam_id, user_id, ip_address, user_agent)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, started_at, last_heartbeat_at, version`,
		s.EnrollmentID, s.ExamID, s.UserID, s.IPAddress, s.UserAgent,
	).Scan(&s.ID, &s.StartedAt, &s.LastHeartbeatAt, &s.Version)
}

// GetByID retrieves a session by id.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	return scanSession(r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id))
}

// GetOpenByEnrollment retrieves the single open (not yet submitted) session
// for an enrollment, if any.
func (r *ExamSessionRepository) GetOpenByEnrollment(ctx context.Context, enrollmentID uuid.UUID) (*model.ExamSession, error) {
	return scanSession(r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE enrollment_id = $1 AND submitted_at IS NULL`, enrollmentID))
}

// GetLatestByEnrollment retrieves the most recent session for an enrollment.
func (r *ExamSessionRepository) GetLatestByEnrollment(ctx context.Context, enrollmentID uuid.UUID) (*model.ExamSession, error) {
	return scanSession(r.db.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE enrollment_id = $1
		 ORDER BY started_at DESC LIMIT 1`, enrollmentID))
}

// HasOtherActiveSession reports whether the user holds an open, unsuspended
// session in a different exam. One student runs at most one live attempt.
func (r *ExamSessionRepository) HasOtherActiveSession(ctx context.Context, userID, excludeExamID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM exam_sessions
		   WHERE user_id = $1 AND exam_id <> $2
		     AND submitted_at IS NULL AND NOT is_suspended
		 )`, userID, excludeExamID).Scan(&exists)
	return exists, err
}

// Update persists every mutable session field guarded by the version check.
// Zero rows affected means another writer got there first.
func (r *ExamSessionRepository) Update(ctx context.Context, s *model.ExamSession) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE exam_sessions SET
		   submitted_at = $3, identity_verified = $4, is_suspended = $5,
		   suspension_reason = $6, suspended_at = $7, extended_end_at = $8,
		   score = $9, is_passed = $10, version = version + 1
		 WHERE id = $1 AND version = $2`,
		s.ID, s.Version, s.SubmittedAt, s.IdentityVerified, s.IsSuspended,
		s.SuspensionReason, s.SuspendedAt, s.ExtendedEndAt, s.Score, s.IsPassed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConcurrentModification
	}
	s.Version++
	return nil
}

// UpdateHeartbeat is a blind single-column touch. It neither checks nor bumps
// the version so a heartbeat can never race a real state change.
func (r *ExamSessionRepository) UpdateHeartbeat(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE exam_sessions SET last_heartbeat_at = $2
		 WHERE id = $1 AND submitted_at IS NULL`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListActiveByExam retrieves open sessions for an exam joined with student
// info, for the proctor monitor view.
func (r *ExamSessionRepository) ListActiveByExam(ctx context.Context, examID uuid.UUID) ([]model.SessionWithUser, error) {
	rows, err := r.db.Query(ctx,
		`SELECT s.id, s.enrollment_id, s.exam_id, s.user_id, s.started_at, s.submitted_at,
		        s.last_heartbeat_at, s.identity_verified, s.is_suspended, s.suspension_reason,
		        s.suspended_at, s.extended_end_at, s.ip_address, s.user_agent, s.score,
		        s.is_passed, s.version, u.name, u.email
		 FROM exam_sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.exam_id = $1 AND s.submitted_at IS NULL
		 ORDER BY u.name ASC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.SessionWithUser
	for rows.Next() {
		var s model.SessionWithUser
		if err := rows.Scan(&s.ID, &s.EnrollmentID, &s.ExamID, &s.UserID, &s.StartedAt,
			&s.SubmittedAt, &s.LastHeartbeatAt, &s.IdentityVerified, &s.IsSuspended,
			&s.SuspensionReason, &s.SuspendedAt, &s.ExtendedEndAt, &s.IPAddress, &s.UserAgent,
			&s.Score, &s.IsPassed, &s.Version, &s.UserName, &s.UserEmail); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ListOpenByExam retrieves open sessions for an exam without the user join,
// for the auto-submit sweep when the exam completes.
func (r *ExamSessionRepository) ListOpenByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamSession, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE exam_id = $1 AND submitted_at IS NULL`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSessions(rows)
}

// ListStale retrieves open, unsuspended sessions whose last heartbeat is older
// than the cutoff.
func (r *ExamSessionRepository) ListStale(ctx context.Context, cutoff time.Time) ([]model.ExamSession, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE submitted_at IS NULL AND NOT is_suspended AND last_heartbeat_at < $1`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSessions(rows)
}

// ListExpiredExtensions retrieves open reinstated sessions whose extended
// deadline has passed. Suspended sessions are excluded: a re-suspended
// session cannot be submitted until a proctor reinstates it again.
func (r *ExamSessionRepository) ListExpiredExtensions(ctx context.Context, now time.Time) ([]model.ExamSession, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE submitted_at IS NULL AND NOT is_suspended
		   AND extended_end_at IS NOT NULL AND extended_end_at <= $1`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSessions(rows)
}

func collectSessions(rows pgx.Rows) ([]model.ExamSession, error) {
	var sessions []model.ExamSession
	for rows.Next() {
		var s model.ExamSession
		if err := rows.Scan(&s.ID, &s.EnrollmentID, &s.ExamID, &s.UserID, &s.StartedAt,
			&s.SubmittedAt, &s.LastHeartbeatAt, &s.IdentityVerified, &s.IsSuspended,
			&s.SuspensionReason, &s.SuspendedAt, &s.ExtendedEndAt, &s.IPAddress, &s.UserAgent,
			&s.Score, &s.IsPassed, &s.Version); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
