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

const examColumns = `id, title, subject, description, start_time, end_time, duration_minutes,
	total_marks, passing_marks, shuffle_questions, shuffle_options, allow_late_entry,
	status, is_deleted, created_by, created_at, updated_at`

// ExamRepository handles exam data access.
type ExamRepository struct {
	db database.Querier
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{db: pool}
}

// WithTx returns a copy bound to the given transaction.
func (r *ExamRepository) WithTx(tx pgx.Tx) *ExamRepository {
	return &ExamRepository{db: tx}
}

func scanExam(row pgx.Row) (*model.Exam, error) {
	e := &model.Exam{}
	err := row.Scan(&e.ID, &e.Title, &e.Subject, &e.Description, &e.StartTime, &e.EndTime,
		&e.DurationMinutes, &e.TotalMarks, &e.PassingMarks, &e.ShuffleQuestions,
		&e.ShuffleOptions, &e.AllowLateEntry, &e.Status, &e.IsDeleted, &e.CreatedBy,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Create inserts a new DRAFT exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO exams (title, subject, description, start_time, end_time, duration_minutes,
		 total_marks, passing_marks, shuffle_questions, shuffle_options, allow_late_entry,
		 status, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.Subject, e.Description, e.StartTime, e.EndTime, e.DurationMinutes,
		e.TotalMarks, e.PassingMarks, e.ShuffleQuestions, e.ShuffleOptions, e.AllowLateEntry,
		model.ExamStatusDraft, e.CreatedBy,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// GetByID retrieves an exam by id, excluding soft-deleted ones.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return scanExam(r.db.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1 AND NOT is_deleted`, id))
}

// Update persists the mutable exam fields. Callers enforce the DRAFT-only rule.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE exams SET title = $2, subject = $3, description = $4, start_time = $5,
		 end_time = $6, duration_minutes = $7, total_marks = $8, passing_marks = $9,
		 shuffle_questions = $10, shuffle_options = $11, allow_late_entry = $12,
		 updated_at = now()
		 WHERE id = $1 AND NOT is_deleted`,
		e.ID, e.Title, e.Subject, e.Description, e.StartTime, e.EndTime, e.DurationMinutes,
		e.TotalMarks, e.PassingMarks, e.ShuffleQuestions, e.ShuffleOptions, e.AllowLateEntry)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// UpdateStatus moves an exam to the given status.
func (r *ExamRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ExamStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE exams SET status = $2, updated_at = now() WHERE id = $1 AND NOT is_deleted`,
		id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SoftDelete marks a DRAFT exam as deleted.
func (r *ExamRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE exams SET is_deleted = TRUE, updated_at = now()
		 WHERE id = $1 AND status = $2 AND NOT is_deleted`,
		id, model.ExamStatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// List retrieves exams with an optional status filter, paginated.
func (r *ExamRepository) List(ctx context.Context, status *model.ExamStatus, page, perPage int) ([]model.Exam, int64, error) {
	baseQuery := ` FROM exams WHERE NOT is_deleted`
	args := []any{}
	if status != nil {
		args = append(args, *status)
		baseQuery += ` AND status = $1`
	}

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*)`+baseQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, perPage, (page-1)*perPage)
	rows, err := r.db.Query(ctx,
		`SELECT `+examColumns+baseQuery+
			fmt.Sprintf(` ORDER BY start_time DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	exams, err := collectExams(rows)
	return exams, total, err
}

// ListEnrolledActive retrieves PUBLISHED and ONGOING exams the user is enrolled in.
func (r *ExamRepository) ListEnrolledActive(ctx context.Context, userID uuid.UUID) ([]model.Exam, error) {
	rows, err := r.db.Query(ctx,
		`SELECT e.id, e.title, e.subject, e.description, e.start_time, e.end_time,
		        e.duration_minutes, e.total_marks, e.passing_marks, e.shuffle_questions,
		        e.shuffle_options, e.allow_late_entry, e.status, e.is_deleted, e.created_by,
		        e.created_at, e.updated_at
		 FROM exams e
		 JOIN exam_enrollments en ON en.exam_id = e.id
		 WHERE en.user_id = $1 AND NOT e.is_deleted AND e.status = ANY($2)
		 ORDER BY e.start_time ASC`,
		userID, []model.ExamStatus{model.ExamStatusPublished, model.ExamStatusOngoing})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectExams(rows)
}

// MarkOngoing transitions every due PUBLISHED exam to ONGOING in one statement
// and returns the affected ids.
func (r *ExamRepository) MarkOngoing(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	return r.transition(ctx,
		`UPDATE exams SET status = $1, updated_at = now()
		 WHERE status = $2 AND start_time <= $3 AND NOT is_deleted
		 RETURNING id`,
		model.ExamStatusOngoing, model.ExamStatusPublished, now)
}

// MarkCompleted transitions every due ONGOING exam to COMPLETED in one
// statement and returns the affected ids.
func (r *ExamRepository) MarkCompleted(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	return r.transition(ctx,
		`UPDATE exams SET status = $1, updated_at = now()
		 WHERE status = $2 AND end_time <= $3 AND NOT is_deleted
		 RETURNING id`,
		model.ExamStatusCompleted, model.ExamStatusOngoing, now)
}

func (r *ExamRepository) transition(ctx context.Context, query string, args ...any) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func collectExams(rows pgx.Rows) ([]model.Exam, error) {
	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.Subject, &e.Description, &e.StartTime, &e.EndTime,
			&e.DurationMinutes, &e.TotalMarks, &e.PassingMarks, &e.ShuffleQuestions,
			&e.ShuffleOptions, &e.AllowLateEntry, &e.Status, &e.IsDeleted, &e.CreatedBy,
			&e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}
