package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/database"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnrollmentRepository handles exam enrollment data access.
type EnrollmentRepository struct {
	db database.Querier
}

// NewEnrollmentRepository creates a new EnrollmentRepository.
func NewEnrollmentRepository(pool *pgxpool.Pool) *EnrollmentRepository {
	return &EnrollmentRepository{db: pool}
}

// WithTx returns a copy bound to the given transaction.
func (r *EnrollmentRepository) WithTx(tx pgx.Tx) *EnrollmentRepository {
	return &EnrollmentRepository{db: tx}
}

// Create inserts a REGISTERED enrollment. A unique violation on
// (exam_id, user_id) surfaces through IsUniqueViolation.
func (r *EnrollmentRepository) Create(ctx context.Context, en *model.ExamEnrollment) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO exam_enrollments (exam_id, user_id, status)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		en.ExamID, en.UserID, model.EnrollmentStatusRegistered,
	).Scan(&en.ID, &en.CreatedAt, &en.UpdatedAt)
}

// GetByID retrieves an enrollment by id.
func (r *EnrollmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamEnrollment, error) {
	return scanEnrollment(r.db.QueryRow(ctx,
		`SELECT id, exam_id, user_id, status, created_at, updated_at
		 FROM exam_enrollments WHERE id = $1`, id))
}

// GetByExamAndUser retrieves the enrollment for one student in one exam.
func (r *EnrollmentRepository) GetByExamAndUser(ctx context.Context, examID, userID uuid.UUID) (*model.ExamEnrollment, error) {
	return scanEnrollment(r.db.QueryRow(ctx,
		`SELECT id, exam_id, user_id, status, created_at, updated_at
		 FROM exam_enrollments WHERE exam_id = $1 AND user_id = $2`, examID, userID))
}

func scanEnrollment(row pgx.Row) (*model.ExamEnrollment, error) {
	en := &model.ExamEnrollment{}
	err := row.Scan(&en.ID, &en.ExamID, &en.UserID, &en.Status, &en.CreatedAt, &en.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return en, nil
}

// ListByExam retrieves enrollments for an exam joined with student info, paginated.
func (r *EnrollmentRepository) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.EnrollmentWithUser, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_enrollments WHERE exam_id = $1`, examID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.db.Query(ctx,
		`SELECT en.id, en.exam_id, en.user_id, en.status, en.created_at, en.updated_at,
		        u.name, u.email
		 FROM exam_enrollments en
		 JOIN users u ON u.id = en.user_id
		 WHERE en.exam_id = $1
		 ORDER BY u.name ASC
		 LIMIT $2 OFFSET $3`,
		examID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var enrollments []model.EnrollmentWithUser
	for rows.Next() {
		var en model.EnrollmentWithUser
		if err := rows.Scan(&en.ID, &en.ExamID, &en.UserID, &en.Status, &en.CreatedAt,
			&en.UpdatedAt, &en.UserName, &en.UserEmail); err != nil {
			return nil, 0, err
		}
		enrollments = append(enrollments, en)
	}
	return enrollments, total, rows.Err()
}

// ListByUser retrieves a student's enrollments joined with exam info.
func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.EnrollmentWithExam, error) {
	rows, err := r.db.Query(ctx,
		`SELECT en.id, en.exam_id, en.user_id, en.status, en.created_at, en.updated_at,
		        e.title, e.subject, e.status, e.start_time, e.end_time
		 FROM exam_enrollments en
		 JOIN exams e ON e.id = en.exam_id
		 WHERE en.user_id = $1 AND NOT e.is_deleted
		 ORDER BY e.start_time DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var enrollments []model.EnrollmentWithExam
	for rows.Next() {
		var en model.EnrollmentWithExam
		if err := rows.Scan(&en.ID, &en.ExamID, &en.UserID, &en.Status, &en.CreatedAt,
			&en.UpdatedAt, &en.ExamTitle, &en.ExamSubject, &en.ExamStatus,
			&en.StartTime, &en.EndTime); err != nil {
			return nil, err
		}
		enrollments = append(enrollments, en)
	}
	return enrollments, rows.Err()
}

// UpdateStatus moves an enrollment to the given status.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.EnrollmentStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE exam_enrollments SET status = $2, updated_at = now() WHERE id = $1`,
		id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete removes an enrollment. Callers refuse this while the exam is running.
func (r *EnrollmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM exam_enrollments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// MarkAbsentForExam flips every still-REGISTERED enrollment of a finished exam
// to ABSENT and reports how many rows changed.
func (r *EnrollmentRepository) MarkAbsentForExam(ctx context.Context, examID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE exam_enrollments SET status = $2, updated_at = now()
		 WHERE exam_id = $1 AND status = $3`,
		examID, model.EnrollmentStatusAbsent, model.EnrollmentStatusRegistered)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
