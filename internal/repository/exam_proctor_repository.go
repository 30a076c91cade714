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

// ExamProctorRepository handles proctor assignment data access.
type ExamProctorRepository struct {
	db database.Querier
}

// NewExamProctorRepository creates a new ExamProctorRepository.
func NewExamProctorRepository(pool *pgxpool.Pool) *ExamProctorRepository {
	return &ExamProctorRepository{db: pool}
}

// WithTx returns a copy bound to the given transaction.
func (r *ExamProctorRepository) WithTx(tx pgx.Tx) *ExamProctorRepository {
	return &ExamProctorRepository{db: tx}
}

// Assign links a proctor to an exam. Duplicates surface through IsUniqueViolation.
func (r *ExamProctorRepository) Assign(ctx context.Context, ep *model.ExamProctor) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO exam_proctors (exam_id, proctor_id)
		 VALUES ($1, $2)
		 RETURNING id, assigned_at`,
		ep.ExamID, ep.ProctorID,
	).Scan(&ep.ID, &ep.AssignedAt)
}

// Unassign removes a proctor from an exam.
func (r *ExamProctorRepository) Unassign(ctx context.Context, examID, proctorID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM exam_proctors WHERE exam_id = $1 AND proctor_id = $2`,
		examID, proctorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListByExam retrieves the proctors assigned to an exam.
func (r *ExamProctorRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.ProctorWithUser, error) {
	rows, err := r.db.Query(ctx,
		`SELECT ep.id, ep.exam_id, ep.proctor_id, ep.assigned_at, u.name, u.email
		 FROM exam_proctors ep
		 JOIN users u ON u.id = ep.proctor_id
		 WHERE ep.exam_id = $1
		 ORDER BY u.name ASC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proctors []model.ProctorWithUser
	for rows.Next() {
		var p model.ProctorWithUser
		if err := rows.Scan(&p.ID, &p.ExamID, &p.ProctorID, &p.AssignedAt,
			&p.ProctorName, &p.ProctorEmail); err != nil {
			return nil, err
		}
		proctors = append(proctors, p)
	}
	return proctors, rows.Err()
}

// ListExamIDsByProctor retrieves the exams a proctor covers.
func (r *ExamProctorRepository) ListExamIDsByProctor(ctx context.Context, proctorID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		`SELECT exam_id FROM exam_proctors WHERE proctor_id = $1`, proctorID)
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

// IsAssigned reports whether a proctor covers an exam.
func (r *ExamProctorRepository) IsAssigned(ctx context.Context, examID, proctorID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM exam_proctors WHERE exam_id = $1 AND proctor_id = $2
		 )`, examID, proctorID).Scan(&exists)
	return exists, err
}

// HasOverlap reports whether the proctor already covers another exam whose
// window intersects the given one. Back-to-back exams do not count.
func (r *ExamProctorRepository) HasOverlap(ctx context.Context, proctorID, excludeExamID uuid.UUID, start, end time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1
		   FROM exam_proctors ep
		   JOIN exams e ON e.id = ep.exam_id
		   WHERE ep.proctor_id = $1 AND ep.exam_id <> $2
		     AND NOT e.is_deleted AND e.status <> 'COMPLETED'
		     AND e.start_time < $4 AND e.end_time > $3
		 )`, proctorID, excludeExamID, start, end).Scan(&exists)
	return exists, err
}
