package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/database"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const questionColumns = `id, exam_id, question_type, question_text, options, correct_answer,
	marks, negative_marks, order_index, created_at, updated_at`

// QuestionRepository handles question data access.
type QuestionRepository struct {
	db database.Querier
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{db: pool}
}

// WithTx returns a copy bound to the given transaction.
func (r *QuestionRepository) WithTx(tx pgx.Tx) *QuestionRepository {
	return &QuestionRepository{db: tx}
}

func scanQuestion(row pgx.Row) (*model.Question, error) {
	q := &model.Question{}
	err := row.Scan(&q.ID, &q.ExamID, &q.Type, &q.Text, &q.Options,
		&q.CorrectAnswer, &q.Marks, &q.NegativeMarks, &q.OrderIndex, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// Create inserts a new question. When orderIndex is nil the question takes the
// next index for its exam.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question, orderIndex *int) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO questions (exam_id, question_type, question_text, options, correct_answer, marks, negative_marks, order_index)
		 VALUES ($1, $2, $3, $4, $5, $6, $7,
		         COALESCE($8, (SELECT COALESCE(MAX(order_index), 0) + 1 FROM questions WHERE exam_id = $1)))
		 RETURNING id, order_index, created_at, updated_at`,
		q.ExamID, q.Type, q.Text, q.Options, q.CorrectAnswer, q.Marks, q.NegativeMarks, orderIndex,
	).Scan(&q.ID, &q.OrderIndex, &q.CreatedAt, &q.UpdatedAt)
}

// GetByID retrieves a question by id.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	return scanQuestion(r.db.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = $1`, id))
}

// GetByIDInExam retrieves a question by id, scoped to one exam.
func (r *QuestionRepository) GetByIDInExam(ctx context.Context, id, examID uuid.UUID) (*model.Question, error) {
	return scanQuestion(r.db.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = $1 AND exam_id = $2`, id, examID))
}

// ListByExam retrieves all questions for a given exam, ordered by order_index.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE exam_id = $1 ORDER BY order_index`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Type, &q.Text, &q.Options,
			&q.CorrectAnswer, &q.Marks, &q.NegativeMarks, &q.OrderIndex, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// FindByIDs retrieves a set of questions in one round-trip, keyed by id.
// Missing ids are simply absent from the map.
func (r *QuestionRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]model.Question, error) {
	questions := make(map[uuid.UUID]model.Question, len(ids))
	if len(ids) == 0 {
		return questions, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Type, &q.Text, &q.Options,
			&q.CorrectAnswer, &q.Marks, &q.NegativeMarks, &q.OrderIndex, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, err
		}
		questions[q.ID] = q
	}
	return questions, rows.Err()
}

// Update persists the mutable question fields.
func (r *QuestionRepository) Update(ctx context.Context, q *model.Question) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE questions SET question_text = $2, options = $3, correct_answer = $4,
		 marks = $5, negative_marks = $6, order_index = $7, updated_at = now()
		 WHERE id = $1`,
		q.ID, q.Text, q.Options, q.CorrectAnswer, q.Marks, q.NegativeMarks, q.OrderIndex)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete removes a question.
func (r *QuestionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// CountByExam returns the number of questions attached to an exam.
func (r *QuestionRepository) CountByExam(ctx context.Context, examID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM questions WHERE exam_id = $1`, examID).Scan(&count)
	return count, err
}

// SumMarksByExam returns the total marks across an exam's questions.
func (r *QuestionRepository) SumMarksByExam(ctx context.Context, examID uuid.UUID) (float64, error) {
	var sum float64
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(marks), 0) FROM questions WHERE exam_id = $1`, examID).Scan(&sum)
	return sum, err
}
