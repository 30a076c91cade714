package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/invigilo/invigilo-backend/internal/database"
	"github.com/invigilo/invigilo-backend/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AnswerRepository handles answer data access.
type AnswerRepository struct {
	db database.Querier
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{db: pool}
}

// WithTx returns a copy bound to the given transaction.
func (r *AnswerRepository) WithTx(tx pgx.Tx) *AnswerRepository {
	return &AnswerRepository{db: tx}
}

// Upsert writes a student's answer, replacing any earlier one for the same
// question. Saving again clears previously awarded marks.
func (r *AnswerRepository) Upsert(ctx context.Context, a *model.Answer) error {
	return r.db.QueryRow(ctx,
		`INSERT INTO answers (session_id, question_id, selected_answer, text_answer)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id, question_id)
		 DO UPDATE SET selected_answer = EXCLUDED.selected_answer,
		               text_answer = EXCLUDED.text_answer,
		               marks_awarded = NULL,
		               grading_comment = NULL,
		               updated_at = now()
		 RETURNING id, updated_at`,
		a.SessionID, a.QuestionID, a.SelectedAnswer, a.TextAnswer,
	).Scan(&a.ID, &a.UpdatedAt)
}

// GetBySessionAndQuestion retrieves one answer.
func (r *AnswerRepository) GetBySessionAndQuestion(ctx context.Context, sessionID, questionID uuid.UUID) (*model.Answer, error) {
	a := &model.Answer{}
	err := r.db.QueryRow(ctx,
		`SELECT id, session_id, question_id, selected_answer, text_answer, marks_awarded,
		        grading_comment, updated_at
		 FROM answers WHERE session_id = $1 AND question_id = $2`,
		sessionID, questionID,
	).Scan(&a.ID, &a.SessionID, &a.QuestionID, &a.SelectedAnswer, &a.TextAnswer,
		&a.MarksAwarded, &a.GradingComment, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListBySession retrieves all answers for a session.
func (r *AnswerRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Answer, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, session_id, question_id, selected_answer, text_answer, marks_awarded,
		        grading_comment, updated_at
		 FROM answers WHERE session_id = $1`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.ID, &a.SessionID, &a.QuestionID, &a.SelectedAnswer,
			&a.TextAnswer, &a.MarksAwarded, &a.GradingComment, &a.UpdatedAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// UpdateMarks records marks for one answer, used by short-answer grading.
func (r *AnswerRepository) UpdateMarks(ctx context.Context, sessionID, questionID uuid.UUID, marks float64, comment *string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE answers SET marks_awarded = $3, grading_comment = $4, updated_at = now()
		 WHERE session_id = $1 AND question_id = $2`,
		sessionID, questionID, marks, comment)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// BulkUpdateMarks writes the auto-computed marks for a whole session in one
// UNNEST statement at submit time.
func (r *AnswerRepository) BulkUpdateMarks(ctx context.Context, sessionID uuid.UUID, questionIDs []uuid.UUID, marks []float64) error {
	if len(questionIDs) == 0 {
		return nil
	}

	_, err := r.db.Exec(ctx,
		`UPDATE answers AS a
		 SET marks_awarded = t.marks, updated_at = now()
		 FROM (
		 	SELECT u.question_id, u.marks
		 	FROM UNNEST($2::uuid[], $3::float8[]) AS u (question_id, marks)
		 ) AS t
		 WHERE a.session_id = $1 AND a.question_id = t.question_id`,
		sessionID, questionIDs, marks)
	return err
}
