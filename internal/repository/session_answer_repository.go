package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionAnswerRepository handles the durable autosave mirror of
// in-progress session answers. It backs state recovery when the Redis
// mirror is unavailable.
type SessionAnswerRepository struct {
	pool *pgxpool.Pool
}

// NewSessionAnswerRepository creates a new SessionAnswerRepository.
func NewSessionAnswerRepository(pool *pgxpool.Pool) *SessionAnswerRepository {
	return &SessionAnswerRepository{pool: pool}
}

// Upsert creates or overwrites one answer for a question index.
func (r *SessionAnswerRepository) Upsert(ctx context.Context, examID uuid.UUID, userID, questionIndex int, choice string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO session_answers (exam_id, user_id, question_index, choice)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (exam_id, user_id, question_index) DO UPDATE
		 SET choice = EXCLUDED.choice, updated_at = NOW()`,
		examID, userID, questionIndex, choice)
	return err
}

// Load returns all saved answers for one session as index → choice.
func (r *SessionAnswerRepository) Load(ctx context.Context, examID uuid.UUID, userID int) (map[int]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_index, choice FROM session_answers
		 WHERE exam_id = $1 AND user_id = $2`, examID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := make(map[int]string)
	for rows.Next() {
		var idx int
		var choice string
		if err := rows.Scan(&idx, &choice); err != nil {
			return nil, err
		}
		answers[idx] = choice
	}
	return answers, rows.Err()
}

// DeleteBySession removes the autosave mirror after an attempt is persisted.
func (r *SessionAnswerRepository) DeleteBySession(ctx context.Context, examID uuid.UUID, userID int) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM session_answers WHERE exam_id = $1 AND user_id = $2`,
		examID, userID)
	return err
}
