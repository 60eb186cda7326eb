package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prepwise/mockexam-backend/internal/model"
)

// AttemptRepository handles persisted exam attempt history.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Insert persists a single finished attempt.
func (r *AttemptRepository) Insert(ctx context.Context, a *model.ExamAttempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_attempts
		   (exam_id, user_id, score, total_questions, correct_answers, wrong_answers,
		    time_spent_seconds, average_time_per_question, difficulty, type, reason,
		    started_at, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id`,
		a.ExamID, a.UserID, a.Score, a.TotalQuestions, a.CorrectAnswers, a.WrongAnswers,
		a.TimeSpentSeconds, a.AverageTimePerQuestion, a.Difficulty, a.Type, a.Reason,
		a.StartedAt, a.SubmittedAt,
	).Scan(&a.ID)
}

// InsertBatch persists a batch of finished attempts in one round trip
// using UNNEST. Every attempt is a fresh row: retakes append, never
// overwrite.
func (r *AttemptRepository) InsertBatch(ctx context.Context, batch []*model.ExamAttempt) error {
	n := len(batch)
	if n == 0 {
		return nil
	}

	examIDs := make([]uuid.UUID, n)
	userIDs := make([]int, n)
	scores := make([]int, n)
	totals := make([]int, n)
	corrects := make([]int, n)
	wrongs := make([]int, n)
	spents := make([]int, n)
	averages := make([]float64, n)
	difficulties := make([]string, n)
	types := make([]string, n)
	reasons := make([]string, n)
	startedAts := make([]interface{}, n)
	submittedAts := make([]interface{}, n)

	for i, a := range batch {
		examIDs[i] = a.ExamID
		userIDs[i] = a.UserID
		scores[i] = a.Score
		totals[i] = a.TotalQuestions
		corrects[i] = a.CorrectAnswers
		wrongs[i] = a.WrongAnswers
		spents[i] = a.TimeSpentSeconds
		averages[i] = a.AverageTimePerQuestion
		difficulties[i] = a.Difficulty
		types[i] = a.Type
		reasons[i] = a.Reason
		startedAts[i] = a.StartedAt
		submittedAts[i] = a.SubmittedAt
	}

	query := `
		INSERT INTO exam_attempts
		  (exam_id, user_id, score, total_questions, correct_answers, wrong_answers,
		   time_spent_seconds, average_time_per_question, difficulty, type, reason,
		   started_at, submitted_at)
		SELECT * FROM UNNEST(
			$1::uuid[],
			$2::int[],
			$3::int[],
			$4::int[],
			$5::int[],
			$6::int[],
			$7::int[],
			$8::float8[],
			$9::text[],
			$10::text[],
			$11::text[],
			$12::timestamptz[],
			$13::timestamptz[]
		)
	`

	_, err := r.pool.Exec(ctx, query, examIDs, userIDs, scores, totals, corrects, wrongs,
		spents, averages, difficulties, types, reasons, startedAts, submittedAts)
	return err
}

// ListByUser retrieves a user's attempt history, newest first.
func (r *AttemptRepository) ListByUser(ctx context.Context, userID int) ([]model.ExamAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, user_id, score, total_questions, correct_answers, wrong_answers,
		        time_spent_seconds, average_time_per_question, difficulty, type, reason,
		        started_at, submitted_at
		 FROM exam_attempts
		 WHERE user_id = $1
		 ORDER BY submitted_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.ExamAttempt
	for rows.Next() {
		var a model.ExamAttempt
		if err := rows.Scan(&a.ID, &a.ExamID, &a.UserID, &a.Score, &a.TotalQuestions,
			&a.CorrectAnswers, &a.WrongAnswers, &a.TimeSpentSeconds, &a.AverageTimePerQuestion,
			&a.Difficulty, &a.Type, &a.Reason, &a.StartedAt, &a.SubmittedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// SummarizeByUser aggregates the user's attempts per exam, for the
// lobby overlay.
func (r *AttemptRepository) SummarizeByUser(ctx context.Context, userID int) (map[uuid.UUID]model.AttemptSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT exam_id, COUNT(*), MAX(score), MAX(submitted_at)
		 FROM exam_attempts
		 WHERE user_id = $1
		 GROUP BY exam_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make(map[uuid.UUID]model.AttemptSummary)
	for rows.Next() {
		var examID uuid.UUID
		var s model.AttemptSummary
		if err := rows.Scan(&examID, &s.Attempts, &s.BestScore, &s.LastTakenAt); err != nil {
			return nil, err
		}
		summaries[examID] = s
	}
	return summaries, rows.Err()
}

// ListByExamPaginated retrieves attempts for an exam, for admin result views.
func (r *AttemptRepository) ListByExamPaginated(ctx context.Context, examID uuid.UUID, limit, offset int) ([]model.ExamAttempt, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_attempts WHERE exam_id = $1`, examID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, user_id, score, total_questions, correct_answers, wrong_answers,
		        time_spent_seconds, average_time_per_question, difficulty, type, reason,
		        started_at, submitted_at
		 FROM exam_attempts
		 WHERE exam_id = $1
		 ORDER BY submitted_at DESC
		 LIMIT $2 OFFSET $3`, examID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var attempts []model.ExamAttempt
	for rows.Next() {
		var a model.ExamAttempt
		if err := rows.Scan(&a.ID, &a.ExamID, &a.UserID, &a.Score, &a.TotalQuestions,
			&a.CorrectAnswers, &a.WrongAnswers, &a.TimeSpentSeconds, &a.AverageTimePerQuestion,
			&a.Difficulty, &a.Type, &a.Reason, &a.StartedAt, &a.SubmittedAt); err != nil {
			return nil, 0, err
		}
		attempts = append(attempts, a)
	}
	return attempts, total, rows.Err()
}
