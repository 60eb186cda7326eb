package repository

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prepwise/mockexam-backend/internal/model"
)

// MockExamRepository handles mock exam data access.
type MockExamRepository struct {
	pool *pgxpool.Pool
}

// NewMockExamRepository creates a new MockExamRepository.
func NewMockExamRepository(pool *pgxpool.Pool) *MockExamRepository {
	return &MockExamRepository{pool: pool}
}

// GetByID retrieves a mock exam by its UUID. The question count is
// computed in the same round trip.
func (r *MockExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.MockExam, error) {
	e := &model.MockExam{}
	err := r.pool.QueryRow(ctx,
		`SELECT e.id, e.title, e.author_id, e.duration_minutes, e.difficulty, e.type, e.status,
		        (SELECT COUNT(*) FROM questions q WHERE q.exam_id = e.id),
		        e.created_at, e.updated_at
		 FROM mock_exams e WHERE e.id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.AuthorID, &e.DurationMinutes, &e.Difficulty, &e.Type,
		&e.Status, &e.QuestionCount, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListPaginated retrieves mock exams with pagination and an optional
// status filter. Pass authorID=0 to list across all authors.
func (r *MockExamRepository) ListPaginated(ctx context.Context, authorID int, status model.ExamStatus, limit, offset int) ([]model.MockExam, int, error) {
	where := ``
	var args []interface{}
	argIdx := 1

	if authorID > 0 {
		where = ` WHERE author_id = $1`
		args = append(args, authorID)
		argIdx++
	}
	if status != "" {
		if where == "" {
			where = ` WHERE status = $` + strconv.Itoa(argIdx)
		} else {
			where += ` AND status = $` + strconv.Itoa(argIdx)
		}
		args = append(args, status)
		argIdx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM mock_exams`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT e.id, e.title, e.author_id, e.duration_minutes, e.difficulty, e.type, e.status,
	                 (SELECT COUNT(*) FROM questions q WHERE q.exam_id = e.id),
	                 e.created_at, e.updated_at
	          FROM mock_exams e` + where +
		` ORDER BY e.created_at DESC LIMIT $` + strconv.Itoa(argIdx) + ` OFFSET $` + strconv.Itoa(argIdx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var exams []model.MockExam
	for rows.Next() {
		var e model.MockExam
		if err := rows.Scan(&e.ID, &e.Title, &e.AuthorID, &e.DurationMinutes, &e.Difficulty, &e.Type,
			&e.Status, &e.QuestionCount, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, 0, err
		}
		exams = append(exams, e)
	}
	return exams, total, rows.Err()
}

// Create inserts a new mock exam in DRAFT status.
func (r *MockExamRepository) Create(ctx context.Context, e *model.MockExam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO mock_exams (title, author_id, duration_minutes, difficulty, type, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.AuthorID, e.DurationMinutes, e.Difficulty, e.Type, e.Status,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// Update modifies a mock exam's definition.
func (r *MockExamRepository) Update(ctx context.Context, e *model.MockExam) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE mock_exams
		 SET title = $1, duration_minutes = $2, difficulty = $3, type = $4, updated_at = NOW()
		 WHERE id = $5`,
		e.Title, e.DurationMinutes, e.Difficulty, e.Type, e.ID)
	return err
}

// UpdateStatus updates a mock exam's status.
func (r *MockExamRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ExamStatus) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE mock_exams SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id)
	return err
}

// Delete removes a mock exam and its questions (via FK cascade).
func (r *MockExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM mock_exams WHERE id = $1`, id)
	return err
}

// ListPublished returns all exams with PUBLISHED status.
// Used for cache prewarming on application startup.
func (r *MockExamRepository) ListPublished(ctx context.Context) ([]model.MockExam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT e.id, e.title, e.author_id, e.duration_minutes, e.difficulty, e.type, e.status,
		        (SELECT COUNT(*) FROM questions q WHERE q.exam_id = e.id),
		        e.created_at, e.updated_at
		 FROM mock_exams e WHERE e.status = $1
		 ORDER BY e.created_at DESC`, model.ExamStatusPublished)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.MockExam
	for rows.Next() {
		var e model.MockExam
		if err := rows.Scan(&e.ID, &e.Title, &e.AuthorID, &e.DurationMinutes, &e.Difficulty, &e.Type,
			&e.Status, &e.QuestionCount, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}
