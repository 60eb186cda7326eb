package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/prepwise/mockexam-backend/internal/config"
	"github.com/prepwise/mockexam-backend/internal/model"
	"github.com/prepwise/mockexam-backend/internal/repository"
	"github.com/prepwise/mockexam-backend/internal/response"
	"github.com/prepwise/mockexam-backend/internal/session"
)

// Domain Errors
var (
	ErrNotExamAuthor    = errors.New("not the author of this exam")
	ErrNoQuestions      = errors.New("exam has no questions, cannot publish/start")
	ErrExamNotDraft     = errors.New("exam status is not DRAFT")
	ErrExamNotPublished = errors.New("exam status is not PUBLISHED")
)

// MockExamService handles exam lifecycle, Redis caching, and serves as the
// engine's question source for scoring.
type MockExamService struct {
	examRepo     *repository.MockExamRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewMockExamService creates a new MockExamService.
func NewMockExamService(
	examRepo *repository.MockExamRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *MockExamService {
	return &MockExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "mock_exam_service").Logger(),
	}
}

// GetByID retrieves a mock exam by its UUID.
func (s *MockExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.MockExam, error) {
	return s.examRepo.GetByID(ctx, id)
}

// List retrieves mock exams with pagination. Pass authorID=0 for all
// authors, status="" for all statuses.
func (s *MockExamService) List(ctx context.Context, authorID int, status model.ExamStatus, page, perPage int) ([]model.MockExam, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	limit := perPage
	offset := (page - 1) * perPage

	exams, total, err := s.examRepo.ListPaginated(ctx, authorID, status, limit, offset)
	if err != nil {
		return nil, nil, err
	}

	if exams == nil {
		exams = []model.MockExam{}
	}

	return exams, response.NewPagination(page, perPage, total), nil
}

// Create inserts a new mock exam as DRAFT.
func (s *MockExamService) Create(ctx context.Context, exam *model.MockExam) error {
	exam.Status = model.ExamStatusDraft
	if exam.Difficulty == "" {
		exam.Difficulty = "medium"
	}
	if exam.Type == "" {
		exam.Type = "mock"
	}
	return s.examRepo.Create(ctx, exam)
}

// Update modifies an existing draft exam.
func (s *MockExamService) Update(ctx context.Context, authorID int, exam *model.MockExam) error {
	existing, err := s.examRepo.GetByID(ctx, exam.ID)
	if err != nil {
		return err
	}
	if authorID != 0 && existing.AuthorID != authorID {
		return ErrNotExamAuthor
	}
	if existing.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return s.examRepo.Update(ctx, exam)
}

// Delete removes a draft exam.
func (s *MockExamService) Delete(ctx context.Context, id uuid.UUID, authorID int) error {
	existing, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if authorID != 0 && existing.AuthorID != authorID {
		return ErrNotExamAuthor
	}
	if existing.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return s.examRepo.Delete(ctx, id)
}

// ReplaceQuestions atomically swaps a draft exam's question set.
func (s *MockExamService) ReplaceQuestions(ctx context.Context, examID uuid.UUID, authorID int, questions []model.Question) error {
	existing, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return err
	}
	if authorID != 0 && existing.AuthorID != authorID {
		return ErrNotExamAuthor
	}
	if existing.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return s.questionRepo.ReplaceAll(ctx, examID, questions)
}

// ListQuestions returns an exam's full questions (with answers) for authors.
func (s *MockExamService) ListQuestions(ctx context.Context, examID uuid.UUID, authorID int) ([]model.Question, error) {
	existing, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if authorID != 0 && existing.AuthorID != authorID {
		return nil, ErrNotExamAuthor
	}
	return s.questionRepo.ListByExam(ctx, examID)
}

// Publish changes exam status to PUBLISHED and caches the taker payload +
// question refs in Redis. This is the critical path that populates the
// fast lane: after publish, session starts never touch PostgreSQL.
func (s *MockExamService) Publish(ctx context.Context, examID uuid.UUID, authorID int) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}

	if authorID != 0 && exam.AuthorID != authorID {
		return ErrNotExamAuthor
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}

	// Prewarm cache for this exam.
	if err := s.WarmExamCache(ctx, exam); err != nil {
		return err
	}

	// Update status in PostgreSQL.
	if err := s.examRepo.UpdateStatus(ctx, examID, model.ExamStatusPublished); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	s.log.Info().Str("exam_id", examID.String()).Msg("Exam published")
	return nil
}

// RefreshCache re-caches the payload + question refs for a published exam.
// Called when questions are corrected after publish.
func (s *MockExamService) RefreshCache(ctx context.Context, examID uuid.UUID, authorID int) error {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}

	if authorID != 0 && exam.AuthorID != authorID {
		return ErrNotExamAuthor
	}
	if exam.Status != model.ExamStatusPublished {
		return ErrExamNotPublished
	}

	if err := s.WarmExamCache(ctx, exam); err != nil {
		return err
	}

	s.log.Info().Str("exam_id", examID.String()).Msg("Cache refreshed")
	return nil
}

// WarmExamCache loads an exam's taker payload and question refs from
// PostgreSQL into Redis. Used by Publish, RefreshCache, and PrewarmAllCaches.
func (s *MockExamService) WarmExamCache(ctx context.Context, exam *model.MockExam) error {
	questions, err := s.questionRepo.ListByExam(ctx, exam.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	// Build taker-facing payload (without correct answers).
	takerQuestions := make([]model.QuestionForTaker, len(questions))
	for i, q := range questions {
		takerQuestions[i] = model.QuestionForTaker{
			ID:       q.ID,
			Prompt:   q.Prompt,
			Options:  q.Options,
			OrderNum: q.OrderNum,
		}
	}

	payload := model.ExamPayload{
		ExamID:          exam.ID,
		Title:           exam.Title,
		DurationMinutes: exam.DurationMinutes,
		Difficulty:      exam.Difficulty,
		Type:            exam.Type,
		Questions:       takerQuestions,
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	// Build the refs hash for scoring: question ID → JSON-encoded ref.
	refs := make(map[string]interface{}, len(questions))
	for _, q := range questions {
		ref := session.QuestionRef{
			ID:            q.ID.String(),
			CorrectAnswer: q.CorrectAnswer,
			Difficulty:    q.Difficulty,
			Topic:         q.Topic,
		}
		refJSON, err := json.Marshal(ref)
		if err != nil {
			return fmt.Errorf("marshal ref: %w", err)
		}
		refs[q.ID.String()] = refJSON
	}

	// Cache both atomically via pipeline.
	examID := exam.ID.String()
	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.ExamPayloadKey(examID), payloadJSON, 0)
	pipe.Del(ctx, config.CacheKey.ExamRefsKey(examID))
	pipe.HSet(ctx, config.CacheKey.ExamRefsKey(examID), refs)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("exam_id", examID).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads all published exams into Redis on application startup.
// This prevents any lazy-loading race conditions under thundering herd traffic.
func (s *MockExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.examRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}

	if len(exams) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(exams)).Msg("Prewarming published exams...")

	warmed := 0
	for i := range exams {
		if err := s.WarmExamCache(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}

// GetExamPayload retrieves the cached taker payload, falling back to
// PostgreSQL when Redis misses or is down.
func (s *MockExamService) GetExamPayload(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.ExamPayloadKey(examID.String())).Bytes()
	if err == nil {
		var payload model.ExamPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
		return &payload, nil
	}
	if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Redis payload read failed, falling back to PostgreSQL")
	}

	return s.buildPayloadFromDB(ctx, examID)
}

func (s *MockExamService) buildPayloadFromDB(ctx context.Context, examID uuid.UUID) (*model.ExamPayload, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotPublished
	}

	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	takerQuestions := make([]model.QuestionForTaker, len(questions))
	for i, q := range questions {
		takerQuestions[i] = model.QuestionForTaker{
			ID:       q.ID,
			Prompt:   q.Prompt,
			Options:  q.Options,
			OrderNum: q.OrderNum,
		}
	}

	return &model.ExamPayload{
		ExamID:          exam.ID,
		Title:           exam.Title,
		DurationMinutes: exam.DurationMinutes,
		Difficulty:      exam.Difficulty,
		Type:            exam.Type,
		Questions:       takerQuestions,
	}, nil
}

// QuestionRefs returns scoring refs for the given question IDs, in order.
// It reads the Redis refs hash first and falls back to PostgreSQL. The
// result is all-or-nothing: a single missing ref fails the whole lookup
// so a session is never scored against a partial answer key.
func (s *MockExamService) QuestionRefs(ctx context.Context, examID string, questionIDs []string) ([]session.QuestionRef, error) {
	byID, err := s.refsFromCache(ctx, examID)
	if err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID).Msg("Redis refs read failed, falling back to PostgreSQL")
		byID, err = s.refsFromDB(ctx, examID)
		if err != nil {
			return nil, err
		}
	}

	refs := make([]session.QuestionRef, len(questionIDs))
	for i, id := range questionIDs {
		ref, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("question ref missing: %s", id)
		}
		refs[i] = ref
	}
	return refs, nil
}

func (s *MockExamService) refsFromCache(ctx context.Context, examID string) (map[string]session.QuestionRef, error) {
	raw, err := s.rdb.HGetAll(ctx, config.CacheKey.ExamRefsKey(examID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get refs: %w", err)
	}
	if len(raw) == 0 {
		return nil, errors.New("refs not cached")
	}

	byID := make(map[string]session.QuestionRef, len(raw))
	for id, refJSON := range raw {
		var ref session.QuestionRef
		if err := json.Unmarshal([]byte(refJSON), &ref); err != nil {
			return nil, fmt.Errorf("unmarshal ref %s: %w", id, err)
		}
		byID[id] = ref
	}
	return byID, nil
}

func (s *MockExamService) refsFromDB(ctx context.Context, examID string) (map[string]session.QuestionRef, error) {
	id, err := uuid.Parse(examID)
	if err != nil {
		return nil, fmt.Errorf("parse exam id: %w", err)
	}

	questions, err := s.questionRepo.ListByExam(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	byID := make(map[string]session.QuestionRef, len(questions))
	for _, q := range questions {
		byID[q.ID.String()] = session.QuestionRef{
			ID:            q.ID.String(),
			CorrectAnswer: q.CorrectAnswer,
			Difficulty:    q.Difficulty,
			Topic:         q.Topic,
		}
	}
	return byID, nil
}
