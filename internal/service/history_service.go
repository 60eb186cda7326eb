package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/prepwise/mockexam-backend/internal/config"
	"github.com/prepwise/mockexam-backend/internal/model"
	"github.com/prepwise/mockexam-backend/internal/repository"
	"github.com/prepwise/mockexam-backend/internal/response"
)

// historyCacheTTL bounds staleness if an invalidation is ever missed.
const historyCacheTTL = 10 * time.Minute

// HistoryService serves attempt history, cached in Redis and invalidated
// on every new submission.
type HistoryService struct {
	attemptRepo *repository.AttemptRepository
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewHistoryService creates a new HistoryService.
func NewHistoryService(attemptRepo *repository.AttemptRepository, rdb *redis.Client, log zerolog.Logger) *HistoryService {
	return &HistoryService{
		attemptRepo: attemptRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "history_service").Logger(),
	}
}

// ListByUser returns the user's attempts, newest first. Redis serves
// repeat reads; PostgreSQL is the source of truth.
func (s *HistoryService) ListByUser(ctx context.Context, userID int) ([]model.ExamAttempt, error) {
	key := config.CacheKey.UserHistoryKey(userID)

	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var attempts []model.ExamAttempt
		if err := json.Unmarshal(data, &attempts); err == nil {
			return attempts, nil
		}
		s.log.Warn().Int("user_id", userID).Msg("Corrupt history cache, rebuilding")
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("History cache read failed, serving from PostgreSQL")
	}

	attempts, err := s.attemptRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if attempts == nil {
		attempts = []model.ExamAttempt{}
	}

	if raw, err := json.Marshal(attempts); err == nil {
		if err := s.rdb.Set(ctx, key, raw, historyCacheTTL).Err(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to cache history")
		}
	}

	return attempts, nil
}

// SummaryByUser aggregates the user's attempts per exam. Uncached: the
// lobby read already hits PostgreSQL for the exam list.
func (s *HistoryService) SummaryByUser(ctx context.Context, userID int) (map[uuid.UUID]model.AttemptSummary, error) {
	return s.attemptRepo.SummarizeByUser(ctx, userID)
}

// ListByExam returns attempts on one exam for admin result views.
func (s *HistoryService) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.ExamAttempt, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	attempts, total, err := s.attemptRepo.ListByExamPaginated(ctx, examID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if attempts == nil {
		attempts = []model.ExamAttempt{}
	}

	return attempts, response.NewPagination(page, perPage, total), nil
}
