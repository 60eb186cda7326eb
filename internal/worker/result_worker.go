package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/prepwise/mockexam-backend/internal/config"
	"github.com/prepwise/mockexam-backend/internal/model"
	"github.com/prepwise/mockexam-backend/internal/repository"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
)

// ResultWorker consumes the result queue and batch-inserts finished
// attempts into PostgreSQL. Attempts append; retakes never overwrite.
type ResultWorker struct {
	attemptRepo *repository.AttemptRepository
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewResultWorker creates a new ResultWorker.
func NewResultWorker(attemptRepo *repository.AttemptRepository, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		attemptRepo: attemptRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "result_worker").Logger(),
	}
}

// Start begins the batching worker loop. Call in a goroutine.
func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	batch := make([]*model.ExamAttempt, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		// Should flush?
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var a model.ExamAttempt
			if err := json.Unmarshal([]byte(item[1]), &a); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &a)
		}
	}
}

func (w *ResultWorker) flushSafe(ctx context.Context, batch []*model.ExamAttempt) {
	if len(batch) == 0 {
		return
	}

	if err := w.attemptRepo.InsertBatch(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("Batch insert failed, using fallback")

		for _, a := range batch {
			if err := w.attemptRepo.Insert(ctx, a); err != nil {
				w.log.Error().Err(err).
					Int("user_id", a.UserID).
					Str("exam_id", a.ExamID.String()).
					Msg("Single insert failed — requeueing")
				raw, _ := json.Marshal(a)
				w.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw)
			}
		}
		return
	}

	w.log.Debug().Int("count", len(batch)).Msg("Attempts persisted")

	// The attempts are durable; the autosave mirrors can go.
	w.clearSessionLeftovers(ctx, batch)
}

// clearSessionLeftovers deletes the Redis answer mirrors and stale
// history caches for every attempt in the batch.
func (w *ResultWorker) clearSessionLeftovers(ctx context.Context, batch []*model.ExamAttempt) {
	pipe := w.rdb.Pipeline()

	for _, a := range batch {
		pipe.Del(ctx, config.CacheKey.UserAnswersKey(a.ExamID.String(), a.UserID))
		pipe.Del(ctx, config.CacheKey.UserHistoryKey(a.UserID))
	}

	_, _ = pipe.Exec(ctx)
}
