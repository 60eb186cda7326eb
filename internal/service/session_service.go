package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/prepwise/mockexam-backend/internal/config"
	"github.com/prepwise/mockexam-backend/internal/model"
	"github.com/prepwise/mockexam-backend/internal/repository"
	"github.com/prepwise/mockexam-backend/internal/session"
)

// ErrNoActiveSession is returned when an operation targets a session
// that was never started or has been discarded.
var ErrNoActiveSession = errors.New("no active session")

// TickEvent is pushed to subscribers once per timer tick.
type TickEvent struct {
	Elapsed   time.Duration
	Remaining time.Duration
}

// SessionState is a read snapshot of one live session.
type SessionState struct {
	ExamID           uuid.UUID           `json:"exam_id"`
	Status           session.Status      `json:"status"`
	CurrentIndex     int                 `json:"current_index"`
	TotalQuestions   int                 `json:"total_questions"`
	Answers          map[int]string      `json:"answers"`
	RemainingSeconds int                 `json:"remaining_seconds"`
	ElapsedSeconds   int                 `json:"elapsed_seconds"`
	StartedAt        time.Time           `json:"started_at"`
	Result           *session.QuizResult `json:"result,omitempty"`
}

type sessionEntry struct {
	eng       *session.Session
	userID    int
	examID    uuid.UUID
	startedAt time.Time

	subMu  sync.Mutex
	nextID int
	subs   map[int]chan TickEvent
}

func (e *sessionEntry) subscribe() (int, chan TickEvent) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	e.nextID++
	ch := make(chan TickEvent, 8)
	e.subs[e.nextID] = ch
	return e.nextID, ch
}

func (e *sessionEntry) unsubscribe(id int) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	if ch, ok := e.subs[id]; ok {
		delete(e.subs, id)
		close(ch)
	}
}

func (e *sessionEntry) broadcast(ev TickEvent) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; drop the tick rather than block the timer.
		}
	}
}

func (e *sessionEntry) closeSubs() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
}

// answerQueueItem is the payload pushed to the answer persistence queue.
type answerQueueItem struct {
	UserID        int    `json:"user_id"`
	ExamID        string `json:"exam_id"`
	QuestionIndex int    `json:"question_index"`
	Choice        string `json:"choice"`
}

// SessionService owns all live exam sessions in RAM. Redis mirrors
// answers for crash recovery and PostgreSQL persists results through the
// worker queues; neither sits on the per-answer hot path's critical lock.
type SessionService struct {
	examService *MockExamService
	answerRepo  *repository.SessionAnswerRepository
	rdb         *redis.Client
	log         zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	examService *MockExamService,
	answerRepo *repository.SessionAnswerRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *SessionService {
	return &SessionService{
		examService: examService,
		answerRepo:  answerRepo,
		rdb:         rdb,
		log:         log.With().Str("component", "session_service").Logger(),
		sessions:    make(map[string]*sessionEntry),
	}
}

func sessionKey(userID int, examID uuid.UUID) string {
	return fmt.Sprintf("%d:%s", userID, examID)
}

// Start begins a session for the user on a published exam, or rejoins
// the live one if it already exists. After a server restart it rebuilds
// the session from the Redis start-time record and the autosaved
// answers, falling back to the PostgreSQL mirror.
func (s *SessionService) Start(ctx context.Context, userID int, examID uuid.UUID) (*SessionState, error) {
	key := sessionKey(userID, examID)

	s.mu.Lock()
	if entry, ok := s.sessions[key]; ok {
		s.mu.Unlock()
		if entry.eng.Status() == session.StatusSubmitted {
			return nil, session.ErrSessionSubmitted
		}
		return s.snapshot(entry), nil
	}
	s.mu.Unlock()

	payload, err := s.examService.GetExamPayload(ctx, examID)
	if err != nil {
		return nil, err
	}
	questionIDs := payload.QuestionIDs()
	if len(questionIDs) == 0 {
		return nil, session.ErrEmptySession
	}

	limit := time.Duration(payload.DurationMinutes) * time.Minute

	// Detect an interrupted session from a previous process.
	startedAt, recovered := s.recoverStartTime(ctx, userID, examID)
	if recovered && limit > 0 {
		elapsed := time.Since(startedAt)
		if elapsed >= limit {
			// The countdown ran out while the server was down. The
			// session cannot be resumed; clear the record so a fresh
			// start is possible.
			s.clearSessionKeys(ctx, userID, examID)
			recovered = false
		} else {
			limit -= elapsed
		}
	}
	if !recovered {
		startedAt = time.Now()
	}

	entry := &sessionEntry{
		userID:    userID,
		examID:    examID,
		startedAt: startedAt,
		subs:      make(map[int]chan TickEvent),
	}

	eng, err := session.New(examID.String(), questionIDs, session.Config{
		Limit:      limit,
		Difficulty: payload.Difficulty,
		Type:       payload.Type,
		OnTick: func(elapsed, remaining time.Duration) {
			entry.broadcast(TickEvent{Elapsed: elapsed, Remaining: remaining})
		},
		OnExpire: func() {
			go s.autoSubmit(entry)
		},
	})
	if err != nil {
		return nil, err
	}
	entry.eng = eng

	if recovered {
		for idx, choice := range s.recoverAnswers(ctx, userID, examID, len(questionIDs)) {
			if err := eng.Record(idx, choice); err != nil {
				s.log.Warn().Err(err).Int("index", idx).Msg("Dropping unrecoverable answer")
			}
		}
		s.log.Info().
			Int("user_id", userID).
			Str("exam_id", examID.String()).
			Msg("Session recovered after restart")
	} else {
		// Record the start time so the session survives a process restart.
		startKey := config.CacheKey.UserSessionStartKey(examID.String(), userID)
		if err := s.rdb.Set(ctx, startKey, startedAt.Format(time.RFC3339Nano), 0).Err(); err != nil {
			s.log.Warn().Err(err).Msg("Failed to record session start time")
		}
	}

	s.mu.Lock()
	if existing, ok := s.sessions[key]; ok {
		// Lost the race against a concurrent Start; keep the winner.
		s.mu.Unlock()
		eng.Close()
		return s.snapshot(existing), nil
	}
	s.sessions[key] = entry
	s.mu.Unlock()

	s.log.Info().
		Int("user_id", userID).
		Str("exam_id", examID.String()).
		Int("questions", len(questionIDs)).
		Dur("limit", limit).
		Msg("Session started")

	return s.snapshot(entry), nil
}

// Record stores an answer in the engine, mirrors it to Redis, and queues
// it for durable persistence. The Redis and queue writes are off the
// correctness path: the engine map is authoritative for scoring.
func (s *SessionService) Record(ctx context.Context, userID int, examID uuid.UUID, index int, choice string) error {
	entry, err := s.entry(userID, examID)
	if err != nil {
		return err
	}

	if err := entry.eng.Record(index, choice); err != nil {
		return err
	}

	answersKey := config.CacheKey.UserAnswersKey(examID.String(), userID)
	if err := s.rdb.HSet(ctx, answersKey, fmt.Sprintf("%d", index), choice).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to mirror answer to Redis")
	}

	item, _ := json.Marshal(answerQueueItem{
		UserID:        userID,
		ExamID:        examID.String(),
		QuestionIndex: index,
		Choice:        choice,
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, item).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to enqueue answer for persistence")
	}

	return nil
}

// Navigate moves the current-question pointer using one of the ops
// "goto", "next" or "prev".
func (s *SessionService) Navigate(userID int, examID uuid.UUID, op string, index int) (*SessionState, error) {
	entry, err := s.entry(userID, examID)
	if err != nil {
		return nil, err
	}

	switch op {
	case "goto":
		err = entry.eng.GoTo(index)
	case "next":
		err = entry.eng.Next()
	case "prev":
		err = entry.eng.Prev()
	default:
		err = fmt.Errorf("unknown navigation op: %s", op)
	}
	if err != nil {
		return nil, err
	}
	return s.snapshot(entry), nil
}

// State returns a snapshot of the live session.
func (s *SessionService) State(userID int, examID uuid.UUID) (*SessionState, error) {
	entry, err := s.entry(userID, examID)
	if err != nil {
		return nil, err
	}
	return s.snapshot(entry), nil
}

// Submit terminates and scores the session, queues the attempt for
// persistence, and invalidates the user's cached history. The session
// stays in the registry as SUBMITTED so the result remains readable
// until a retake or discard replaces it.
func (s *SessionService) Submit(ctx context.Context, userID int, examID uuid.UUID) (*session.QuizResult, error) {
	entry, err := s.entry(userID, examID)
	if err != nil {
		return nil, err
	}
	return s.submitEntry(ctx, entry, session.ReasonSubmit)
}

func (s *SessionService) submitEntry(ctx context.Context, entry *sessionEntry, reason session.Reason) (*session.QuizResult, error) {
	result, err := entry.eng.Submit(ctx, s.examService, reason)
	if err != nil {
		return nil, err
	}

	s.persistResult(ctx, entry, result)
	return result, nil
}

// persistResult queues the finished attempt and clears per-session keys.
func (s *SessionService) persistResult(ctx context.Context, entry *sessionEntry, result *session.QuizResult) {
	attempt := model.ExamAttempt{
		ExamID:                 entry.examID,
		UserID:                 entry.userID,
		Score:                  result.Score,
		TotalQuestions:         result.TotalQuestions,
		CorrectAnswers:         result.CorrectAnswers,
		WrongAnswers:           result.WrongAnswers,
		TimeSpentSeconds:       result.TimeSpentSeconds,
		AverageTimePerQuestion: result.AverageTimePerQuestion,
		Difficulty:             result.Difficulty,
		Type:                   result.Type,
		Reason:                 string(result.Reason),
		StartedAt:              entry.startedAt,
		SubmittedAt:            result.SubmittedAt,
	}

	raw, _ := json.Marshal(attempt)
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw).Err(); err != nil {
		s.log.Error().Err(err).
			Int("user_id", entry.userID).
			Str("exam_id", entry.examID.String()).
			Msg("Failed to enqueue result — attempt only in RAM")
	}

	// The start-time record is no longer needed; the answer mirror is
	// cleared by the result worker after the attempt lands in PostgreSQL.
	startKey := config.CacheKey.UserSessionStartKey(entry.examID.String(), entry.userID)
	if err := s.rdb.Del(ctx, startKey).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear session start record")
	}

	// Invalidate cached history; next read repopulates from PostgreSQL.
	historyKey := config.CacheKey.UserHistoryKey(entry.userID)
	if err := s.rdb.Del(ctx, historyKey).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to invalidate history cache")
	}
}

// autoSubmit runs when the countdown fires. Scoring failures are retried
// because a timeout submit has no user to press the button again.
func (s *SessionService) autoSubmit(entry *sessionEntry) {
	ctx := context.Background()

	for attempt := 1; ; attempt++ {
		result, err := s.submitEntry(ctx, entry, session.ReasonTimeout)
		if err == nil {
			s.log.Info().
				Int("user_id", entry.userID).
				Str("exam_id", entry.examID.String()).
				Int("score", result.Score).
				Msg("Session auto-submitted on timeout")
			entry.broadcast(TickEvent{Elapsed: entry.eng.Elapsed(), Remaining: 0})
			return
		}
		if errors.Is(err, session.ErrSessionSubmitted) {
			// The user's submit won the race; nothing left to do.
			return
		}

		s.log.Error().Err(err).
			Int("user_id", entry.userID).
			Str("exam_id", entry.examID.String()).
			Int("attempt", attempt).
			Msg("Timeout scoring failed, retrying")

		if attempt >= 5 {
			s.log.Error().
				Int("user_id", entry.userID).
				Str("exam_id", entry.examID.String()).
				Msg("Giving up on timeout scoring — answers remain recoverable")
			return
		}
		time.Sleep(5 * time.Second)
	}
}

// Retake discards the finished session and starts a fresh one on the
// same exam: full time limit, empty answers, pointer at zero.
func (s *SessionService) Retake(ctx context.Context, userID int, examID uuid.UUID) (*SessionState, error) {
	key := sessionKey(userID, examID)

	s.mu.Lock()
	if entry, ok := s.sessions[key]; ok {
		entry.eng.Close()
		entry.closeSubs()
		delete(s.sessions, key)
	}
	s.mu.Unlock()

	s.clearSessionKeys(ctx, userID, examID)
	return s.Start(ctx, userID, examID)
}

// Discard abandons a session without grading.
func (s *SessionService) Discard(ctx context.Context, userID int, examID uuid.UUID) error {
	key := sessionKey(userID, examID)

	s.mu.Lock()
	entry, ok := s.sessions[key]
	if ok {
		delete(s.sessions, key)
	}
	s.mu.Unlock()

	if !ok {
		return ErrNoActiveSession
	}

	entry.eng.Close()
	entry.closeSubs()
	s.clearSessionKeys(ctx, userID, examID)

	s.log.Info().
		Int("user_id", userID).
		Str("exam_id", examID.String()).
		Msg("Session discarded")
	return nil
}

// IsLive reports whether the user has an in-progress session on the exam.
func (s *SessionService) IsLive(userID int, examID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[sessionKey(userID, examID)]
	return ok && entry.eng.Status() == session.StatusInProgress
}

// Subscribe attaches a tick listener to a live session. The returned
// cancel function must be called when the listener goes away.
func (s *SessionService) Subscribe(userID int, examID uuid.UUID) (<-chan TickEvent, func(), error) {
	entry, err := s.entry(userID, examID)
	if err != nil {
		return nil, nil, err
	}
	id, ch := entry.subscribe()
	return ch, func() { entry.unsubscribe(id) }, nil
}

// Shutdown stops every live session's timer. Called on graceful
// shutdown after the HTTP server has drained.
func (s *SessionService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.sessions {
		entry.eng.Close()
		entry.closeSubs()
		delete(s.sessions, key)
	}
}

// ─── Internal helpers ───────────────────────────────────────────────

func (s *SessionService) entry(userID int, examID uuid.UUID) (*sessionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[sessionKey(userID, examID)]
	if !ok {
		return nil, ErrNoActiveSession
	}
	return entry, nil
}

func (s *SessionService) snapshot(entry *sessionEntry) *SessionState {
	eng := entry.eng
	return &SessionState{
		ExamID:           entry.examID,
		Status:           eng.Status(),
		CurrentIndex:     eng.CurrentIndex(),
		TotalQuestions:   len(eng.QuestionIDs()),
		Answers:          eng.Answers(),
		RemainingSeconds: int(eng.Remaining().Seconds()),
		ElapsedSeconds:   int(eng.Elapsed().Seconds()),
		StartedAt:        entry.startedAt,
		Result:           eng.Result(),
	}
}

// recoverStartTime reads the Redis start-time record for an interrupted
// session. Returns the zero time and false when none exists.
func (s *SessionService) recoverStartTime(ctx context.Context, userID int, examID uuid.UUID) (time.Time, bool) {
	startKey := config.CacheKey.UserSessionStartKey(examID.String(), userID)
	raw, err := s.rdb.Get(ctx, startKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Msg("Failed to read session start record")
		}
		return time.Time{}, false
	}

	startedAt, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		s.log.Warn().Err(err).Str("raw", raw).Msg("Corrupt session start record")
		return time.Time{}, false
	}
	return startedAt, true
}

// recoverAnswers loads autosaved answers from the Redis mirror, falling
// back to the PostgreSQL mirror when Redis has nothing.
func (s *SessionService) recoverAnswers(ctx context.Context, userID int, examID uuid.UUID, total int) map[int]string {
	answers := make(map[int]string)

	answersKey := config.CacheKey.UserAnswersKey(examID.String(), userID)
	raw, err := s.rdb.HGetAll(ctx, answersKey).Result()
	if err == nil && len(raw) > 0 {
		for field, choice := range raw {
			var idx int
			if _, err := fmt.Sscanf(field, "%d", &idx); err != nil {
				continue
			}
			if idx >= 0 && idx < total {
				answers[idx] = choice
			}
		}
		return answers
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("Redis answer mirror read failed, falling back to PostgreSQL")
	}

	persisted, err := s.answerRepo.Load(ctx, examID, userID)
	if err != nil {
		s.log.Error().Err(err).Msg("PostgreSQL answer mirror read failed, recovering empty")
		return answers
	}
	for idx, choice := range persisted {
		if idx >= 0 && idx < total {
			answers[idx] = choice
		}
	}
	return answers
}

// clearSessionKeys removes per-session Redis state (start record and
// answer mirror) and the PostgreSQL autosave rows.
func (s *SessionService) clearSessionKeys(ctx context.Context, userID int, examID uuid.UUID) {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.UserSessionStartKey(examID.String(), userID))
	pipe.Del(ctx, config.CacheKey.UserAnswersKey(examID.String(), userID))
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear session Redis keys")
	}

	if err := s.answerRepo.DeleteBySession(ctx, examID, userID); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear persisted session answers")
	}
}
