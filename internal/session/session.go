// Package session implements the mock exam session engine: a timed,
// navigable, server-owned question sequence that collects answers and
// grades them exactly once on termination.
//
// The engine is deliberately free of transport and storage concerns so
// it can be tested in isolation; services wire it to Redis, PostgreSQL
// and WebSocket subscribers.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Status enumerates session states. The transition is one-directional:
// IN_PROGRESS → SUBMITTED, triggered by explicit submit or timer expiry.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusSubmitted  Status = "SUBMITTED"
)

// QuestionSource resolves the correct answers for a question sequence at
// scoring time. A lookup that cannot return a ref for every id must
// fail — scoring is all-or-nothing.
type QuestionSource interface {
	QuestionRefs(ctx context.Context, examID string, questionIDs []string) ([]QuestionRef, error)
}

// Config carries per-session settings supplied by the session service.
type Config struct {
	// Limit is the countdown duration. Zero means count-up practice
	// mode: the timer ticks but never expires.
	Limit time.Duration

	// TickInterval overrides the 1-second tick, for tests only.
	TickInterval time.Duration

	Difficulty string
	Type       string

	// OnTick is invoked once per tick with elapsed and remaining time.
	// Remaining is zero in count-up mode.
	OnTick func(elapsed, remaining time.Duration)

	// OnExpire is invoked exactly once when a countdown reaches zero.
	OnExpire func()

	// Clock overrides time.Now, for tests only.
	Clock func() time.Time
}

// Session is one attempt at a mock exam, from start to submission.
// All exported methods are safe for concurrent use; the timer goroutine
// and transport callbacks interleave freely on a live session.
type Session struct {
	examID      string
	questionIDs []string
	startedAt   time.Time
	cfg         Config
	timer       *Timer

	mu           sync.Mutex
	currentIndex int
	answers      map[int]string
	status       Status
	result       *QuizResult

	// terminating is the one-shot submission guard: timer expiry and a
	// user submit can race, and only the first caller may run the
	// scorer. Released again if scoring fails, so submit can be retried.
	terminating atomic.Bool

	// expired is latched when the countdown fires. After that no
	// further answers or navigation are accepted, even while a failed
	// scoring attempt leaves the status IN_PROGRESS.
	expired atomic.Bool
}

// New creates a session over a fixed, ordered question sequence and
// starts its timer. The sequence must be non-empty; an empty exam
// returns ErrEmptySession and no timer is started.
func New(examID string, questionIDs []string, cfg Config) (*Session, error) {
	if len(questionIDs) == 0 {
		return nil, ErrEmptySession
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	ids := make([]string, len(questionIDs))
	copy(ids, questionIDs)

	s := &Session{
		examID:      examID,
		questionIDs: ids,
		startedAt:   cfg.Clock(),
		cfg:         cfg,
		answers:     make(map[int]string),
		status:      StatusInProgress,
	}

	s.timer = newTimer(cfg.Limit, cfg.TickInterval, cfg.OnTick, func() {
		s.expired.Store(true)
		if cfg.OnExpire != nil {
			cfg.OnExpire()
		}
	})
	s.timer.start()

	return s, nil
}

// ─── Navigator ──────────────────────────────────────────────────────

// GoTo moves the current-question pointer. Out-of-range targets clamp
// to [0, len-1] — navigation is always permitted regardless of whether
// any question is answered, and it never touches answers or the timer.
func (s *Session) GoTo(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goToLocked(index)
}

// Next advances the pointer by one, clamping at the last question.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goToLocked(s.currentIndex + 1)
}

// Prev moves the pointer back by one, clamping at the first question.
func (s *Session) Prev() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goToLocked(s.currentIndex - 1)
}

func (s *Session) goToLocked(index int) error {
	if err := s.writableLocked(); err != nil {
		return err
	}
	if index < 0 {
		index = 0
	}
	if index > len(s.questionIDs)-1 {
		index = len(s.questionIDs) - 1
	}
	s.currentIndex = index
	return nil
}

// ─── Answer Recorder ────────────────────────────────────────────────

// Record stores the selected choice for a question position,
// overwriting any prior value. No correctness checking happens here;
// grading is the Scorer's job at termination.
func (s *Session) Record(index int, choice string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writableLocked(); err != nil {
		return err
	}
	if index < 0 || index >= len(s.questionIDs) {
		return ErrIndexOutOfRange
	}
	s.answers[index] = choice
	return nil
}

// IsAnswered reports whether a choice has been recorded for the index.
func (s *Session) IsAnswered(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.answers[index]
	return ok
}

// Answer returns the recorded choice for the index, if any.
func (s *Session) Answer(index int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	choice, ok := s.answers[index]
	return choice, ok
}

// writableLocked rejects mutation once termination has begun: after a
// submit starts, after the countdown fires, or after SUBMITTED. This
// closes the race where a late answer lands after the scorer read the
// map.
func (s *Session) writableLocked() error {
	if s.status == StatusSubmitted || s.terminating.Load() || s.expired.Load() {
		return ErrSessionSubmitted
	}
	return nil
}

// ─── Scorer / termination ───────────────────────────────────────────

// Submit terminates the session and grades it. Exactly one caller wins:
// concurrent submits (user button vs timer expiry) beyond the first
// return ErrSessionSubmitted and produce no result.
//
// If the question lookup fails the guard is released, the session stays
// IN_PROGRESS and the caller may retry; answers are never lost. Once
// scoring starts it runs to completion even if the countdown expires
// mid-flight.
func (s *Session) Submit(ctx context.Context, src QuestionSource, reason Reason) (*QuizResult, error) {
	if !s.terminating.CompareAndSwap(false, true) {
		return nil, ErrSessionSubmitted
	}

	s.mu.Lock()
	if s.status == StatusSubmitted {
		s.mu.Unlock()
		return nil, ErrSessionSubmitted
	}
	answers := make(map[int]string, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	s.mu.Unlock()

	refs, err := src.QuestionRefs(ctx, s.examID, s.questionIDs)
	if err == nil && len(refs) != len(s.questionIDs) {
		err = fmt.Errorf("resolved %d of %d questions", len(refs), len(s.questionIDs))
	}
	if err != nil {
		s.terminating.Store(false)
		return nil, fmt.Errorf("%w: %s", ErrScoringUnavailable, err)
	}

	now := s.cfg.Clock()
	timeSpent := now.Sub(s.startedAt)
	if s.cfg.Limit > 0 && timeSpent > s.cfg.Limit {
		// An exam that expired exactly at the limit reports the limit.
		timeSpent = s.cfg.Limit
	}

	result := Score(answers, refs, timeSpent, s.cfg.Difficulty, s.cfg.Type)
	result.ExamID = s.examID
	result.Reason = reason
	result.SubmittedAt = now

	s.mu.Lock()
	s.status = StatusSubmitted
	s.result = &result
	s.mu.Unlock()

	s.timer.Stop()
	return &result, nil
}

// Close stops the timer without grading. Used when the user abandons
// the session; safe to call on any session in any state, repeatedly.
func (s *Session) Close() {
	s.timer.Stop()
}

// ─── Read accessors ─────────────────────────────────────────────────

func (s *Session) ExamID() string { return s.examID }

func (s *Session) StartedAt() time.Time { return s.startedAt }

// QuestionIDs returns a copy of the fixed question sequence.
func (s *Session) QuestionIDs() []string {
	ids := make([]string, len(s.questionIDs))
	copy(ids, s.questionIDs)
	return ids
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentIndex
}

// Answers returns a copy of the sparse answer map keyed by position.
func (s *Session) Answers() map[int]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int]string, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// Result returns the computed result, or nil while IN_PROGRESS.
func (s *Session) Result() *QuizResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Remaining reports the countdown time left, clamped at zero. Count-up
// sessions always report zero remaining.
func (s *Session) Remaining() time.Duration {
	if s.cfg.Limit <= 0 {
		return 0
	}
	remaining := s.cfg.Limit - s.cfg.Clock().Sub(s.startedAt)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Elapsed reports wall-clock time since the session started.
func (s *Session) Elapsed() time.Duration {
	return s.cfg.Clock().Sub(s.startedAt)
}
