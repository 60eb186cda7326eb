package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// stubSource serves a fixed answer key, optionally failing first.
type stubSource struct {
	refs     []QuestionRef
	failures int
	calls    int
}

func (s *stubSource) QuestionRefs(_ context.Context, _ string, ids []string) ([]QuestionRef, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, errors.New("question bank unreachable")
	}
	return s.refs, nil
}

// fakeClock is a manually advanced clock shared with the session under
// test. Timer goroutines never read it, so no locking is needed.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestSession(t *testing.T, ids []string, refs []QuestionRef, clk *fakeClock) (*Session, *stubSource) {
	t.Helper()
	s, err := New("exam-1", ids, Config{Clock: clk.Now})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	return s, &stubSource{refs: refs}
}

func TestNewRejectsEmptySession(t *testing.T) {
	_, err := New("exam-1", nil, Config{})
	if !errors.Is(err, ErrEmptySession) {
		t.Fatalf("expected ErrEmptySession, got %v", err)
	}
}

func TestNewInitialState(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	s, _ := newTestSession(t, []string{"q1", "q2"}, nil, clk)

	if s.Status() != StatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", s.Status())
	}
	if s.CurrentIndex() != 0 {
		t.Fatalf("expected index 0, got %d", s.CurrentIndex())
	}
	if len(s.Answers()) != 0 {
		t.Fatalf("expected empty answers, got %v", s.Answers())
	}
	if !s.StartedAt().Equal(clk.now) {
		t.Fatalf("startedAt not captured from clock")
	}
}

func TestRecordLastWriteWins(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	s, _ := newTestSession(t, []string{"q1", "q2"}, nil, clk)

	if err := s.Record(1, "A"); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Record(1, "B"); err != nil {
		t.Fatalf("Record overwrite: %v", err)
	}

	choice, ok := s.Answer(1)
	if !ok || choice != "B" {
		t.Fatalf("expected last write B, got %q (answered=%v)", choice, ok)
	}
	if s.IsAnswered(0) {
		t.Fatal("index 0 should be unanswered")
	}
	if err := s.Record(5, "A"); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
}

func TestNavigatorClamps(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	s, _ := newTestSession(t, []string{"q1", "q2", "q3"}, nil, clk)

	tests := []struct {
		name string
		move func() error
		want int
	}{
		{"goto in range", func() error { return s.GoTo(2) }, 2},
		{"next clamps at end", s.Next, 2},
		{"goto past end clamps", func() error { return s.GoTo(99) }, 2},
		{"goto negative clamps", func() error { return s.GoTo(-4) }, 0},
		{"prev clamps at start", s.Prev, 0},
		{"next from start", s.Next, 1},
	}
	for _, tc := range tests {
		if err := tc.move(); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got := s.CurrentIndex(); got != tc.want {
			t.Fatalf("%s: expected index %d, got %d", tc.name, tc.want, got)
		}
	}
}

// Navigating must neither clear answers nor disturb the clock.
func TestNavigationIndependence(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	s, err := New("exam-1", []string{"q1", "q2", "q3"}, Config{
		Limit: 10 * time.Minute,
		Clock: clk.Now,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	_ = s.Record(0, "A")
	_ = s.Record(2, "C")

	clk.Advance(3 * time.Minute)
	before := s.Remaining()

	for _, idx := range []int{2, 0, 1, 2} {
		if err := s.GoTo(idx); err != nil {
			t.Fatalf("GoTo(%d): %v", idx, err)
		}
	}

	if got := s.Remaining(); got != before {
		t.Fatalf("navigation disturbed the timer: before=%v after=%v", before, got)
	}
	want := map[int]string{0: "A", 2: "C"}
	got := s.Answers()
	if len(got) != len(want) || got[0] != "A" || got[2] != "C" {
		t.Fatalf("navigation mutated answers: %v", got)
	}
}

func TestSubmitScoresOnce(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	s, src := newTestSession(t, []string{"q1", "q2", "q3", "q4", "q5"},
		refsFor("A", "B", "C", "D", "A"), clk)

	for idx, choice := range map[int]string{0: "A", 1: "B", 2: "X", 4: "A"} {
		if err := s.Record(idx, choice); err != nil {
			t.Fatalf("Record(%d): %v", idx, err)
		}
	}

	clk.Advance(100 * time.Second)
	result, err := s.Submit(context.Background(), src, ReasonSubmit)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if result.TotalQuestions != 5 || result.CorrectAnswers != 3 || result.WrongAnswers != 2 || result.Score != 60 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.TimeSpentSeconds != 100 {
		t.Fatalf("expected timeSpent=100s, got %d", result.TimeSpentSeconds)
	}
	if result.Reason != ReasonSubmit {
		t.Fatalf("expected reason SUBMIT, got %s", result.Reason)
	}
	if s.Status() != StatusSubmitted {
		t.Fatalf("expected SUBMITTED, got %s", s.Status())
	}

	// The terminal state refuses every further mutation.
	if err := s.Record(0, "B"); !errors.Is(err, ErrSessionSubmitted) {
		t.Fatalf("Record after submit: expected ErrSessionSubmitted, got %v", err)
	}
	if err := s.Next(); !errors.Is(err, ErrSessionSubmitted) {
		t.Fatalf("Next after submit: expected ErrSessionSubmitted, got %v", err)
	}
	if _, err := s.Submit(context.Background(), src, ReasonSubmit); !errors.Is(err, ErrSessionSubmitted) {
		t.Fatalf("resubmit: expected ErrSessionSubmitted, got %v", err)
	}
}

// Concurrent submits (user button racing timer expiry) must produce
// exactly one result.
func TestSubmitExclusive(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	s, src := newTestSession(t, []string{"q1", "q2"}, refsFor("A", "B"), clk)

	const attempts = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*QuizResult
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res, err := s.Submit(context.Background(), src, ReasonSubmit); err == nil {
				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(results) != 1 {
		t.Fatalf("expected exactly one QuizResult, got %d", len(results))
	}
}

func TestSubmitRetriesAfterLookupFailure(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	s, _ := newTestSession(t, []string{"q1", "q2"}, nil, clk)
	src := &stubSource{refs: refsFor("A", "B"), failures: 1}

	_ = s.Record(0, "A")

	_, err := s.Submit(context.Background(), src, ReasonSubmit)
	if !errors.Is(err, ErrScoringUnavailable) {
		t.Fatalf("expected ErrScoringUnavailable, got %v", err)
	}
	if s.Status() != StatusInProgress {
		t.Fatalf("failed scoring must leave session IN_PROGRESS, got %s", s.Status())
	}
	// Answers survive the failed attempt and a retry succeeds.
	if !s.IsAnswered(0) {
		t.Fatal("answers lost after failed submit")
	}
	result, err := s.Submit(context.Background(), src, ReasonSubmit)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if result.CorrectAnswers != 1 || result.WrongAnswers != 1 {
		t.Fatalf("unexpected retry result: %+v", result)
	}
}

func TestCountdownTimeout(t *testing.T) {
	expired := make(chan struct{})
	s, err := New("exam-1", []string{"q1", "q2"}, Config{
		Limit:        20 * time.Millisecond,
		TickInterval: 2 * time.Millisecond,
		OnExpire:     func() { close(expired) },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("countdown never expired")
	}

	// After expiry no further input is accepted, but the timeout
	// submission itself still runs.
	if err := s.Record(0, "A"); !errors.Is(err, ErrSessionSubmitted) {
		t.Fatalf("Record after timeout: expected ErrSessionSubmitted, got %v", err)
	}

	src := &stubSource{refs: refsFor("A", "B")}
	result, err := s.Submit(context.Background(), src, ReasonTimeout)
	if err != nil {
		t.Fatalf("timeout submit: %v", err)
	}
	if result.CorrectAnswers != 0 || result.WrongAnswers != 2 || result.Score != 0 {
		t.Fatalf("unexpected timeout result: %+v", result)
	}
	if result.Reason != ReasonTimeout {
		t.Fatalf("expected reason TIMEOUT, got %s", result.Reason)
	}

	// Time spent is capped at the configured limit.
	if result.TimeSpentSeconds > 1 {
		t.Fatalf("timeSpent not capped: %d", result.TimeSpentSeconds)
	}
}

func TestRetakeIsFreshSession(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	ids := []string{"q1", "q2"}
	first, src := newTestSession(t, ids, refsFor("A", "B"), clk)

	_ = first.Record(0, "A")
	_ = first.GoTo(1)
	clk.Advance(30 * time.Second)

	original, err := first.Submit(context.Background(), src, ReasonSubmit)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	snapshot := *original

	// Retake re-enters the loader with the same question sequence.
	clk.Advance(time.Minute)
	retake, err := New(first.ExamID(), first.QuestionIDs(), Config{Clock: clk.Now})
	if err != nil {
		t.Fatalf("retake New: %v", err)
	}
	defer retake.Close()

	if retake.CurrentIndex() != 0 || len(retake.Answers()) != 0 || retake.Status() != StatusInProgress {
		t.Fatalf("retake is not a fresh session: idx=%d answers=%v status=%s",
			retake.CurrentIndex(), retake.Answers(), retake.Status())
	}
	if !retake.StartedAt().After(first.StartedAt()) {
		t.Fatal("retake did not capture a new start time")
	}
	if *first.Result() != snapshot {
		t.Fatalf("original result mutated by retake: %+v", first.Result())
	}
}

func TestCloseStopsTimer(t *testing.T) {
	s, err := New("exam-1", []string{"q1"}, Config{
		Limit:        time.Hour,
		TickInterval: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.Close()
	s.Close() // idempotent

	select {
	case <-s.timer.Done():
	case <-time.After(time.Second):
		t.Fatal("timer goroutine still running after Close")
	}
}

func TestCountUpModeNeverExpires(t *testing.T) {
	var mu sync.Mutex
	ticks := 0
	s, err := New("exam-1", []string{"q1"}, Config{
		TickInterval: time.Millisecond,
		OnTick: func(elapsed, remaining time.Duration) {
			mu.Lock()
			ticks++
			mu.Unlock()
			if remaining != 0 {
				t.Errorf("count-up mode reported remaining=%v", remaining)
			}
		},
		OnExpire: func() { t.Error("count-up timer must not expire") },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	n := ticks
	mu.Unlock()
	if n == 0 {
		t.Fatal("count-up timer never ticked")
	}
}
