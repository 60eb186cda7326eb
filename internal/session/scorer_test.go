package session

import (
	"testing"
	"time"
)

func refsFor(correct ...string) []QuestionRef {
	refs := make([]QuestionRef, len(correct))
	for i, c := range correct {
		refs[i] = QuestionRef{ID: string(rune('a' + i)), CorrectAnswer: c}
	}
	return refs
}

func TestScore(t *testing.T) {
	tests := []struct {
		name        string
		correct     []string
		answers     map[int]string
		timeSpent   time.Duration
		wantScore   int
		wantCorrect int
		wantWrong   int
		wantAvg     float64
	}{
		{
			name:        "full marks",
			correct:     []string{"A", "B"},
			answers:     map[int]string{0: "A", 1: "B"},
			timeSpent:   60 * time.Second,
			wantScore:   100,
			wantCorrect: 2,
			wantWrong:   0,
			wantAvg:     30,
		},
		{
			name:        "unanswered counts as wrong",
			correct:     []string{"A", "B", "C"},
			answers:     map[int]string{0: "A"},
			timeSpent:   30 * time.Second,
			wantScore:   33,
			wantCorrect: 1,
			wantWrong:   2,
			wantAvg:     10,
		},
		{
			name:        "worked example five questions",
			correct:     []string{"A", "B", "C", "D", "A"},
			answers:     map[int]string{0: "A", 1: "B", 2: "X", 4: "A"},
			timeSpent:   100 * time.Second,
			wantScore:   60,
			wantCorrect: 3,
			wantWrong:   2,
			wantAvg:     20,
		},
		{
			name:        "nothing answered",
			correct:     []string{"A", "B"},
			answers:     map[int]string{},
			timeSpent:   10 * time.Second,
			wantScore:   0,
			wantCorrect: 0,
			wantWrong:   2,
			wantAvg:     5,
		},
		{
			name:        "rounding goes to nearest",
			correct:     []string{"A", "B", "C", "D", "E", "F"},
			answers:     map[int]string{0: "A"},
			timeSpent:   60 * time.Second,
			wantScore:   17, // 1/6 = 16.67 rounds up
			wantCorrect: 1,
			wantWrong:   5,
			wantAvg:     10,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Score(tc.answers, refsFor(tc.correct...), tc.timeSpent, "medium", "mock")

			if got.Score != tc.wantScore {
				t.Fatalf("expected score=%d, got=%d", tc.wantScore, got.Score)
			}
			if got.CorrectAnswers != tc.wantCorrect {
				t.Fatalf("expected correct=%d, got=%d", tc.wantCorrect, got.CorrectAnswers)
			}
			if got.WrongAnswers != tc.wantWrong {
				t.Fatalf("expected wrong=%d, got=%d", tc.wantWrong, got.WrongAnswers)
			}
			if got.CorrectAnswers+got.WrongAnswers != got.TotalQuestions {
				t.Fatalf("correct+wrong=%d does not equal total=%d",
					got.CorrectAnswers+got.WrongAnswers, got.TotalQuestions)
			}
			if got.AverageTimePerQuestion != tc.wantAvg {
				t.Fatalf("expected avg=%v, got=%v", tc.wantAvg, got.AverageTimePerQuestion)
			}
			if got.Difficulty != "medium" || got.Type != "mock" {
				t.Fatalf("labels not carried through: %+v", got)
			}
		})
	}
}

func TestScoreDeterministic(t *testing.T) {
	answers := map[int]string{0: "A", 2: "C"}
	refs := refsFor("A", "B", "C")

	first := Score(answers, refs, 45*time.Second, "hard", "mock")
	second := Score(answers, refs, 45*time.Second, "hard", "mock")

	if first != second {
		t.Fatalf("scorer is not deterministic:\nfirst=%+v\nsecond=%+v", first, second)
	}
}
