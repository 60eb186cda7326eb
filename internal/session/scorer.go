package session

import (
	"math"
	"time"
)

// QuestionRef is the read-only view of a question the scorer needs. The
// engine never mutates the question bank; it only compares recorded
// choices against CorrectAnswer.
type QuestionRef struct {
	ID            string `json:"id"`
	CorrectAnswer string `json:"correct_answer"`
	Difficulty    string `json:"difficulty"`
	Topic         string `json:"topic"`
}

// Reason identifies which termination path produced a result.
type Reason string

const (
	ReasonSubmit  Reason = "SUBMIT"
	ReasonTimeout Reason = "TIMEOUT"
)

// QuizResult is the immutable outcome of one exam session.
// CorrectAnswers + WrongAnswers always equals TotalQuestions.
type QuizResult struct {
	ExamID                 string    `json:"exam_id"`
	Score                  int       `json:"score"`
	TotalQuestions         int       `json:"total_questions"`
	CorrectAnswers         int       `json:"correct_answers"`
	WrongAnswers           int       `json:"wrong_answers"`
	TimeSpentSeconds       int       `json:"time_spent_seconds"`
	AverageTimePerQuestion float64   `json:"average_time_per_question"`
	Difficulty             string    `json:"difficulty"`
	Type                   string    `json:"type"`
	Reason                 Reason    `json:"reason"`
	SubmittedAt            time.Time `json:"submitted_at"`
}

// Score grades a finished session. It is a pure function: identical
// inputs always yield an identical result.
//
// An index missing from answers counts as wrong. That is deliberate
// policy, not an oversight: skipped questions lower the score exactly
// like incorrect ones.
func Score(answers map[int]string, refs []QuestionRef, timeSpent time.Duration, difficulty, examType string) QuizResult {
	total := len(refs)

	correct := 0
	for i := range refs {
		if choice, ok := answers[i]; ok && choice == refs[i].CorrectAnswer {
			correct++
		}
	}

	score := 0
	if total > 0 {
		score = int(math.Round(float64(correct) / float64(total) * 100))
	}

	seconds := int(timeSpent.Seconds())

	avg := 0.0
	if total > 0 {
		avg = timeSpent.Seconds() / float64(total)
	}

	return QuizResult{
		Score:                  score,
		TotalQuestions:         total,
		CorrectAnswers:         correct,
		WrongAnswers:           total - correct,
		TimeSpentSeconds:       seconds,
		AverageTimePerQuestion: avg,
		Difficulty:             difficulty,
		Type:                   examType,
	}
}
