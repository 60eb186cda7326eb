package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamAttempt is the persisted history record of one finished session.
// It mirrors the engine's QuizResult plus ownership and timing fields.
type ExamAttempt struct {
	ID                     uuid.UUID `json:"id"`
	ExamID                 uuid.UUID `json:"exam_id"`
	UserID                 int       `json:"user_id"`
	Score                  int       `json:"score"`
	TotalQuestions         int       `json:"total_questions"`
	CorrectAnswers         int       `json:"correct_answers"`
	WrongAnswers           int       `json:"wrong_answers"`
	TimeSpentSeconds       int       `json:"time_spent_seconds"`
	AverageTimePerQuestion float64   `json:"average_time_per_question"`
	Difficulty             string    `json:"difficulty"`
	Type                   string    `json:"type"`
	Reason                 string    `json:"reason"`
	StartedAt              time.Time `json:"started_at"`
	SubmittedAt            time.Time `json:"submitted_at"`
}

// RecordAnswerRequest is the payload for recording a single answer.
type RecordAnswerRequest struct {
	QuestionIndex int    `json:"question_index" binding:"min=0"`
	Choice        string `json:"choice" binding:"required,max=10"`
}

// NavigateRequest is the payload for moving the current-question pointer.
type NavigateRequest struct {
	Op    string `json:"op" binding:"required,oneof=goto next prev"`
	Index int    `json:"index" binding:"min=0"`
}
