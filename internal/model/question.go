package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Question represents a single multiple-choice exam question.
type Question struct {
	ID            uuid.UUID       `json:"id"`
	ExamID        uuid.UUID       `json:"exam_id"`
	Prompt        string          `json:"prompt"`
	Options       json.RawMessage `json:"options"`
	CorrectAnswer string          `json:"correct_answer"`
	Difficulty    string          `json:"difficulty"`
	Topic         string          `json:"topic"`
	OrderNum      int             `json:"order_num"`
}

// QuestionForTaker is a question without the correct answer, sent to takers.
type QuestionForTaker struct {
	ID       uuid.UUID       `json:"id"`
	Prompt   string          `json:"prompt"`
	Options  json.RawMessage `json:"options"`
	OrderNum int             `json:"order_num"`
}

// AddQuestionRequest is the payload for adding a question to an exam.
type AddQuestionRequest struct {
	Prompt        string          `json:"prompt" binding:"required,min=1,max=2000"`
	Options       json.RawMessage `json:"options" binding:"required"`
	CorrectAnswer string          `json:"correct_answer" binding:"required,max=10"`
	Difficulty    string          `json:"difficulty" binding:"omitempty,oneof=easy medium hard"`
	Topic         string          `json:"topic" binding:"omitempty,max=100"`
	OrderNum      int             `json:"order_num" binding:"min=0"`
}

// ReplaceQuestionsRequest is the payload for bulk replacing questions.
type ReplaceQuestionsRequest struct {
	Questions []AddQuestionRequest `json:"questions" binding:"dive"`
}
