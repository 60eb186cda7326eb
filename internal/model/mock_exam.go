package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of a mock exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// MockExam represents a timed mock exam definition. DurationMinutes of
// zero means a practice exam with a count-up timer and no time limit.
type MockExam struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	AuthorID        int        `json:"author_id"`
	DurationMinutes int        `json:"duration_minutes"`
	Difficulty      string     `json:"difficulty"`
	Type            string     `json:"type"`
	QuestionCount   int        `json:"question_count"`
	Status          ExamStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// CreateMockExamRequest is the payload for creating a new mock exam.
type CreateMockExamRequest struct {
	Title           string `json:"title" binding:"required,min=3,max=255"`
	DurationMinutes int    `json:"duration_minutes" binding:"min=0,max=480"`
	Difficulty      string `json:"difficulty" binding:"omitempty,oneof=easy medium hard"`
	Type            string `json:"type" binding:"omitempty,oneof=mock practice"`
}

// UpdateMockExamRequest is the payload for updating a draft mock exam.
type UpdateMockExamRequest struct {
	Title           string `json:"title" binding:"omitempty,min=3,max=255"`
	DurationMinutes *int   `json:"duration_minutes" binding:"omitempty,min=0,max=480"`
	Difficulty      string `json:"difficulty" binding:"omitempty,oneof=easy medium hard"`
	Type            string `json:"type" binding:"omitempty,oneof=mock practice"`
}

// AttemptSummary aggregates one user's finished attempts on one exam.
type AttemptSummary struct {
	Attempts    int       `json:"attempts"`
	BestScore   int       `json:"best_score"`
	LastTakenAt time.Time `json:"last_taken_at"`
}

// LobbyExam is a published exam overlaid with the viewing user's
// attempt status: whether a session is live and how past attempts went.
type LobbyExam struct {
	MockExam
	Live    bool            `json:"live"`
	History *AttemptSummary `json:"history,omitempty"`
}

// ExamPayload is the Redis-cached payload sent to takers (no correct answers).
type ExamPayload struct {
	ExamID          uuid.UUID          `json:"exam_id"`
	Title           string             `json:"title"`
	DurationMinutes int                `json:"duration_minutes"`
	Difficulty      string             `json:"difficulty"`
	Type            string             `json:"type"`
	Questions       []QuestionForTaker `json:"questions"`
}

// QuestionIDs returns the payload's fixed question sequence, in order.
func (p *ExamPayload) QuestionIDs() []string {
	ids := make([]string, len(p.Questions))
	for i := range p.Questions {
		ids[i] = p.Questions[i].ID.String()
	}
	return ids
}
