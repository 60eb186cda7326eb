package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer Action = "answer"
	ActionGoTo   Action = "goto"
	ActionNext   Action = "next"
	ActionPrev   Action = "prev"
	ActionSubmit Action = "submit"
	ActionState  Action = "state"
	ActionPing   Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest is sent by the client to record an answer for one question.
// Re-answering the same index overwrites the previous choice.
type AnswerRequest struct {
	Action        Action `json:"action"`
	QuestionIndex int    `json:"question_index"`
	Choice        string `json:"choice"`
}

// GoToRequest is sent by the client to jump to a specific question.
type GoToRequest struct {
	Action Action `json:"action"`
	Index  int    `json:"index"`
}

// SubmitRequest is sent by the client to finish and score the session.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError  Event = "error"
	EventSaved  Event = "saved"
	EventState  Event = "state"
	EventTick   Event = "tick"
	EventResult Event = "result"
	EventPong   Event = "pong"
)

// SavedResponse acknowledges a recorded answer.
type SavedResponse struct {
	Event         Event  `json:"event"`
	QuestionIndex int    `json:"question_index"`
	Choice        string `json:"choice"`
}

// StateResponse carries a full session snapshot, sent after navigation
// and on explicit state requests.
type StateResponse struct {
	Event            Event          `json:"event"`
	Status           string         `json:"status"`
	CurrentIndex     int            `json:"current_index"`
	TotalQuestions   int            `json:"total_questions"`
	Answers          map[int]string `json:"answers"`
	RemainingSeconds int            `json:"remaining_seconds"`
	ElapsedSeconds   int            `json:"elapsed_seconds"`
}

// TickResponse is pushed every timer tick.
type TickResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
	ElapsedSeconds   int   `json:"elapsed_seconds"`
}

// ResultResponse carries the final score, pushed after a submit or a
// countdown timeout.
type ResultResponse struct {
	Event  Event       `json:"event"`
	Reason string      `json:"reason"`
	Result interface{} `json:"result"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
