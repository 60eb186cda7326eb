package session

import "errors"

// Sentinel errors for the exam session engine. Handlers map these onto
// typed API error codes.
var (
	// ErrEmptySession is returned when a session is started with zero
	// questions. No timer is started in that case.
	ErrEmptySession = errors.New("session has no questions")

	// ErrScoringUnavailable wraps a failed question lookup during
	// submission. The session stays IN_PROGRESS and submit may be retried.
	ErrScoringUnavailable = errors.New("scoring unavailable")

	// ErrSessionSubmitted is returned by any mutation attempted after the
	// session terminated. Normal UI flows never hit this; it guards
	// against double submission and late writes.
	ErrSessionSubmitted = errors.New("session already submitted")

	// ErrIndexOutOfRange is returned when an answer is recorded for a
	// position outside the question sequence.
	ErrIndexOutOfRange = errors.New("question index out of range")
)
