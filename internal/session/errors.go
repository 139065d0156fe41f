package session

import "errors"

var (
	// ErrNotFound means no session exists for the code, or the caller is
	// not allowed to know whether one does.
	ErrNotFound = errors.New("session not found")
	// ErrClosed means a mutating operation was attempted after closure.
	ErrClosed = errors.New("session closed")
	// ErrConflict means an optimistic update lost the race after bounded retries.
	ErrConflict = errors.New("session modified concurrently")
	// ErrAlreadyExists means an insert collided with an existing session code.
	ErrAlreadyExists = errors.New("session code already exists")
	// ErrNoMatch is returned by conditional updates when the record is
	// absent or the predicate no longer holds.
	ErrNoMatch = errors.New("no session matched predicate")
	// ErrMalformedAnswers means the submitted answer payload is structurally invalid.
	ErrMalformedAnswers = errors.New("malformed answers payload")

	// ErrContentRejected means the generator flagged the topic as invalid or unsafe.
	ErrContentRejected = errors.New("topic rejected by question generator")
	// ErrGeneratorUnavailable means the generator was unreachable or returned
	// a malformed payload.
	ErrGeneratorUnavailable = errors.New("question generator unavailable")
	// ErrUpstreamTimeout means the generator did not answer within the deadline.
	ErrUpstreamTimeout = errors.New("question generator timed out")
)
