package agent

import "errors"

var (
	// ErrReasoningTimeout is returned when the reasoning step does not answer
	// within the configured timeout. The caller's state is left untouched.
	ErrReasoningTimeout = errors.New("reasoning step timed out")
	// ErrReasoningUnavailable is returned when the reasoning provider fails or
	// returns a malformed message. The caller's state is left untouched.
	ErrReasoningUnavailable = errors.New("reasoning step unavailable")
	// ErrLoopLimitExceeded is returned when the reasoning step keeps requesting
	// tools beyond the configured number of cycles.
	ErrLoopLimitExceeded = errors.New("agent loop limit exceeded")
	// ErrTurnCanceled is returned when the caller's context ends the turn
	// before an answer. It wraps the context error. The caller's state is
	// left untouched.
	ErrTurnCanceled = errors.New("turn canceled")
)

// stepError carries an error raised inside a loop node out of the graph,
// past the graph's own wrapping.
type stepError struct {
	err error
}

func (e *stepError) Error() string { return e.err.Error() }

func (e *stepError) Unwrap() error { return e.err }
