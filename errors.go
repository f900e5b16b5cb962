package socketdispatch

import (
	"errors"
	"fmt"
)

// Token is a caller-safe error code. Tokens are the only errors that cross
// the connection; they are sent as plain strings.
type Token string

func (t Token) Error() string { return string(t) }

// Fixed tokens sent by the Dispatcher itself.
const (
	// TokenServerError replaces every internal failure.
	TokenServerError Token = "server_error"

	// TokenPreviousProcessRunning reports a lock rejection.
	TokenPreviousProcessRunning Token = "previous_process_was_running"

	// TokenTimeout reports a stage that exceeded WithStageTimeout.
	TokenTimeout Token = "timeout"
)

// ErrConnectionHandled is returned by HandleConnection when a connection with
// the same ID is already attached.
var ErrConnectionHandled = errors.New("connection already handled")

// errNoHandler is the failure of a definition declared without a handler.
var errNoHandler = errors.New("event has no handler")

// ValidationError carries the failures of a rejected payload. Only the first
// failure's message is sent to the caller.
type ValidationError struct {
	Failures []Failure
}

func (e *ValidationError) Error() string {
	if len(e.Failures) == 0 {
		return "validation failed"
	}
	return e.Failures[0].Message
}

// panicError wraps a recovered panic so it flows through the same
// containment as returned errors.
type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.value) }

// asToken reports the Token carried by err, if any.
func asToken(err error) (Token, bool) {
	var tok Token
	if errors.As(err, &tok) {
		return tok, true
	}
	return "", false
}
