package socketdispatch

import (
	"context"
	"encoding/json"
	"fmt"
)

// Conn is the part of a real-time connection the Dispatcher needs.
//
// Implement Conn to plug in a transport:
//
//	type sioConn struct{ s *gosocketio.Socket }
//
//	func (c sioConn) ID() string { return c.s.ID() }
//
//	func (c sioConn) On(event string, l socketdispatch.Listener) {
//	    c.s.On(event, func(data ...any) { ... })
//	}
type Conn interface {
	// ID identifies the connection. It must be unique among live connections
	// of one Dispatcher.
	ID() string

	// On registers a listener for a named event. The transport calls the
	// listener once per occurrence, possibly from many goroutines.
	//
	// Registering an event again adds a listener; it must not replace the
	// earlier one. Several modules may declare the same event, most often
	// disconnect, and every one of them runs.
	On(event string, l Listener)
}

// Listener receives one occurrence of an event.
//
// payload is whatever the transport decoded ([]byte and json.RawMessage are
// used as JSON text, anything else is marshaled). ack is nil when the caller
// did not ask for an acknowledgment. A payload that is itself an Ack, with a
// nil ack, is treated as the acknowledgment.
type Listener func(ctx context.Context, payload any, ack Ack)

// Ack sends a single result back to the caller. The first argument is the
// error token (nil on success), the rest is the success payload.
type Ack func(args ...any)

// HandlerFunc is the main handler of an event.
//
// Return (value, nil) to acknowledge success, a Token error to send a
// caller-safe error code, or any other error to report an internal failure.
type HandlerFunc func(ctx context.Context, c Conn, payload json.RawMessage) (any, error)

// HookFunc runs before or after the handler. A Token error is sent to the
// caller verbatim; any other error is an internal failure.
type HookFunc func(ctx context.Context, c Conn, payload json.RawMessage) error

// validatable is the interface for typed payload validation.
// Compatible with github.com/go-ozzo/ozzo-validation/v4.
type validatable interface {
	Validate() error
}

// Func adapts a typed handler. The payload is unmarshaled into T and, when T
// implements Validate() error, validated; a validation error is sent to the
// caller as a Token carrying its message.
//
// Example:
//
//	socketdispatch.Func(func(ctx context.Context, c socketdispatch.Conn, in VolumeChange) (Settings, error) {
//	    return store.SetVolume(ctx, c.ID(), in)
//	})
func Func[T, R any](fn func(ctx context.Context, c Conn, in T) (R, error)) HandlerFunc {
	return func(ctx context.Context, c Conn, payload json.RawMessage) (any, error) {
		var in T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &in); err != nil {
				return nil, fmt.Errorf("unmarshal payload: %w", err)
			}
		}

		if v, ok := any(in).(validatable); ok {
			if err := v.Validate(); err != nil {
				return nil, Token(err.Error())
			}
		} else if v, ok := any(&in).(validatable); ok {
			if err := v.Validate(); err != nil {
				return nil, Token(err.Error())
			}
		}

		return fn(ctx, c, in)
	}
}
