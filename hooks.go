package socketdispatch

import (
	"context"
	"time"
)

// OnReceiveFunc is called when an occurrence arrives, before validation.
// Use this to enrich the context with logging fields or trace spans.
// The returned context is used for the rest of the occurrence.
type OnReceiveFunc func(ctx context.Context, c Conn, event string) context.Context

// OnDispatchFunc is called after the lock is taken, just before the pre-hook.
type OnDispatchFunc func(ctx context.Context, c Conn, event string)

// OnSuccessFunc is called after the handler and post-hook completed without
// error.
type OnSuccessFunc func(ctx context.Context, c Conn, event string, duration time.Duration)

// OnFailureFunc is called when an occurrence fails after validation: internal
// failures, Token errors from hooks or the handler, and stage timeouts.
type OnFailureFunc func(ctx context.Context, c Conn, event string, err error, duration time.Duration)

// OnValidationErrorFunc is called when the payload fails the event's schema.
type OnValidationErrorFunc func(ctx context.Context, c Conn, event string, err *ValidationError)

// OnLockRejectedFunc is called when the locking policy rejects an occurrence.
// inFlight lists the events that were running at the time.
type OnLockRejectedFunc func(ctx context.Context, c Conn, event string, inFlight []string)

// hooks holds all configured hook functions.
type hooks struct {
	onReceive         []OnReceiveFunc
	onDispatch        []OnDispatchFunc
	onSuccess         []OnSuccessFunc
	onFailure         []OnFailureFunc
	onValidationError []OnValidationErrorFunc
	onLockRejected    []OnLockRejectedFunc
}

// WithOnReceive adds a hook called when an occurrence arrives.
// Multiple hooks are called in order, with context chaining through each.
//
// Example:
//
//	socketdispatch.WithOnReceive(func(ctx context.Context, c socketdispatch.Conn, event string) context.Context {
//	    return logx.WithCtx(ctx, slog.String("conn_id", c.ID()))
//	})
func WithOnReceive(fn OnReceiveFunc) Option {
	return func(d *Dispatcher) {
		d.hooks.onReceive = append(d.hooks.onReceive, fn)
	}
}

// WithOnDispatch adds a hook called once the lock is held.
// Multiple hooks are called in order.
func WithOnDispatch(fn OnDispatchFunc) Option {
	return func(d *Dispatcher) {
		d.hooks.onDispatch = append(d.hooks.onDispatch, fn)
	}
}

// WithOnSuccess adds a hook called after a successful occurrence.
// Multiple hooks are called in order.
//
// Example:
//
//	socketdispatch.WithOnSuccess(func(ctx context.Context, c socketdispatch.Conn, event string, d time.Duration) {
//	    metrics.Timing("socket.success", d, "event:"+event)
//	})
func WithOnSuccess(fn OnSuccessFunc) Option {
	return func(d *Dispatcher) {
		d.hooks.onSuccess = append(d.hooks.onSuccess, fn)
	}
}

// WithOnFailure adds a hook called after a failed occurrence.
// Multiple hooks are called in order.
func WithOnFailure(fn OnFailureFunc) Option {
	return func(d *Dispatcher) {
		d.hooks.onFailure = append(d.hooks.onFailure, fn)
	}
}

// WithOnValidationError adds a hook called when a payload fails validation.
// Multiple hooks are called in order.
func WithOnValidationError(fn OnValidationErrorFunc) Option {
	return func(d *Dispatcher) {
		d.hooks.onValidationError = append(d.hooks.onValidationError, fn)
	}
}

// WithOnLockRejected adds a hook called when the locking policy rejects an
// occurrence. Multiple hooks are called in order.
func WithOnLockRejected(fn OnLockRejectedFunc) Option {
	return func(d *Dispatcher) {
		d.hooks.onLockRejected = append(d.hooks.onLockRejected, fn)
	}
}

func (h *hooks) callOnReceive(ctx context.Context, c Conn, event string) context.Context {
	for _, fn := range h.onReceive {
		ctx = fn(ctx, c, event)
	}
	return ctx
}

func (h *hooks) callOnDispatch(ctx context.Context, c Conn, event string) {
	for _, fn := range h.onDispatch {
		fn(ctx, c, event)
	}
}

func (h *hooks) callOnSuccess(ctx context.Context, c Conn, event string, duration time.Duration) {
	for _, fn := range h.onSuccess {
		fn(ctx, c, event, duration)
	}
}

func (h *hooks) callOnFailure(ctx context.Context, c Conn, event string, err error, duration time.Duration) {
	for _, fn := range h.onFailure {
		fn(ctx, c, event, err, duration)
	}
}

func (h *hooks) callOnValidationError(ctx context.Context, c Conn, event string, err *ValidationError) {
	for _, fn := range h.onValidationError {
		fn(ctx, c, event, err)
	}
}

func (h *hooks) callOnLockRejected(ctx context.Context, c Conn, event string, inFlight []string) {
	for _, fn := range h.onLockRejected {
		fn(ctx, c, event, inFlight)
	}
}
