package socketdispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"time"
)

// Lifecycle event names. Definitions named EventConnect or EventConnection
// run once inside HandleConnection instead of being registered as listeners.
const (
	EventConnect    = "connect"
	EventConnection = "connection"
	EventDisconnect = "disconnect"
)

// Dispatcher binds event definitions to connections and runs the guarded
// pipeline for every occurrence.
//
// Usage:
//  1. Create a dispatcher with New
//  2. Call HandleConnection for every accepted connection
//  3. Call Forget when the connection closes
//
// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	defs    []*Definition
	logger  *slog.Logger
	debug   bool
	timeout time.Duration
	hooks   hooks

	mu    sync.Mutex
	conns map[string]*guard
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// New builds the definitions of modules and creates a Dispatcher.
//
// Example:
//
//	d := socketdispatch.New(
//	    []socketdispatch.Module{currentuser.Module(store), settings.Module(store)},
//	    socketdispatch.WithDebug(true),
//	    socketdispatch.WithOnFailure(func(ctx context.Context, c socketdispatch.Conn, event string, err error, d time.Duration) {
//	        metrics.Incr("socket.failure", "event:"+event)
//	    }),
//	)
func New(modules []Module, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		defs:   Build(modules...),
		logger: slog.Default(),
		conns:  make(map[string]*guard),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WithDebug enables debug records for every occurrence, validation failure
// and lock rejection.
func WithDebug(enabled bool) Option {
	return func(d *Dispatcher) {
		d.debug = enabled
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithStageTimeout bounds the pre-hook, handler and post-hook of every
// occurrence. When the deadline passes first the event is unlocked, the
// caller receives TokenTimeout and the late result is dropped. Zero, the
// default, waits forever: a stage that never returns keeps its event busy
// for the life of the connection.
func WithStageTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

// Definitions returns the definitions bound to every connection, in binding
// order.
func (d *Dispatcher) Definitions() []*Definition {
	return slices.Clone(d.defs)
}

// HandleConnection attaches the connection's state and binds every
// definition to it. Lifecycle definitions run immediately, in order, before
// HandleConnection returns.
func (d *Dispatcher) HandleConnection(ctx context.Context, c Conn) error {
	g, err := d.attach(c)
	if err != nil {
		return err
	}

	for _, def := range d.defs {
		if def.Name == EventConnect || def.Name == EventConnection {
			d.invoke(ctx, c, g, def, nil, discard)
			continue
		}
		c.On(def.Name, d.listener(c, g, def))
	}
	return nil
}

// Forget drops the state of a closed connection.
func (d *Dispatcher) Forget(c Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.conns, c.ID())
}

// Busy reports whether event is in flight on the connection.
func (d *Dispatcher) Busy(c Conn, event string) bool {
	g := d.guardOf(c)
	return g != nil && g.busy(event)
}

// InFlight returns the events in flight on the connection, sorted.
func (d *Dispatcher) InFlight(c Conn) []string {
	g := d.guardOf(c)
	if g == nil {
		return nil
	}
	return g.snapshot()
}

func (d *Dispatcher) attach(c Conn) (*guard, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := c.ID()
	if _, ok := d.conns[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrConnectionHandled, id)
	}
	g := newGuard()
	d.conns[id] = g
	return g, nil
}

func (d *Dispatcher) guardOf(c Conn) *guard {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[c.ID()]
}

func (d *Dispatcher) listener(c Conn, g *guard, def *Definition) Listener {
	return func(ctx context.Context, payload any, ack Ack) {
		d.invoke(ctx, c, g, def, payload, ack)
	}
}

// invoke runs the guarded pipeline for one occurrence. A panic anywhere in
// it, hooks and schemas included, is reported like any internal failure and
// never leaves the event locked.
func (d *Dispatcher) invoke(ctx context.Context, c Conn, g *guard, def *Definition, payload any, ack Ack) {
	if ack == nil {
		if fn, ok := asAck(payload); ok {
			ack, payload = fn, nil
		}
	}
	if ack == nil {
		ack = d.missingAck(c, def.Name)
	}
	reply := d.sanitize(c, def.Name, ack)

	defer func() {
		if r := recover(); r != nil {
			d.fail(ctx, c, def.Name, &panicError{value: r, stack: debug.Stack()}, 0, reply)
		}
	}()

	ctx = d.hooks.callOnReceive(ctx, c, def.Name)

	raw, err := encodePayload(payload)
	if err != nil {
		d.fail(ctx, c, def.Name, fmt.Errorf("encode payload: %w", err), 0, reply)
		return
	}
	if d.debug {
		d.logger.DebugContext(ctx, "socket event received",
			slog.String("event", def.Name),
			slog.String("conn_id", c.ID()),
			slog.String("payload", string(raw)),
		)
	}

	schema, err := def.compiled()
	if err != nil {
		d.fail(ctx, c, def.Name, fmt.Errorf("compile schema: %w", err), 0, reply)
		return
	}
	if schema != nil {
		failures, err := validate(schema, raw)
		if err != nil {
			d.fail(ctx, c, def.Name, fmt.Errorf("validate payload: %w", err), 0, reply)
			return
		}
		if len(failures) > 0 {
			verr := &ValidationError{Failures: failures}
			if d.debug {
				d.logger.DebugContext(ctx, "socket event rejected by validation",
					slog.String("event", def.Name),
					slog.String("conn_id", c.ID()),
					slog.String("reason", verr.Error()),
				)
			}
			d.hooks.callOnValidationError(ctx, c, def.Name, verr)
			reply(failures[0].Message)
			return
		}
	}

	if !g.tryAcquire(def.Name, def.Lock) {
		inFlight := g.snapshot()
		if d.debug {
			d.logger.DebugContext(ctx, "socket event rejected by locking policy",
				slog.String("event", def.Name),
				slog.String("conn_id", c.ID()),
				slog.String("policy", def.Lock.String()),
				slog.Any("in_flight", inFlight),
			)
		}
		d.hooks.callOnLockRejected(ctx, c, def.Name, inFlight)
		reply(TokenPreviousProcessRunning)
		return
	}
	unlock := sync.OnceFunc(func() { g.release(def.Name) })
	defer unlock()

	d.hooks.callOnDispatch(ctx, c, def.Name)
	start := time.Now()

	// The event is unlocked before the caller is acknowledged, so a caller
	// that reacts to the ack is never rejected by its own finished run.
	if d.timeout <= 0 {
		value, err := d.run(ctx, c, def, raw)
		unlock()
		d.finish(ctx, c, def.Name, value, err, time.Since(start), reply)
		return
	}

	stageCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan stageResult, 1)
	go func() {
		value, err := d.run(stageCtx, c, def, raw)
		done <- stageResult{value: value, err: err}
	}()

	select {
	case res := <-done:
		unlock()
		d.finish(ctx, c, def.Name, res.value, res.err, time.Since(start), reply)
	case <-stageCtx.Done():
		unlock()
		err := fmt.Errorf("stage of %q exceeded %s: %w", def.Name, d.timeout, stageCtx.Err())
		d.logger.ErrorContext(ctx, "socket event timed out; event unlocked",
			slog.String("event", def.Name),
			slog.String("conn_id", c.ID()),
			slog.Any("error", err),
		)
		d.hooks.callOnFailure(ctx, c, def.Name, err, time.Since(start))
		reply(TokenTimeout)
	}
}

// validate runs a schema, converting a panic into an error.
func validate(schema Schema, payload json.RawMessage) (failures []Failure, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return schema.Validate(payload), nil
}

type stageResult struct {
	value any
	err   error
}

// run executes pre-hook, handler and post-hook. A panic anywhere is
// converted into an error.
//
// The post-hook runs after a handler Token error as well, and its failure
// replaces the handler's result. It is skipped after an internal failure.
func (d *Dispatcher) run(ctx context.Context, c Conn, def *Definition, payload json.RawMessage) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, &panicError{value: r, stack: debug.Stack()}
		}
	}()

	if def.Pre != nil {
		if err := def.Pre(ctx, c, payload); err != nil {
			return nil, fmt.Errorf("pre hook: %w", err)
		}
	}

	if def.Handle == nil {
		return nil, errNoHandler
	}
	value, err = def.Handle(ctx, c, payload)
	if err != nil {
		if _, ok := asToken(err); !ok {
			return nil, err
		}
	}

	if def.Post != nil {
		if perr := def.Post(ctx, c, payload); perr != nil {
			return nil, fmt.Errorf("post hook: %w", perr)
		}
	}
	return value, err
}

// finish acknowledges the outcome of a run and calls the terminal hooks.
func (d *Dispatcher) finish(ctx context.Context, c Conn, event string, value any, err error, duration time.Duration, reply Ack) {
	if err == nil {
		d.hooks.callOnSuccess(ctx, c, event, duration)
		if value == nil {
			reply(nil)
			return
		}
		reply(nil, value)
		return
	}
	d.fail(ctx, c, event, err, duration, reply)
}

// fail reports an error outcome. Tokens go to the caller; everything else is
// logged in full and replaced with TokenServerError.
func (d *Dispatcher) fail(ctx context.Context, c Conn, event string, err error, duration time.Duration, reply Ack) {
	d.hooks.callOnFailure(ctx, c, event, err, duration)

	if tok, ok := asToken(err); ok {
		reply(tok)
		return
	}

	attrs := []any{
		slog.String("event", event),
		slog.String("conn_id", c.ID()),
		slog.Any("error", err),
	}
	var perr *panicError
	if errors.As(err, &perr) {
		attrs = append(attrs, slog.String("stack", string(perr.stack)))
	}
	d.logger.ErrorContext(ctx, "socket event failed; the client receives server_error", attrs...)
	reply(TokenServerError)
}

// sanitize wraps the caller's ack. Tokens are sent as plain strings, any
// other error is logged and replaced with server_error, and only the first
// call goes through.
func (d *Dispatcher) sanitize(c Conn, event string, ack Ack) Ack {
	var once sync.Once
	return func(args ...any) {
		sent := false
		once.Do(func() {
			sent = true
			ack(d.scrub(c, event, args)...)
		})
		if !sent {
			d.logger.Warn("socket event acknowledged more than once; extra result dropped",
				slog.String("event", event),
				slog.String("conn_id", c.ID()),
			)
		}
	}
}

func (d *Dispatcher) scrub(c Conn, event string, args []any) []any {
	if len(args) == 0 {
		return args
	}
	switch first := args[0].(type) {
	case Token:
		out := make([]any, len(args))
		copy(out, args)
		out[0] = string(first)
		return out
	case error:
		if tok, ok := asToken(first); ok {
			return []any{string(tok)}
		}
		d.logger.Error("server error reached the client boundary; sending server_error instead",
			slog.String("event", event),
			slog.String("conn_id", c.ID()),
			slog.Any("error", first),
		)
		return []any{string(TokenServerError)}
	}
	return args
}

func (d *Dispatcher) missingAck(c Conn, event string) Ack {
	return func(...any) {
		d.logger.Warn("result produced but the client passed no acknowledgment",
			slog.String("event", event),
			slog.String("conn_id", c.ID()),
		)
	}
}

// discard is the ack of lifecycle events, which have no caller.
func discard(...any) {}

func asAck(v any) (Ack, bool) {
	switch fn := v.(type) {
	case Ack:
		return fn, fn != nil
	case func(...any):
		return fn, fn != nil
	}
	return nil, false
}

// encodePayload turns a transport payload into JSON text.
func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	}
	return json.Marshal(payload)
}
