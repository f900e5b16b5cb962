package socketdispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
)

// Descriptor declares the pipeline of one event.
//
// Handle is the primary handler marker: a descriptor without Handle only
// contributes the events in OnSocket.
type Descriptor struct {
	// OnSocket declares handlers for other event names, typically lifecycle
	// events such as "connect" or "disconnect".
	OnSocket []Entry

	// Validate is the payload schema. Nil skips validation.
	Validate SchemaSource

	// Lock is the locking policy. The zero value never rejects.
	Lock Policy

	Pre    HookFunc
	Handle HandlerFunc
	Post   HookFunc
}

// Definition is the normalized form of one event, shared by every connection
// of a Dispatcher.
type Definition struct {
	Name   string
	Lock   Policy
	Pre    HookFunc
	Handle HandlerFunc
	Post   HookFunc

	source     SchemaSource
	once       sync.Once
	schema     Schema
	compileErr error
}

func newDefinition(name string, d Descriptor) *Definition {
	return &Definition{
		Name:   name,
		Lock:   d.Lock,
		Pre:    d.Pre,
		Handle: d.Handle,
		Post:   d.Post,
		source: d.Validate,
	}
}

// compiled returns the memoized schema. It is nil when the event declares
// none. Concurrent first use compiles once, and a failed or panicking
// compile is remembered as an error.
func (d *Definition) compiled() (Schema, error) {
	if d.source == nil {
		return nil, nil
	}
	d.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				d.schema, d.compileErr = nil, &panicError{value: r, stack: debug.Stack()}
			}
		}()
		d.schema, d.compileErr = d.source.Compile()
		if d.compileErr == nil && d.schema == nil {
			d.compileErr = fmt.Errorf("schema source %T compiled to nil", d.source)
		}
	})
	return d.schema, d.compileErr
}

// failing returns a handler that reports err on every invocation. Malformed
// descriptors are not rejected at build time; they fail when used.
func failing(err error) HandlerFunc {
	return func(context.Context, Conn, json.RawMessage) (any, error) {
		return nil, err
	}
}
