package socketdispatch

import (
	"context"
	"encoding/json"
	"fmt"
)

// Entry is one named export of a module.
//
// Value is a Descriptor, a *Descriptor, or a bare function: HandlerFunc,
// HookFunc, or a func with one of their signatures. A bare function becomes
// a descriptor with only Handle set. func(context.Context, Conn) error is
// accepted as well for lifecycle handlers that ignore the payload.
type Entry struct {
	Name  string
	Value any
}

// Module is an ordered set of exports, typically one per feature.
type Module []Entry

// Build normalizes modules into the ordered definitions bound to every
// connection.
//
// For each entry in order, the events nested in OnSocket are added first,
// then the entry itself when it carries a handler. Nested descriptors are not
// expanded further. Build never fails: a nested value of an unsupported type
// yields a definition whose invocations fail internally.
func Build(modules ...Module) []*Definition {
	var defs []*Definition
	for _, m := range modules {
		for _, e := range m {
			if d, ok := descriptorOf(e.Value); ok {
				for _, nested := range d.OnSocket {
					defs = append(defs, define(nested))
				}
				if d.Handle != nil {
					defs = append(defs, newDefinition(e.Name, d))
				}
				continue
			}
			if h, ok := handlerOf(e.Value); ok {
				defs = append(defs, newDefinition(e.Name, Descriptor{Handle: h}))
			}
		}
	}
	return defs
}

// define normalizes a nested entry. Every nested key produces a definition.
func define(e Entry) *Definition {
	if d, ok := descriptorOf(e.Value); ok {
		if d.Handle == nil {
			d.Handle = failing(errNoHandler)
		}
		return newDefinition(e.Name, d)
	}
	if h, ok := handlerOf(e.Value); ok {
		return newDefinition(e.Name, Descriptor{Handle: h})
	}
	return newDefinition(e.Name, Descriptor{
		Handle: failing(fmt.Errorf("unsupported descriptor %T for event %q", e.Value, e.Name)),
	})
}

func descriptorOf(v any) (Descriptor, bool) {
	switch d := v.(type) {
	case Descriptor:
		return d, true
	case *Descriptor:
		if d == nil {
			return Descriptor{}, false
		}
		return *d, true
	}
	return Descriptor{}, false
}

// handlerOf normalizes a bare function into a handler.
func handlerOf(v any) (HandlerFunc, bool) {
	switch fn := v.(type) {
	case HandlerFunc:
		return fn, fn != nil
	case func(context.Context, Conn, json.RawMessage) (any, error):
		return fn, fn != nil
	case HookFunc:
		return hookHandler(fn), fn != nil
	case func(context.Context, Conn, json.RawMessage) error:
		return hookHandler(fn), fn != nil
	case func(context.Context, Conn) error:
		if fn == nil {
			return nil, false
		}
		return func(ctx context.Context, c Conn, _ json.RawMessage) (any, error) {
			return nil, fn(ctx, c)
		}, true
	}
	return nil, false
}

func hookHandler(fn HookFunc) HandlerFunc {
	return func(ctx context.Context, c Conn, payload json.RawMessage) (any, error) {
		return nil, fn(ctx, c, payload)
	}
}
