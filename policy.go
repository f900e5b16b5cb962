package socketdispatch

import (
	"slices"
	"strings"
)

type lockKind uint8

const (
	lockNone lockKind = iota
	lockSelf
	lockAny
	lockNamed
)

// Policy decides whether a new occurrence may start given the events already
// in flight on the same connection. The zero value is None.
type Policy struct {
	kind  lockKind
	names []string
}

// None never rejects.
func None() Policy { return Policy{} }

// Self rejects while the same event is in flight.
func Self() Policy { return Policy{kind: lockSelf} }

// AnyOther rejects while any event at all is in flight.
func AnyOther() Policy { return Policy{kind: lockAny} }

// NamedSet rejects while any of names is in flight. The event itself is only
// covered when it is listed.
func NamedSet(names ...string) Policy {
	return Policy{kind: lockNamed, names: slices.Clone(names)}
}

// rejects evaluates the policy against the in-flight events.
func (p Policy) rejects(event string, inFlight map[string]int) bool {
	switch p.kind {
	case lockSelf:
		return inFlight[event] > 0
	case lockAny:
		return len(inFlight) > 0
	case lockNamed:
		for name := range inFlight {
			if slices.Contains(p.names, name) {
				return true
			}
		}
	}
	return false
}

func (p Policy) String() string {
	switch p.kind {
	case lockSelf:
		return "self"
	case lockAny:
		return "any"
	case lockNamed:
		return "set(" + strings.Join(p.names, ",") + ")"
	default:
		return "none"
	}
}
