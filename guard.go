package socketdispatch

import (
	"slices"
	"sync"
)

// guard tracks the events in flight on one connection.
//
// Transports deliver occurrences from many goroutines, so the policy check and
// the busy mark happen under one lock.
type guard struct {
	mu       sync.Mutex
	inFlight map[string]int
}

func newGuard() *guard {
	return &guard{inFlight: make(map[string]int)}
}

// tryAcquire marks event busy unless p rejects it. Nothing changes on
// rejection.
func (g *guard) tryAcquire(event string, p Policy) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if p.rejects(event, g.inFlight) {
		return false
	}
	g.inFlight[event]++
	return true
}

// release undoes one successful tryAcquire.
func (g *guard) release(event string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inFlight[event] <= 1 {
		delete(g.inFlight, event)
		return
	}
	g.inFlight[event]--
}

func (g *guard) busy(event string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight[event] > 0
}

// snapshot returns the in-flight event names, sorted.
func (g *guard) snapshot() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	names := make([]string, 0, len(g.inFlight))
	for name := range g.inFlight {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
