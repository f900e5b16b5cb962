package socketdispatch

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// fakeConn records listeners and lets tests deliver occurrences.
type fakeConn struct {
	id string

	mu        sync.Mutex
	listeners map[string][]Listener
	order     []string
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, listeners: make(map[string][]Listener)}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) On(event string, l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners[event] = append(c.listeners[event], l)
	c.order = append(c.order, event)
}

func (c *fakeConn) registered() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

func (c *fakeConn) emit(t *testing.T, event string, payload any, ack Ack) {
	t.Helper()
	c.mu.Lock()
	ls := append([]Listener(nil), c.listeners[event]...)
	c.mu.Unlock()
	if len(ls) == 0 {
		t.Fatalf("no listener registered for %q", event)
	}
	for _, l := range ls {
		l(context.Background(), payload, ack)
	}
}

// ackRecorder collects acknowledgment calls.
type ackRecorder struct {
	mu    sync.Mutex
	calls [][]any
	done  chan struct{}
}

func newAckRecorder() *ackRecorder {
	return &ackRecorder{done: make(chan struct{}, 16)}
}

func (a *ackRecorder) ack(args ...any) {
	a.mu.Lock()
	a.calls = append(a.calls, args)
	a.mu.Unlock()
	a.done <- struct{}{}
}

func (a *ackRecorder) Calls() [][]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([][]any(nil), a.calls...)
}

func (a *ackRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-a.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for acknowledgment")
	}
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}
