// Package wsconn carries socketdispatch events over gorilla/websocket.
//
// Every text frame is a JSON envelope:
//
//	{"event": "changeVolume", "id": 7, "data": {"settingsName": "music", "value": 40}}
//
// When id is present the caller expects an acknowledgment, which is sent
// back as:
//
//	{"ack": 7, "args": [null, {"music": 40}]}
//
// Server-initiated events use the request envelope without an id.
package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bjaus/socketdispatch"
)

const writeWait = 10 * time.Second

// Disconnect reasons delivered as the payload of the disconnect event.
const (
	ReasonClientClose    = "client namespace disconnect"
	ReasonServerShutdown = "server shutting down"
	ReasonServerClose    = "server namespace disconnect"
	ReasonTransportError = "transport error"
)

// ErrClosed is returned when writing to a closed connection.
var ErrClosed = errors.New("wsconn: connection closed")

type inbound struct {
	Event string          `json:"event"`
	ID    *uint64         `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type ackFrame struct {
	Ack  uint64 `json:"ack"`
	Args []any  `json:"args"`
}

// Conn is one websocket connection. It implements socketdispatch.Conn.
type Conn struct {
	id     string
	ws     *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu        sync.RWMutex
	listeners map[string][]socketdispatch.Listener
	closed    bool
	reason    string

	running sync.WaitGroup
}

// New wraps an upgraded websocket. The connection gets a random ID.
func New(ws *websocket.Conn, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	return &Conn{
		id:        id,
		ws:        ws,
		logger:    logger.With(slog.String("conn_id", id)),
		listeners: make(map[string][]socketdispatch.Listener),
	}
}

// ID returns the connection ID.
func (c *Conn) ID() string { return c.id }

// On adds a listener of event. Every listener of an event runs for each
// occurrence, in its own goroutine; the first acknowledgment wins.
func (c *Conn) On(event string, l socketdispatch.Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners[event] = append(c.listeners[event], l)
}

// Emit sends a server-initiated event.
func (c *Conn) Emit(event string, data any) error {
	return c.write(outbound{Event: event, Data: data})
}

// Close closes the connection from the server side. Serve returns and the
// disconnect event receives ReasonServerClose.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.reason = ReasonServerClose
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return c.ws.Close()
}

// Serve reads frames until the connection closes or ctx is done. Each
// occurrence runs in its own goroutine. On exit the disconnect listeners, in
// registration order, receive the close reason, and Serve waits for running
// occurrences.
//
// Serve returns nil for orderly closes.
func (c *Conn) Serve(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			if !c.closed {
				c.closed = true
				c.reason = ReasonServerShutdown
			}
			c.mu.Unlock()
			_ = c.ws.Close()
		case <-stop:
		}
	}()

	err := c.readLoop(ctx)

	c.mu.Lock()
	reason := c.reason
	if reason == "" {
		reason = ReasonTransportError
		if err == nil {
			reason = ReasonClientClose
		}
	}
	c.closed = true
	c.mu.Unlock()

	for _, l := range c.listenersOf(socketdispatch.EventDisconnect) {
		l(context.WithoutCancel(ctx), reason, func(...any) {})
	}
	c.running.Wait()
	_ = c.ws.Close()

	if reason == ReasonTransportError {
		return err
	}
	return nil
}

func (c *Conn) readLoop(ctx context.Context) error {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			return fmt.Errorf("read frame: %w", err)
		}

		var in inbound
		if err := json.Unmarshal(data, &in); err != nil || in.Event == "" {
			c.logger.WarnContext(ctx, "dropping malformed frame", slog.Int("size", len(data)))
			continue
		}

		ls := c.listenersOf(in.Event)
		if len(ls) == 0 {
			c.logger.DebugContext(ctx, "no listener for event", slog.String("event", in.Event))
			continue
		}

		var payload any
		if len(in.Data) > 0 {
			payload = in.Data
		}

		ack := c.ackFor(ctx, in.Event, in.ID)
		for _, l := range ls {
			c.running.Add(1)
			go func() {
				defer c.running.Done()
				l(ctx, payload, ack)
			}()
		}
	}
}

func (c *Conn) listenersOf(event string) []socketdispatch.Listener {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.listeners[event])
}

// ackFor returns the acknowledgment of a frame, or nil when the caller did
// not ask for one. Only the first call sends a frame.
func (c *Conn) ackFor(ctx context.Context, event string, id *uint64) socketdispatch.Ack {
	if id == nil {
		return nil
	}
	ackID := *id
	var once sync.Once
	return func(args ...any) {
		sent := false
		once.Do(func() { sent = true })
		if !sent {
			c.logger.DebugContext(ctx, "extra acknowledgment dropped",
				slog.String("event", event),
				slog.Uint64("ack", ackID),
			)
			return
		}
		if args == nil {
			args = []any{}
		}
		if err := c.write(ackFrame{Ack: ackID, Args: args}); err != nil {
			c.logger.DebugContext(ctx, "acknowledgment dropped",
				slog.String("event", event),
				slog.Uint64("ack", ackID),
				slog.Any("error", err),
			)
		}
	}
}

func (c *Conn) write(v any) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}
