package demo

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/bjaus/socketdispatch"
)

type closer interface {
	Close() error
}

// CurrentUser returns the module of the getCurrentUser event. The user is
// attached on connect, so the event mostly serves clients whose connect
// lookup failed.
func (a *App) CurrentUser() socketdispatch.Module {
	return socketdispatch.Module{
		{Name: "getCurrentUser", Value: socketdispatch.Descriptor{
			OnSocket: []socketdispatch.Entry{
				{Name: socketdispatch.EventConnect, Value: a.connect},
				{Name: socketdispatch.EventDisconnect, Value: a.disconnect},
			},
			Lock:   socketdispatch.Self(),
			Pre:    a.rejectAttached,
			Handle: a.getCurrentUser,
		}},
	}
}

func (a *App) connect(ctx context.Context, c socketdispatch.Conn) error {
	if _, err := a.attach(ctx, c); err != nil {
		a.logger.WarnContext(ctx, "closing socket without a user",
			slog.String("conn_id", c.ID()),
			slog.Any("error", err),
		)
		if cl, ok := c.(closer); ok {
			_ = cl.Close()
		}
	}
	return nil
}

func (a *App) disconnect(ctx context.Context, c socketdispatch.Conn, payload json.RawMessage) error {
	var reason string
	_ = json.Unmarshal(payload, &reason)
	a.sessions.Detach(c)
	a.logger.InfoContext(ctx, "socket user released",
		slog.String("conn_id", c.ID()),
		slog.String("reason", reason),
	)
	return nil
}

func (a *App) rejectAttached(ctx context.Context, c socketdispatch.Conn, _ json.RawMessage) error {
	if _, ok := a.sessions.User(c); ok {
		return TokenUserAlreadyExists
	}
	return nil
}

func (a *App) getCurrentUser(ctx context.Context, c socketdispatch.Conn, _ json.RawMessage) (any, error) {
	u, err := a.attach(ctx, c)
	if err != nil {
		return nil, err
	}
	return u, nil
}
