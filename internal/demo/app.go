package demo

import (
	"context"
	"log/slog"

	"github.com/bjaus/socketdispatch"
)

// Caller-facing error codes.
const (
	TokenUserAlreadyExists socketdispatch.Token = "user_already_exists"
	TokenUserNotAttached   socketdispatch.Token = "user_not_attached"
)

// DefaultUserID is the user resolved for every connection unless
// WithUserResolver is set.
const DefaultUserID int64 = 123123

// App owns the demo modules and their state.
type App struct {
	store    *Store
	sessions *Sessions
	logger   *slog.Logger
	resolve  func(socketdispatch.Conn) int64
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithUserResolver picks the user ID of a connection.
func WithUserResolver(fn func(socketdispatch.Conn) int64) Option {
	return func(a *App) {
		a.resolve = fn
	}
}

// New creates an App over store.
func New(store *Store, opts ...Option) *App {
	a := &App{
		store:    store,
		sessions: NewSessions(),
		logger:   slog.Default(),
		resolve:  func(socketdispatch.Conn) int64 { return DefaultUserID },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Modules returns every demo module in binding order.
func (a *App) Modules() []socketdispatch.Module {
	return []socketdispatch.Module{a.CurrentUser(), a.Settings()}
}

// Sessions exposes the per-connection user table.
func (a *App) Sessions() *Sessions { return a.sessions }

// attach loads the connection's user from the store.
func (a *App) attach(ctx context.Context, c socketdispatch.Conn) (User, error) {
	u, err := a.store.Find(ctx, a.resolve(c))
	if err != nil {
		return User{}, err
	}
	a.sessions.Attach(c, u)
	return u, nil
}

// attachIfNeeded loads the user only when none is attached yet.
func (a *App) attachIfNeeded(ctx context.Context, c socketdispatch.Conn) error {
	if _, ok := a.sessions.User(c); ok {
		return nil
	}
	_, err := a.attach(ctx, c)
	return err
}
