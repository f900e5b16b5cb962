package demo

import (
	"context"
	"encoding/json"

	"github.com/bjaus/socketdispatch"
)

// ChangeVolume is the payload of changeVolume.
type ChangeVolume struct {
	SettingsName string  `json:"settingsName"`
	Value        float64 `json:"value"`
}

// Settings returns the module of the changeVolume event.
func (a *App) Settings() socketdispatch.Module {
	return socketdispatch.Module{
		{Name: "changeVolume", Value: socketdispatch.Descriptor{
			Validate: socketdispatch.Fields(
				socketdispatch.Field("settingsName",
					socketdispatch.Required(),
					socketdispatch.OfType(socketdispatch.String),
					socketdispatch.OneOf("sounds", "music"),
				),
				socketdispatch.Field("value",
					socketdispatch.Required(),
					socketdispatch.OfType(socketdispatch.Number),
					socketdispatch.Between(0, 100),
				),
			),
			Lock:   socketdispatch.Self(),
			Pre:    a.preChangeVolume,
			Handle: socketdispatch.Func(a.changeVolume),
			Post:   a.saveUser,
		}},
	}
}

func (a *App) preChangeVolume(ctx context.Context, c socketdispatch.Conn, _ json.RawMessage) error {
	return a.attachIfNeeded(ctx, c)
}

func (a *App) changeVolume(ctx context.Context, c socketdispatch.Conn, in ChangeVolume) (map[string]float64, error) {
	u, ok := a.sessions.Update(c, func(u *User) {
		u.Settings[in.SettingsName] = in.Value
	})
	if !ok {
		return nil, TokenUserNotAttached
	}
	return u.Settings, nil
}

// saveUser persists the attached user. A failure replaces the handler's
// result with server_error.
func (a *App) saveUser(ctx context.Context, c socketdispatch.Conn, _ json.RawMessage) error {
	u, ok := a.sessions.User(c)
	if !ok {
		return TokenUserNotAttached
	}
	return a.store.Save(ctx, u)
}
