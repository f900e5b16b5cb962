// Package demo wires a small user-settings application onto socketdispatch:
// a getCurrentUser event that resolves the connection's user on connect, and
// a changeVolume event that validates, mutates and persists user settings.
package demo

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
)

// ErrUserNotFound is returned by Store.Find for unknown users.
var ErrUserNotFound = errors.New("user not found")

// User is a persisted user with its audio settings.
type User struct {
	ID       int64              `json:"id"`
	Name     string             `json:"name"`
	Settings map[string]float64 `json:"settings"`
}

func (u User) clone() User {
	u.Settings = maps.Clone(u.Settings)
	if u.Settings == nil {
		u.Settings = make(map[string]float64)
	}
	return u
}

// Store is an in-memory user table.
type Store struct {
	mu    sync.RWMutex
	users map[int64]User
	saves int
}

// NewStore creates a store seeded with users.
func NewStore(users ...User) *Store {
	s := &Store{users: make(map[int64]User, len(users))}
	for _, u := range users {
		s.users[u.ID] = u.clone()
	}
	return s
}

// Find returns a copy of the user.
func (s *Store) Find(ctx context.Context, id int64) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, fmt.Errorf("find user %d: %w", id, ErrUserNotFound)
	}
	return u.clone(), nil
}

// Save replaces the stored user.
func (s *Store) Save(ctx context.Context, u User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u.clone()
	s.saves++
	return nil
}

// Saves reports how many times Save succeeded.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
