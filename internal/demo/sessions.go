package demo

import (
	"sync"

	"github.com/bjaus/socketdispatch"
)

// Sessions holds the user attached to each connection.
type Sessions struct {
	mu     sync.Mutex
	byConn map[string]*User
}

// NewSessions creates an empty session table.
func NewSessions() *Sessions {
	return &Sessions{byConn: make(map[string]*User)}
}

// Attach binds u to the connection, replacing any previous user.
func (s *Sessions) Attach(c socketdispatch.Conn, u User) {
	u = u.clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byConn[c.ID()] = &u
}

// User returns a copy of the attached user.
func (s *Sessions) User(c socketdispatch.Conn) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byConn[c.ID()]
	if !ok {
		return User{}, false
	}
	return u.clone(), true
}

// Update applies fn to the attached user and returns the result.
func (s *Sessions) Update(c socketdispatch.Conn, fn func(u *User)) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byConn[c.ID()]
	if !ok {
		return User{}, false
	}
	fn(u)
	return u.clone(), true
}

// Detach forgets the connection's user.
func (s *Sessions) Detach(c socketdispatch.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byConn, c.ID())
}

// Len reports the number of attached connections.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byConn)
}
