// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package userdir

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is an authenticated login. It satisfies the engine's
// authorization interface. A nil *Session is a valid, logged-out
// session. Session is safe for concurrent use.
type Session struct {
	id      uuid.UUID
	user    string
	admin   bool
	loginAt time.Time

	mu         sync.Mutex
	operations int
	loggedOut  bool
	generation uint64
}

// NewSession starts a session for user.
func NewSession(user User, now time.Time) *Session {
	return &Session{
		id:      uuid.New(),
		user:    user.Name,
		admin:   user.Admin,
		loginAt: now,
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() uuid.UUID {
	if s == nil {
		return uuid.Nil
	}
	return s.id
}

// LoggedIn reports whether the session is active.
func (s *Session) LoggedIn() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.loggedOut
}

// Admin reports whether the session holds the admin role.
func (s *Session) Admin() bool {
	return s.LoggedIn() && s.admin
}

// User returns the logged-in user name, or "" when logged out.
func (s *Session) User() string {
	if !s.LoggedIn() {
		return ""
	}
	return s.user
}

// LoginAt returns when the session started.
func (s *Session) LoginAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.loginAt
}

// RecordOperation counts one completed operation.
func (s *Session) RecordOperation() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.operations++
	s.mu.Unlock()
}

// Operations returns the number of recorded operations.
func (s *Session) Operations() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.operations
}

// Generation returns the container generation the session belongs
// to. The engine bumps its generation on every format and refuses
// sessions from an older one.
func (s *Session) Generation() uint64 {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Rebind moves the session to generation.
func (s *Session) Rebind(generation uint64) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.generation = generation
	s.mu.Unlock()
}

// Logout ends the session. Later authorization checks fail.
func (s *Session) Logout() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.loggedOut = true
	s.mu.Unlock()
}
