// Package session holds the per-client authentication state of the UI.
//
// A Session is a two-state machine: it starts ANONYMOUS, moves to
// AUTHENTICATED(username) on a successful login and back on logout.
// Sessions live in process memory only, a restart resets every client.
package session

import (
	"errors"
	"sync"
	"time"
)

// State is the authentication state of a Session.
type State int

const (
	StateAnonymous State = iota
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "ANONYMOUS"
	case StateAuthenticated:
		return "AUTHENTICATED"
	}

	return "UNKNOWN"
}

// FlashKind selects how a flash message is rendered.
type FlashKind string

const (
	FlashSuccess FlashKind = "success"
	FlashError   FlashKind = "error"
	FlashWarning FlashKind = "warning"
	FlashInfo    FlashKind = "info"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Kind FlashKind
	Text string
}

var (
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrSessionNotFound   = errors.New("session not found")
)

// Session is the state of one UI client. It is safe for concurrent use.
type Session struct {
	ID string

	mu       sync.Mutex
	state    State
	username string
	flashes  []Flash
	lastSeen time.Time
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:       id,
		state:    StateAnonymous,
		lastSeen: now,
	}
}

// State returns the current state and, when authenticated, the username.
func (s *Session) State() (State, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state, s.username
}

// IsAuthenticated reports whether the session is AUTHENTICATED.
func (s *Session) IsAuthenticated() bool {
	state, _ := s.State()
	return state == StateAuthenticated
}

// Username returns the authenticated username or "" when anonymous.
func (s *Session) Username() string {
	_, username := s.State()
	return username
}

// IsBlank reports whether the session is ANONYMOUS with no queued flashes,
// i.e. holds nothing a later request would need.
func (s *Session) IsBlank() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state == StateAnonymous && len(s.flashes) == 0
}

// Login moves ANONYMOUS to AUTHENTICATED(username).
func (s *Session) Login(username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAnonymous || username == "" {
		return ErrInvalidTransition
	}
	s.state = StateAuthenticated
	s.username = username

	return nil
}

// Logout moves AUTHENTICATED back to ANONYMOUS.
func (s *Session) Logout() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAuthenticated {
		return ErrInvalidTransition
	}
	s.state = StateAnonymous
	s.username = ""

	return nil
}

// AddFlash queues a message for the next rendered page.
func (s *Session) AddFlash(kind FlashKind, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.flashes = append(s.flashes, Flash{Kind: kind, Text: text})
}

// PopFlashes returns the queued messages and clears the queue.
func (s *Session) PopFlashes() []Flash {
	s.mu.Lock()
	defer s.mu.Unlock()

	flashes := s.flashes
	s.flashes = nil

	return flashes
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSeen = now
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return now.Sub(s.lastSeen)
}
