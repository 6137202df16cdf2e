package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Manager keeps every live Session in memory, keyed by session ID.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

type initOptions struct {
	now func() time.Time
}

// InitOption configures a Manager.
type InitOption func(*initOptions)

// WithClock replaces time.Now, used by tests to drive idle expiry.
func WithClock(now func() time.Time) InitOption {
	return func(options *initOptions) {
		options.now = now
	}
}

func NewManager(optionsProto ...InitOption) *Manager {
	options := &initOptions{
		now: time.Now,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	return &Manager{
		sessions: map[string]*Session{},
		now:      options.now,
	}
}

// New creates an ANONYMOUS session with a fresh random ID and registers it.
func (m *Manager) New() *Session {
	sess := m.Draft()
	m.Store(sess)

	return sess
}

// Draft creates an ANONYMOUS session that is not registered yet.
// Get does not find it until Store is called.
func (m *Manager) Draft() *Session {
	return newSession(uuid.New().String(), m.now())
}

// Store registers sess under its ID.
func (m *Manager) Store(sess *Session) {
	sess.touch(m.now())

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.mu.Unlock()
}

// Get returns the session with the given ID and marks it as used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	sess, found := m.sessions[id]
	m.mu.RUnlock()

	if !found {
		return nil, ErrSessionNotFound
	}
	sess.touch(m.now())

	return sess, nil
}

// Delete forgets the session with the given ID.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions)
}

// PurgeIdle drops sessions unused for longer than maxIdle and returns how many were dropped.
func (m *Manager) PurgeIdle(maxIdle time.Duration) int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	purged := 0
	for id, sess := range m.sessions {
		if sess.idleSince(now) > maxIdle {
			delete(m.sessions, id)
			purged++
		}
	}

	return purged
}
