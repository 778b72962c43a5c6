package booking

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"guardslot/internal/availability"
)

// ErrSessionNotFound is returned for unknown or expired sessions.
var ErrSessionNotFound = errors.New("booking session not found")

// DefaultSessionTimeout is the idle time after which a wizard is discarded.
const DefaultSessionTimeout = 30 * time.Minute

// SessionStore keeps wizard sessions in memory.
type SessionStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	timeout  time.Duration
	clock    availability.Clock
}

// NewSessionStore creates a store. A zero timeout uses DefaultSessionTimeout.
func NewSessionStore(timeout time.Duration, clock availability.Clock) *SessionStore {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	if clock == nil {
		clock = availability.SystemClock{}
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		timeout:  timeout,
		clock:    clock,
	}
}

// Create starts a new session for the provider.
func (ss *SessionStore) Create(providerID string) *Session {
	session := NewSession(uuid.NewString(), providerID, ss.clock.Now())

	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.sessions[session.ID] = session
	return session
}

// Get returns a live session.
func (ss *SessionStore) Get(id string) (*Session, error) {
	ss.mu.RLock()
	session, ok := ss.sessions[id]
	ss.mu.RUnlock()

	if !ok || session.IsExpired(ss.clock.Now(), ss.timeout) {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Delete discards a session (completion or abandonment).
func (ss *SessionStore) Delete(id string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.sessions, id)
}

// Len returns the number of stored sessions, expired ones included.
func (ss *SessionStore) Len() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.sessions)
}

// Cleanup removes expired sessions.
func (ss *SessionStore) Cleanup() int {
	now := ss.clock.Now()

	ss.mu.Lock()
	defer ss.mu.Unlock()

	removed := 0
	for id, session := range ss.sessions {
		if session.IsExpired(now, ss.timeout) {
			delete(ss.sessions, id)
			removed++
		}
	}
	return removed
}
