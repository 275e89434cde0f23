package debug

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"
)

// Session is one authenticated debug console session.
type Session struct {
	ID        string
	Role      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionStore keeps admin sessions in memory. Sessions do not survive a
// restart; the console just asks for the token again.
type SessionStore struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]Session
}

// NewSessionStore creates a store whose sessions expire after ttl.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]Session),
	}
}

// Create mints a new admin session and returns it. The id doubles as the
// bearer secret, so it is 32 bytes of entropy, URL-safe for cookie use.
func (s *SessionStore) Create() Session {
	buf := make([]byte, 32)
	rand.Read(buf)

	now := s.now().UTC()
	sess := Session{
		ID:        base64.RawURLEncoding.EncodeToString(buf),
		Role:      "admin",
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

// Get returns a live session. Expired sessions are deleted on access;
// there is no background sweeper.
func (s *SessionStore) Get(id string) (Session, bool) {
	if id == "" {
		return Session{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	if !s.now().UTC().Before(sess.ExpiresAt) {
		delete(s.sessions, id)
		return Session{}, false
	}
	return sess, true
}

// Delete removes a session. Deleting an unknown id is a no-op.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}
