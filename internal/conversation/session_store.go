package conversation

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session tracks conversation continuity for one user. At most one live
// session exists per user at a time.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
}

// SessionStore owns the user-to-session mapping. The source service kept a
// single session variable shared across all users; this replaces it with an
// explicit per-user map behind a mutex.
type SessionStore struct {
	versionID string
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionStore(versionID string) *SessionStore {
	return &SessionStore{
		versionID: versionID,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// GetOrCreate returns the user's live session, creating one lazily on the
// first interaction.
func (s *SessionStore) GetOrCreate(userID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		return sess
	}
	sess := &Session{
		ID:        s.newSessionID(userID),
		UserID:    userID,
		CreatedAt: s.now(),
	}
	s.sessions[userID] = sess
	return sess
}

// Reset discards any live session and returns a fresh one.
func (s *SessionStore) Reset(userID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &Session{
		ID:        s.newSessionID(userID),
		UserID:    userID,
		CreatedAt: s.now(),
	}
	s.sessions[userID] = sess
	return sess
}

// Clear drops the user's session so the next turn starts a new one.
func (s *SessionStore) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

// newSessionID composes the deployed version identifier with a random
// suffix. Practically unique per user per day is sufficient here.
func (s *SessionStore) newSessionID(userID string) string {
	return fmt.Sprintf("%s.%s.%s", s.versionID, userID, uuid.NewString()[:8])
}

// RestartSessionID derives the session id sent with a variables patch when
// the user explicitly ends the conversation.
func RestartSessionID(userID string, at time.Time) string {
	return fmt.Sprintf("%s-%d", userID, at.UnixMilli())
}
