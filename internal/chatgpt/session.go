// ABOUTME: In-memory per-user conversation continuity store
// ABOUTME: Tracks conversation/parent-message linkage and single-flight state

package chatgpt

import (
	"sync"

	"github.com/google/uuid"
)

// Session tracks conversation continuity for one chat user.
// ConversationID is owned by the backend: it stays nil until the backend
// assigns one, and the client only ever forwards the last value it was told.
type Session struct {
	ConversationID  *string
	ParentMessageID string
	Completed       bool
}

// Store keeps per-user sessions in memory for the lifetime of the process.
// Entries are created lazily on a user's first turn and never evicted,
// which is acceptable for the bounded user population of a chat bot.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[int64]*Session),
	}
}

// IsCompleted reports whether the user has no turn in flight.
// Users with no session yet are considered free.
func (s *Store) IsCompleted(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	return !ok || sess.Completed
}

// TryBegin atomically claims the user's session for a new turn.
// If no session exists, a fresh parent message ID is minted and the
// conversation ID is absent. If a turn is already in flight, ok is false
// and the caller must not proceed. Claim and check happen under one lock
// so two near-simultaneous turns cannot both win.
func (s *Store) TryBegin(userID int64) (conversationID *string, parentMessageID string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[userID]
	if !exists {
		parentMessageID = uuid.New().String()
		s.sessions[userID] = &Session{
			ParentMessageID: parentMessageID,
			Completed:       false,
		}
		return nil, parentMessageID, true
	}

	if !sess.Completed {
		return nil, "", false
	}

	sess.Completed = false
	return sess.ConversationID, sess.ParentMessageID, true
}

// Update overwrites the continuity fields with values reported by the backend.
func (s *Store) Update(userID int64, conversationID *string, parentMessageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return
	}
	sess.ConversationID = conversationID
	sess.ParentMessageID = parentMessageID
}

// Complete releases the user's session so a new turn may begin.
func (s *Store) Complete(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		sess.Completed = true
	}
}

// Get returns a copy of the user's session for inspection.
func (s *Store) Get(userID int64) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}
