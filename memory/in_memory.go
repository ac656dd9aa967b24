package memory

import (
	"sync"

	"github.com/aidenhq/aiden/core"
)

// InMemoryStore is a volatile MemoryStore implementation storing sessions in
// a process local map. It is safe for concurrent access and best suited for
// tests or ephemeral demo servers. Each returned session is cloned to prevent
// external mutation of internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{sessions: make(map[string]*core.Session)}
}

// Get returns an existing session (clone) or creates a new one lazily.
// Sessions come into existence on first reference; there is no explicit
// create call.
func (s *InMemoryStore) Get(sessionID string) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionLocked(sessionID).Clone(), nil
}

// AppendTurn adds a turn to an existing or newly created session. Appends to
// the same session are serialized by the session's own lock, so concurrent
// writers cannot interleave partial state.
func (s *InMemoryStore) AppendTurn(sessionID string, t core.Turn) error {
	s.mu.Lock()
	sess := s.sessionLocked(sessionID)
	s.mu.Unlock()

	sess.Append(t)
	return nil
}

// History returns the most recent turns for a session in chronological order.
// A limit <= 0 returns the full history.
func (s *InMemoryStore) History(sessionID string, limit int) ([]core.Turn, error) {
	s.mu.Lock()
	sess := s.sessionLocked(sessionID)
	s.mu.Unlock()

	if limit <= 0 {
		return sess.Snapshot(), nil
	}
	return sess.Tail(limit), nil
}

// sessionLocked returns the session for id, allocating it if needed.
// Caller must hold the write lock.
func (s *InMemoryStore) sessionLocked(sessionID string) *core.Session {
	if sess, ok := s.sessions[sessionID]; ok {
		return sess
	}
	sess := core.NewSession(sessionID)
	s.sessions[sessionID] = sess
	return sess
}
