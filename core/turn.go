package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a Turn.
type Role string

const (
	// RoleUser marks a turn authored by the end user.
	RoleUser Role = "user"
	// RoleAssistant marks a turn produced by the model.
	RoleAssistant Role = "assistant"
	// RoleTool marks a turn carrying a tool invocation result.
	RoleTool Role = "tool"
)

// Turn is one role-tagged message unit within a session. Turns are immutable
// once appended; a tool turn always lies between the user turn that triggered
// it and the assistant turn that consumes its result.
type Turn struct {
	ID         string    `json:"id"`
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	ToolName   string    `json:"tool_name,omitempty"`
	Incomplete bool      `json:"incomplete,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewUserTurn creates a user-authored turn.
func NewUserTurn(content string) Turn {
	return Turn{ID: NewID(), Role: RoleUser, Content: content, CreatedAt: time.Now().UTC()}
}

// NewAssistantTurn creates an assistant turn. Incomplete marks partial content
// persisted after a disconnected or failed run.
func NewAssistantTurn(content string, incomplete bool) Turn {
	return Turn{ID: NewID(), Role: RoleAssistant, Content: content, Incomplete: incomplete, CreatedAt: time.Now().UTC()}
}

// NewToolTurn creates a tool-result turn summarizing one tool invocation.
func NewToolTurn(toolName, result string) Turn {
	return Turn{ID: NewID(), Role: RoleTool, Content: result, ToolName: toolName, CreatedAt: time.Now().UTC()}
}

// NewID generates a new unique identifier for turns, sessions and runs.
func NewID() string { return uuid.NewString() }

// Session is an append-only conversational container. It is safe for
// concurrent access.
//
// Contract:
//   - Turns are strictly ordered by append
//   - Append updates the Updated timestamp
//   - Snapshot returns a defensive copy to avoid external mutation
type Session struct {
	ID      string    `json:"id"`
	Turns   []Turn    `json:"turns"`
	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
	mu      sync.RWMutex
}

// NewSession creates a new empty session with the given ID.
func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{ID: id, Turns: []Turn{}, Created: now, Updated: now}
}

// Append adds a turn to the history updating the Updated timestamp.
func (s *Session) Append(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Turns = append(s.Turns, t)
	s.Updated = time.Now().UTC()
}

// Snapshot returns a defensive copy of the full turn slice.
func (s *Session) Snapshot() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := make([]Turn, len(s.Turns))
	copy(turns, s.Turns)
	return turns
}

// Tail returns up to the last limit turns, oldest truncated first. A limit of
// zero or less returns the full history.
func (s *Session) Tail(limit int) []Turn {
	turns := s.Snapshot()
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns
}

// Len returns the number of turns appended so far.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Turns)
}

// Clone returns a deep copy of the session safe for independent mutation.
func (s *Session) Clone() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := &Session{ID: s.ID, Turns: make([]Turn, len(s.Turns)), Created: s.Created, Updated: s.Updated}
	copy(clone.Turns, s.Turns)
	return clone
}

// MemoryStore persists sessions and their append-only turn history.
//
// Implementations must serialize appends per session (turn ordering is not
// safe under concurrent append) while allowing concurrent operations across
// distinct sessions. Get creates the session lazily on first access and
// returns a snapshot clone; sessions are never auto-deleted.
type MemoryStore interface {
	Get(sessionID string) (*Session, error)
	AppendTurn(sessionID string, t Turn) error
	History(sessionID string, limit int) ([]Turn, error)
}
