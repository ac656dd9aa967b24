package agent

import "sync"

// SessionGate admits at most one active run per session. A second run
// arriving while the first is still processing is rejected rather than
// queued, so callers get an immediate busy signal instead of unbounded
// latency.
type SessionGate struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewSessionGate constructs an empty gate.
func NewSessionGate() *SessionGate {
	return &SessionGate{active: make(map[string]struct{})}
}

// Acquire reserves the session for a run. It reports false when the session
// already has an active run.
func (g *SessionGate) Acquire(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.active[sessionID]; busy {
		return false
	}
	g.active[sessionID] = struct{}{}
	return true
}

// Release frees the session after a run completes. Releasing a session that
// is not held is a no-op.
func (g *SessionGate) Release(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, sessionID)
}
