package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/agent-relay/backend/internal/metrics"
	"github.com/agent-relay/backend/internal/model"
	"github.com/agent-relay/backend/internal/workunit"
)

// Manager is the single source of truth for which sessions exist. It is
// an explicit registry: every collaborator receives it by reference,
// and tests instantiate isolated ones.
type Manager struct {
	factory     workunit.Factory
	maxSessions int

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty registry whose sessions wrap adapters
// built by factory. maxSessions caps the number of live sessions; zero
// or negative means unbounded.
func NewManager(factory workunit.Factory, maxSessions int) *Manager {
	return &Manager{
		factory:     factory,
		maxSessions: maxSessions,
		sessions:    make(map[string]*Session),
	}
}

// Create allocates an id, constructs a session, and registers it.
// Adapter construction errors propagate and leave no registered
// session behind; creation beyond the session cap is rejected with
// model.ErrSessionLimit.
func (m *Manager) Create(req *model.CreateSessionRequest) (*Session, error) {
	if req.Cwd == "" {
		return nil, model.ErrCwdRequired
	}

	adapter, err := m.factory(workunit.Config{Cwd: req.Cwd, Context: req.Context})
	if err != nil {
		return nil, fmt.Errorf("construct work unit: %w", err)
	}

	id := uuid.New().String()
	name := req.Name
	if name == "" {
		name = fmt.Sprintf("Session %s", id[:8])
	}

	sess := New(id, name, req.Cwd, adapter)

	m.mu.Lock()
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		return nil, model.ErrSessionLimit
	}
	m.sessions[id] = sess
	m.mu.Unlock()

	metrics.ActiveSessions.Inc()
	return sess, nil
}

// Get looks up a session by id. A miss is a normal outcome, typically a
// race with closure.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// List returns a snapshot of the current registry contents. The slice
// does not stay valid across subsequent mutations.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess)
	}
	return out
}

// Close transitions the session to disconnected, cancelling any
// in-flight turn, and removes it from the registry. Closing a
// nonexistent id is a no-op.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	sess.Close()
	metrics.ActiveSessions.Dec()
}

// UnsubscribeClient sweeps every registered session and removes the
// client's subscription. Called exactly once per client disconnect,
// which keeps long-lived sessions from leaking callbacks after a
// browser tab closes.
func (m *Manager) UnsubscribeClient(clientID string) {
	for _, sess := range m.List() {
		sess.Unsubscribe(clientID)
	}
}

// Shutdown closes every registered session and empties the registry.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
		metrics.ActiveSessions.Dec()
	}
}
