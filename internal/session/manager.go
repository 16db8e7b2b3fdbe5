package session

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Dezexus/subvision/internal/backend"
	"github.com/Dezexus/subvision/pkg/models"
)

// Manager tracks open editor sessions by ID and by source.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	client   *backend.Client
	opts     Options
	log      zerolog.Logger
}

// NewManager creates a session manager.
func NewManager(client *backend.Client, opts Options, log zerolog.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		client:   client,
		opts:     opts,
		log:      log,
	}
}

// Open creates a session for a source.
func (m *Manager) Open(source models.Source) *Session {
	s := New(source, m.client, m.opts, m.log)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.log.Info().Str("session_id", s.ID).Str("source_id", source.ID).Msg("session opened")
	return s
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return s, nil
}

// BySource returns the first open session for a source ID, if any. Job
// events carry source-scoped client identifiers, not session IDs.
func (m *Manager) BySource(sourceID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.Source.ID == sourceID {
			return s, true
		}
	}
	return nil, false
}

// Close tears down and forgets a session. Idempotent.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// CloseAll tears down every session (shutdown path).
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
