// Package session holds the per-conversation state: message history and the
// artifact cache the image tools read and replace.
package session

import (
	"context"
	"sync"

	"imagent/pkg/artifact"
	"imagent/pkg/llm"
	"imagent/pkg/utils"
)

// Session is one conversation. History is append-only.
type Session struct {
	ID        string
	History   *llm.ChatHistory
	Artifacts *artifact.Cache
}

// New creates a session whose history is seeded with the system prompt. An
// empty id gets a generated one.
func New(id, systemPrompt string) *Session {
	if id == "" {
		id = utils.NewSessionID()
	}
	return &Session{
		ID:        id,
		History:   llm.NewChatHistory(systemPrompt),
		Artifacts: artifact.NewCache(),
	}
}

// Context tags ctx with the session id so log lines and debug dumps group by session.
func (s *Session) Context(ctx context.Context) context.Context {
	return context.WithValue(ctx, llm.DebugDirContextKey, s.ID)
}

// Manager keeps sessions isolated by id, in memory only.
type Manager struct {
	systemPrompt string
	sessions     map[string]*Session
	mu           sync.RWMutex
}

// NewManager initializes a Manager whose sessions start with systemPrompt.
func NewManager(systemPrompt string) *Manager {
	return &Manager{
		systemPrompt: systemPrompt,
		sessions:     make(map[string]*Session),
	}
}

// Get retrieves an existing session or creates a new one.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()

	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double check under lock
	if s, ok = m.sessions[id]; ok {
		return s
	}

	s = New(id, m.systemPrompt)
	m.sessions[s.ID] = s
	return s
}

// Create starts a session with a fresh id.
func (m *Manager) Create() *Session {
	return m.Get(utils.NewSessionID())
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
