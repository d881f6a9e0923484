package session

import (
	"sync"

	"github.com/google/uuid"
)

// Manager issues and resolves opaque session tokens. It keeps both
// directions of the mapping (token to phone and phone to token) so Resolve —
// the authentication check on every protected operation — is a single map
// lookup instead of a scan. Sessions live in memory only; a restart
// invalidates all of them.
type Manager struct {
	mu      sync.Mutex
	byToken map[string]string
	byPhone map[string]string
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{
		byToken: make(map[string]string),
		byPhone: make(map[string]string),
	}
}

// Create issues a fresh token for the phone number. Any prior token for the
// same number stops resolving; a connection still holding it is not
// forcibly closed, it just loses delivery.
func (m *Manager) Create(phone string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.byPhone[phone]; ok {
		delete(m.byToken, old)
	}

	token := uuid.NewString()
	m.byToken[token] = phone
	m.byPhone[phone] = token
	return token
}

// Resolve returns the phone number bound to the token.
func (m *Manager) Resolve(token string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	phone, ok := m.byToken[token]
	return phone, ok
}

// TokenFor returns the current token for a phone number, used to locate the
// recipient's live connection during delivery.
func (m *Manager) TokenFor(phone string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.byPhone[phone]
	return token, ok
}

// Count returns the number of live sessions (debug introspection).
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.byToken)
}
