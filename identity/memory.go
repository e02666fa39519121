package identity

import (
	"context"
	"sync"
	"time"
)

// MemorySessions is an in-process SessionStore for tests and redis-less
// development.
type MemorySessions struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	recovery map[string]memoryEntry
}

type memoryEntry struct {
	userID    uint
	expiresAt time.Time
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{
		sessions: make(map[string]memoryEntry),
		recovery: make(map[string]memoryEntry),
	}
}

func (m *MemorySessions) SetSession(_ context.Context, token string, userID uint, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[token] = memoryEntry{userID: userID, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *MemorySessions) GetSession(_ context.Context, token string) (uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[token]
	if !ok || time.Now().After(e.expiresAt) {
		delete(m.sessions, token)
		return 0, ErrSessionNotFound
	}
	return e.userID, nil
}

func (m *MemorySessions) DeleteSession(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

func (m *MemorySessions) SetRecoveryCode(_ context.Context, code string, userID uint, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recovery[code] = memoryEntry{userID: userID, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *MemorySessions) GetRecoveryCode(_ context.Context, code string) (uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.recovery[code]
	if !ok || time.Now().After(e.expiresAt) {
		delete(m.recovery, code)
		return 0, ErrRecoveryInvalid
	}
	return e.userID, nil
}

func (m *MemorySessions) DeleteRecoveryCode(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recovery, code)
	return nil
}
