package session

import (
	"context"
	"sync"
	"time"
)

// Store persists sessions. Implementations must be safe for concurrent use.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	// UpdateTokens replaces the access token. An empty refresh token keeps
	// the stored one, since not every backend rotates it.
	UpdateTokens(ctx context.Context, id string, t Tokens) error
	ClearTokens(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	// PurgeExpired deletes sessions expired at now and returns their ids.
	PurgeExpired(ctx context.Context, now time.Time) ([]string, error)
}

// memoryStore keeps sessions in process. Used when DATABASE_URL is unset;
// sessions do not survive a restart.
type memoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	now      func() time.Time
}

func NewMemoryStore() Store {
	return &memoryStore{sessions: make(map[string]Session), now: time.Now}
}

func (m *memoryStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	return nil
}

func (m *memoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *memoryStore) UpdateTokens(_ context.Context, id string, t Tokens) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.AccessToken = t.AccessToken
	if t.RefreshToken != "" {
		s.RefreshToken = t.RefreshToken
	}
	s.UpdatedAt = m.now()
	m.sessions[id] = s
	return nil
}

func (m *memoryStore) ClearTokens(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.AccessToken = ""
	s.RefreshToken = ""
	s.UpdatedAt = m.now()
	m.sessions[id] = s
	return nil
}

func (m *memoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memoryStore) PurgeExpired(_ context.Context, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			ids = append(ids, id)
		}
	}
	return ids, nil
}
