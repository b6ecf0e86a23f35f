package billing

import "sync"

// StateStore holds each session's billing snapshot. Refreshes take a
// sequence number from Begin and publish through Commit; a commit older
// than the last applied one is discarded, so overlapping refreshes cannot
// regress the snapshot.
type StateStore interface {
	Begin(key string) uint64
	Commit(key string, seq uint64, st *State) bool
	Get(key string) (*State, bool)
	Forget(key string)
}

type stateEntry struct {
	issued  uint64
	applied uint64
	state   *State
}

type memoryStateStore struct {
	mu      sync.Mutex
	entries map[string]*stateEntry
}

func NewMemoryStateStore() StateStore {
	return &memoryStateStore{entries: make(map[string]*stateEntry)}
}

func (m *memoryStateStore) entry(key string) *stateEntry {
	e, ok := m.entries[key]
	if !ok {
		e = &stateEntry{}
		m.entries[key] = e
	}
	return e
}

func (m *memoryStateStore) Begin(key string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entry(key)
	e.issued++
	return e.issued
}

func (m *memoryStateStore) Commit(key string, seq uint64, st *State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || seq <= e.applied {
		return false
	}
	e.applied = seq
	e.state = st
	return true
}

func (m *memoryStateStore) Get(key string) (*State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.state == nil {
		return nil, false
	}
	return e.state, true
}

func (m *memoryStateStore) Forget(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}
