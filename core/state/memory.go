package state

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[Key]Session
}

// NewMemoryStore returns a process-local Store. Sessions do not survive restarts.
func NewMemoryStore() Store {
	return &memoryStore{sessions: make(map[Key]Session)}
}

func (m *memoryStore) Get(_ context.Context, key Key) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	if !ok {
		return Session{}, ErrNotFound
	}
	return cloneSession(s), nil
}

func (m *memoryStore) Put(_ context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Key] = cloneSession(s)
	return nil
}

func (m *memoryStore) Delete(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	return nil
}

func (m *memoryStore) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, s := range m.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(m.sessions, k)
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) Len(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions), nil
}

func (m *memoryStore) Close() error { return nil }

// cloneSession copies Fields so callers cannot mutate stored bytes.
func cloneSession(s Session) Session {
	if s.Fields != nil {
		s.Fields = append(json.RawMessage(nil), s.Fields...)
	}
	return s
}
