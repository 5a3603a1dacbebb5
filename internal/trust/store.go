package trust

import (
	"context"
	"sync"
)

// Store persists trust state by agent. PutState follows the same optimistic
// version rule as the belief store.
type Store interface {
	GetState(ctx context.Context, agentID string) (*State, error)
	PutState(ctx context.Context, s *State) error
}

// InMemoryStore is a map-backed Store.
type InMemoryStore struct {
	mu     sync.RWMutex
	states map[string]*State
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{states: make(map[string]*State)}
}

func (m *InMemoryStore) GetState(_ context.Context, agentID string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[agentID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *InMemoryStore) PutState(_ context.Context, s *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var current int64
	if existing, ok := m.states[s.AgentID]; ok {
		current = existing.Version
	}
	if current != s.Version {
		return ErrConflict
	}
	s.Version++
	m.states[s.AgentID] = s.Clone()
	return nil
}
