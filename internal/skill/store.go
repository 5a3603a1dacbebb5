package skill

import (
	"context"
	"sort"
	"sync"
)

// Store persists ratings and attempt records.
type Store interface {
	GetRating(ctx context.Context, agentID string, track Track) (*Rating, error)
	PutRating(ctx context.Context, r *Rating) error
	ListRatings(ctx context.Context, agentID string) ([]*Rating, error)
	AppendAttempt(ctx context.Context, rec AttemptRecord) error
	ListAttempts(ctx context.Context, agentID string) ([]AttemptRecord, error)
}

type ratingKey struct {
	agentID string
	track   Track
}

// InMemoryStore is a map-backed Store.
type InMemoryStore struct {
	mu       sync.RWMutex
	ratings  map[ratingKey]*Rating
	attempts map[string][]AttemptRecord
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		ratings:  make(map[ratingKey]*Rating),
		attempts: make(map[string][]AttemptRecord),
	}
}

func (m *InMemoryStore) GetRating(_ context.Context, agentID string, track Track) (*Rating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.ratings[ratingKey{agentID, track}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *InMemoryStore) PutRating(_ context.Context, r *Rating) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := ratingKey{r.AgentID, r.Track}
	var current int64
	if existing, ok := m.ratings[key]; ok {
		current = existing.Version
	}
	if current != r.Version {
		return ErrConflict
	}
	r.Version++
	cp := *r
	m.ratings[key] = &cp
	return nil
}

func (m *InMemoryStore) ListRatings(_ context.Context, agentID string) ([]*Rating, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Rating
	for key, r := range m.ratings {
		if key.agentID == agentID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Track < out[j].Track })
	return out, nil
}

func (m *InMemoryStore) AppendAttempt(_ context.Context, rec AttemptRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[rec.AgentID] = append(m.attempts[rec.AgentID], rec)
	return nil
}

func (m *InMemoryStore) ListAttempts(_ context.Context, agentID string) ([]AttemptRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]AttemptRecord(nil), m.attempts[agentID]...), nil
}
