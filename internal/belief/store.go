package belief

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Store persists Summaries and the observation history.
//
// PutSummary performs an optimistic version check: the stored version must
// equal s.Version, and on success the stored version becomes s.Version+1.
// A Summary with Version 0 must not exist yet.
type Store interface {
	GetSummary(ctx context.Context, agentID, id string) (*Summary, error)
	PutSummary(ctx context.Context, s *Summary) error
	ListSummaries(ctx context.Context, filter ScopeFilter) ([]*Summary, error)
	AppendHistory(ctx context.Context, entry HistoryEntry) error
	ListHistory(ctx context.Context, agentID, targetID string, limit int) ([]HistoryEntry, error)
}

type summaryKey struct {
	agentID string
	id      string
}

// InMemoryStore is a Store backed by maps, for tests and single-process use.
type InMemoryStore struct {
	mu        sync.RWMutex
	summaries map[summaryKey]*Summary
	history   []HistoryEntry
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{summaries: make(map[summaryKey]*Summary)}
}

// GetSummary returns a copy of the stored Summary.
func (m *InMemoryStore) GetSummary(_ context.Context, agentID, id string) (*Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.summaries[summaryKey{agentID, id}]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

// PutSummary stores a copy of s and bumps s.Version.
func (m *InMemoryStore) PutSummary(_ context.Context, s *Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := summaryKey{s.AgentID, s.ID}
	var current int64
	if existing, ok := m.summaries[key]; ok {
		current = existing.Version
	}
	if current != s.Version {
		return ErrConflict
	}
	s.Version++
	m.summaries[key] = s.Clone()
	return nil
}

// ListSummaries returns copies of matching Summaries ordered by agent then id.
func (m *InMemoryStore) ListSummaries(_ context.Context, filter ScopeFilter) ([]*Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Summary
	for _, s := range m.summaries {
		if filter.Matches(s) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AgentID != out[j].AgentID {
			return out[i].AgentID < out[j].AgentID
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// AppendHistory appends an entry to the log.
func (m *InMemoryStore) AppendHistory(_ context.Context, entry HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, entry)
	return nil
}

// ListHistory returns an agent's entries in insertion order. An empty
// targetID matches all targets; targetID ending in ':' is a prefix match.
// limit <= 0 returns everything, otherwise the most recent limit entries.
func (m *InMemoryStore) ListHistory(_ context.Context, agentID, targetID string, limit int) ([]HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []HistoryEntry
	for _, e := range m.history {
		if e.AgentID != agentID || !MatchTarget(e.TargetID, targetID) {
			continue
		}
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// MatchTarget implements the history target filter shared by stores.
func MatchTarget(id, filter string) bool {
	if filter == "" {
		return true
	}
	if strings.HasSuffix(filter, ":") {
		return strings.HasPrefix(id, filter)
	}
	return id == filter
}
