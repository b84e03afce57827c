package journal

import (
	"sort"
	"sync"
)

// MemoryStore is an in-memory journal store for testing.
// Data is lost when the process exits.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string][]Entry // runID -> entries in sequence order
	closed bool
}

// NewMemoryStore creates a new in-memory journal store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string][]Entry),
	}
}

// Append implements Store.
func (m *MemoryStore) Append(e *Entry) error {
	if e.RunID == "" {
		return ErrMissingRunID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	e.Sequence = len(m.runs[e.RunID]) + 1
	m.runs[e.RunID] = append(m.runs[e.RunID], *e)
	return nil
}

// List implements Store.
func (m *MemoryStore) List(runID string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	entries := m.runs[runID]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out, nil
}

// Latest implements Store.
func (m *MemoryStore) Latest(runID, nodeID string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	entries := m.runs[runID]
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Event.NodeID == nodeID {
			e := entries[i]
			return &e, nil
		}
	}
	return nil, ErrNotFound
}

// Runs implements Store.
func (m *MemoryStore) Runs() ([]RunInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	infos := make([]RunInfo, 0, len(m.runs))
	for runID, entries := range m.runs {
		if len(entries) == 0 {
			continue
		}
		infos = append(infos, RunInfo{
			RunID:     runID,
			Entries:   len(entries),
			FirstSeen: entries[0].Timestamp,
			LastSeen:  entries[len(entries)-1].Timestamp,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		if !infos[i].FirstSeen.Equal(infos[j].FirstSeen) {
			return infos[i].FirstSeen.Before(infos[j].FirstSeen)
		}
		return infos[i].RunID < infos[j].RunID
	})
	return infos, nil
}

// DeleteRun implements Store.
func (m *MemoryStore) DeleteRun(runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	delete(m.runs, runID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.runs = nil
	return nil
}

// Len returns the total number of entries across all runs.
// Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, entries := range m.runs {
		count += len(entries)
	}
	return count
}
