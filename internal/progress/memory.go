package progress

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store. It backs tests and the degraded
// mode the service falls into when the SQLite file cannot be opened.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Progress
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Progress)}
}

// Load returns the stored record for topic, or a zero Progress.
func (m *MemoryStore) Load(_ context.Context, topic string) (Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[topic], nil
}

// Save replaces the record for topic.
func (m *MemoryStore) Save(_ context.Context, topic string, p Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[topic] = p
	return nil
}
