package feedstate

import (
	"context"
	"sync"

	"github.com/norma-cloud/knowdex/internal/db"
)

// MemoryKV is a process-local db.KVStore for the memory vector store driver.
// Feed state then survives only as long as the process, matching that
// driver's durability.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ db.KVStore = (*MemoryKV)(nil)

// NewMemoryKV creates an empty in-process key-value store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

// Get returns the stored value or db.ErrKeyNotFound.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set stores a copy of value under key.
func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	m.mu.Lock()
	m.data[key] = stored
	m.mu.Unlock()
	return nil
}
