package images

import (
	"context"
	"sync"
)

// MemoryBlobStore keeps saved blobs in memory. Used in tests and local runs
// where no bucket is configured.
type MemoryBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: map[string][]byte{}}
}

func (m *MemoryBlobStore) SavePNG(_ context.Context, name string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.blobs[name] = cp
	return "memory://" + name, nil
}

// Blob returns a stored blob by name.
func (m *MemoryBlobStore) Blob(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[name]
	return b, ok
}
