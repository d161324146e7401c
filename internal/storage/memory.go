package storage

import "sync"

// MemoryStore is an in-process Store used when no database path is
// configured and by tests that need deterministic persistence.
type MemoryStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

// Read returns the blob stored under key, if any.
func (s *MemoryStore) Read(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.blobs[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, true, nil
}

// Write replaces the blob stored under key.
func (s *MemoryStore) Write(key string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(blob))
	copy(out, blob)
	s.blobs[key] = out
	return nil
}
