package store

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/quotevault/quotevault/internal/core"
)

// MemoryStore is an in-memory implementation of the KeyValueStore
// port. Nothing survives a restart; it backs tests and cache-disabled
// deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
	logger *zap.Logger
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		values: make(map[string][]byte),
		logger: logger,
	}
}

// Get retrieves a stored value.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[key]
	if !ok {
		return nil, core.ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set stores a value.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.values[key] = stored
	return nil
}

// Remove deletes a key.
func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}

// Keys lists stored keys matching prefix.
func (s *MemoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.values))
	for key := range s.values {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// RemoveMany deletes all given keys.
func (s *MemoryStore) RemoveMany(ctx context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.values, key)
	}
	return nil
}
