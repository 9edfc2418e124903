package vault

import (
	"context"
	"sync"
)

// InMemStore implements Store with a plain in-memory map. Secrets do
// not survive a restart; intended for tests and ephemeral environments.
type InMemStore struct {
	mutex   sync.RWMutex
	entries map[string]string
}

// NewInMemStore creates an empty in-memory store.
func NewInMemStore() *InMemStore {
	return &InMemStore{entries: make(map[string]string)}
}

func (s *InMemStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	value, found := s.entries[key]
	return value, found, nil
}

func (s *InMemStore) Put(ctx context.Context, key, value string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.entries[key] = value
	return nil
}

func (s *InMemStore) Reset(ctx context.Context, key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.entries, key)
	return nil
}
