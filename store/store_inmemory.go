package store

import (
	"sort"
	"sync"

	"github.com/jrsteele09/go-auth-session/internal/errors"
)

var _ DurableStore = (*InMemoryStore)(nil)

// InMemoryStore is a thread-safe in-memory implementation of DurableStore.
// It survives nothing but is shared between every manager built on it, which
// is what tests need to simulate a restart.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewInMemoryStore creates a new empty in-memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]string),
	}
}

// Get retrieves the value stored for key
func (s *InMemoryStore) Get(key string) (string, error) {
	if key == "" {
		return "", errors.New("key cannot be empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.entries[key]
	if !ok {
		return "", errors.ErrNotFound
	}
	return value, nil
}

// Set stores or overwrites the value for key
func (s *InMemoryStore) Set(key, value string) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = value
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *InMemoryStore) Remove(key string) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Keys returns the stored keys in sorted order.
func (s *InMemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
