package storage

import (
	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps the scope in process memory only, like a tab that
// never reloads. Used by tests and by deployments that do not want the
// token written to disk at all.
type MemoryStore struct {
	cache *gocache.Cache
}

// NewMemoryStore creates an in-memory store. Entries never expire on
// their own; lifecycle is driven entirely by the session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: gocache.New(gocache.NoExpiration, 0),
	}
}

// Get returns the value for key or ErrKeyNotFound.
func (m *MemoryStore) Get(key string) (string, error) {
	value, found := m.cache.Get(key)
	if !found {
		return "", ErrKeyNotFound
	}
	s, ok := value.(string)
	if !ok {
		return "", ErrKeyNotFound
	}
	return s, nil
}

// Set stores the value under key.
func (m *MemoryStore) Set(key, value string) error {
	m.cache.Set(key, value, gocache.NoExpiration)
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (m *MemoryStore) Delete(key string) error {
	m.cache.Delete(key)
	return nil
}

// Clear removes every key in the scope.
func (m *MemoryStore) Clear() error {
	m.cache.Flush()
	return nil
}
