package apikey

import (
	"context"
	"sync"

	"authgate/pkg/platform/sentinel"
)

// Store looks up API keys by access-key identifier. Key lifecycle lives with
// the key-management collaborator; this interface is read-only.
type Store interface {
	FindByID(ctx context.Context, keyID string) (*Key, error)
}

// InMemoryStore holds API keys in a map. Safe for concurrent use.
type InMemoryStore struct {
	mu   sync.RWMutex
	keys map[string]Key
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{keys: make(map[string]Key)}
}

func (s *InMemoryStore) Put(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key.ID] = key
}

func (s *InMemoryStore) FindByID(_ context.Context, keyID string) (*Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if key, ok := s.keys[keyID]; ok {
		return &key, nil
	}
	return nil, sentinel.ErrNotFound
}
