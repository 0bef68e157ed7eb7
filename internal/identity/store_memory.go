package identity

import (
	"context"
	"sync"

	id "authgate/pkg/domain"
	"authgate/pkg/platform/sentinel"
)

// InMemoryStore keeps identity snapshots in a map. Safe for concurrent use;
// it copies on read and write so callers can mutate snapshots freely.
type InMemoryStore struct {
	mu    sync.RWMutex
	users map[id.UserID]*User
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{users: make(map[id.UserID]*User)}
}

func (s *InMemoryStore) FindByID(_ context.Context, userID id.UserID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[userID]; ok {
		return copyUser(u), nil
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindByUsername(_ context.Context, tenantID id.TenantID, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.TenantID == tenantID && u.Username == username {
			return copyUser(u), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) FindByDirectorySID(_ context.Context, sid string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sid == "" {
		return nil, sentinel.ErrNotFound
	}
	for _, u := range s.users {
		if u.DirectorySID == sid {
			return copyUser(u), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) Save(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = copyUser(user)
	return nil
}

func copyUser(u *User) *User {
	cp := *u
	cp.Roles = append([]Role(nil), u.Roles...)
	cp.Profile = append([]ProfileValue(nil), u.Profile...)
	if u.PasswordExpiresAt != nil {
		t := *u.PasswordExpiresAt
		cp.PasswordExpiresAt = &t
	}
	return &cp
}
