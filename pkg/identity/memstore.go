package identity

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-memory UserStore for embedding hosts and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	users  map[int64]*User
	meta   map[int64]map[string]string
	roles  []string

	now func() time.Time
}

// NewMemoryStore creates an empty store whose EditableRoles returns the
// given role names.
func NewMemoryStore(roles ...string) *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		users:  make(map[int64]*User),
		meta:   make(map[int64]map[string]string),
		roles:  roles,
		now:    time.Now,
	}
}

func (s *MemoryStore) LookupByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Create(_ context.Context, user NewUser) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return nil, fmt.Errorf("user with email %s already exists", user.Email)
		}
	}
	created := &User{
		ID:        s.nextID,
		Login:     user.Login,
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: s.now(),
	}
	s.users[created.ID] = created
	s.nextID++
	copied := *created
	return &copied, nil
}

func (s *MemoryStore) GetMeta(_ context.Context, userID int64, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta[userID][key], nil
}

func (s *MemoryStore) SetMeta(_ context.Context, userID int64, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta[userID] == nil {
		s.meta[userID] = make(map[string]string)
	}
	s.meta[userID][key] = value
	return nil
}

func (s *MemoryStore) EditableRoles(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.roles...), nil
}
