package user

import (
	"context"
	"sync"

	"github.com/victornm/mockinterview/internal/domain"
)

// MemoryStore keeps accounts in process memory. It is used by tests and by
// servers configured without a database.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]domain.User)}
}

func (s *MemoryStore) Create(_ context.Context, u domain.User) error {
	u.Email = NormalizeEmail(u.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.Email]; ok {
		return errAlreadyExists(nil)
	}

	s.users[u.Email] = u
	return nil
}

func (s *MemoryStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[NormalizeEmail(email)]
	if !ok {
		return nil, errNotFound(nil)
	}

	return &u, nil
}
