package apptest

import (
	"sync"
	"time"

	"medichat/internal/model"
)

// MemoryUsers is an in-memory account store for auth tests.
type MemoryUsers struct {
	mu     sync.Mutex
	nextID uint
	users  map[uint]*model.User
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: make(map[uint]*model.User)}
}

func (s *MemoryUsers) Create(user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	user.ID = s.nextID
	user.CreatedAt = time.Now()
	copied := *user
	s.users[user.ID] = &copied
	return nil
}

func (s *MemoryUsers) FindByID(id uint) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	copied := *user
	return &copied, nil
}

func (s *MemoryUsers) FindByLogin(login string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if user.Username == login || user.Email == login {
			copied := *user
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *MemoryUsers) Taken(username, email string) (usernameTaken, emailTaken bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if user.Username == username {
			usernameTaken = true
		}
		if user.Email == email {
			emailTaken = true
		}
	}
	return usernameTaken, emailTaken, nil
}

func (s *MemoryUsers) TouchLastLogin(id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := s.users[id]; ok {
		now := time.Now()
		user.LastLoginAt = &now
	}
	return nil
}
