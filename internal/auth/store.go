// Package auth implements the login path: the only caller of the lockout
// tracker. Credential storage here is a seeded in-memory directory; the real
// user profile domain lives behind the gateway and is out of scope.
package auth

import (
	"context"
	"strings"
	"sync"
)

// User is a credential record for the login path.
type User struct {
	ID           string
	Email        string
	PasswordHash string
}

// UserStore resolves credentials by email.
type UserStore interface {
	// GetByEmail returns the user, or nil without error when unknown.
	GetByEmail(ctx context.Context, email string) (*User, error)
}

// InMemoryUserStore is a map-backed UserStore keyed by lowercased email.
type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewInMemoryUserStore creates an empty store.
func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{
		users: make(map[string]*User),
	}
}

// Seed adds or replaces a user.
func (s *InMemoryUserStore) Seed(user *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[strings.ToLower(user.Email)] = user
}

func (s *InMemoryUserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user := s.users[strings.ToLower(strings.TrimSpace(email))]
	if user == nil {
		return nil, nil
	}
	clone := *user
	return &clone, nil
}
