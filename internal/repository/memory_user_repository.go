package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/visiongate/internal/domain"
)

// MemoryUserRepository keeps users in process memory. Used by tests and local runs without Postgres.
type MemoryUserRepository struct {
	mu         sync.RWMutex
	byID       map[string]*domain.User
	byUsername map[string]string // username -> id
	now        func() time.Time
}

// NewMemoryUserRepository creates an empty store
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:       make(map[string]*domain.User),
		byUsername: make(map[string]string),
		now:        time.Now,
	}
}

// Create stores a copy of user, assigning an id when missing
func (m *MemoryUserRepository) Create(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byUsername[user.Username]; exists {
		return domain.NewError(domain.ErrConflict, "username already exists")
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = m.now().UTC()
	}

	stored := *user
	m.byID[stored.ID] = &stored
	m.byUsername[stored.Username] = stored.ID
	return nil
}

func (m *MemoryUserRepository) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byUsername[username]
	if !ok {
		return nil, nil
	}
	return m.copyOf(id), nil
}

func (m *MemoryUserRepository) FindByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.copyOf(id), nil
}

func (m *MemoryUserRepository) RecordLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.byID[id]
	if !ok {
		return domain.NewError(domain.ErrNotFound, "user not found")
	}
	t := at
	u.LastLoginAt = &t
	return nil
}

// Delete removes a user. Not part of domain.UserRepository; tests use it to simulate removal.
func (m *MemoryUserRepository) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.byID[id]; ok {
		delete(m.byUsername, u.Username)
		delete(m.byID, id)
	}
}

// SetActive toggles the active flag
func (m *MemoryUserRepository) SetActive(id string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.byID[id]; ok {
		u.IsActive = active
	}
}

func (m *MemoryUserRepository) copyOf(id string) *domain.User {
	u, ok := m.byID[id]
	if !ok {
		return nil
	}
	c := *u
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}
