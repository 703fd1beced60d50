package domain

import (
	"context"
	"time"
)

// User represents a gateway account
type User struct {
	ID           string // UUID
	Username     string // Unique, case-sensitive
	PasswordHash string // Bcrypt hash (never returned in API)
	IsActive     bool
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// UserView is the public projection of a User
type UserView struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	IsActive    bool       `json:"isActive"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt"`
}

// View strips credential material from the user
func (u *User) View() UserView {
	return UserView{
		ID:          u.ID,
		Username:    u.Username,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

// UserRepository defines data access for users.
// Find methods return (nil, nil) when no row matches.
type UserRepository interface {
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) error
	RecordLogin(ctx context.Context, id string, at time.Time) error
}
