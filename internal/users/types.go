package users

import (
	"context"
	"errors"
	"time"

	"moneta.app/internal/auth"
)

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrVersionConflict    = errors.New("user was modified concurrently, reload and retry")
	ErrBlocked            = errors.New("account is blocked")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidInput       = errors.New("invalid input")
)

// User is an account. Version starts at 1 and grows by one with every
// successful update; an update must name the version it was based on.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         auth.Role `json:"role"`
	Blocked      bool      `json:"blocked"`
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity is the view carried in session tokens.
func (u User) Identity() auth.Identity {
	return auth.Identity{UserID: u.ID, Email: u.Email, Role: u.Role}
}

// Store persists users.
type Store interface {
	CreateUser(ctx context.Context, u User) (User, error)
	UserByID(ctx context.Context, id int64) (User, error)
	UserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context, offset, limit int) ([]User, int, error)
	// UpdateUser writes u if the stored version still equals expectedVersion
	// and returns the row with its incremented version.
	UpdateUser(ctx context.Context, u User, expectedVersion int64) (User, error)
}
