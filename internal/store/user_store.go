package store

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/wolfeidau/rentdesk/internal/models"
)

// Errors
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserEmailTaken    = errors.New("user email already registered")
)

// UserStore manages user accounts.
type UserStore interface {
	// Create creates a new user.
	// Returns ErrUserEmailTaken if another user has the same (normalized) email
	// and ErrUserAlreadyExists if the ID is already used.
	Create(ctx context.Context, user *models.User) error

	// Get retrieves a user by ID.
	// Returns ErrUserNotFound if the user doesn't exist.
	Get(ctx context.Context, userID uuid.UUID) (*models.User, error)

	// GetByEmail retrieves a user by email, case-insensitively.
	// Returns ErrUserNotFound if the user doesn't exist.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// NormalizeEmail returns the form emails are stored and compared in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
