package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Roles assigned to users.
const (
	RoleOwner = "owner" // Created the organization during onboarding
	RoleAdmin = "admin" // Platform operator
)

// UserStatus values.
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User is a human account that can sign in to the platform.
type User struct {
	UserID       uuid.UUID `json:"userId"` // UUIDv7
	Email        string    `json:"email"`  // Unique, stored lower-cased
	PasswordHash string    `json:"-"`      // bcrypt
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Phone        string    `json:"phone,omitempty"`
	Roles        []string  `json:"roles"`
	Status       string    `json:"status"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasRole returns true if the user carries role.
func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}
