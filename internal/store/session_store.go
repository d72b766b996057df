package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/rentdesk/internal/models"
)

// Sentinel errors for onboarding session store operations
var (
	ErrSessionNotFound      = errors.New("onboarding session not found")
	ErrSessionAlreadyExists = errors.New("onboarding session already exists")
	// ErrSessionConflict is returned when a conditional update loses to a concurrent writer.
	ErrSessionConflict = errors.New("onboarding session was modified concurrently")
)

// SessionStore persists onboarding sessions keyed by session id.
// Sessions are never deleted; they are moved to a terminal status.
type SessionStore interface {
	// Create stores a new session.
	// Returns ErrSessionAlreadyExists if a session with the same ID exists.
	Create(ctx context.Context, session *models.OnboardingSession) error

	// Get retrieves a session by ID regardless of status or expiry.
	// Returns ErrSessionNotFound if the session doesn't exist.
	Get(ctx context.Context, sessionID uuid.UUID) (*models.OnboardingSession, error)

	// Update replaces a session if, and only if, the stored version equals
	// session.Version. On success session.Version is incremented to match
	// the stored record.
	// Returns ErrSessionConflict if the versions differ and ErrSessionNotFound
	// if the session doesn't exist.
	Update(ctx context.Context, session *models.OnboardingSession) error

	// FindByUser returns the most recently created session for a user in the given status.
	// Returns ErrSessionNotFound if there is none.
	FindByUser(ctx context.Context, userID uuid.UUID, status models.SessionStatus) (*models.OnboardingSession, error)

	// FindByClientToken returns the most recently created session for an
	// anonymous client token in the given status.
	// Returns ErrSessionNotFound if there is none.
	FindByClientToken(ctx context.Context, token string, status models.SessionStatus) (*models.OnboardingSession, error)

	// ListByStatus returns sessions in the given status, oldest first.
	// A limit of 0 returns all matching sessions.
	ListByStatus(ctx context.Context, status models.SessionStatus, limit int) ([]*models.OnboardingSession, error)
}
