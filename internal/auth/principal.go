package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/rentdesk/internal/models"
)

// Principal represents an authenticated caller from a verified JWT.
// This is added to the request context after successful verification.
type Principal struct {
	UserID uuid.UUID
	OrgID  uuid.UUID // uuid.Nil until the user owns an organization
	Email  string
	Roles  []string
}

type contextKey int

const (
	principalContextKey contextKey = iota
)

// WithPrincipal returns a context carrying the principal.
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// PrincipalFromContext extracts the authenticated principal from the request context.
// Returns nil if no principal is present (unauthenticated request).
func PrincipalFromContext(ctx context.Context) *Principal {
	principal, _ := ctx.Value(principalContextKey).(*Principal)
	return principal
}

// WithSystemPrincipal returns a context acting as the platform itself, used
// by background work such as the session reaper.
func WithSystemPrincipal(ctx context.Context) context.Context {
	return WithPrincipal(ctx, &Principal{
		UserID: uuid.Nil,
		Roles:  []string{models.RoleAdmin},
	})
}
