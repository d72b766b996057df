package auth

import (
	"context"
	"slices"

	"github.com/wolfeidau/rentdesk/internal/apperror"
	"github.com/wolfeidau/rentdesk/internal/models"
)

// Permission represents an authorized action
type Permission string

const (
	PermOnboardingWrite Permission = "onboarding:write"
	PermOnboardingRead  Permission = "onboarding:read"
	PermOnboardingAdmin Permission = "onboarding:admin"
	PermPlansRead       Permission = "plans:read"
)

// RoleAnonymous is the implicit role of callers without a credential.
const RoleAnonymous = "anonymous"

// RolePermissions maps roles to allowed permissions
var RolePermissions = map[string][]Permission{
	RoleAnonymous: {
		PermOnboardingWrite,
		PermOnboardingRead,
		PermPlansRead,
	},
	models.RoleOwner: {
		PermOnboardingWrite,
		PermOnboardingRead,
		PermPlansRead,
	},
	models.RoleAdmin: {
		PermOnboardingWrite,
		PermOnboardingRead,
		PermOnboardingAdmin,
		PermPlansRead,
	},
}

// HasPermission checks if any of the roles grants a specific permission
func HasPermission(roles []string, perm Permission) bool {
	for _, role := range roles {
		if slices.Contains(RolePermissions[role], perm) {
			return true
		}
	}
	return false
}

// Authorize checks the caller in ctx against perm. Callers without a
// principal are treated as anonymous.
func Authorize(ctx context.Context, perm Permission) error {
	principal := PrincipalFromContext(ctx)
	if principal == nil {
		if HasPermission([]string{RoleAnonymous}, perm) {
			return nil
		}
		return apperror.Unauthenticated("authentication required for %s", perm)
	}

	if !HasPermission(principal.Roles, perm) {
		return apperror.PermissionDenied("permission denied: %v requires %s", principal.Roles, perm)
	}

	return nil
}
