package store

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/wolfeidau/rentdesk/internal/models"
)

// Sentinel errors for organization store operations
var (
	ErrOrganizationNotFound      = errors.New("organization not found")
	ErrOrganizationAlreadyExists = errors.New("organization already exists")
	ErrOrganizationNameTaken     = errors.New("organization name already registered")
	ErrAgencyNotFound            = errors.New("agency not found")
	ErrAgencyAlreadyExists       = errors.New("agency already exists")
)

// OrganizationStore defines the interface for organization storage operations.
// Organizations represent tenants in the system, with each org owning agencies.
type OrganizationStore interface {
	// Create creates a new organization in the store.
	// Returns ErrOrganizationNameTaken if the (case-insensitive) name is in use,
	// ErrOrganizationAlreadyExists if the ID is in use.
	Create(ctx context.Context, org *models.Organization) error

	// Get retrieves an organization by ID.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)

	// GetByName retrieves an organization by name, case-insensitively.
	// Returns ErrOrganizationNotFound if the organization doesn't exist.
	GetByName(ctx context.Context, name string) (*models.Organization, error)

	// ListByOwner returns all organizations owned by a specific user.
	ListByOwner(ctx context.Context, ownerUserID uuid.UUID) ([]*models.Organization, error)
}

// AgencyStore defines the interface for agency storage operations.
type AgencyStore interface {
	// Create creates a new agency.
	// Returns ErrAgencyAlreadyExists if the ID is in use.
	Create(ctx context.Context, agency *models.Agency) error

	// Get retrieves an agency by ID.
	// Returns ErrAgencyNotFound if the agency doesn't exist.
	Get(ctx context.Context, agencyID uuid.UUID) (*models.Agency, error)

	// ListByOrganization returns the agencies of an organization, oldest first.
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.Agency, error)
}

// NormalizeName returns the form organization names are compared in.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
