package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfeidau/rentdesk/internal/models"
	"github.com/wolfeidau/rentdesk/internal/store"
)

var (
	_ store.OrganizationStore = (*OrganizationStore)(nil)
	_ store.AgencyStore       = (*AgencyStore)(nil)
)

// OrganizationStore implements store.OrganizationStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type OrganizationStore struct {
	mu sync.RWMutex

	organizations map[uuid.UUID]*models.Organization // org_id -> Organization
	byName        map[string]uuid.UUID               // normalized name -> org_id
}

// NewOrganizationStore creates a new in-memory organization store.
func NewOrganizationStore() *OrganizationStore {
	return &OrganizationStore{
		organizations: make(map[uuid.UUID]*models.Organization),
		byName:        make(map[string]uuid.UUID),
	}
}

// Create creates a new organization in memory.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check if organization already exists
	if _, exists := s.organizations[org.OrgID]; exists {
		return store.ErrOrganizationAlreadyExists
	}

	name := store.NormalizeName(org.Name)
	if _, exists := s.byName[name]; exists {
		return store.ErrOrganizationNameTaken
	}

	// Clone to avoid external modifications
	clone := *org
	s.organizations[org.OrgID] = &clone
	s.byName[name] = org.OrgID

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, exists := s.organizations[orgID]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	clone := *org
	return &clone, nil
}

// GetByName retrieves an organization by name.
func (s *OrganizationStore) GetByName(ctx context.Context, name string) (*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orgID, exists := s.byName[store.NormalizeName(name)]
	if !exists {
		return nil, store.ErrOrganizationNotFound
	}

	clone := *s.organizations[orgID]
	return &clone, nil
}

// ListByOwner returns all organizations owned by a specific user.
func (s *OrganizationStore) ListByOwner(ctx context.Context, ownerUserID uuid.UUID) ([]*models.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Organization
	for _, org := range s.organizations {
		if org.OwnerUserID == ownerUserID {
			clone := *org
			result = append(result, &clone)
		}
	}

	slices.SortFunc(result, func(a, b *models.Organization) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return result, nil
}

// AgencyStore implements store.AgencyStore using in-memory storage.
type AgencyStore struct {
	mu sync.RWMutex

	agencies map[uuid.UUID]*models.Agency // agency_id -> Agency
}

// NewAgencyStore creates a new in-memory agency store.
func NewAgencyStore() *AgencyStore {
	return &AgencyStore{
		agencies: make(map[uuid.UUID]*models.Agency),
	}
}

// Create creates a new agency in memory.
func (s *AgencyStore) Create(ctx context.Context, agency *models.Agency) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.agencies[agency.AgencyID]; exists {
		return store.ErrAgencyAlreadyExists
	}

	clone := *agency
	s.agencies[agency.AgencyID] = &clone

	return nil
}

// Get retrieves an agency by ID.
func (s *AgencyStore) Get(ctx context.Context, agencyID uuid.UUID) (*models.Agency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agency, exists := s.agencies[agencyID]
	if !exists {
		return nil, store.ErrAgencyNotFound
	}

	clone := *agency
	return &clone, nil
}

// ListByOrganization returns the agencies of an organization, oldest first.
func (s *AgencyStore) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.Agency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Agency
	for _, agency := range s.agencies {
		if agency.OrgID == orgID {
			clone := *agency
			result = append(result, &clone)
		}
	}

	slices.SortFunc(result, func(a, b *models.Agency) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	return result, nil
}
