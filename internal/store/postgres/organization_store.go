package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/rentdesk/internal/models"
	"github.com/wolfeidau/rentdesk/internal/store"
)

var (
	_ store.OrganizationStore = (*OrganizationStore)(nil)
	_ store.AgencyStore       = (*AgencyStore)(nil)
)

const organizationColumns = `
	org_id, name, legal_name, email, phone, address, city, country, tax_id,
	owner_user_id, created_by, active, created_at, updated_at
`

// OrganizationStore implements store.OrganizationStore using PostgreSQL.
type OrganizationStore struct {
	pool *pgxpool.Pool
}

// NewOrganizationStore creates a new PostgreSQL-backed organization store.
// It shares the connection pool with other stores.
func NewOrganizationStore(pool *pgxpool.Pool) *OrganizationStore {
	return &OrganizationStore{
		pool: pool,
	}
}

// Create creates a new organization in the database.
func (s *OrganizationStore) Create(ctx context.Context, org *models.Organization) error {
	query := `
		INSERT INTO organizations (
			org_id, name, normalized_name, legal_name, email, phone, address, city, country, tax_id,
			owner_user_id, created_by, active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
	`

	_, err := s.pool.Exec(ctx, query,
		org.OrgID,
		org.Name,
		store.NormalizeName(org.Name),
		org.LegalName,
		org.Email,
		org.Phone,
		org.Address,
		org.City,
		org.Country,
		org.TaxID,
		org.OwnerUserID,
		org.CreatedBy,
		org.Active,
		org.CreatedAt,
		org.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return mapPostgresError(err)
		}
		return fmt.Errorf("failed to create organization: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("org_id", org.OrgID.String()).
		Str("name", org.Name).
		Msg("Created organization")

	return nil
}

// Get retrieves an organization by ID.
func (s *OrganizationStore) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE org_id = $1`

	org, err := scanOrganization(s.pool.QueryRow(ctx, query, orgID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", mapPostgresError(err))
	}

	return org, nil
}

// GetByName retrieves an organization by name, case-insensitively.
func (s *OrganizationStore) GetByName(ctx context.Context, name string) (*models.Organization, error) {
	query := `SELECT ` + organizationColumns + ` FROM organizations WHERE normalized_name = $1`

	org, err := scanOrganization(s.pool.QueryRow(ctx, query, store.NormalizeName(name)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrganizationNotFound
		}
		return nil, fmt.Errorf("failed to get organization by name: %w", mapPostgresError(err))
	}

	return org, nil
}

// ListByOwner returns all organizations owned by a specific user, newest first.
func (s *OrganizationStore) ListByOwner(ctx context.Context, ownerUserID uuid.UUID) ([]*models.Organization, error) {
	query := `
		SELECT ` + organizationColumns + `
		FROM organizations
		WHERE owner_user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.pool.Query(ctx, query, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var orgs []*models.Organization
	for rows.Next() {
		org, err := scanOrganization(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating organizations: %w", err)
	}

	return orgs, nil
}

func scanOrganization(row pgx.Row) (*models.Organization, error) {
	var org models.Organization
	err := row.Scan(
		&org.OrgID,
		&org.Name,
		&org.LegalName,
		&org.Email,
		&org.Phone,
		&org.Address,
		&org.City,
		&org.Country,
		&org.TaxID,
		&org.OwnerUserID,
		&org.CreatedBy,
		&org.Active,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	org.CreatedAt = org.CreatedAt.UTC()
	org.UpdatedAt = org.UpdatedAt.UTC()

	return &org, nil
}

const agencyColumns = `
	agency_id, org_id, name, email, phone, address, city, country,
	is_default, created_by, created_at, updated_at
`

// AgencyStore implements store.AgencyStore using PostgreSQL.
type AgencyStore struct {
	pool *pgxpool.Pool
}

// NewAgencyStore creates a new PostgreSQL-backed agency store.
func NewAgencyStore(pool *pgxpool.Pool) *AgencyStore {
	return &AgencyStore{
		pool: pool,
	}
}

// Create creates a new agency.
func (s *AgencyStore) Create(ctx context.Context, agency *models.Agency) error {
	query := `
		INSERT INTO agencies (` + agencyColumns + `) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	_, err := s.pool.Exec(ctx, query,
		agency.AgencyID,
		agency.OrgID,
		agency.Name,
		agency.Email,
		agency.Phone,
		agency.Address,
		agency.City,
		agency.Country,
		agency.IsDefault,
		agency.CreatedBy,
		agency.CreatedAt,
		agency.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return mapPostgresError(err)
		}
		return fmt.Errorf("failed to create agency: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("agency_id", agency.AgencyID.String()).
		Str("org_id", agency.OrgID.String()).
		Bool("is_default", agency.IsDefault).
		Msg("Created agency")

	return nil
}

// Get retrieves an agency by ID.
func (s *AgencyStore) Get(ctx context.Context, agencyID uuid.UUID) (*models.Agency, error) {
	query := `SELECT ` + agencyColumns + ` FROM agencies WHERE agency_id = $1`

	agency, err := scanAgency(s.pool.QueryRow(ctx, query, agencyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrAgencyNotFound
		}
		return nil, fmt.Errorf("failed to get agency: %w", mapPostgresError(err))
	}

	return agency, nil
}

// ListByOrganization returns the agencies of an organization, oldest first.
func (s *AgencyStore) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.Agency, error) {
	query := `
		SELECT ` + agencyColumns + `
		FROM agencies
		WHERE org_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agencies: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var agencies []*models.Agency
	for rows.Next() {
		agency, err := scanAgency(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agency: %w", err)
		}
		agencies = append(agencies, agency)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agencies: %w", err)
	}

	return agencies, nil
}

func scanAgency(row pgx.Row) (*models.Agency, error) {
	var agency models.Agency
	err := row.Scan(
		&agency.AgencyID,
		&agency.OrgID,
		&agency.Name,
		&agency.Email,
		&agency.Phone,
		&agency.Address,
		&agency.City,
		&agency.Country,
		&agency.IsDefault,
		&agency.CreatedBy,
		&agency.CreatedAt,
		&agency.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	agency.CreatedAt = agency.CreatedAt.UTC()
	agency.UpdatedAt = agency.UpdatedAt.UTC()

	return &agency, nil
}
