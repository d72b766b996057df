package provision

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/rentdesk/internal/apperror"
	"github.com/wolfeidau/rentdesk/internal/models"
	"github.com/wolfeidau/rentdesk/internal/store"
)

const maxOrganizationNameLength = 255

// OrganizationProvisioner creates an organization and its default agency.
type OrganizationProvisioner struct {
	orgs     store.OrganizationStore
	agencies store.AgencyStore
	opts     options
}

// NewOrganizationProvisioner creates an organization provisioner.
func NewOrganizationProvisioner(orgs store.OrganizationStore, agencies store.AgencyStore, opts ...Option) *OrganizationProvisioner {
	return &OrganizationProvisioner{
		orgs:     orgs,
		agencies: agencies,
		opts:     buildOptions(opts),
	}
}

// Prepare validates a submitted ORGANIZATION_INFO payload and fills in defaults.
func (p *OrganizationProvisioner) Prepare(info *models.OrganizationInfo) error {
	if info == nil {
		return apperror.Validation("", "organization info is required")
	}

	info.Name = strings.Join(strings.Fields(info.Name), " ")
	info.LegalName = strings.TrimSpace(info.LegalName)
	info.Email = strings.TrimSpace(info.Email)
	info.DefaultAgencyName = strings.TrimSpace(info.DefaultAgencyName)
	if info.Email != "" {
		info.Email = store.NormalizeEmail(info.Email)
	}

	if err := validateOrganizationFields(info); err != nil {
		return err
	}

	if info.DefaultAgencyName == "" {
		info.DefaultAgencyName = info.Name + " Main Agency"
	}
	return nil
}

// Provision creates the organization owned by ownerID together with its
// default agency.
//
// An organization with the same name that is already owned by ownerID is the
// result of an earlier attempt; it is reused and its default agency created if
// missing.
func (p *OrganizationProvisioner) Provision(ctx context.Context, info *models.OrganizationInfo, ownerID uuid.UUID) (*models.Organization, *models.Agency, error) {
	if info == nil {
		return nil, nil, apperror.Validation("", "organization info is required")
	}
	if err := validateOrganizationFields(info); err != nil {
		return nil, nil, err
	}

	org, err := p.findOwned(ctx, info.Name, ownerID)
	if err != nil {
		return nil, nil, err
	}

	if org == nil {
		org, err = p.createOrganization(ctx, info, ownerID)
		if err != nil {
			return nil, nil, err
		}
	}

	agency, err := p.ensureDefaultAgency(ctx, org, info, ownerID)
	if err != nil {
		return nil, nil, err
	}

	return org, agency, nil
}

// Get returns a provisioned organization and its default agency.
func (p *OrganizationProvisioner) Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, *models.Agency, error) {
	org, err := p.orgs.Get(ctx, orgID)
	if err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			return nil, nil, apperror.NotFound("organization %s not found", orgID)
		}
		return nil, nil, apperror.Internal(err, "failed to get organization")
	}

	agency, err := p.defaultAgency(ctx, orgID)
	if err != nil {
		return nil, nil, err
	}

	return org, agency, nil
}

// findOwned returns the organization named name if ownerID owns it, nil if
// the name is free, and a Conflict if someone else holds it.
func (p *OrganizationProvisioner) findOwned(ctx context.Context, name string, ownerID uuid.UUID) (*models.Organization, error) {
	existing, err := p.orgs.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrOrganizationNotFound) {
			return nil, nil
		}
		return nil, apperror.Internal(err, "failed to look up organization")
	}

	if existing.OwnerUserID != ownerID {
		return nil, apperror.Conflict("name", "an organization named %q already exists", name)
	}

	log.Info().Str("org_id", existing.OrgID.String()).Msg("Reusing previously provisioned organization")
	return existing, nil
}

func (p *OrganizationProvisioner) createOrganization(ctx context.Context, info *models.OrganizationInfo, ownerID uuid.UUID) (*models.Organization, error) {
	orgID, err := uuid.NewV7()
	if err != nil {
		return nil, apperror.Internal(err, "failed to generate organization ID")
	}

	now := p.opts.now()
	org := &models.Organization{
		OrgID:       orgID,
		Name:        info.Name,
		LegalName:   info.LegalName,
		Email:       info.Email,
		Phone:       info.Phone,
		Address:     info.Address,
		City:        info.City,
		Country:     info.Country,
		TaxID:       info.TaxID,
		OwnerUserID: ownerID,
		CreatedBy:   ownerID,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := p.orgs.Create(ctx, org); err != nil {
		if errors.Is(err, store.ErrOrganizationNameTaken) {
			return nil, apperror.Conflict("name", "an organization named %q already exists", info.Name)
		}
		return nil, apperror.Internal(err, "failed to create organization")
	}

	log.Info().
		Str("org_id", org.OrgID.String()).
		Str("owner_user_id", ownerID.String()).
		Msg("Organization provisioned")

	return org, nil
}

func (p *OrganizationProvisioner) ensureDefaultAgency(ctx context.Context, org *models.Organization, info *models.OrganizationInfo, createdBy uuid.UUID) (*models.Agency, error) {
	existing, err := p.defaultAgency(ctx, org.OrgID)
	if err == nil {
		return existing, nil
	}
	if !apperror.IsKind(err, apperror.KindNotFound) {
		return nil, err
	}

	agencyID, err := uuid.NewV7()
	if err != nil {
		return nil, apperror.Internal(err, "failed to generate agency ID")
	}

	name := info.DefaultAgencyName
	if name == "" {
		name = org.Name + " Main Agency"
	}

	now := p.opts.now()
	agency := &models.Agency{
		AgencyID:  agencyID,
		OrgID:     org.OrgID,
		Name:      name,
		Email:     org.Email,
		Phone:     org.Phone,
		Address:   org.Address,
		City:      org.City,
		Country:   org.Country,
		IsDefault: true,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := p.agencies.Create(ctx, agency); err != nil {
		return nil, apperror.Internal(err, "failed to create default agency")
	}

	log.Info().
		Str("org_id", org.OrgID.String()).
		Str("agency_id", agency.AgencyID.String()).
		Msg("Default agency provisioned")

	return agency, nil
}

func (p *OrganizationProvisioner) defaultAgency(ctx context.Context, orgID uuid.UUID) (*models.Agency, error) {
	agencies, err := p.agencies.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, apperror.Internal(err, "failed to list agencies")
	}
	for _, agency := range agencies {
		if agency.IsDefault {
			return agency, nil
		}
	}
	return nil, apperror.NotFound("organization %s has no default agency", orgID)
}

func validateOrganizationFields(info *models.OrganizationInfo) error {
	if err := requireField("name", info.Name); err != nil {
		return err
	}
	if err := maxLength("name", info.Name, maxOrganizationNameLength); err != nil {
		return err
	}
	if err := maxLength("legalName", info.LegalName, maxOrganizationNameLength); err != nil {
		return err
	}
	if info.Email != "" {
		if err := validateEmail("email", info.Email); err != nil {
			return err
		}
	}
	return maxLength("defaultAgencyName", info.DefaultAgencyName, maxOrganizationNameLength)
}
