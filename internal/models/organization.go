package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization represents a rental company (tenant) in the system.
// Each organization owns one or more agencies.
type Organization struct {
	OrgID       uuid.UUID `json:"organizationId"` // UUIDv7
	Name        string    `json:"name"`           // Unique (case-insensitive)
	LegalName   string    `json:"legalName,omitempty"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Address     string    `json:"address,omitempty"`
	City        string    `json:"city,omitempty"`
	Country     string    `json:"country,omitempty"`
	TaxID       string    `json:"taxId,omitempty"`
	OwnerUserID uuid.UUID `json:"ownerUserId"` // FK to users
	CreatedBy   uuid.UUID `json:"createdBy"`   // FK to users
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Agency is a branch of an organization where vehicles are rented from.
type Agency struct {
	AgencyID  uuid.UUID `json:"agencyId"`       // UUIDv7
	OrgID     uuid.UUID `json:"organizationId"` // FK to organizations
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Address   string    `json:"address,omitempty"`
	City      string    `json:"city,omitempty"`
	Country   string    `json:"country,omitempty"`
	IsDefault bool      `json:"isDefault"`
	CreatedBy uuid.UUID `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
