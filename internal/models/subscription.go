package models

import (
	"time"

	"github.com/google/uuid"
)

// Plan codes seeded at start up.
const (
	PlanTrial      = "TRIAL"
	PlanBasic      = "BASIC"
	PlanPremium    = "PREMIUM"
	PlanEnterprise = "ENTERPRISE"
)

// BillingCycle is how often a subscription renews.
type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "MONTHLY"
	BillingCycleYearly  BillingCycle = "YEARLY"
)

// Valid returns true for known billing cycles.
func (b BillingCycle) Valid() bool {
	return b == BillingCycleMonthly || b == BillingCycleYearly
}

// SubscriptionStatus values.
const (
	SubscriptionStatusTrial     = "TRIAL"
	SubscriptionStatusActive    = "ACTIVE"
	SubscriptionStatusCancelled = "CANCELLED"
	SubscriptionStatusExpired   = "EXPIRED"
)

// SubscriptionPlan is immutable reference data shared by all organizations.
type SubscriptionPlan struct {
	PlanID       uuid.UUID `json:"planId" yaml:"-"`
	Code         string    `json:"code" yaml:"code"`
	Name         string    `json:"name" yaml:"name"`
	Description  string    `json:"description,omitempty" yaml:"description"`
	MonthlyPrice int64     `json:"monthlyPrice" yaml:"monthly_price"` // minor units
	YearlyPrice  int64     `json:"yearlyPrice" yaml:"yearly_price"`   // minor units
	Currency     string    `json:"currency" yaml:"currency"`
	TrialDays    int       `json:"trialDays,omitempty" yaml:"trial_days"`
	MaxAgencies  int       `json:"maxAgencies" yaml:"max_agencies"` // 0 = unlimited
	MaxVehicles  int       `json:"maxVehicles" yaml:"max_vehicles"` // 0 = unlimited
	MaxDrivers   int       `json:"maxDrivers" yaml:"max_drivers"`   // 0 = unlimited
	MaxUsers     int       `json:"maxUsers" yaml:"max_users"`       // 0 = unlimited
	Features     []string  `json:"features,omitempty" yaml:"features"`
	SortOrder    int       `json:"sortOrder" yaml:"sort_order"`
}

// IsTrial returns true for the zero-cost, time-boxed default tier.
func (p *SubscriptionPlan) IsTrial() bool {
	return p.Code == PlanTrial
}

// OrganizationSubscription attaches a plan to an organization.
type OrganizationSubscription struct {
	SubscriptionID uuid.UUID    `json:"subscriptionId"` // UUIDv7
	OrgID          uuid.UUID    `json:"organizationId"` // FK to organizations
	PlanID         uuid.UUID    `json:"planId"`         // FK to subscription_plans
	PlanCode       string       `json:"planCode"`
	Status         string       `json:"status"`
	BillingCycle   BillingCycle `json:"billingCycle"`
	StartDate      time.Time    `json:"startDate"`
	EndDate        time.Time    `json:"endDate"`
	AutoRenew      bool         `json:"autoRenew"`
	CreatedBy      uuid.UUID    `json:"createdBy"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// IsCurrent returns true if the subscription is usable at now.
func (s *OrganizationSubscription) IsCurrent(now time.Time) bool {
	if s.Status != SubscriptionStatusActive && s.Status != SubscriptionStatusTrial {
		return false
	}
	return now.Before(s.EndDate)
}
