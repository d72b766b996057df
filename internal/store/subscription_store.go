package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/wolfeidau/rentdesk/internal/models"
)

// Errors
var (
	ErrPlanNotFound              = errors.New("subscription plan not found")
	ErrSubscriptionNotFound      = errors.New("subscription not found")
	ErrSubscriptionAlreadyExists = errors.New("subscription already exists")
)

// PlanStore holds the subscription plan catalog. Plans are seeded once at
// start up and read-only afterwards.
type PlanStore interface {
	// Seed inserts plans that are not yet present (matched by code).
	// Existing plans are left unchanged.
	Seed(ctx context.Context, plans []*models.SubscriptionPlan) error

	// GetByCode retrieves a plan by code.
	// Returns ErrPlanNotFound if the plan doesn't exist.
	GetByCode(ctx context.Context, code string) (*models.SubscriptionPlan, error)

	// List returns every plan ordered by sort order.
	List(ctx context.Context) ([]*models.SubscriptionPlan, error)
}

// SubscriptionStore manages organization subscriptions.
type SubscriptionStore interface {
	// Create attaches a subscription to an organization.
	// Returns ErrSubscriptionAlreadyExists if the ID is in use.
	Create(ctx context.Context, sub *models.OrganizationSubscription) error

	// Get retrieves a subscription by ID.
	// Returns ErrSubscriptionNotFound if the subscription doesn't exist.
	Get(ctx context.Context, subscriptionID uuid.UUID) (*models.OrganizationSubscription, error)

	// ListByOrganization returns all subscriptions of an organization, newest first.
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.OrganizationSubscription, error)
}
