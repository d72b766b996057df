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
	_ store.PlanStore         = (*PlanStore)(nil)
	_ store.SubscriptionStore = (*SubscriptionStore)(nil)
)

// PlanStore implements store.PlanStore using in-memory storage.
type PlanStore struct {
	mu sync.RWMutex

	plans map[string]*models.SubscriptionPlan // code -> SubscriptionPlan
}

// NewPlanStore creates a new in-memory plan store.
func NewPlanStore() *PlanStore {
	return &PlanStore{
		plans: make(map[string]*models.SubscriptionPlan),
	}
}

// Seed inserts plans whose code is not yet present.
func (s *PlanStore) Seed(ctx context.Context, plans []*models.SubscriptionPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, plan := range plans {
		if _, exists := s.plans[plan.Code]; exists {
			continue
		}
		s.plans[plan.Code] = clonePlan(plan)
	}

	return nil
}

// GetByCode retrieves a plan by code.
func (s *PlanStore) GetByCode(ctx context.Context, code string) (*models.SubscriptionPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	plan, exists := s.plans[code]
	if !exists {
		return nil, store.ErrPlanNotFound
	}

	return clonePlan(plan), nil
}

// List returns every plan ordered by sort order.
func (s *PlanStore) List(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.SubscriptionPlan, 0, len(s.plans))
	for _, plan := range s.plans {
		result = append(result, clonePlan(plan))
	}

	slices.SortFunc(result, func(a, b *models.SubscriptionPlan) int {
		return a.SortOrder - b.SortOrder
	})

	return result, nil
}

func clonePlan(plan *models.SubscriptionPlan) *models.SubscriptionPlan {
	clone := *plan
	clone.Features = slices.Clone(plan.Features)
	return &clone
}

// SubscriptionStore implements store.SubscriptionStore using in-memory storage.
type SubscriptionStore struct {
	mu sync.RWMutex

	subscriptions map[uuid.UUID]*models.OrganizationSubscription // subscription_id -> OrganizationSubscription
}

// NewSubscriptionStore creates a new in-memory subscription store.
func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{
		subscriptions: make(map[uuid.UUID]*models.OrganizationSubscription),
	}
}

// Create stores a new subscription.
func (s *SubscriptionStore) Create(ctx context.Context, sub *models.OrganizationSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.SubscriptionID]; exists {
		return store.ErrSubscriptionAlreadyExists
	}

	clone := *sub
	s.subscriptions[sub.SubscriptionID] = &clone

	return nil
}

// Get retrieves a subscription by ID.
func (s *SubscriptionStore) Get(ctx context.Context, subscriptionID uuid.UUID) (*models.OrganizationSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, exists := s.subscriptions[subscriptionID]
	if !exists {
		return nil, store.ErrSubscriptionNotFound
	}

	clone := *sub
	return &clone, nil
}

// ListByOrganization returns all subscriptions of an organization, newest first.
func (s *SubscriptionStore) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.OrganizationSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.OrganizationSubscription
	for _, sub := range s.subscriptions {
		if sub.OrgID == orgID {
			clone := *sub
			result = append(result, &clone)
		}
	}

	slices.SortFunc(result, func(a, b *models.OrganizationSubscription) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	return result, nil
}
