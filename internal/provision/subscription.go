package provision

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/rentdesk/internal/apperror"
	"github.com/wolfeidau/rentdesk/internal/models"
	"github.com/wolfeidau/rentdesk/internal/store"
)

// SubscriptionProvisioner attaches a plan to a newly created organization.
type SubscriptionProvisioner struct {
	plans         store.PlanStore
	subscriptions store.SubscriptionStore
	opts          options
}

// NewSubscriptionProvisioner creates a subscription provisioner.
func NewSubscriptionProvisioner(plans store.PlanStore, subscriptions store.SubscriptionStore, opts ...Option) *SubscriptionProvisioner {
	return &SubscriptionProvisioner{
		plans:         plans,
		subscriptions: subscriptions,
		opts:          buildOptions(opts),
	}
}

// Prepare validates a submitted PLAN_SELECTION payload, applying the TRIAL
// plan and MONTHLY billing defaults.
func (p *SubscriptionProvisioner) Prepare(ctx context.Context, sel *models.PlanSelection) error {
	if sel == nil {
		return apperror.Validation("", "plan selection is required")
	}

	sel.Plan = strings.ToUpper(strings.TrimSpace(sel.Plan))
	if sel.Plan == "" {
		sel.Plan = models.PlanTrial
	}
	sel.BillingCycle = models.BillingCycle(strings.ToUpper(strings.TrimSpace(string(sel.BillingCycle))))
	if sel.BillingCycle == "" {
		sel.BillingCycle = models.BillingCycleMonthly
	}

	if !sel.BillingCycle.Valid() {
		return apperror.Validation("billingCycle", "billing cycle %q is not supported", sel.BillingCycle)
	}

	_, err := p.lookupPlan(ctx, sel.Plan)
	return err
}

// Provision creates the subscription for orgID. A nil selection, or one
// without a plan, subscribes the organization to the trial plan.
//
// Organizations hold at most one current subscription. A current
// subscription to the same plan created by createdBy is the result of an
// earlier attempt and is returned as is.
func (p *SubscriptionProvisioner) Provision(ctx context.Context, orgID uuid.UUID, sel *models.PlanSelection, createdBy uuid.UUID) (*models.OrganizationSubscription, *models.SubscriptionPlan, error) {
	code := models.PlanTrial
	cycle := models.BillingCycleMonthly
	if sel != nil {
		if sel.Plan != "" {
			code = strings.ToUpper(sel.Plan)
		}
		if sel.BillingCycle != "" {
			cycle = sel.BillingCycle
		}
	}
	if !cycle.Valid() {
		return nil, nil, apperror.Validation("billingCycle", "billing cycle %q is not supported", cycle)
	}

	plan, err := p.lookupPlan(ctx, code)
	if err != nil {
		return nil, nil, err
	}

	now := p.opts.now()

	existing, err := p.subscriptions.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, nil, apperror.Internal(err, "failed to list subscriptions")
	}
	for _, sub := range existing {
		if !sub.IsCurrent(now) {
			continue
		}
		if sub.PlanCode == plan.Code && sub.CreatedBy == createdBy {
			log.Info().Str("subscription_id", sub.SubscriptionID.String()).Msg("Reusing previously provisioned subscription")
			return sub, plan, nil
		}
		return nil, nil, apperror.Conflict("plan", "organization %s already has an active subscription", orgID)
	}

	subscriptionID, err := uuid.NewV7()
	if err != nil {
		return nil, nil, apperror.Internal(err, "failed to generate subscription ID")
	}

	sub := &models.OrganizationSubscription{
		SubscriptionID: subscriptionID,
		OrgID:          orgID,
		PlanID:         plan.PlanID,
		PlanCode:       plan.Code,
		Status:         models.SubscriptionStatusActive,
		BillingCycle:   cycle,
		StartDate:      now,
		EndDate:        periodEnd(plan, cycle, now),
		AutoRenew:      !plan.IsTrial(),
		CreatedBy:      createdBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if plan.IsTrial() {
		sub.Status = models.SubscriptionStatusTrial
	}

	if err := p.subscriptions.Create(ctx, sub); err != nil {
		return nil, nil, apperror.Internal(err, "failed to create subscription")
	}

	log.Info().
		Str("subscription_id", sub.SubscriptionID.String()).
		Str("org_id", orgID.String()).
		Str("plan", plan.Code).
		Msg("Subscription provisioned")

	return sub, plan, nil
}

// Get returns a provisioned subscription and its plan.
func (p *SubscriptionProvisioner) Get(ctx context.Context, subscriptionID uuid.UUID) (*models.OrganizationSubscription, *models.SubscriptionPlan, error) {
	sub, err := p.subscriptions.Get(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, store.ErrSubscriptionNotFound) {
			return nil, nil, apperror.NotFound("subscription %s not found", subscriptionID)
		}
		return nil, nil, apperror.Internal(err, "failed to get subscription")
	}

	plan, err := p.lookupPlan(ctx, sub.PlanCode)
	if err != nil {
		return nil, nil, err
	}

	return sub, plan, nil
}

func (p *SubscriptionProvisioner) lookupPlan(ctx context.Context, code string) (*models.SubscriptionPlan, error) {
	plan, err := p.plans.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrPlanNotFound) {
			return nil, apperror.Validation("plan", "plan %q does not exist", code)
		}
		return nil, apperror.Internal(err, "failed to look up plan")
	}
	return plan, nil
}

// periodEnd returns when the first subscription period ends.
func periodEnd(plan *models.SubscriptionPlan, cycle models.BillingCycle, start time.Time) time.Time {
	if plan.IsTrial() {
		return start.AddDate(0, 0, plan.TrialDays)
	}
	if cycle == models.BillingCycleYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}
