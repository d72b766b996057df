package onboarding

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/rentdesk/internal/apperror"
	"github.com/wolfeidau/rentdesk/internal/auth"
	"github.com/wolfeidau/rentdesk/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Provisioning steps run by CompleteOnboarding, in order.
const (
	ProvisionIdentity     = "IDENTITY"
	ProvisionOrganization = "ORGANIZATION"
	ProvisionSubscription = "SUBSCRIPTION"
)

// Completion is the result of a successful CompleteOnboarding.
type Completion struct {
	Session      *models.OnboardingSession
	User         *models.User
	Organization *models.Organization
	Agency       *models.Agency
	Subscription *models.OrganizationSubscription
	Plan         *models.SubscriptionPlan

	// Set when a token issuer is configured.
	AccessToken          string
	AccessTokenExpiresAt time.Time
}

// provisioningStep is one entry of the completion saga. run either resumes
// from what the session already records or provisions and records the
// entity, persisting the session before it returns.
type provisioningStep struct {
	name string
	run  func(ctx context.Context, c *Completion) error
}

func (o *Orchestrator) provisioningSteps() []provisioningStep {
	return []provisioningStep{
		{name: ProvisionIdentity, run: o.provisionIdentity},
		{name: ProvisionOrganization, run: o.provisionOrganization},
		{name: ProvisionSubscription, run: o.provisionSubscription},
	}
}

// CompleteOnboarding provisions the user, organization and subscription for
// a session that has passed PLAN_SELECTION and marks it COMPLETED.
//
// The provisioning steps are not atomic. Each step's result is recorded on
// the session as it succeeds so a retry resumes after the last finished step.
// A failure after the owner account exists is reported as a partial
// provisioning failure naming the entities created so far; the session
// stays IN_PROGRESS at PLAN_SELECTION.
func (o *Orchestrator) CompleteOnboarding(ctx context.Context, sessionID uuid.UUID) (*Completion, error) {
	if err := auth.Authorize(ctx, auth.PermOnboardingWrite); err != nil {
		return nil, err
	}

	ctx, span := o.tracer.Start(ctx, "onboarding.CompleteOnboarding", trace.WithAttributes(
		attribute.String("session_id", sessionID.String()),
	))
	defer span.End()

	started := o.now()

	completion, err := o.complete(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	o.metrics.CompletionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("plan", completion.Plan.Code)))
	o.metrics.CompletionDuration.Record(ctx, float64(o.now().Sub(started).Milliseconds()))

	zerolog.Ctx(ctx).Info().
		Str("session_id", sessionID.String()).
		Str("user_id", completion.User.UserID.String()).
		Str("org_id", completion.Organization.OrgID.String()).
		Str("plan", completion.Plan.Code).
		Msg("Onboarding completed")

	return completion, nil
}

func (o *Orchestrator) complete(ctx context.Context, sessionID uuid.UUID) (*Completion, error) {
	session, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := o.checkOpen(ctx, session); err != nil {
		return nil, err
	}

	if session.CurrentStep != models.StepPlanSelection {
		return nil, apperror.InvalidTransition("cannot complete onboarding: session is at %s, expected %s", session.CurrentStep, models.StepPlanSelection)
	}

	c := &Completion{Session: session}

	var completed []string
	for _, step := range o.provisioningSteps() {
		started := o.now()
		err := step.run(ctx, c)
		o.metrics.ProvisioningStepDuration.Record(ctx, float64(o.now().Sub(started).Milliseconds()),
			metric.WithAttributes(attribute.String("step", step.name)))

		if err != nil {
			// An identity failure before the account exists leaves nothing behind.
			if step.name == ProvisionIdentity && c.User == nil {
				return nil, err
			}
			return nil, o.partialFailure(ctx, c, step.name, completed, err)
		}
		completed = append(completed, step.name)
	}

	now := o.now()
	session.Status = models.SessionStatusCompleted
	session.CurrentStep = models.StepCompleted
	session.CompletedAt = &now
	session.UpdatedAt = now

	if err := o.sessions.Update(ctx, session); err != nil {
		return nil, o.partialFailure(ctx, c, string(models.StepCompleted), completed, o.mapUpdateError(ctx, err))
	}

	o.issueAccessToken(ctx, c)

	return c, nil
}

func (o *Orchestrator) provisionIdentity(ctx context.Context, c *Completion) error {
	session := c.Session

	if session.UserID != nil {
		user, err := o.identity.Get(ctx, *session.UserID)
		if err != nil {
			return err
		}
		c.User = user
		return nil
	}

	user, err := o.identity.Provision(ctx, session.OwnerInfo)
	if err != nil {
		return err
	}
	c.User = user

	userID := user.UserID
	session.UserID = &userID
	return o.recordProgress(ctx, session)
}

func (o *Orchestrator) provisionOrganization(ctx context.Context, c *Completion) error {
	session := c.Session

	if session.CreatedOrganizationID != nil {
		org, agency, err := o.organizations.Get(ctx, *session.CreatedOrganizationID)
		if err != nil {
			return err
		}
		c.Organization, c.Agency = org, agency
		return nil
	}

	org, agency, err := o.organizations.Provision(ctx, session.OrganizationInfo, c.User.UserID)
	if err != nil {
		return err
	}
	c.Organization, c.Agency = org, agency

	orgID := org.OrgID
	session.CreatedOrganizationID = &orgID
	return o.recordProgress(ctx, session)
}

func (o *Orchestrator) provisionSubscription(ctx context.Context, c *Completion) error {
	session := c.Session

	if session.CreatedSubscriptionID != nil {
		sub, plan, err := o.subscriptions.Get(ctx, *session.CreatedSubscriptionID)
		if err != nil {
			return err
		}
		c.Subscription, c.Plan = sub, plan
		return nil
	}

	sub, plan, err := o.subscriptions.Provision(ctx, c.Organization.OrgID, session.PlanSelection, c.User.UserID)
	if err != nil {
		return err
	}
	c.Subscription, c.Plan = sub, plan

	subscriptionID := sub.SubscriptionID
	session.CreatedSubscriptionID = &subscriptionID
	return o.recordProgress(ctx, session)
}

// recordProgress persists the provisioning result held on session.
func (o *Orchestrator) recordProgress(ctx context.Context, session *models.OnboardingSession) error {
	session.UpdatedAt = o.now()
	if err := o.sessions.Update(ctx, session); err != nil {
		return o.mapUpdateError(ctx, err)
	}
	return nil
}

func (o *Orchestrator) partialFailure(ctx context.Context, c *Completion, failedStep string, completed []string, cause error) error {
	created := make(map[string]string)
	if c.User != nil {
		created["userId"] = c.User.UserID.String()
	}
	if c.Organization != nil {
		created["organizationId"] = c.Organization.OrgID.String()
	}
	if c.Agency != nil {
		created["agencyId"] = c.Agency.AgencyID.String()
	}
	if c.Subscription != nil {
		created["subscriptionId"] = c.Subscription.SubscriptionID.String()
	}

	o.metrics.PartialProvisioningTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("failed_step", failedStep)))

	zerolog.Ctx(ctx).Warn().
		Err(cause).
		Str("session_id", c.Session.SessionID.String()).
		Str("failed_step", failedStep).
		Strs("completed_steps", completed).
		Msg("Onboarding provisioning partially failed")

	return apperror.PartialProvisioning(cause, failedStep, completed, created)
}

func (o *Orchestrator) issueAccessToken(ctx context.Context, c *Completion) {
	if o.tokens == nil {
		return
	}

	token, expiresAt, err := o.tokens.IssueForUser(c.User, c.Organization.OrgID)
	if err != nil {
		// The onboarding itself succeeded; the client can still sign in.
		zerolog.Ctx(ctx).Error().Err(err).Str("user_id", c.User.UserID.String()).Msg("Failed to issue access token")
		return
	}

	c.AccessToken = token
	c.AccessTokenExpiresAt = expiresAt
}
