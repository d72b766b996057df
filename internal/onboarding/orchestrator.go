// Package onboarding drives the onboarding session state machine and, on
// completion, provisions the owner, organization and subscription.
package onboarding

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"
	"github.com/wolfeidau/rentdesk/internal/apperror"
	"github.com/wolfeidau/rentdesk/internal/auth"
	"github.com/wolfeidau/rentdesk/internal/models"
	"github.com/wolfeidau/rentdesk/internal/store"
	"github.com/wolfeidau/rentdesk/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultSessionTTL is how long a session stays open after it is created.
const DefaultSessionTTL = 24 * time.Hour

// IdentityProvisioner creates the owner account.
type IdentityProvisioner interface {
	Prepare(info *models.OwnerInfo) error
	PrepareExisting(info *models.OwnerInfo, user *models.User) error
	Provision(ctx context.Context, info *models.OwnerInfo) (*models.User, error)
	Get(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// OrganizationProvisioner creates the organization and its default agency.
type OrganizationProvisioner interface {
	Prepare(info *models.OrganizationInfo) error
	Provision(ctx context.Context, info *models.OrganizationInfo, ownerID uuid.UUID) (*models.Organization, *models.Agency, error)
	Get(ctx context.Context, orgID uuid.UUID) (*models.Organization, *models.Agency, error)
}

// SubscriptionProvisioner attaches a plan to the organization.
type SubscriptionProvisioner interface {
	Prepare(ctx context.Context, sel *models.PlanSelection) error
	Provision(ctx context.Context, orgID uuid.UUID, sel *models.PlanSelection, createdBy uuid.UUID) (*models.OrganizationSubscription, *models.SubscriptionPlan, error)
	Get(ctx context.Context, subscriptionID uuid.UUID) (*models.OrganizationSubscription, *models.SubscriptionPlan, error)
}

// TokenIssuer issues an access token for a newly onboarded owner.
type TokenIssuer interface {
	IssueForUser(user *models.User, orgID uuid.UUID) (string, time.Time, error)
}

// ClientContext identifies the caller of StartOrSync. Authenticated callers
// are matched by UserID, anonymous callers by the ClientToken they were
// handed when their session was created.
type ClientContext struct {
	UserID      *uuid.UUID
	ClientToken string
	UserAgent   string
	IPAddress   string
}

// Config holds orchestrator settings.
type Config struct {
	SessionTTL time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithTokenIssuer enables access tokens in completion results.
func WithTokenIssuer(issuer TokenIssuer) Option {
	return func(o *Orchestrator) {
		o.tokens = issuer
	}
}

// WithClientTokenGenerator overrides how anonymous client tokens are created.
func WithClientTokenGenerator(generate func() (string, error)) Option {
	return func(o *Orchestrator) {
		o.newClientToken = generate
	}
}

// Orchestrator implements the onboarding workflow. It holds no session state
// of its own; every call round-trips through the session store.
type Orchestrator struct {
	sessions      store.SessionStore
	identity      IdentityProvisioner
	organizations OrganizationProvisioner
	subscriptions SubscriptionProvisioner
	tokens        TokenIssuer

	ttl            time.Duration
	now            func() time.Time
	newClientToken func() (string, error)

	metrics *telemetry.Metrics
	tracer  trace.Tracer
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(
	cfg Config,
	sessions store.SessionStore,
	identity IdentityProvisioner,
	organizations OrganizationProvisioner,
	subscriptions SubscriptionProvisioner,
	opts ...Option,
) *Orchestrator {
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	o := &Orchestrator{
		sessions:       sessions,
		identity:       identity,
		organizations:  organizations,
		subscriptions:  subscriptions,
		ttl:            ttl,
		now:            time.Now,
		newClientToken: generateClientToken,
		metrics:        telemetry.GetMetrics(),
		tracer:         telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartOrSync returns the caller's in-progress session, creating one if
// there is none. Repeated calls with the same identity return the same
// session until it completes or expires.
func (o *Orchestrator) StartOrSync(ctx context.Context, client ClientContext) (*models.OnboardingSession, error) {
	if err := auth.Authorize(ctx, auth.PermOnboardingWrite); err != nil {
		return nil, err
	}

	ctx, span := o.tracer.Start(ctx, "onboarding.StartOrSync")
	defer span.End()

	existing, err := o.findInProgress(ctx, client)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		o.metrics.SessionsResumedTotal.Add(ctx, 1)
		span.SetAttributes(attribute.String("session_id", existing.SessionID.String()))
		return existing, nil
	}

	session, err := o.newSession(client)
	if err != nil {
		return nil, err
	}

	if err := o.sessions.Create(ctx, session); err != nil {
		return nil, apperror.Internal(err, "failed to create onboarding session")
	}

	o.metrics.SessionsStartedTotal.Add(ctx, 1)
	span.SetAttributes(attribute.String("session_id", session.SessionID.String()))

	zerolog.Ctx(ctx).Info().
		Str("session_id", session.SessionID.String()).
		Bool("authenticated", session.UserID != nil).
		Msg("Onboarding session started")

	return session, nil
}

// GetSession returns a session. An in-progress session found past its
// expiry is moved to EXPIRED before it is returned.
func (o *Orchestrator) GetSession(ctx context.Context, sessionID uuid.UUID) (*models.OnboardingSession, error) {
	if err := auth.Authorize(ctx, auth.PermOnboardingRead); err != nil {
		return nil, err
	}

	session, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Status == models.SessionStatusInProgress && models.IsExpired(session, o.now()) {
		if err := o.expire(ctx, session); err != nil && !errors.Is(err, store.ErrSessionConflict) {
			return nil, apperror.Internal(err, "failed to expire onboarding session")
		}
		return o.loadSession(ctx, sessionID)
	}

	return session, nil
}

// ListSessions returns sessions in status, oldest first.
func (o *Orchestrator) ListSessions(ctx context.Context, status models.SessionStatus, limit int) ([]*models.OnboardingSession, error) {
	if err := auth.Authorize(ctx, auth.PermOnboardingAdmin); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, apperror.Validation("status", "unknown session status %q", status)
	}

	sessions, err := o.sessions.ListByStatus(ctx, status, limit)
	if err != nil {
		return nil, apperror.Internal(err, "failed to list onboarding sessions")
	}
	return sessions, nil
}

// SubmitStep validates payload for step, stores it on the session and
// advances the session to step. Steps must be submitted in order and each
// exactly once.
func (o *Orchestrator) SubmitStep(ctx context.Context, sessionID uuid.UUID, step models.Step, payload json.RawMessage) (*models.OnboardingSession, error) {
	if err := auth.Authorize(ctx, auth.PermOnboardingWrite); err != nil {
		return nil, err
	}

	ctx, span := o.tracer.Start(ctx, "onboarding.SubmitStep", trace.WithAttributes(
		attribute.String("session_id", sessionID.String()),
		attribute.String("step", string(step)),
	))
	defer span.End()

	session, err := o.submitStep(ctx, sessionID, step, payload)
	if err != nil {
		o.metrics.StepsRejectedTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("step", string(step)),
			attribute.String("reason", string(apperror.KindOf(err))),
		))
		return nil, err
	}

	o.metrics.StepsSubmittedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("step", string(step))))

	zerolog.Ctx(ctx).Info().
		Str("session_id", session.SessionID.String()).
		Str("step", string(step)).
		Msg("Onboarding step accepted")

	return session, nil
}

func (o *Orchestrator) submitStep(ctx context.Context, sessionID uuid.UUID, step models.Step, payload json.RawMessage) (*models.OnboardingSession, error) {
	if !step.Valid() {
		return nil, apperror.Validation("step", "unknown onboarding step %q", step)
	}

	session, err := o.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := o.checkOpen(ctx, session); err != nil {
		return nil, err
	}

	if !step.Submittable() || !session.CurrentStep.IsSuccessor(step) {
		expected, _ := session.CurrentStep.Next()
		return nil, apperror.InvalidTransition("cannot submit %s: session is at %s, expected %s", step, session.CurrentStep, expected)
	}

	if err := o.applyPayload(ctx, session, step, payload); err != nil {
		return nil, err
	}

	session.CurrentStep = step
	session.UpdatedAt = o.now()

	if err := o.sessions.Update(ctx, session); err != nil {
		return nil, o.mapUpdateError(ctx, err)
	}

	return session, nil
}

// applyPayload decodes and validates payload into the slot for step.
func (o *Orchestrator) applyPayload(ctx context.Context, session *models.OnboardingSession, step models.Step, payload json.RawMessage) error {
	if session.HasStepData(step) {
		return apperror.InvalidTransition("%s has already been submitted", step)
	}

	switch step {
	case models.StepOwnerInfo:
		var info models.OwnerInfo
		if err := decodePayload(payload, &info); err != nil {
			return err
		}
		if err := o.prepareOwner(ctx, session, &info); err != nil {
			return err
		}
		session.OwnerInfo = &info
	case models.StepOrganizationInfo:
		var info models.OrganizationInfo
		if err := decodePayload(payload, &info); err != nil {
			return err
		}
		if err := o.organizations.Prepare(&info); err != nil {
			return err
		}
		session.OrganizationInfo = &info
	case models.StepPlanSelection:
		var sel models.PlanSelection
		if len(bytes.TrimSpace(payload)) > 0 {
			if err := decodePayload(payload, &sel); err != nil {
				return err
			}
		}
		if err := o.subscriptions.Prepare(ctx, &sel); err != nil {
			return err
		}
		session.PlanSelection = &sel
	default:
		return apperror.InvalidTransition("%s does not accept a payload", step)
	}

	return nil
}

// prepareOwner validates OWNER_INFO. Sessions started by a signed in user
// are checked against that account instead of registering a new one.
func (o *Orchestrator) prepareOwner(ctx context.Context, session *models.OnboardingSession, info *models.OwnerInfo) error {
	if session.UserID == nil {
		return o.identity.Prepare(info)
	}

	user, err := o.identity.Get(ctx, *session.UserID)
	if err != nil {
		return err
	}
	return o.identity.PrepareExisting(info, user)
}

// checkOpen verifies the session accepts changes. A session found past its
// expiry is moved to EXPIRED as a side effect.
func (o *Orchestrator) checkOpen(ctx context.Context, session *models.OnboardingSession) error {
	switch session.Status {
	case models.SessionStatusInProgress:
	case models.SessionStatusExpired:
		return apperror.SessionExpired("onboarding session %s has expired", session.SessionID)
	default:
		return apperror.InvalidTransition("onboarding session %s is %s", session.SessionID, session.Status)
	}

	if !models.IsExpired(session, o.now()) {
		return nil
	}

	if err := o.expire(ctx, session); err != nil && !errors.Is(err, store.ErrSessionConflict) {
		return apperror.Internal(err, "failed to expire onboarding session")
	}

	return apperror.SessionExpired("onboarding session %s has expired", session.SessionID)
}

// expire moves session to EXPIRED with a conditional write.
func (o *Orchestrator) expire(ctx context.Context, session *models.OnboardingSession) error {
	updated := session.Clone()
	updated.Status = models.SessionStatusExpired
	updated.UpdatedAt = o.now()

	if err := o.sessions.Update(ctx, updated); err != nil {
		return err
	}

	o.metrics.SessionsExpiredTotal.Add(ctx, 1)

	zerolog.Ctx(ctx).Info().
		Str("session_id", session.SessionID.String()).
		Msg("Onboarding session expired")

	return nil
}

// findInProgress returns the caller's open session, or nil if there is none.
// Sessions found past their expiry are expired and ignored.
func (o *Orchestrator) findInProgress(ctx context.Context, client ClientContext) (*models.OnboardingSession, error) {
	var (
		session *models.OnboardingSession
		err     error
	)

	switch {
	case client.UserID != nil:
		session, err = o.sessions.FindByUser(ctx, *client.UserID, models.SessionStatusInProgress)
	case client.ClientToken != "":
		session, err = o.sessions.FindByClientToken(ctx, client.ClientToken, models.SessionStatusInProgress)
	default:
		return nil, nil
	}

	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, apperror.Internal(err, "failed to look up onboarding session")
	}

	if models.IsExpired(session, o.now()) {
		if err := o.expire(ctx, session); err != nil && !errors.Is(err, store.ErrSessionConflict) {
			return nil, apperror.Internal(err, "failed to expire onboarding session")
		}
		return nil, nil
	}

	return session, nil
}

func (o *Orchestrator) newSession(client ClientContext) (*models.OnboardingSession, error) {
	sessionID, err := uuid.NewV7()
	if err != nil {
		return nil, apperror.Internal(err, "failed to generate session ID")
	}

	now := o.now()
	session := &models.OnboardingSession{
		SessionID:   sessionID,
		Status:      models.SessionStatusInProgress,
		CurrentStep: models.StepStarted,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(o.ttl),
		UserAgent:   client.UserAgent,
		IPAddress:   client.IPAddress,
	}

	if client.UserID != nil {
		userID := *client.UserID
		session.UserID = &userID
		return session, nil
	}

	// Tokens are always minted here; an unknown token from the caller is ignored.
	token, err := o.newClientToken()
	if err != nil {
		return nil, apperror.Internal(err, "failed to generate client token")
	}
	session.ClientToken = token

	return session, nil
}

// loadSession fetches a session and checks the caller may act on it.
func (o *Orchestrator) loadSession(ctx context.Context, sessionID uuid.UUID) (*models.OnboardingSession, error) {
	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, apperror.NotFound("onboarding session %s not found", sessionID)
		}
		return nil, apperror.Internal(err, "failed to get onboarding session")
	}

	if err := authorizeSession(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

// authorizeSession restricts sessions started by an authenticated user to
// that user. Anonymous sessions are addressed by their unguessable ID.
func authorizeSession(ctx context.Context, session *models.OnboardingSession) error {
	if session.ClientToken != "" || session.UserID == nil {
		return nil
	}

	principal := auth.PrincipalFromContext(ctx)
	if principal == nil {
		return apperror.Unauthenticated("onboarding session %s requires authentication", session.SessionID)
	}
	if principal.UserID == *session.UserID || auth.HasPermission(principal.Roles, auth.PermOnboardingAdmin) {
		return nil
	}

	return apperror.PermissionDenied("onboarding session %s belongs to another user", session.SessionID)
}

func (o *Orchestrator) mapUpdateError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, store.ErrSessionConflict):
		o.metrics.SessionConflictsTotal.Add(ctx, 1)
		return apperror.Conflict("", "onboarding session was modified concurrently, reload and retry")
	case errors.Is(err, store.ErrSessionNotFound):
		return apperror.NotFound("onboarding session not found")
	default:
		return apperror.Internal(err, "failed to update onboarding session")
	}
}

// decodePayload strictly decodes a step payload.
func decodePayload(payload json.RawMessage, v any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return apperror.Validation("", "request body is required")
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperror.Validation("", "invalid payload: %s", err)
	}
	return nil
}

// generateClientToken returns a random base58 token identifying an anonymous client.
func generateClientToken() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base58.Encode(buf), nil
}
