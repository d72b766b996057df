package onboarding

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/rentdesk/internal/apperror"
	"github.com/wolfeidau/rentdesk/internal/auth"
	"github.com/wolfeidau/rentdesk/internal/models"
	"github.com/wolfeidau/rentdesk/internal/plans"
	"github.com/wolfeidau/rentdesk/internal/provision"
	"github.com/wolfeidau/rentdesk/internal/store/memory"
	"golang.org/x/crypto/bcrypt"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	clock         *testClock
	sessions      *memory.SessionStore
	users         *memory.UserStore
	orgs          *provision.OrganizationProvisioner
	subscriptions *provision.SubscriptionProvisioner
	orchestrator  *Orchestrator
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	clock := &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	provOpts := []provision.Option{
		provision.WithClock(clock.Now),
		provision.WithBcryptCost(bcrypt.MinCost),
	}

	planStore := memory.NewPlanStore()
	catalog, err := plans.Default()
	require.NoError(t, err)
	require.NoError(t, plans.Seed(context.Background(), planStore, catalog))

	h := &harness{
		clock:         clock,
		sessions:      memory.NewSessionStore(),
		users:         memory.NewUserStore(),
		orgs:          provision.NewOrganizationProvisioner(memory.NewOrganizationStore(), memory.NewAgencyStore(), provOpts...),
		subscriptions: provision.NewSubscriptionProvisioner(planStore, memory.NewSubscriptionStore(), provOpts...),
	}

	h.orchestrator = NewOrchestrator(
		Config{SessionTTL: 24 * time.Hour},
		h.sessions,
		provision.NewIdentityProvisioner(h.users, provOpts...),
		h.orgs,
		h.subscriptions,
		append([]Option{WithClock(clock.Now)}, opts...)...,
	)

	return h
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func ownerPayload(t *testing.T, email string) json.RawMessage {
	return mustJSON(t, map[string]any{
		"email":     email,
		"password":  "correct-horse",
		"firstName": "Ada",
		"lastName":  "Lovelace",
	})
}

func organizationPayload(t *testing.T, name string) json.RawMessage {
	return mustJSON(t, map[string]any{"name": name, "city": "Lisbon"})
}

func planPayload(t *testing.T, plan string) json.RawMessage {
	return mustJSON(t, map[string]any{"plan": plan})
}

func (h *harness) payloadFor(t *testing.T, step models.Step) json.RawMessage {
	switch step {
	case models.StepOwnerInfo:
		return ownerPayload(t, "a@b.com")
	case models.StepOrganizationInfo:
		return organizationPayload(t, "Acme Rentals")
	default:
		return planPayload(t, models.PlanBasic)
	}
}

func (h *harness) start(t *testing.T) *models.OnboardingSession {
	t.Helper()
	session, err := h.orchestrator.StartOrSync(context.Background(), ClientContext{})
	require.NoError(t, err)
	return session
}

// advance submits the steps up to and including last.
func (h *harness) advance(t *testing.T, sessionID uuid.UUID, last models.Step) *models.OnboardingSession {
	t.Helper()
	var session *models.OnboardingSession
	for _, step := range models.SubmittableSteps {
		if step.Index() > last.Index() {
			break
		}
		var err error
		session, err = h.orchestrator.SubmitStep(context.Background(), sessionID, step, h.payloadFor(t, step))
		require.NoError(t, err)
	}
	return session
}

func requireKind(t *testing.T, err error, kind apperror.Kind) *apperror.Error {
	t.Helper()
	require.Error(t, err)
	appErr := apperror.As(err)
	require.Equal(t, kind, appErr.Kind, appErr.Message)
	return appErr
}

func requireCompletedSession(t *testing.T, session *models.OnboardingSession) {
	t.Helper()
	if session.Status != models.SessionStatusCompleted {
		return
	}
	require.NotNil(t, session.UserID)
	require.NotNil(t, session.CreatedOrganizationID)
	require.NotNil(t, session.OwnerInfo)
	require.NotNil(t, session.OrganizationInfo)
	require.NotNil(t, session.PlanSelection)
	require.NotNil(t, session.CompletedAt)
	require.Equal(t, models.StepCompleted, session.CurrentStep)
}

func TestStartOrSync(t *testing.T) {
	ctx := context.Background()

	t.Run("new session", func(t *testing.T) {
		h := newHarness(t)
		session, err := h.orchestrator.StartOrSync(ctx, ClientContext{UserAgent: "test", IPAddress: "203.0.113.7"})
		require.NoError(t, err)
		require.Equal(t, models.SessionStatusInProgress, session.Status)
		require.Equal(t, models.StepStarted, session.CurrentStep)
		require.Equal(t, h.clock.Now().Add(24*time.Hour), session.ExpiresAt)
		require.True(t, session.ExpiresAt.After(session.CreatedAt))
		require.NotEmpty(t, session.ClientToken)
		require.Nil(t, session.UserID)
		require.Equal(t, "203.0.113.7", session.IPAddress)
	})

	t.Run("same client token returns same session", func(t *testing.T) {
		h := newHarness(t)
		first := h.start(t)

		second, err := h.orchestrator.StartOrSync(ctx, ClientContext{ClientToken: first.ClientToken})
		require.NoError(t, err)
		require.Equal(t, first.SessionID, second.SessionID)
	})

	t.Run("same user returns same session", func(t *testing.T) {
		h := newHarness(t)
		userID := uuid.New()
		userCtx := auth.WithPrincipal(ctx, &auth.Principal{UserID: userID, Roles: []string{models.RoleOwner}})

		first, err := h.orchestrator.StartOrSync(userCtx, ClientContext{UserID: &userID})
		require.NoError(t, err)
		require.Equal(t, userID, *first.UserID)
		require.Empty(t, first.ClientToken)

		second, err := h.orchestrator.StartOrSync(userCtx, ClientContext{UserID: &userID})
		require.NoError(t, err)
		require.Equal(t, first.SessionID, second.SessionID)
	})

	t.Run("different clients get different sessions", func(t *testing.T) {
		h := newHarness(t)
		first := h.start(t)
		second := h.start(t)
		require.NotEqual(t, first.SessionID, second.SessionID)
		require.NotEqual(t, first.ClientToken, second.ClientToken)
	})

	t.Run("expired session is replaced", func(t *testing.T) {
		h := newHarness(t)
		first := h.start(t)
		h.clock.Advance(25 * time.Hour)

		second, err := h.orchestrator.StartOrSync(ctx, ClientContext{ClientToken: first.ClientToken})
		require.NoError(t, err)
		require.NotEqual(t, first.SessionID, second.SessionID)
		require.NotEqual(t, first.ClientToken, second.ClientToken)

		stored, err := h.sessions.Get(ctx, first.SessionID)
		require.NoError(t, err)
		require.Equal(t, models.SessionStatusExpired, stored.Status)
	})

	t.Run("unknown token gets a server generated token", func(t *testing.T) {
		h := newHarness(t)
		session, err := h.orchestrator.StartOrSync(ctx, ClientContext{ClientToken: "abc"})
		require.NoError(t, err)
		require.NotEqual(t, "abc", session.ClientToken)
		require.NotEmpty(t, session.ClientToken)

		_, err = h.sessions.FindByClientToken(ctx, "abc", models.SessionStatusInProgress)
		require.Error(t, err)

		again, err := h.orchestrator.StartOrSync(ctx, ClientContext{ClientToken: session.ClientToken})
		require.NoError(t, err)
		require.Equal(t, session.SessionID, again.SessionID)
	})
}

func TestSubmitStep_inOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	session := h.start(t)

	for _, step := range models.SubmittableSteps {
		updated, err := h.orchestrator.SubmitStep(ctx, session.SessionID, step, h.payloadFor(t, step))
		require.NoError(t, err)
		require.Equal(t, step, updated.CurrentStep)
		require.True(t, updated.HasStepData(step))
	}

	stored, err := h.sessions.Get(ctx, session.SessionID)
	require.NoError(t, err)
	require.Equal(t, models.StepPlanSelection, stored.CurrentStep)
	require.Equal(t, "a@b.com", stored.OwnerInfo.Email)
	require.Empty(t, stored.OwnerInfo.Password)
	require.NotEmpty(t, stored.OwnerInfo.PasswordHash)
	require.Equal(t, "Acme Rentals Main Agency", stored.OrganizationInfo.DefaultAgencyName)
	require.Equal(t, models.PlanBasic, stored.PlanSelection.Plan)
	require.Equal(t, models.BillingCycleMonthly, stored.PlanSelection.BillingCycle)
}

func TestSubmitStep_rejectsNonSuccessor(t *testing.T) {
	ctx := context.Background()

	positions := append([]models.Step{models.StepStarted}, models.SubmittableSteps...)
	candidates := append([]models.Step{models.StepStarted, models.StepCompleted}, models.SubmittableSteps...)

	for _, position := range positions {
		for _, step := range candidates {
			if position.IsSuccessor(step) && step.Submittable() {
				continue
			}
			t.Run(string(position)+"->"+string(step), func(t *testing.T) {
				h := newHarness(t)
				session := h.start(t)
				if position != models.StepStarted {
					session = h.advance(t, session.SessionID, position)
				}

				_, err := h.orchestrator.SubmitStep(ctx, session.SessionID, step, h.payloadFor(t, step))
				requireKind(t, err, apperror.KindInvalidTransition)

				stored, err := h.sessions.Get(ctx, session.SessionID)
				require.NoError(t, err)
				require.Equal(t, session, stored)
			})
		}
	}
}

func TestSubmitStep_everyPermutationFails(t *testing.T) {
	ctx := context.Background()
	steps := models.SubmittableSteps

	permutations := [][]models.Step{
		{steps[0], steps[2], steps[1]},
		{steps[1], steps[0], steps[2]},
		{steps[1], steps[2], steps[0]},
		{steps[2], steps[0], steps[1]},
		{steps[2], steps[1], steps[0]},
	}

	for _, perm := range permutations {
		h := newHarness(t)
		session := h.start(t)

		var failed bool
		for _, step := range perm {
			_, err := h.orchestrator.SubmitStep(ctx, session.SessionID, step, h.payloadFor(t, step))
			if err != nil {
				requireKind(t, err, apperror.KindInvalidTransition)
				failed = true
				break
			}
		}
		require.True(t, failed, "permutation %v was accepted", perm)
	}
}

func TestSubmitStep_outOfOrderLeavesSessionUnchanged(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	session := h.start(t)

	_, err := h.orchestrator.SubmitStep(ctx, session.SessionID, models.StepOrganizationInfo, organizationPayload(t, "Acme Rentals"))
	requireKind(t, err, apperror.KindInvalidTransition)

	stored, err := h.sessions.Get(ctx, session.SessionID)
	require.NoError(t, err)
	require.Equal(t, session, stored)
	require.Nil(t, stored.OrganizationInfo)
}

func TestSubmitStep_resubmissionRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	session := h.start(t)
	h.advance(t, session.SessionID, models.StepOwnerInfo)

	_, err := h.orchestrator.SubmitStep(ctx, session.SessionID, models.StepOwnerInfo, ownerPayload(t, "other@b.com"))
	requireKind(t, err, apperror.KindInvalidTransition)

	stored, err := h.sessions.Get(ctx, session.SessionID)
	require.NoError(t, err)
	require.Equal(t, "a@b.com", stored.OwnerInfo.Email)
}

func TestSubmitStep_validation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		step      models.Step
		payload   string
		wantField string
	}{
		{name: "empty body", step: models.StepOwnerInfo, payload: ``, wantField: ""},
		{name: "malformed json", step: models.StepOwnerInfo, payload: `{"email":`, wantField: ""},
		{name: "unknown field", step: models.StepOwnerInfo, payload: `{"email":"a@b.com","admin":true}`, wantField: ""},
		{name: "missing email", step: models.StepOwnerInfo, payload: `{"password":"correct-horse","firstName":"A","lastName":"B"}`, wantField: "email"},
		{name: "short password", step: models.StepOwnerInfo, payload: `{"email":"a@b.com","password":"x","firstName":"A","lastName":"B"}`, wantField: "password"},
		{name: "unknown step", step: models.Step("BILLING"), payload: `{}`, wantField: "step"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			session := h.start(t)

			_, err := h.orchestrator.SubmitStep(ctx, session.SessionID, tt.step, json.RawMessage(tt.payload))
			appErr := requireKind(t, err, apperror.KindValidation)
			require.Equal(t, tt.wantField, appErr.Field)

			stored, err := h.sessions.Get(ctx, session.SessionID)
			require.NoError(t, err)
			require.Equal(t, models.StepStarted, stored.CurrentStep)
		})
	}

	t.Run("unknown plan", func(t *testing.T) {
		h := newHarness(t)
		session := h.start(t)
		h.advance(t, session.SessionID, models.StepOrganizationInfo)

		_, err := h.orchestrator.SubmitStep(ctx, session.SessionID, models.StepPlanSelection, planPayload(t, "GOLD"))
		appErr := requireKind(t, err, apperror.KindValidation)
		require.Equal(t, "plan", appErr.Field)
	})

	t.Run("empty plan selection defaults to trial", func(t *testing.T) {
		h := newHarness(t)
		session := h.start(t)
		h.advance(t, session.SessionID, models.StepOrganizationInfo)

		updated, err := h.orchestrator.SubmitStep(ctx, session.SessionID, models.StepPlanSelection, nil)
		require.NoError(t, err)
		require.Equal(t, models.PlanTrial, updated.PlanSelection.Plan)
	})
}

func TestSubmitStep_notFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.orchestrator.SubmitStep(context.Background(), uuid.New(), models.StepOwnerInfo, ownerPayload(t, "a@b.com"))
	requireKind(t, err, apperror.KindNotFound)
}

func TestExpiredSession(t *testing.T) {
	ctx := context.Background()

	operations := []struct {
		name string
		call func(h *harness, session *models.OnboardingSession) error
	}{
		{
			name: "submit successor",
			call: func(h *harness, session *models.OnboardingSession) error {
				next, _ := session.CurrentStep.Next()
				_, err := h.orchestrator.SubmitStep(ctx, session.SessionID, next, h.payloadFor(t, next))
				return err
			},
		},
		{
			name: "submit out of order",
			call: func(h *harness, session *models.OnboardingSession) error {
				_, err := h.orchestrator.SubmitStep(ctx, session.SessionID, models.StepPlanSelection, planPayload(t, models.PlanBasic))
				return err
			},
		},
		{
			name: "complete",
			call: func(h *harness, session *models.OnboardingSession) error {
				_, err := h.orchestrator.CompleteOnboarding(ctx, session.SessionID)
				return err
			},
		},
	}

	for _, last := range []models.Step{models.StepStarted, models.StepOwnerInfo, models.StepPlanSelection} {
		for _, op := range operations {
			t.Run(string(last)+"/"+op.name, func(t *testing.T) {
				h := newHarness(t)
				session := h.start(t)
				if last != models.StepStarted {
					session = h.advance(t, session.SessionID, last)
				}

				h.clock.Advance(24 * time.Hour)

				requireKind(t, op.call(h, session), apperror.KindSessionExpired)

				stored, err := h.sessions.Get(ctx, session.SessionID)
				require.NoError(t, err)
				require.Equal(t, models.SessionStatusExpired, stored.Status)

				// Still expired on a later call once the status has flipped.
				requireKind(t, op.call(h, stored), apperror.KindSessionExpired)
			})
		}
	}
}

func TestGetSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	session := h.start(t)

	got, err := h.orchestrator.GetSession(ctx, session.SessionID)
	require.NoError(t, err)
	require.Equal(t, session.SessionID, got.SessionID)

	h.clock.Advance(48 * time.Hour)

	got, err = h.orchestrator.GetSession(ctx, session.SessionID)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusExpired, got.Status)

	_, err = h.orchestrator.GetSession(ctx, uuid.New())
	requireKind(t, err, apperror.KindNotFound)
}

func TestSessionOwnership(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	ownerID := uuid.New()
	require.NoError(t, h.users.Create(ctx, &models.User{UserID: ownerID, Email: "a@b.com", Roles: []string{models.RoleOwner}}))
	ownerCtx := auth.WithPrincipal(ctx, &auth.Principal{UserID: ownerID, Roles: []string{models.RoleOwner}})
	otherCtx := auth.WithPrincipal(ctx, &auth.Principal{UserID: uuid.New(), Roles: []string{models.RoleOwner}})
	adminCtx := auth.WithPrincipal(ctx, &auth.Principal{UserID: uuid.New(), Roles: []string{models.RoleAdmin}})

	session, err := h.orchestrator.StartOrSync(ownerCtx, ClientContext{UserID: &ownerID})
	require.NoError(t, err)

	_, err = h.orchestrator.GetSession(ctx, session.SessionID)
	requireKind(t, err, apperror.KindUnauthenticated)

	_, err = h.orchestrator.SubmitStep(otherCtx, session.SessionID, models.StepOwnerInfo, ownerPayload(t, "a@b.com"))
	requireKind(t, err, apperror.KindPermissionDenied)

	_, err = h.orchestrator.GetSession(adminCtx, session.SessionID)
	require.NoError(t, err)

	_, err = h.orchestrator.SubmitStep(ownerCtx, session.SessionID, models.StepOwnerInfo, ownerPayload(t, "a@b.com"))
	require.NoError(t, err)
}

func TestListSessions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.start(t)
	h.start(t)

	_, err := h.orchestrator.ListSessions(ctx, models.SessionStatusInProgress, 0)
	requireKind(t, err, apperror.KindUnauthenticated)

	adminCtx := auth.WithSystemPrincipal(ctx)
	sessions, err := h.orchestrator.ListSessions(adminCtx, models.SessionStatusInProgress, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	_, err = h.orchestrator.ListSessions(adminCtx, models.SessionStatus("NOPE"), 0)
	requireKind(t, err, apperror.KindValidation)
}

func TestConcurrentSubmit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	session := h.start(t)

	const racers = 8
	errs := make([]error, racers)

	var wg sync.WaitGroup
	for i := range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.orchestrator.SubmitStep(ctx, session.SessionID, models.StepOwnerInfo, ownerPayload(t, "a@b.com"))
		}()
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		kind := apperror.KindOf(err)
		require.True(t, kind == apperror.KindConflict || kind == apperror.KindInvalidTransition, "unexpected %s", kind)
	}
	require.Equal(t, 1, wins)
}

func TestSubmitStep_ownerInfoForSignedInUser(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	userID := uuid.New()
	require.NoError(t, h.users.Create(ctx, &models.User{UserID: userID, Email: "owner@fleet.test", Roles: []string{models.RoleOwner}}))
	userCtx := auth.WithPrincipal(ctx, &auth.Principal{UserID: userID, Roles: []string{models.RoleOwner}})

	session, err := h.orchestrator.StartOrSync(userCtx, ClientContext{UserID: &userID})
	require.NoError(t, err)

	t.Run("email must match the account", func(t *testing.T) {
		_, err := h.orchestrator.SubmitStep(userCtx, session.SessionID, models.StepOwnerInfo, ownerPayload(t, "someone@else.test"))
		appErr := requireKind(t, err, apperror.KindValidation)
		require.Equal(t, "email", appErr.Field)
	})

	t.Run("password is not required", func(t *testing.T) {
		payload := mustJSON(t, map[string]any{
			"email":     "Owner@Fleet.test",
			"firstName": "Ada",
			"lastName":  "Lovelace",
		})
		updated, err := h.orchestrator.SubmitStep(userCtx, session.SessionID, models.StepOwnerInfo, payload)
		require.NoError(t, err)
		require.Equal(t, models.StepOwnerInfo, updated.CurrentStep)
		require.Equal(t, "owner@fleet.test", updated.OwnerInfo.Email)
		require.Empty(t, updated.OwnerInfo.PasswordHash)
	})
}
