//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wolfeidau/rentdesk/internal/models"
	"github.com/wolfeidau/rentdesk/internal/plans"
	"github.com/wolfeidau/rentdesk/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	pool, err := NewPool(ctx, &PoolConfig{
		ConnString:  fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		AutoMigrate: true,
	})
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return pool, cleanup
}

func newUser(email string, now time.Time) *models.User {
	return &models.User{
		UserID:       uuid.Must(uuid.NewV7()),
		Email:        email,
		PasswordHash: "$2a$04$hash",
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Roles:        []string{models.RoleOwner},
		Status:       models.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestIntegration_Stores(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	now := time.Now().UTC().Truncate(time.Microsecond)

	users := NewUserStore(pool)
	orgs := NewOrganizationStore(pool)
	agencies := NewAgencyStore(pool)
	planStore := NewPlanStore(pool)
	subscriptions := NewSubscriptionStore(pool)

	t.Run("migrations are idempotent", func(t *testing.T) {
		require.NoError(t, RunMigrations(ctx, pool))
	})

	owner := newUser("Ada@Example.com", now)

	t.Run("users", func(t *testing.T) {
		require.NoError(t, users.Create(ctx, owner))

		got, err := users.GetByEmail(ctx, "  ADA@example.COM ")
		require.NoError(t, err)
		require.Equal(t, owner.UserID, got.UserID)
		require.Equal(t, "ada@example.com", got.Email)
		require.Equal(t, []string{models.RoleOwner}, got.Roles)

		err = users.Create(ctx, newUser("ada@example.com", now))
		require.ErrorIs(t, err, store.ErrUserEmailTaken)

		_, err = users.Get(ctx, uuid.New())
		require.ErrorIs(t, err, store.ErrUserNotFound)
	})

	org := &models.Organization{
		OrgID:       uuid.Must(uuid.NewV7()),
		Name:        "Acme Rentals",
		OwnerUserID: owner.UserID,
		CreatedBy:   owner.UserID,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	t.Run("organizations", func(t *testing.T) {
		require.NoError(t, orgs.Create(ctx, org))

		got, err := orgs.GetByName(ctx, "acme   RENTALS")
		require.NoError(t, err)
		require.Equal(t, org.OrgID, got.OrgID)

		dup := *org
		dup.OrgID = uuid.Must(uuid.NewV7())
		dup.Name = "ACME rentals"
		require.ErrorIs(t, orgs.Create(ctx, &dup), store.ErrOrganizationNameTaken)

		owned, err := orgs.ListByOwner(ctx, owner.UserID)
		require.NoError(t, err)
		require.Len(t, owned, 1)
	})

	t.Run("agencies", func(t *testing.T) {
		agency := &models.Agency{
			AgencyID:  uuid.Must(uuid.NewV7()),
			OrgID:     org.OrgID,
			Name:      "Acme Rentals Main Agency",
			IsDefault: true,
			CreatedBy: owner.UserID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		require.NoError(t, agencies.Create(ctx, agency))

		list, err := agencies.ListByOrganization(ctx, org.OrgID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.True(t, list[0].IsDefault)
	})

	t.Run("plans and subscriptions", func(t *testing.T) {
		catalog, err := plans.Default()
		require.NoError(t, err)
		require.NoError(t, plans.Seed(ctx, planStore, catalog))
		require.NoError(t, plans.Seed(ctx, planStore, catalog))

		list, err := planStore.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, len(catalog))

		basic, err := planStore.GetByCode(ctx, models.PlanBasic)
		require.NoError(t, err)
		require.Equal(t, plans.PlanID(models.PlanBasic), basic.PlanID)

		sub := &models.OrganizationSubscription{
			SubscriptionID: uuid.Must(uuid.NewV7()),
			OrgID:          org.OrgID,
			PlanID:         basic.PlanID,
			PlanCode:       basic.Code,
			Status:         models.SubscriptionStatusActive,
			BillingCycle:   models.BillingCycleMonthly,
			StartDate:      now,
			EndDate:        now.AddDate(0, 1, 0),
			AutoRenew:      true,
			CreatedBy:      owner.UserID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		require.NoError(t, subscriptions.Create(ctx, sub))

		got, err := subscriptions.Get(ctx, sub.SubscriptionID)
		require.NoError(t, err)
		require.Equal(t, models.BillingCycleMonthly, got.BillingCycle)
		require.True(t, got.EndDate.Equal(sub.EndDate))

		orphan := *sub
		orphan.SubscriptionID = uuid.Must(uuid.NewV7())
		orphan.OrgID = uuid.New()
		require.ErrorIs(t, subscriptions.Create(ctx, &orphan), store.ErrOrganizationNotFound)
	})
}

func TestIntegration_SessionStore(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	sessions := NewSessionStore(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	session := &models.OnboardingSession{
		SessionID:   uuid.Must(uuid.NewV7()),
		ClientToken: "token-1",
		Status:      models.SessionStatusInProgress,
		CurrentStep: models.StepStarted,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(24 * time.Hour),
		UserAgent:   "integration-test",
		IPAddress:   "203.0.113.7",
	}
	require.NoError(t, sessions.Create(ctx, session))
	require.ErrorIs(t, sessions.Create(ctx, session), store.ErrSessionAlreadyExists)

	t.Run("payloads round trip through jsonb", func(t *testing.T) {
		updated := session.Clone()
		updated.CurrentStep = models.StepOwnerInfo
		updated.OwnerInfo = &models.OwnerInfo{
			Email:        "a@b.com",
			PasswordHash: "$2a$04$hash",
			FirstName:    "Ada",
			LastName:     "Lovelace",
		}
		require.NoError(t, sessions.Update(ctx, updated))
		require.EqualValues(t, 1, updated.Version)

		got, err := sessions.Get(ctx, session.SessionID)
		require.NoError(t, err)
		require.Equal(t, models.StepOwnerInfo, got.CurrentStep)
		require.Equal(t, updated.OwnerInfo, got.OwnerInfo)
		require.Nil(t, got.OrganizationInfo)
		require.EqualValues(t, 1, got.Version)
		require.True(t, got.ExpiresAt.Equal(session.ExpiresAt))
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		stale := session.Clone()
		stale.CurrentStep = models.StepOwnerInfo
		require.ErrorIs(t, sessions.Update(ctx, stale), store.ErrSessionConflict)
	})

	t.Run("missing session", func(t *testing.T) {
		missing := session.Clone()
		missing.SessionID = uuid.New()
		require.ErrorIs(t, sessions.Update(ctx, missing), store.ErrSessionNotFound)

		_, err := sessions.Get(ctx, missing.SessionID)
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("concurrent updates have one winner", func(t *testing.T) {
		current, err := sessions.Get(ctx, session.SessionID)
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
			conflicts int
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				attempt := current.Clone()
				attempt.CurrentStep = models.StepOrganizationInfo
				attempt.OrganizationInfo = &models.OrganizationInfo{Name: "Acme Rentals"}
				err := sessions.Update(ctx, attempt)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					successes++
				case err == store.ErrSessionConflict:
					conflicts++
				}
			}()
		}
		wg.Wait()

		require.Equal(t, 1, successes)
		require.Equal(t, 7, conflicts)
	})

	t.Run("lookups", func(t *testing.T) {
		got, err := sessions.FindByClientToken(ctx, "token-1", models.SessionStatusInProgress)
		require.NoError(t, err)
		require.Equal(t, session.SessionID, got.SessionID)

		_, err = sessions.FindByClientToken(ctx, "", models.SessionStatusInProgress)
		require.ErrorIs(t, err, store.ErrSessionNotFound)

		userID := uuid.Must(uuid.NewV7())
		owned := &models.OnboardingSession{
			SessionID:   uuid.Must(uuid.NewV7()),
			UserID:      &userID,
			Status:      models.SessionStatusInProgress,
			CurrentStep: models.StepStarted,
			CreatedAt:   now.Add(time.Second),
			UpdatedAt:   now.Add(time.Second),
			ExpiresAt:   now.Add(24 * time.Hour),
		}
		require.NoError(t, sessions.Create(ctx, owned))

		got, err = sessions.FindByUser(ctx, userID, models.SessionStatusInProgress)
		require.NoError(t, err)
		require.Equal(t, owned.SessionID, got.SessionID)

		_, err = sessions.FindByUser(ctx, userID, models.SessionStatusCompleted)
		require.ErrorIs(t, err, store.ErrSessionNotFound)

		list, err := sessions.ListByStatus(ctx, models.SessionStatusInProgress, 0)
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, session.SessionID, list[0].SessionID)

		list, err = sessions.ListByStatus(ctx, models.SessionStatusInProgress, 1)
		require.NoError(t, err)
		require.Len(t, list, 1)
	})
}
