package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/rentdesk/internal/models"
	"github.com/wolfeidau/rentdesk/internal/store"
)

func TestUserStore(t *testing.T) {
	ctx := context.Background()

	newUser := func(email string) *models.User {
		return &models.User{
			UserID:    uuid.Must(uuid.NewV7()),
			Email:     email,
			FirstName: "Jane",
			LastName:  "Doe",
			Roles:     []string{models.RoleOwner},
			CreatedAt: time.Now(),
		}
	}

	t.Run("get by email is case insensitive", func(t *testing.T) {
		st := NewUserStore()
		user := newUser("jane@example.com")
		require.NoError(t, st.Create(ctx, user))

		got, err := st.GetByEmail(ctx, "  Jane@Example.COM ")
		require.NoError(t, err)
		require.Equal(t, user.UserID, got.UserID)
	})

	t.Run("duplicate email", func(t *testing.T) {
		st := NewUserStore()
		require.NoError(t, st.Create(ctx, newUser("jane@example.com")))
		require.ErrorIs(t, st.Create(ctx, newUser("JANE@example.com")), store.ErrUserEmailTaken)
	})

	t.Run("duplicate id", func(t *testing.T) {
		st := NewUserStore()
		user := newUser("jane@example.com")
		require.NoError(t, st.Create(ctx, user))
		require.ErrorIs(t, st.Create(ctx, user), store.ErrUserAlreadyExists)
	})

	t.Run("roles are copied", func(t *testing.T) {
		st := NewUserStore()
		user := newUser("jane@example.com")
		require.NoError(t, st.Create(ctx, user))

		user.Roles[0] = "mutated"

		got, err := st.Get(ctx, user.UserID)
		require.NoError(t, err)
		require.Equal(t, []string{models.RoleOwner}, got.Roles)
	})

	t.Run("missing user", func(t *testing.T) {
		st := NewUserStore()
		_, err := st.Get(ctx, uuid.Must(uuid.NewV7()))
		require.ErrorIs(t, err, store.ErrUserNotFound)
		_, err = st.GetByEmail(ctx, "nobody@example.com")
		require.ErrorIs(t, err, store.ErrUserNotFound)
	})
}

func TestOrganizationStore(t *testing.T) {
	ctx := context.Background()
	owner := uuid.Must(uuid.NewV7())

	newOrg := func(name string, createdAt time.Time) *models.Organization {
		return &models.Organization{
			OrgID:       uuid.Must(uuid.NewV7()),
			Name:        name,
			OwnerUserID: owner,
			CreatedBy:   owner,
			Active:      true,
			CreatedAt:   createdAt,
		}
	}

	t.Run("name is unique after normalization", func(t *testing.T) {
		st := NewOrganizationStore()
		require.NoError(t, st.Create(ctx, newOrg("Acme Rentals", time.Now())))
		require.ErrorIs(t, st.Create(ctx, newOrg("  acme   RENTALS", time.Now())), store.ErrOrganizationNameTaken)

		got, err := st.GetByName(ctx, "ACME rentals")
		require.NoError(t, err)
		require.Equal(t, "Acme Rentals", got.Name)
	})

	t.Run("list by owner newest first", func(t *testing.T) {
		st := NewOrganizationStore()
		now := time.Now()
		first := newOrg("First", now.Add(-time.Hour))
		second := newOrg("Second", now)
		require.NoError(t, st.Create(ctx, first))
		require.NoError(t, st.Create(ctx, second))
		require.NoError(t, st.Create(ctx, &models.Organization{
			OrgID:       uuid.Must(uuid.NewV7()),
			Name:        "Someone Else",
			OwnerUserID: uuid.Must(uuid.NewV7()),
		}))

		orgs, err := st.ListByOwner(ctx, owner)
		require.NoError(t, err)
		require.Len(t, orgs, 2)
		require.Equal(t, second.OrgID, orgs[0].OrgID)
	})

	t.Run("missing organization", func(t *testing.T) {
		st := NewOrganizationStore()
		_, err := st.Get(ctx, uuid.Must(uuid.NewV7()))
		require.ErrorIs(t, err, store.ErrOrganizationNotFound)
	})
}

func TestAgencyStore(t *testing.T) {
	ctx := context.Background()
	st := NewAgencyStore()
	orgID := uuid.Must(uuid.NewV7())
	now := time.Now()

	headOffice := &models.Agency{AgencyID: uuid.Must(uuid.NewV7()), OrgID: orgID, Name: "Main Branch", IsDefault: true, CreatedAt: now}
	branch := &models.Agency{AgencyID: uuid.Must(uuid.NewV7()), OrgID: orgID, Name: "Airport", CreatedAt: now.Add(time.Minute)}

	require.NoError(t, st.Create(ctx, headOffice))
	require.NoError(t, st.Create(ctx, branch))
	require.ErrorIs(t, st.Create(ctx, headOffice), store.ErrAgencyAlreadyExists)

	agencies, err := st.ListByOrganization(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, agencies, 2)
	require.Equal(t, headOffice.AgencyID, agencies[0].AgencyID)
	require.True(t, agencies[0].IsDefault)

	_, err = st.Get(ctx, uuid.Must(uuid.NewV7()))
	require.ErrorIs(t, err, store.ErrAgencyNotFound)
}

func TestPlanStore(t *testing.T) {
	ctx := context.Background()
	st := NewPlanStore()

	plans := []*models.SubscriptionPlan{
		{Code: models.PlanBasic, Name: "Basic", SortOrder: 2},
		{Code: models.PlanTrial, Name: "Trial", SortOrder: 1, Features: []string{"fleet"}},
	}
	require.NoError(t, st.Seed(ctx, plans))

	// seeding again leaves existing plans untouched
	require.NoError(t, st.Seed(ctx, []*models.SubscriptionPlan{{Code: models.PlanBasic, Name: "Renamed", SortOrder: 2}}))

	got, err := st.GetByCode(ctx, models.PlanBasic)
	require.NoError(t, err)
	require.Equal(t, "Basic", got.Name)

	list, err := st.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, models.PlanTrial, list[0].Code)

	_, err = st.GetByCode(ctx, "GOLD")
	require.ErrorIs(t, err, store.ErrPlanNotFound)
}

func TestSubscriptionStore(t *testing.T) {
	ctx := context.Background()
	st := NewSubscriptionStore()
	orgID := uuid.Must(uuid.NewV7())
	now := time.Now()

	older := &models.OrganizationSubscription{SubscriptionID: uuid.Must(uuid.NewV7()), OrgID: orgID, PlanCode: models.PlanTrial, CreatedAt: now.Add(-time.Hour)}
	newer := &models.OrganizationSubscription{SubscriptionID: uuid.Must(uuid.NewV7()), OrgID: orgID, PlanCode: models.PlanBasic, CreatedAt: now}

	require.NoError(t, st.Create(ctx, older))
	require.NoError(t, st.Create(ctx, newer))
	require.ErrorIs(t, st.Create(ctx, newer), store.ErrSubscriptionAlreadyExists)

	subs, err := st.ListByOrganization(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	require.Equal(t, newer.SubscriptionID, subs[0].SubscriptionID)

	got, err := st.Get(ctx, older.SubscriptionID)
	require.NoError(t, err)
	require.Equal(t, models.PlanTrial, got.PlanCode)

	_, err = st.Get(ctx, uuid.Must(uuid.NewV7()))
	require.ErrorIs(t, err, store.ErrSubscriptionNotFound)
}
