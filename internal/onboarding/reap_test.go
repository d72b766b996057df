package onboarding

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/rentdesk/internal/apperror"
	"github.com/wolfeidau/rentdesk/internal/auth"
	"github.com/wolfeidau/rentdesk/internal/models"
)

func TestReapStaleSessions(t *testing.T) {
	ctx := auth.WithSystemPrincipal(context.Background())
	h := newHarness(t)

	expired := h.start(t)

	h.clock.Advance(2 * time.Hour)

	abandoned := h.start(t)
	progressing := h.start(t)
	h.advance(t, progressing.SessionID, models.StepOwnerInfo)

	h.clock.Advance(2 * time.Hour)
	fresh := h.start(t)

	// expired reaches its expiry; the cutoff falls between abandoned and fresh.
	h.clock.Advance(20 * time.Hour)
	cutoff := h.clock.Now().Add(-21 * time.Hour)

	result, err := h.orchestrator.ReapStaleSessions(ctx, cutoff)
	require.NoError(t, err)
	require.Equal(t, 4, result.Scanned)
	require.Equal(t, 1, result.Expired)
	require.Equal(t, 1, result.Abandoned)

	statuses := map[string]models.SessionStatus{}
	for name, session := range map[string]*models.OnboardingSession{
		"expired":     expired,
		"abandoned":   abandoned,
		"progressing": progressing,
		"fresh":       fresh,
	} {
		stored, err := h.sessions.Get(ctx, session.SessionID)
		require.NoError(t, err)
		statuses[name] = stored.Status
	}

	require.Equal(t, map[string]models.SessionStatus{
		"expired":     models.SessionStatusExpired,
		"abandoned":   models.SessionStatusAbandoned,
		"progressing": models.SessionStatusInProgress,
		"fresh":       models.SessionStatusInProgress,
	}, statuses)

	t.Run("second run is a no-op", func(t *testing.T) {
		before, err := h.sessions.Get(ctx, expired.SessionID)
		require.NoError(t, err)

		again, err := h.orchestrator.ReapStaleSessions(ctx, cutoff)
		require.NoError(t, err)
		require.Equal(t, 0, again.Expired)
		require.Equal(t, 0, again.Abandoned)
		require.Equal(t, 2, again.Scanned)

		after, err := h.sessions.Get(ctx, expired.SessionID)
		require.NoError(t, err)
		require.Equal(t, before, after)
	})
}

func TestReapStaleSessions_neverTouchedExpired(t *testing.T) {
	ctx := auth.WithSystemPrincipal(context.Background())
	h := newHarness(t)

	session := h.start(t)
	h.clock.Advance(25 * time.Hour)

	result, err := h.orchestrator.ReapStaleSessions(ctx, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 1, result.Expired)

	stored, err := h.sessions.Get(ctx, session.SessionID)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusExpired, stored.Status)
	version := stored.Version

	result, err = h.orchestrator.ReapStaleSessions(ctx, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 0, result.Expired)

	stored, err = h.sessions.Get(ctx, session.SessionID)
	require.NoError(t, err)
	require.Equal(t, version, stored.Version)
}

func TestReapStaleSessions_requiresAdmin(t *testing.T) {
	h := newHarness(t)

	_, err := h.orchestrator.ReapStaleSessions(context.Background(), time.Now())
	requireKind(t, err, apperror.KindUnauthenticated)

	ownerCtx := auth.WithPrincipal(context.Background(), &auth.Principal{Roles: []string{models.RoleOwner}})
	_, err = h.orchestrator.ReapStaleSessions(ownerCtx, time.Now())
	requireKind(t, err, apperror.KindPermissionDenied)
}

func TestStaleStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cutoff := now.Add(-time.Hour)

	tests := []struct {
		name    string
		session models.OnboardingSession
		want    models.SessionStatus
		wantOK  bool
	}{
		{
			name:    "past expiry",
			session: models.OnboardingSession{Status: models.SessionStatusInProgress, CreatedAt: now.Add(-25 * time.Hour), ExpiresAt: now.Add(-time.Hour)},
			want:    models.SessionStatusExpired,
			wantOK:  true,
		},
		{
			name:    "old without owner info",
			session: models.OnboardingSession{Status: models.SessionStatusInProgress, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(time.Hour)},
			want:    models.SessionStatusAbandoned,
			wantOK:  true,
		},
		{
			name: "old with owner info",
			session: models.OnboardingSession{
				Status:    models.SessionStatusInProgress,
				CreatedAt: now.Add(-2 * time.Hour),
				ExpiresAt: now.Add(time.Hour),
				OwnerInfo: &models.OwnerInfo{Email: "a@b.com"},
			},
		},
		{
			name:    "recent",
			session: models.OnboardingSession{Status: models.SessionStatusInProgress, CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
		},
		{
			name:    "completed past expiry",
			session: models.OnboardingSession{Status: models.SessionStatusCompleted, CreatedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-24 * time.Hour)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := staleStatus(&tt.session, now, cutoff)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, got)
		})
	}
}
