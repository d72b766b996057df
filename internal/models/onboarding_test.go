package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIsExpired(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	session := &OnboardingSession{CreatedAt: created, ExpiresAt: created.Add(24 * time.Hour)}

	require.False(t, IsExpired(session, created))
	require.False(t, IsExpired(session, session.ExpiresAt.Add(-time.Nanosecond)))
	require.True(t, IsExpired(session, session.ExpiresAt))
	require.True(t, IsExpired(session, session.ExpiresAt.Add(time.Hour)))
}
