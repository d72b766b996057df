package onboarding

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/rentdesk/internal/apperror"
	"github.com/wolfeidau/rentdesk/internal/auth"
	"github.com/wolfeidau/rentdesk/internal/models"
	"github.com/wolfeidau/rentdesk/internal/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ReapResult counts the sessions a sweep transitioned.
type ReapResult struct {
	Scanned   int `json:"scanned"`
	Expired   int `json:"expired"`
	Abandoned int `json:"abandoned"`
	// Sessions changed by another writer during the sweep; they are
	// reconsidered on the next run.
	Skipped int `json:"skipped"`
}

// ReapStaleSessions transitions stale IN_PROGRESS sessions: those past their
// expiry become EXPIRED, and those created before cutoff that never received
// OWNER_INFO become ABANDONED. Each transition is a single conditional write
// so running the sweep again, or concurrently, is harmless.
func (o *Orchestrator) ReapStaleSessions(ctx context.Context, cutoff time.Time) (*ReapResult, error) {
	if err := auth.Authorize(ctx, auth.PermOnboardingAdmin); err != nil {
		return nil, err
	}

	ctx, span := o.tracer.Start(ctx, "onboarding.ReapStaleSessions")
	defer span.End()

	o.metrics.ReapRunsTotal.Add(ctx, 1)

	sessions, err := o.sessions.ListByStatus(ctx, models.SessionStatusInProgress, 0)
	if err != nil {
		o.metrics.ReapErrorsTotal.Add(ctx, 1)
		return nil, apperror.Internal(err, "failed to list in-progress sessions")
	}

	now := o.now()
	result := &ReapResult{Scanned: len(sessions)}

	var errs []error
	for _, session := range sessions {
		status, ok := staleStatus(session, now, cutoff)
		if !ok {
			continue
		}

		updated := session.Clone()
		updated.Status = status
		updated.UpdatedAt = now

		if err := o.sessions.Update(ctx, updated); err != nil {
			if errors.Is(err, store.ErrSessionConflict) || errors.Is(err, store.ErrSessionNotFound) {
				result.Skipped++
				continue
			}
			errs = append(errs, err)
			continue
		}

		switch status {
		case models.SessionStatusExpired:
			result.Expired++
		case models.SessionStatusAbandoned:
			result.Abandoned++
		}
		o.metrics.SessionsReapedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
	}

	span.SetAttributes(
		attribute.Int("scanned", result.Scanned),
		attribute.Int("expired", result.Expired),
		attribute.Int("abandoned", result.Abandoned),
	)

	zerolog.Ctx(ctx).Info().
		Int("scanned", result.Scanned).
		Int("expired", result.Expired).
		Int("abandoned", result.Abandoned).
		Int("skipped", result.Skipped).
		Time("cutoff", cutoff).
		Msg("Reaped stale onboarding sessions")

	if len(errs) > 0 {
		o.metrics.ReapErrorsTotal.Add(ctx, 1)
		return result, apperror.Internal(errors.Join(errs...), "failed to update %d sessions", len(errs))
	}

	return result, nil
}

// staleStatus returns the terminal status a stale session moves to.
func staleStatus(session *models.OnboardingSession, now, cutoff time.Time) (models.SessionStatus, bool) {
	if session.Status != models.SessionStatusInProgress {
		return "", false
	}
	if models.IsExpired(session, now) {
		return models.SessionStatusExpired, true
	}
	if session.CreatedAt.Before(cutoff) && session.OwnerInfo == nil {
		return models.SessionStatusAbandoned, true
	}
	return "", false
}
