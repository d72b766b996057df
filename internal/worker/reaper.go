// Package worker runs background maintenance for the onboarding service.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/rentdesk/internal/apperror"
	"github.com/wolfeidau/rentdesk/internal/auth"
	"github.com/wolfeidau/rentdesk/internal/onboarding"
)

// SessionReaper transitions stale onboarding sessions.
type SessionReaper interface {
	ReapStaleSessions(ctx context.Context, cutoff time.Time) (*onboarding.ReapResult, error)
}

// ReaperConfig configures the background reaper.
type ReaperConfig struct {
	// Interval is how often a sweep runs.
	Interval time.Duration

	// AbandonAfter is how old a session without owner details must be
	// before it is marked abandoned.
	AbandonAfter time.Duration

	// RetryBackoff configures exponential backoff for a failed sweep.
	RetryBackoff BackoffConfig
}

// BackoffConfig configures exponential backoff retry
type BackoffConfig struct {
	// InitialInterval is the first retry delay (e.g., 1 second)
	InitialInterval time.Duration

	// MaxInterval is the maximum retry delay (e.g., 30 seconds)
	MaxInterval time.Duration

	// Multiplier controls backoff growth (e.g., 2.0 for exponential)
	Multiplier float64

	// MaxTries bounds attempts per sweep; the next tick starts over.
	MaxTries uint
}

// DefaultReaperConfig returns sensible defaults
func DefaultReaperConfig() ReaperConfig {
	return ReaperConfig{
		Interval:     5 * time.Minute,
		AbandonAfter: time.Hour,
		RetryBackoff: BackoffConfig{
			InitialInterval: time.Second,
			MaxInterval:     30 * time.Second,
			Multiplier:      2.0,
			MaxTries:        5,
		},
	}
}

// Reaper periodically sweeps stale sessions on behalf of the system principal.
type Reaper struct {
	cfg    ReaperConfig
	reaper SessionReaper
	now    func() time.Time

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewReaper creates a reaper. Zero config fields take their defaults.
func NewReaper(cfg ReaperConfig, reaper SessionReaper) *Reaper {
	defaults := DefaultReaperConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.AbandonAfter <= 0 {
		cfg.AbandonAfter = defaults.AbandonAfter
	}
	if cfg.RetryBackoff.InitialInterval <= 0 {
		cfg.RetryBackoff.InitialInterval = defaults.RetryBackoff.InitialInterval
	}
	if cfg.RetryBackoff.MaxInterval <= 0 {
		cfg.RetryBackoff.MaxInterval = defaults.RetryBackoff.MaxInterval
	}
	if cfg.RetryBackoff.Multiplier < 1 {
		cfg.RetryBackoff.Multiplier = defaults.RetryBackoff.Multiplier
	}
	if cfg.RetryBackoff.MaxTries == 0 {
		cfg.RetryBackoff.MaxTries = defaults.RetryBackoff.MaxTries
	}

	return &Reaper{
		cfg:    cfg,
		reaper: reaper,
		now:    time.Now,
	}
}

// Start launches the sweep loop. It returns an error if already started.
func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("reaper already started")
	}

	r.started = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	go r.loop(auth.WithSystemPrincipal(ctx))

	return nil
}

// Stop signals the loop to exit and waits for an in-flight sweep to finish.
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	close(r.stopCh)
	doneCh := r.doneCh
	r.mu.Unlock()

	<-doneCh
}

func (r *Reaper) loop(ctx context.Context) {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", r.cfg.Interval).
		Dur("abandon_after", r.cfg.AbandonAfter).
		Msg("Session reaper started")

	for {
		select {
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				log.Error().Err(err).Msg("Session reaper sweep failed")
			}

		case <-r.stopCh:
			log.Info().Msg("Session reaper stopping")
			return

		case <-ctx.Done():
			log.Debug().Msg("Session reaper context cancelled")
			return
		}
	}
}

// RunOnce performs a single sweep, retrying failures with exponential
// backoff. Authorization failures are not retried. ctx must carry a
// principal with the admin permission, such as auth.WithSystemPrincipal.
func (r *Reaper) RunOnce(ctx context.Context) (*onboarding.ReapResult, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.RetryBackoff.InitialInterval
	b.MaxInterval = r.cfg.RetryBackoff.MaxInterval
	b.Multiplier = r.cfg.RetryBackoff.Multiplier

	attempt := 0
	operation := func() (*onboarding.ReapResult, error) {
		attempt++
		result, err := r.reaper.ReapStaleSessions(ctx, r.now().Add(-r.cfg.AbandonAfter))
		if err == nil {
			return result, nil
		}
		if !apperror.IsKind(err, apperror.KindInternal) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	notify := func(err error, next time.Duration) {
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Dur("next_retry", next).
			Msg("Session reaper sweep failed, will retry")
	}

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.cfg.RetryBackoff.MaxTries),
		backoff.WithNotify(notify),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return nil, permanent.Unwrap()
		}
		return nil, err
	}

	log.Debug().
		Int("attempts", attempt).
		Int("expired", result.Expired).
		Int("abandoned", result.Abandoned).
		Msg("Session reaper sweep complete")

	return result, nil
}
