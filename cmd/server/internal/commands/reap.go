package commands

import (
	"context"
	"time"

	"github.com/wolfeidau/rentdesk/internal/auth"
	"github.com/wolfeidau/rentdesk/internal/logger"
	"github.com/wolfeidau/rentdesk/internal/worker"
)

// ReapCmd runs one stale session sweep, for use from cron or a scheduled task
// when the server's background reaper is disabled.
type ReapCmd struct {
	AbandonAfter time.Duration `help:"age after which sessions without owner details are abandoned" default:"1h" env:"RENTDESK_ONBOARDING_ABANDON_AFTER" name:"onboarding-abandon-after"`

	Store StoreFlags `embed:""`
}

func (c *ReapCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)
	logger.Install(log)

	backend, err := c.Store.openBackend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	reaper := worker.NewReaper(worker.ReaperConfig{AbandonAfter: c.AbandonAfter}, newOrchestrator(backend, 0))

	result, err := reaper.RunOnce(auth.WithSystemPrincipal(log.WithContext(ctx)))
	if err != nil {
		return err
	}

	log.Info().
		Int("scanned", result.Scanned).
		Int("expired", result.Expired).
		Int("abandoned", result.Abandoned).
		Int("skipped", result.Skipped).
		Msg("Sweep complete")

	return nil
}
