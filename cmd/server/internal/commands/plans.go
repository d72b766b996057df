package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/wolfeidau/rentdesk/internal/logger"
	"github.com/wolfeidau/rentdesk/internal/models"
	"github.com/wolfeidau/rentdesk/internal/plans"
)

// PlansCmd prints the plan catalog. With --seed it also writes the catalog
// to the configured store, which is how a fresh database is prepared.
type PlansCmd struct {
	Seed bool `help:"seed the catalog into the configured store" default:"false"`

	Store StoreFlags `embed:""`
}

func (c *PlansCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)
	logger.Install(log)

	catalog, err := plans.Default()
	if err != nil {
		return err
	}

	if c.Seed {
		// openBackend seeds the catalog as part of start up.
		backend, err := c.Store.openBackend(ctx)
		if err != nil {
			return err
		}
		defer backend.Close()

		catalog, err = backend.plans.List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list plans: %w", err)
		}
	}

	return writePlans(os.Stdout, catalog)
}

func writePlans(out io.Writer, catalog []*models.SubscriptionPlan) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tNAME\tMONTHLY\tYEARLY\tTRIAL DAYS\tAGENCIES\tVEHICLES")
	for _, plan := range catalog {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			plan.Code,
			plan.Name,
			formatPrice(plan.MonthlyPrice, plan.Currency),
			formatPrice(plan.YearlyPrice, plan.Currency),
			plan.TrialDays,
			formatLimit(plan.MaxAgencies),
			formatLimit(plan.MaxVehicles),
		)
	}
	return tw.Flush()
}

func formatPrice(minor int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", minor/100, minor%100, currency)
}

func formatLimit(n int) string {
	if n == 0 {
		return "unlimited"
	}
	return fmt.Sprint(n)
}
