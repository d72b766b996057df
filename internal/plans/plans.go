// Package plans loads the subscription plan catalog and seeds it into a plan store.
package plans

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/rentdesk/internal/models"
	"github.com/wolfeidau/rentdesk/internal/store"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// planNamespace derives stable plan IDs from plan codes so seeding is
// repeatable across restarts and store backends.
var planNamespace = uuid.MustParse("0f6f8f2e-6a4c-4d8e-9b36-2f1f4c6a9d10")

type catalog struct {
	Plans []*models.SubscriptionPlan `yaml:"plans"`
}

// PlanID returns the stable ID of the plan with the given code.
func PlanID(code string) uuid.UUID {
	return uuid.NewSHA1(planNamespace, []byte(code))
}

// Default returns the built-in plan catalog.
func Default() ([]*models.SubscriptionPlan, error) {
	return Parse(defaultCatalog)
}

// Parse decodes a YAML plan catalog and validates it. The catalog must
// contain a TRIAL plan since it is the fallback for onboarding.
func Parse(data []byte) ([]*models.SubscriptionPlan, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var c catalog
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to decode plan catalog: %w", err)
	}

	seen := make(map[string]bool, len(c.Plans))
	for _, plan := range c.Plans {
		if plan.Code == "" {
			return nil, errors.New("plan code is required")
		}
		if seen[plan.Code] {
			return nil, fmt.Errorf("duplicate plan code %q", plan.Code)
		}
		if plan.MonthlyPrice < 0 || plan.YearlyPrice < 0 {
			return nil, fmt.Errorf("plan %s has a negative price", plan.Code)
		}
		seen[plan.Code] = true
		plan.PlanID = PlanID(plan.Code)
	}

	if !seen[models.PlanTrial] {
		return nil, fmt.Errorf("plan catalog must include %s", models.PlanTrial)
	}

	slices.SortFunc(c.Plans, func(a, b *models.SubscriptionPlan) int {
		return a.SortOrder - b.SortOrder
	})

	return c.Plans, nil
}

// Seed loads the catalog into the plan store. Plans already present are kept.
func Seed(ctx context.Context, planStore store.PlanStore, plans []*models.SubscriptionPlan) error {
	if err := planStore.Seed(ctx, plans); err != nil {
		return fmt.Errorf("failed to seed plans: %w", err)
	}

	log.Info().Int("count", len(plans)).Msg("Subscription plans seeded")
	return nil
}
