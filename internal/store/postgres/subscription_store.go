package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/rentdesk/internal/models"
	"github.com/wolfeidau/rentdesk/internal/store"
)

var (
	_ store.PlanStore         = (*PlanStore)(nil)
	_ store.SubscriptionStore = (*SubscriptionStore)(nil)
)

const planColumns = `
	plan_id, code, name, description, monthly_price, yearly_price, currency,
	trial_days, max_agencies, max_vehicles, max_drivers, max_users, features, sort_order
`

// PlanStore implements store.PlanStore using PostgreSQL.
type PlanStore struct {
	pool *pgxpool.Pool
}

// NewPlanStore creates a new PostgreSQL-backed plan store.
func NewPlanStore(pool *pgxpool.Pool) *PlanStore {
	return &PlanStore{
		pool: pool,
	}
}

// Seed inserts plans whose code is not yet present in a single batch.
func (s *PlanStore) Seed(ctx context.Context, plans []*models.SubscriptionPlan) error {
	query := `
		INSERT INTO subscription_plans (` + planColumns + `) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
		ON CONFLICT (code) DO NOTHING
	`

	batch := &pgx.Batch{}
	for _, plan := range plans {
		features := plan.Features
		if features == nil {
			features = []string{}
		}
		batch.Queue(query,
			plan.PlanID,
			plan.Code,
			plan.Name,
			plan.Description,
			plan.MonthlyPrice,
			plan.YearlyPrice,
			plan.Currency,
			plan.TrialDays,
			plan.MaxAgencies,
			plan.MaxVehicles,
			plan.MaxDrivers,
			plan.MaxUsers,
			features,
			plan.SortOrder,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := int64(0)
	for _, plan := range plans {
		tag, err := results.Exec()
		if err != nil {
			return fmt.Errorf("failed to seed plan %s: %w", plan.Code, mapPostgresError(err))
		}
		inserted += tag.RowsAffected()
	}

	log.Info().
		Int("plans", len(plans)).
		Int64("inserted", inserted).
		Msg("Seeded subscription plans")

	return nil
}

// GetByCode retrieves a plan by code.
func (s *PlanStore) GetByCode(ctx context.Context, code string) (*models.SubscriptionPlan, error) {
	query := `SELECT ` + planColumns + ` FROM subscription_plans WHERE code = $1`

	plan, err := scanPlan(s.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrPlanNotFound
		}
		return nil, fmt.Errorf("failed to get plan: %w", mapPostgresError(err))
	}

	return plan, nil
}

// List returns every plan ordered by sort order.
func (s *PlanStore) List(ctx context.Context) ([]*models.SubscriptionPlan, error) {
	query := `SELECT ` + planColumns + ` FROM subscription_plans ORDER BY sort_order, code`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var plans []*models.SubscriptionPlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, plan)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plans: %w", err)
	}

	return plans, nil
}

func scanPlan(row pgx.Row) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	err := row.Scan(
		&plan.PlanID,
		&plan.Code,
		&plan.Name,
		&plan.Description,
		&plan.MonthlyPrice,
		&plan.YearlyPrice,
		&plan.Currency,
		&plan.TrialDays,
		&plan.MaxAgencies,
		&plan.MaxVehicles,
		&plan.MaxDrivers,
		&plan.MaxUsers,
		&plan.Features,
		&plan.SortOrder,
	)
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

const subscriptionColumns = `
	subscription_id, org_id, plan_id, plan_code, status, billing_cycle,
	start_date, end_date, auto_renew, created_by, created_at, updated_at
`

// SubscriptionStore implements store.SubscriptionStore using PostgreSQL.
type SubscriptionStore struct {
	pool *pgxpool.Pool
}

// NewSubscriptionStore creates a new PostgreSQL-backed subscription store.
func NewSubscriptionStore(pool *pgxpool.Pool) *SubscriptionStore {
	return &SubscriptionStore{
		pool: pool,
	}
}

// Create attaches a subscription to an organization.
func (s *SubscriptionStore) Create(ctx context.Context, sub *models.OrganizationSubscription) error {
	query := `
		INSERT INTO organization_subscriptions (` + subscriptionColumns + `) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	_, err := s.pool.Exec(ctx, query,
		sub.SubscriptionID,
		sub.OrgID,
		sub.PlanID,
		sub.PlanCode,
		sub.Status,
		sub.BillingCycle,
		sub.StartDate,
		sub.EndDate,
		sub.AutoRenew,
		sub.CreatedBy,
		sub.CreatedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return mapPostgresError(err)
		}
		return fmt.Errorf("failed to create subscription: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("subscription_id", sub.SubscriptionID.String()).
		Str("org_id", sub.OrgID.String()).
		Str("plan", sub.PlanCode).
		Msg("Created subscription")

	return nil
}

// Get retrieves a subscription by ID.
func (s *SubscriptionStore) Get(ctx context.Context, subscriptionID uuid.UUID) (*models.OrganizationSubscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM organization_subscriptions WHERE subscription_id = $1`

	sub, err := scanSubscription(s.pool.QueryRow(ctx, query, subscriptionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", mapPostgresError(err))
	}

	return sub, nil
}

// ListByOrganization returns all subscriptions of an organization, newest first.
func (s *SubscriptionStore) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]*models.OrganizationSubscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM organization_subscriptions
		WHERE org_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var subs []*models.OrganizationSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subscriptions: %w", err)
	}

	return subs, nil
}

func scanSubscription(row pgx.Row) (*models.OrganizationSubscription, error) {
	var sub models.OrganizationSubscription
	err := row.Scan(
		&sub.SubscriptionID,
		&sub.OrgID,
		&sub.PlanID,
		&sub.PlanCode,
		&sub.Status,
		&sub.BillingCycle,
		&sub.StartDate,
		&sub.EndDate,
		&sub.AutoRenew,
		&sub.CreatedBy,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.StartDate = sub.StartDate.UTC()
	sub.EndDate = sub.EndDate.UTC()
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()

	return &sub, nil
}
