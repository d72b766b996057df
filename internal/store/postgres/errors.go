package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/wolfeidau/rentdesk/internal/store"
)

// Constraint names from migrations/1_initial_schema.sql that map to sentinel errors.
const (
	constraintUsersPkey             = "users_pkey"
	constraintUsersEmail            = "users_email_key"
	constraintOrganizationsPkey     = "organizations_pkey"
	constraintOrganizationsName     = "organizations_normalized_name_key"
	constraintAgenciesPkey          = "agencies_pkey"
	constraintSessionsPkey          = "onboarding_sessions_pkey"
	constraintSubscriptionsPkey     = "organization_subscriptions_pkey"
	constraintSubscriptionsOrgFkey  = "organization_subscriptions_org_id_fkey"
	constraintSubscriptionsPlanFkey = "organization_subscriptions_plan_id_fkey"
)

// uniqueViolations maps unique constraints to the sentinel error callers expect.
var uniqueViolations = map[string]error{
	constraintUsersPkey:         store.ErrUserAlreadyExists,
	constraintUsersEmail:        store.ErrUserEmailTaken,
	constraintOrganizationsPkey: store.ErrOrganizationAlreadyExists,
	constraintOrganizationsName: store.ErrOrganizationNameTaken,
	constraintAgenciesPkey:      store.ErrAgencyAlreadyExists,
	constraintSessionsPkey:      store.ErrSessionAlreadyExists,
	constraintSubscriptionsPkey: store.ErrSubscriptionAlreadyExists,
}

// mapPostgresError maps PostgreSQL-specific errors to sentinel errors.
// Returns the original error if it's not a PostgreSQL error or doesn't match known patterns.
func mapPostgresError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		if sentinel, ok := uniqueViolations[pgErr.ConstraintName]; ok {
			return sentinel
		}
		return fmt.Errorf("unique constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.ForeignKeyViolation:
		switch pgErr.ConstraintName {
		case constraintSubscriptionsOrgFkey:
			return fmt.Errorf("%w: %s", store.ErrOrganizationNotFound, pgErr.Detail)
		case constraintSubscriptionsPlanFkey:
			return fmt.Errorf("%w: %s", store.ErrPlanNotFound, pgErr.Detail)
		}
		return fmt.Errorf("foreign key violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.CheckViolation:
		return fmt.Errorf("check constraint violation: %s: %w", pgErr.ConstraintName, err)

	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
		return fmt.Errorf("transaction conflict (retryable): %w", err)

	case pgerrcode.ConnectionException,
		pgerrcode.ConnectionDoesNotExist,
		pgerrcode.ConnectionFailure,
		pgerrcode.CannotConnectNow,
		pgerrcode.SQLClientUnableToEstablishSQLConnection:
		return fmt.Errorf("database connection error: %w", err)

	case pgerrcode.AdminShutdown,
		pgerrcode.CrashShutdown:
		return fmt.Errorf("database server unavailable: %w", err)

	case pgerrcode.QueryCanceled:
		return fmt.Errorf("query canceled: %w", err)

	case pgerrcode.InsufficientResources,
		pgerrcode.DiskFull,
		pgerrcode.OutOfMemory,
		pgerrcode.TooManyConnections:
		return fmt.Errorf("database resource limit: %w", err)

	default:
		return fmt.Errorf("postgres error [%s]: %s (detail: %s, hint: %s): %w",
			pgErr.Code, pgErr.Message, pgErr.Detail, pgErr.Hint, err)
	}
}

// isUniqueViolation reports whether err is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
