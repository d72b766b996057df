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

var _ store.SessionStore = (*SessionStore)(nil)

const sessionColumns = `
	session_id, user_id, client_token, status, current_step,
	owner_info, organization_info, plan_selection,
	created_organization_id, created_subscription_id, version,
	created_at, updated_at, completed_at, expires_at,
	user_agent, ip_address
`

// SessionStore implements store.SessionStore using PostgreSQL.
// Step payloads are stored as JSONB columns.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a new PostgreSQL-backed onboarding session store.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{
		pool: pool,
	}
}

// Create creates a new session in the database.
func (s *SessionStore) Create(ctx context.Context, session *models.OnboardingSession) error {
	query := `
		INSERT INTO onboarding_sessions (` + sessionColumns + `) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
	`

	_, err := s.pool.Exec(ctx, query,
		session.SessionID,
		session.UserID,
		session.ClientToken,
		session.Status,
		session.CurrentStep,
		session.OwnerInfo,
		session.OrganizationInfo,
		session.PlanSelection,
		session.CreatedOrganizationID,
		session.CreatedSubscriptionID,
		session.Version,
		session.CreatedAt,
		session.UpdatedAt,
		session.CompletedAt,
		session.ExpiresAt,
		session.UserAgent,
		session.IPAddress,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return mapPostgresError(err)
		}
		return fmt.Errorf("failed to create onboarding session: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("session_id", session.SessionID.String()).
		Str("status", string(session.Status)).
		Msg("Created onboarding session")

	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, sessionID uuid.UUID) (*models.OnboardingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM onboarding_sessions WHERE session_id = $1`

	session, err := scanSession(s.pool.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get onboarding session: %w", mapPostgresError(err))
	}

	return session, nil
}

// Update replaces a session when the stored version matches session.Version.
func (s *SessionStore) Update(ctx context.Context, session *models.OnboardingSession) error {
	query := `
		UPDATE onboarding_sessions SET
			user_id = $3,
			client_token = $4,
			status = $5,
			current_step = $6,
			owner_info = $7,
			organization_info = $8,
			plan_selection = $9,
			created_organization_id = $10,
			created_subscription_id = $11,
			updated_at = $12,
			completed_at = $13,
			expires_at = $14,
			user_agent = $15,
			ip_address = $16,
			version = version + 1
		WHERE session_id = $1 AND version = $2
	`

	result, err := s.pool.Exec(ctx, query,
		session.SessionID,
		session.Version,
		session.UserID,
		session.ClientToken,
		session.Status,
		session.CurrentStep,
		session.OwnerInfo,
		session.OrganizationInfo,
		session.PlanSelection,
		session.CreatedOrganizationID,
		session.CreatedSubscriptionID,
		session.UpdatedAt,
		session.CompletedAt,
		session.ExpiresAt,
		session.UserAgent,
		session.IPAddress,
	)
	if err != nil {
		return fmt.Errorf("failed to update onboarding session: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM onboarding_sessions WHERE session_id = $1)`,
			session.SessionID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check onboarding session: %w", mapPostgresError(err))
		}
		if !exists {
			return store.ErrSessionNotFound
		}
		return store.ErrSessionConflict
	}

	session.Version++

	log.Debug().
		Str("session_id", session.SessionID.String()).
		Str("status", string(session.Status)).
		Str("current_step", string(session.CurrentStep)).
		Int64("version", session.Version).
		Msg("Updated onboarding session")

	return nil
}

// FindByUser returns the newest session for a user in the given status.
func (s *SessionStore) FindByUser(ctx context.Context, userID uuid.UUID, status models.SessionStatus) (*models.OnboardingSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM onboarding_sessions
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	return s.findOne(ctx, query, userID, status)
}

// FindByClientToken returns the newest session for a client token in the given status.
func (s *SessionStore) FindByClientToken(ctx context.Context, token string, status models.SessionStatus) (*models.OnboardingSession, error) {
	if token == "" {
		return nil, store.ErrSessionNotFound
	}

	query := `
		SELECT ` + sessionColumns + `
		FROM onboarding_sessions
		WHERE client_token = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	return s.findOne(ctx, query, token, status)
}

// ListByStatus returns sessions in the given status, oldest first.
func (s *SessionStore) ListByStatus(ctx context.Context, status models.SessionStatus, limit int) ([]*models.OnboardingSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM onboarding_sessions
		WHERE status = $1
		ORDER BY created_at ASC
	`
	args := []any{status}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list onboarding sessions: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var sessions []*models.OnboardingSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan onboarding session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating onboarding sessions: %w", err)
	}

	return sessions, nil
}

func (s *SessionStore) findOne(ctx context.Context, query string, args ...any) (*models.OnboardingSession, error) {
	session, err := scanSession(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to find onboarding session: %w", mapPostgresError(err))
	}
	return session, nil
}

func scanSession(row pgx.Row) (*models.OnboardingSession, error) {
	var session models.OnboardingSession
	err := row.Scan(
		&session.SessionID,
		&session.UserID,
		&session.ClientToken,
		&session.Status,
		&session.CurrentStep,
		&session.OwnerInfo,
		&session.OrganizationInfo,
		&session.PlanSelection,
		&session.CreatedOrganizationID,
		&session.CreatedSubscriptionID,
		&session.Version,
		&session.CreatedAt,
		&session.UpdatedAt,
		&session.CompletedAt,
		&session.ExpiresAt,
		&session.UserAgent,
		&session.IPAddress,
	)
	if err != nil {
		return nil, err
	}

	// TIMESTAMPTZ scans in the session time zone.
	session.CreatedAt = session.CreatedAt.UTC()
	session.UpdatedAt = session.UpdatedAt.UTC()
	session.ExpiresAt = session.ExpiresAt.UTC()
	if session.CompletedAt != nil {
		completedAt := session.CompletedAt.UTC()
		session.CompletedAt = &completedAt
	}

	return &session, nil
}
