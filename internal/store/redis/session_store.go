package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/rentdesk/internal/models"
	"github.com/wolfeidau/rentdesk/internal/store"
)

var _ store.SessionStore = (*SessionStore)(nil)

// DefaultKeyPrefix namespaces every key written by the session store.
const DefaultKeyPrefix = "rentdesk:onboarding"

// SessionStore implements store.SessionStore on Redis.
//
// Each session is a JSON document under {prefix}:session:{id}. Sorted sets
// scored by creation time index sessions by status, user and client token.
// Updates use WATCH/MULTI so a version mismatch or a concurrent write fails
// with store.ErrSessionConflict. In cluster mode the prefix should carry a
// hash tag, e.g. "{rentdesk}:onboarding", so the keys of a transaction share a slot.
type SessionStore struct {
	client goredis.UniversalClient
	prefix string
}

// NewSessionStore creates a Redis-backed session store. An empty prefix
// uses DefaultKeyPrefix.
func NewSessionStore(client goredis.UniversalClient, prefix string) *SessionStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &SessionStore{
		client: client,
		prefix: prefix,
	}
}

func (s *SessionStore) sessionKey(sessionID uuid.UUID) string {
	return s.prefix + ":session:" + sessionID.String()
}

func (s *SessionStore) statusKey(status models.SessionStatus) string {
	return s.prefix + ":status:" + string(status)
}

func (s *SessionStore) userKey(userID uuid.UUID) string {
	return s.prefix + ":user:" + userID.String()
}

func (s *SessionStore) tokenKey(token string) string {
	return s.prefix + ":token:" + token
}

// Create stores a new session.
func (s *SessionStore) Create(ctx context.Context, session *models.OnboardingSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode onboarding session: %w", err)
	}

	key := s.sessionKey(session.SessionID)

	err = s.client.Watch(ctx, func(tx *goredis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return store.ErrSessionAlreadyExists
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			s.index(ctx, pipe, session)
			return nil
		})
		return err
	}, key)
	if err != nil {
		if errors.Is(err, store.ErrSessionAlreadyExists) || errors.Is(err, goredis.TxFailedErr) {
			return store.ErrSessionAlreadyExists
		}
		return fmt.Errorf("failed to create onboarding session: %w", err)
	}

	log.Debug().
		Str("session_id", session.SessionID.String()).
		Str("status", string(session.Status)).
		Msg("Created onboarding session")

	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, sessionID uuid.UUID) (*models.OnboardingSession, error) {
	data, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get onboarding session: %w", err)
	}
	return decodeSession(data)
}

// Update replaces a session when the stored version matches session.Version.
func (s *SessionStore) Update(ctx context.Context, session *models.OnboardingSession) error {
	key := s.sessionKey(session.SessionID)

	next := session.Clone()
	next.Version = session.Version + 1

	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode onboarding session: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return store.ErrSessionNotFound
			}
			return err
		}

		current, err := decodeSession(raw)
		if err != nil {
			return err
		}
		if current.Version != session.Version {
			return store.ErrSessionConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if current.Status != next.Status {
				pipe.ZRem(ctx, s.statusKey(current.Status), next.SessionID.String())
			}
			s.index(ctx, pipe, next)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
	case errors.Is(err, goredis.TxFailedErr):
		return store.ErrSessionConflict
	case errors.Is(err, store.ErrSessionConflict), errors.Is(err, store.ErrSessionNotFound):
		return err
	default:
		return fmt.Errorf("failed to update onboarding session: %w", err)
	}

	session.Version = next.Version

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
	return s.findNewest(ctx, s.userKey(userID), status)
}

// FindByClientToken returns the newest session for a client token in the given status.
func (s *SessionStore) FindByClientToken(ctx context.Context, token string, status models.SessionStatus) (*models.OnboardingSession, error) {
	if token == "" {
		return nil, store.ErrSessionNotFound
	}
	return s.findNewest(ctx, s.tokenKey(token), status)
}

// ListByStatus returns sessions in the given status, oldest first.
func (s *SessionStore) ListByStatus(ctx context.Context, status models.SessionStatus, limit int) ([]*models.OnboardingSession, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}

	ids, err := s.client.ZRange(ctx, s.statusKey(status), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list onboarding sessions: %w", err)
	}

	sessions, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}

	// Skip sessions whose status changed after the range read.
	result := sessions[:0]
	for _, session := range sessions {
		if session.Status == status {
			result = append(result, session)
		}
	}

	return result, nil
}

// index adds the session to its lookup sets.
func (s *SessionStore) index(ctx context.Context, pipe goredis.Pipeliner, session *models.OnboardingSession) {
	member := goredis.Z{
		Score:  float64(session.CreatedAt.UnixMilli()),
		Member: session.SessionID.String(),
	}

	pipe.ZAdd(ctx, s.statusKey(session.Status), member)
	if session.UserID != nil {
		pipe.ZAdd(ctx, s.userKey(*session.UserID), member)
	}
	if session.ClientToken != "" {
		pipe.ZAdd(ctx, s.tokenKey(session.ClientToken), member)
	}
}

func (s *SessionStore) findNewest(ctx context.Context, indexKey string, status models.SessionStatus) (*models.OnboardingSession, error) {
	ids, err := s.client.ZRevRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to find onboarding session: %w", err)
	}

	sessions, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, session := range sessions {
		if session.Status == status {
			return session, nil
		}
	}

	return nil, store.ErrSessionNotFound
}

// load fetches sessions by id, preserving order and skipping missing keys.
func (s *SessionStore) load(ctx context.Context, ids []string) ([]*models.OnboardingSession, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.prefix+":session:"+id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load onboarding sessions: %w", err)
	}

	sessions := make([]*models.OnboardingSession, 0, len(values))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			log.Warn().Str("key", keys[i]).Msg("Indexed onboarding session is missing")
			continue
		}
		session, err := decodeSession([]byte(raw))
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	return sessions, nil
}

func decodeSession(data []byte) (*models.OnboardingSession, error) {
	var session models.OnboardingSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode onboarding session: %w", err)
	}
	return &session, nil
}
