package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/wolfeidau/rentdesk/internal/models"
	"github.com/wolfeidau/rentdesk/internal/store"
)

var _ store.SessionStore = (*SessionStore)(nil)

// SessionStore implements store.SessionStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type SessionStore struct {
	mu sync.RWMutex

	sessions map[uuid.UUID]*models.OnboardingSession // session_id -> OnboardingSession
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[uuid.UUID]*models.OnboardingSession),
	}
}

// Create creates a new session in memory.
func (s *SessionStore) Create(ctx context.Context, session *models.OnboardingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.SessionID]; exists {
		return store.ErrSessionAlreadyExists
	}

	// Clone to avoid external modifications
	s.sessions[session.SessionID] = session.Clone()

	return nil
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(ctx context.Context, sessionID uuid.UUID) (*models.OnboardingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, store.ErrSessionNotFound
	}

	return session.Clone(), nil
}

// Update replaces a session when the stored version matches.
func (s *SessionStore) Update(ctx context.Context, session *models.OnboardingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.sessions[session.SessionID]
	if !exists {
		return store.ErrSessionNotFound
	}

	if existing.Version != session.Version {
		return store.ErrSessionConflict
	}

	session.Version++
	s.sessions[session.SessionID] = session.Clone()

	return nil
}

// FindByUser returns the newest session for a user in the given status.
func (s *SessionStore) FindByUser(ctx context.Context, userID uuid.UUID, status models.SessionStatus) (*models.OnboardingSession, error) {
	return s.findNewest(func(session *models.OnboardingSession) bool {
		return session.UserID != nil && *session.UserID == userID && session.Status == status
	})
}

// FindByClientToken returns the newest session for a client token in the given status.
func (s *SessionStore) FindByClientToken(ctx context.Context, token string, status models.SessionStatus) (*models.OnboardingSession, error) {
	if token == "" {
		return nil, store.ErrSessionNotFound
	}
	return s.findNewest(func(session *models.OnboardingSession) bool {
		return session.ClientToken == token && session.Status == status
	})
}

// ListByStatus returns sessions in the given status, oldest first.
func (s *SessionStore) ListByStatus(ctx context.Context, status models.SessionStatus, limit int) ([]*models.OnboardingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.OnboardingSession
	for _, session := range s.sessions {
		if session.Status == status {
			result = append(result, session.Clone())
		}
	}

	slices.SortFunc(result, func(a, b *models.OnboardingSession) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

func (s *SessionStore) findNewest(match func(*models.OnboardingSession) bool) (*models.OnboardingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var newest *models.OnboardingSession
	for _, session := range s.sessions {
		if !match(session) {
			continue
		}
		if newest == nil || session.CreatedAt.After(newest.CreatedAt) {
			newest = session
		}
	}

	if newest == nil {
		return nil, store.ErrSessionNotFound
	}

	return newest.Clone(), nil
}
