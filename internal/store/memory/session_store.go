package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/tsrunner/internal/models"
	"github.com/wolfeidau/tsrunner/internal/store"
)

type sessionKey struct {
	userID    uuid.UUID
	deviceKey string
}

// SessionStore implements store.SessionStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type SessionStore struct {
	mu sync.RWMutex

	sessions map[sessionKey]*models.Session
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[sessionKey]*models.Session),
	}
}

// Upsert creates or replaces the session for (UserID, DeviceKey).
func (s *SessionStore) Upsert(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey{userID: session.UserID, deviceKey: session.DeviceKey}
	now := time.Now().UTC()

	// Clone to avoid external modifications
	clone := *session
	if existing, ok := s.sessions[key]; ok {
		clone.CreatedAt = existing.CreatedAt
	} else if clone.CreatedAt.IsZero() {
		clone.CreatedAt = now
	}
	clone.UpdatedAt = now

	s.sessions[key] = &clone
	return nil
}

// Lookup finds the session holding refreshHash on deviceKey.
func (s *SessionStore) Lookup(ctx context.Context, refreshHash, deviceKey string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for key, session := range s.sessions {
		if key.deviceKey == deviceKey && session.RefreshTokenHash == refreshHash {
			clone := *session
			return &clone, nil
		}
	}

	return nil, store.ErrSessionNotFound
}

// Rotate swaps the refresh hash if the stored one still equals oldHash.
func (s *SessionStore) Rotate(ctx context.Context, userID uuid.UUID, deviceKey, oldHash, newHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionKey{userID: userID, deviceKey: deviceKey}]
	if !ok || session.RefreshTokenHash != oldHash {
		return store.ErrSessionNotFound
	}

	session.RefreshTokenHash = newHash
	session.UpdatedAt = time.Now().UTC()
	return nil
}

// Delete removes the session for (userID, deviceKey).
func (s *SessionStore) Delete(ctx context.Context, userID uuid.UUID, deviceKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionKey{userID: userID, deviceKey: deviceKey})
	return nil
}

// ListByUser returns the sessions of a user, most recently updated first.
func (s *SessionStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sessions []*models.Session
	for key, session := range s.sessions {
		if key.userID != userID {
			continue
		}
		clone := *session
		sessions = append(sessions, &clone)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})

	return sessions, nil
}
