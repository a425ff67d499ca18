package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/tsrunner/internal/models"
)

// SessionStore holds at most one refresh session per (user, device).
//
// Implementations must make Upsert and Rotate atomic per key so concurrent
// logins and refreshes from different devices of the same user never
// overwrite each other.
type SessionStore interface {
	// Upsert creates the session for (UserID, DeviceKey) or replaces the
	// refresh token hash of the existing one.
	Upsert(ctx context.Context, session *models.Session) error

	// Lookup finds the session holding refreshHash on the given device.
	// Returns ErrSessionNotFound if no session matches.
	Lookup(ctx context.Context, refreshHash, deviceKey string) (*models.Session, error)

	// Rotate swaps the refresh token hash from oldHash to newHash.
	// Returns ErrSessionNotFound if the stored hash is no longer oldHash.
	Rotate(ctx context.Context, userID uuid.UUID, deviceKey, oldHash, newHash string) error

	// Delete removes the session for (userID, deviceKey). Deleting a missing
	// session is not an error.
	Delete(ctx context.Context, userID uuid.UUID, deviceKey string) error

	// ListByUser returns all sessions for a user, most recently updated first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Session, error)
}
