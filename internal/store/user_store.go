package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/tsrunner/internal/models"
)

// UserStore defines the interface for user account storage.
type UserStore interface {
	// Create stores a new user.
	// Returns ErrUserAlreadyExists if the username is taken.
	Create(ctx context.Context, user *models.User) error

	// Get retrieves a user by ID.
	// Returns ErrUserNotFound if the user doesn't exist.
	Get(ctx context.Context, userID uuid.UUID) (*models.User, error)

	// GetByUsername retrieves a user by username.
	// Returns ErrUserNotFound if the user doesn't exist.
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}
