package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/tsrunner/internal/models"
)

// ResultStore persists terminal job outcomes. Results are append only.
type ResultStore interface {
	// Create persists a result.
	// Returns ErrResultExists if a result with the same ID was already written.
	Create(ctx context.Context, result *models.Result) error

	// Get retrieves a result owned by userID.
	// Returns ErrResultNotFound if it doesn't exist or belongs to someone else.
	Get(ctx context.Context, userID, resultID uuid.UUID) (*models.Result, error)

	// ListByUser returns the results of one pipeline for a user, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID, pipeline string) ([]*models.Result, error)
}
