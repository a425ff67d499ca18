package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/wolfeidau/tsrunner/internal/models"
)

// DatasetStore registers uploaded time series files.
type DatasetStore interface {
	// Create registers a dataset.
	Create(ctx context.Context, dataset *models.Dataset) error

	// Get retrieves a dataset owned by userID.
	// Returns ErrDatasetNotFound if it doesn't exist or belongs to someone else.
	Get(ctx context.Context, userID, datasetID uuid.UUID) (*models.Dataset, error)

	// ListByUser returns all datasets owned by userID, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Dataset, error)
}
