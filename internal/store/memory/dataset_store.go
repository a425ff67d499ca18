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

// DatasetStore implements store.DatasetStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type DatasetStore struct {
	mu sync.RWMutex

	datasets map[uuid.UUID]*models.Dataset
}

// NewDatasetStore creates a new in-memory dataset store.
func NewDatasetStore() *DatasetStore {
	return &DatasetStore{
		datasets: make(map[uuid.UUID]*models.Dataset),
	}
}

// Create registers a dataset.
func (s *DatasetStore) Create(ctx context.Context, dataset *models.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := cloneDataset(dataset)
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}
	s.datasets[clone.DatasetID] = clone

	return nil
}

// Get retrieves a dataset owned by userID.
func (s *DatasetStore) Get(ctx context.Context, userID, datasetID uuid.UUID) (*models.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dataset, exists := s.datasets[datasetID]
	if !exists || dataset.UserID != userID {
		return nil, store.ErrDatasetNotFound
	}

	return cloneDataset(dataset), nil
}

// ListByUser returns the datasets owned by userID, newest first.
func (s *DatasetStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var datasets []*models.Dataset
	for _, dataset := range s.datasets {
		if dataset.UserID == userID {
			datasets = append(datasets, cloneDataset(dataset))
		}
	}

	sort.Slice(datasets, func(i, j int) bool {
		return datasets[i].CreatedAt.After(datasets[j].CreatedAt)
	})

	return datasets, nil
}

func cloneDataset(d *models.Dataset) *models.Dataset {
	clone := *d
	clone.Columns = append([]string(nil), d.Columns...)
	return &clone
}
