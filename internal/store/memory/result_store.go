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

// ResultStore implements store.ResultStore using in-memory storage.
// This implementation is for testing only - data is lost on restart.
type ResultStore struct {
	mu sync.RWMutex

	results map[uuid.UUID]*models.Result
	byUser  map[uuid.UUID][]uuid.UUID // user_id -> []result_id, insertion order
}

// NewResultStore creates a new in-memory result store.
func NewResultStore() *ResultStore {
	return &ResultStore{
		results: make(map[uuid.UUID]*models.Result),
		byUser:  make(map[uuid.UUID][]uuid.UUID),
	}
}

// Create persists a result. Results are never overwritten.
func (s *ResultStore) Create(ctx context.Context, result *models.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.results[result.ResultID]; exists {
		return store.ErrResultExists
	}

	clone := result.Clone()
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now().UTC()
	}

	s.results[clone.ResultID] = clone
	s.byUser[clone.UserID] = append(s.byUser[clone.UserID], clone.ResultID)

	return nil
}

// Get retrieves a result owned by userID.
func (s *ResultStore) Get(ctx context.Context, userID, resultID uuid.UUID) (*models.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result, exists := s.results[resultID]
	if !exists || result.UserID != userID {
		return nil, store.ErrResultNotFound
	}

	return result.Clone(), nil
}

// ListByUser returns results of one pipeline for userID, newest first.
func (s *ResultStore) ListByUser(ctx context.Context, userID uuid.UUID, pipeline string) ([]*models.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*models.Result
	for _, id := range s.byUser[userID] {
		result := s.results[id]
		if result.Pipeline != pipeline {
			continue
		}
		results = append(results, result.Clone())
	}

	// UUIDv7 ids sort by creation time
	sort.Slice(results, func(i, j int) bool {
		return results[i].ResultID.String() > results[j].ResultID.String()
	})

	return results, nil
}

// Count returns the number of stored results for a user across pipelines.
func (s *ResultStore) Count(userID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byUser[userID])
}
