package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wolfeidau/tsrunner/internal/models"
	"github.com/wolfeidau/tsrunner/internal/store"
)

const datasetColumns = `dataset_id, user_id, file_name, file_path, columns, created_at`

// DatasetStore implements store.DatasetStore using PostgreSQL.
type DatasetStore struct {
	pool *pgxpool.Pool
}

// NewDatasetStore creates a new PostgreSQL-backed dataset store.
func NewDatasetStore(pool *pgxpool.Pool) *DatasetStore {
	return &DatasetStore{pool: pool}
}

// Create registers a dataset.
func (s *DatasetStore) Create(ctx context.Context, dataset *models.Dataset) error {
	if dataset.CreatedAt.IsZero() {
		dataset.CreatedAt = time.Now().UTC()
	}

	columns := dataset.Columns
	if columns == nil {
		columns = []string{}
	}

	query := `
		INSERT INTO datasets (` + datasetColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		dataset.DatasetID,
		dataset.UserID,
		dataset.FileName,
		dataset.FilePath,
		columns,
		dataset.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create dataset: %w", mapPostgresError(err))
	}

	return nil
}

// Get retrieves a dataset owned by userID.
func (s *DatasetStore) Get(ctx context.Context, userID, datasetID uuid.UUID) (*models.Dataset, error) {
	query := `
		SELECT ` + datasetColumns + `
		FROM datasets
		WHERE dataset_id = $1 AND user_id = $2
	`

	dataset, err := scanDataset(s.pool.QueryRow(ctx, query, datasetID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrDatasetNotFound
		}
		return nil, fmt.Errorf("failed to get dataset: %w", mapPostgresError(err))
	}

	return dataset, nil
}

// ListByUser returns the datasets owned by userID, newest first.
func (s *DatasetStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Dataset, error) {
	query := `
		SELECT ` + datasetColumns + `
		FROM datasets
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var datasets []*models.Dataset
	for rows.Next() {
		dataset, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dataset: %w", err)
		}
		datasets = append(datasets, dataset)
	}

	return datasets, rows.Err()
}

func scanDataset(row pgx.Row) (*models.Dataset, error) {
	var dataset models.Dataset
	err := row.Scan(
		&dataset.DatasetID,
		&dataset.UserID,
		&dataset.FileName,
		&dataset.FilePath,
		&dataset.Columns,
		&dataset.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &dataset, nil
}
