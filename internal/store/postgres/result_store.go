package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tsrunner/internal/models"
	"github.com/wolfeidau/tsrunner/internal/store"
)

var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var resultColumns = []string{
	"result_id", "user_id", "pipeline", "params", "status", "message",
	"algorithm", "model_key", "train_metrics", "test_metrics", "series", "created_at",
}

// ResultStore implements store.ResultStore over database/sql. The server
// opens it on the shared pgx pool with stdlib.OpenDBFromPool.
type ResultStore struct {
	db *sql.DB
}

// NewResultStore creates a new PostgreSQL-backed result store.
func NewResultStore(db *sql.DB) *ResultStore {
	return &ResultStore{db: db}
}

// Create persists a result. A second write of the same ID maps to store.ErrResultExists.
func (s *ResultStore) Create(ctx context.Context, result *models.Result) error {
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	trainMetrics, err := marshalNullable(result.TrainMetrics)
	if err != nil {
		return fmt.Errorf("failed to marshal train metrics: %w", err)
	}
	testMetrics, err := marshalNullable(result.TestMetrics)
	if err != nil {
		return fmt.Errorf("failed to marshal test metrics: %w", err)
	}
	series, err := marshalNullable(result.Series)
	if err != nil {
		return fmt.Errorf("failed to marshal series: %w", err)
	}

	params := string(result.Params)
	if params == "" {
		params = "{}"
	}

	query, args, err := psq.Insert("results").
		Columns(resultColumns...).
		Values(
			result.ResultID,
			result.UserID,
			result.Pipeline,
			params,
			result.Status,
			result.Message,
			result.Algorithm,
			result.ModelKey,
			trainMetrics,
			testMetrics,
			series,
			result.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create result: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("result_id", result.ResultID.String()).
		Str("pipeline", result.Pipeline).
		Str("status", result.Status).
		Msg("Created result")

	return nil
}

// Get retrieves a result owned by userID.
func (s *ResultStore) Get(ctx context.Context, userID, resultID uuid.UUID) (*models.Result, error) {
	query, args, err := psq.Select(resultColumns...).
		From("results").
		Where(sq.Eq{"result_id": resultID, "user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	result, err := scanResult(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrResultNotFound
		}
		return nil, fmt.Errorf("failed to get result: %w", mapPostgresError(err))
	}

	return result, nil
}

// ListByUser returns the results of one pipeline for a user, newest first.
// Result ids are UUIDv7 so ordering by id follows creation order.
func (s *ResultStore) ListByUser(ctx context.Context, userID uuid.UUID, pipeline string) ([]*models.Result, error) {
	query, args, err := psq.Select(resultColumns...).
		From("results").
		Where(sq.Eq{"user_id": userID, "pipeline": pipeline}).
		OrderBy("result_id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", mapPostgresError(err))
	}
	defer func() { _ = rows.Close() }()

	var results []*models.Result
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate results: %w", err)
	}

	return results, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*models.Result, error) {
	var (
		result                    models.Result
		params                    []byte
		trainMetrics, testMetrics []byte
		series                    []byte
	)

	err := row.Scan(
		&result.ResultID,
		&result.UserID,
		&result.Pipeline,
		&params,
		&result.Status,
		&result.Message,
		&result.Algorithm,
		&result.ModelKey,
		&trainMetrics,
		&testMetrics,
		&series,
		&result.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	result.Params = json.RawMessage(params)

	if err := unmarshalNullable(trainMetrics, &result.TrainMetrics); err != nil {
		return nil, fmt.Errorf("train metrics: %w", err)
	}
	if err := unmarshalNullable(testMetrics, &result.TestMetrics); err != nil {
		return nil, fmt.Errorf("test metrics: %w", err)
	}
	if err := unmarshalNullable(series, &result.Series); err != nil {
		return nil, fmt.Errorf("series: %w", err)
	}
	if result.Series == nil {
		result.Series = map[string]*models.Timeseries{}
	}

	return &result, nil
}

// marshalNullable encodes v as a JSON string, or nil for an empty map so the
// column stores NULL.
func marshalNullable[M ~map[K]V, K comparable, V any](v M) (any, error) {
	if len(v) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalNullable(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
