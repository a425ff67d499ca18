//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/wolfeidau/tsrunner/internal/models"
	"github.com/wolfeidau/tsrunner/internal/store"
)

func setupPostgres(t *testing.T, ctx context.Context) (*pgxpool.Pool, *sql.DB) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	pool, err := NewPool(ctx, &PoolConfig{
		ConnString: fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	db := stdlib.OpenDBFromPool(pool)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(db))
	// re-running is a no-op
	require.NoError(t, Migrate(db))

	return pool, db
}

func createUser(t *testing.T, ctx context.Context, users *UserStore, username string) *models.User {
	t.Helper()
	user := &models.User{
		UserID:       uuid.Must(uuid.NewV7()),
		Username:     username,
		PasswordHash: "$2a$10$hash",
		IsActive:     true,
	}
	require.NoError(t, users.Create(ctx, user))
	return user
}

func TestPostgresStores(t *testing.T) {
	ctx := context.Background()
	pool, db := setupPostgres(t, ctx)

	users := NewUserStore(pool)
	sessions := NewSessionStore(pool)
	datasets := NewDatasetStore(pool)
	results := NewResultStore(db)

	alice := createUser(t, ctx, users, "alice")

	t.Run("users", func(t *testing.T) {
		got, err := users.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, alice.UserID, got.UserID)

		err = users.Create(ctx, &models.User{UserID: uuid.Must(uuid.NewV7()), Username: "alice", PasswordHash: "x"})
		assert.ErrorIs(t, err, store.ErrUserAlreadyExists)

		_, err = users.Get(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrUserNotFound)
	})

	t.Run("sessions", func(t *testing.T) {
		session := &models.Session{
			UserID:            alice.UserID,
			DeviceKey:         "device-a",
			DeviceFingerprint: "curl/8.0",
			RefreshTokenHash:  "hash-1",
			IPAddress:         "10.0.0.1",
		}
		require.NoError(t, sessions.Upsert(ctx, session))

		got, err := sessions.Lookup(ctx, "hash-1", "device-a")
		require.NoError(t, err)
		assert.Equal(t, "10.0.0.1", got.IPAddress)

		// login again on the same device replaces the hash
		session.RefreshTokenHash = "hash-2"
		session.IPAddress = ""
		require.NoError(t, sessions.Upsert(ctx, session))

		_, err = sessions.Lookup(ctx, "hash-1", "device-a")
		assert.ErrorIs(t, err, store.ErrSessionNotFound)

		require.NoError(t, sessions.Rotate(ctx, alice.UserID, "device-a", "hash-2", "hash-3"))
		err = sessions.Rotate(ctx, alice.UserID, "device-a", "hash-2", "hash-4")
		assert.ErrorIs(t, err, store.ErrSessionNotFound)

		require.NoError(t, sessions.Upsert(ctx, &models.Session{UserID: alice.UserID, DeviceKey: "device-b", RefreshTokenHash: "hash-b"}))
		list, err := sessions.ListByUser(ctx, alice.UserID)
		require.NoError(t, err)
		assert.Len(t, list, 2)

		require.NoError(t, sessions.Delete(ctx, alice.UserID, "device-a"))
		require.NoError(t, sessions.Delete(ctx, alice.UserID, "device-a"))
		list, err = sessions.ListByUser(ctx, alice.UserID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "device-b", list[0].DeviceKey)
	})

	t.Run("datasets", func(t *testing.T) {
		dataset := &models.Dataset{
			DatasetID: uuid.Must(uuid.NewV7()),
			UserID:    alice.UserID,
			FileName:  "sales.csv",
			FilePath:  "/data/sales.csv",
			Columns:   []string{"y", "v"},
		}
		require.NoError(t, datasets.Create(ctx, dataset))

		got, err := datasets.Get(ctx, alice.UserID, dataset.DatasetID)
		require.NoError(t, err)
		assert.Equal(t, []string{"y", "v"}, got.Columns)

		_, err = datasets.Get(ctx, uuid.New(), dataset.DatasetID)
		assert.ErrorIs(t, err, store.ErrDatasetNotFound)

		list, err := datasets.ListByUser(ctx, alice.UserID)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("results", func(t *testing.T) {
		first := models.NewResult(alice.UserID, "forecast", json.RawMessage(`{"algorithm":"naive"}`))
		first.Status = models.StatusSuccess
		first.TestMetrics = map[string]float64{"mae": 0.5}
		require.NoError(t, results.Create(ctx, first))

		second := models.NewResult(alice.UserID, "forecast", nil)
		second.Message = "failed"
		require.NoError(t, results.Create(ctx, second))

		assert.ErrorIs(t, results.Create(ctx, second), store.ErrResultExists)

		other := models.NewResult(alice.UserID, "anomaly", nil)
		require.NoError(t, results.Create(ctx, other))

		list, err := results.ListByUser(ctx, alice.UserID, "forecast")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, second.ResultID, list[0].ResultID)

		got, err := results.Get(ctx, alice.UserID, first.ResultID)
		require.NoError(t, err)
		assert.Equal(t, 0.5, got.TestMetrics["mae"])

		bob := createUser(t, ctx, users, "bob")
		_, err = results.Get(ctx, bob.UserID, first.ResultID)
		assert.ErrorIs(t, err, store.ErrResultNotFound)
	})

	t.Run("migrate down", func(t *testing.T) {
		require.NoError(t, MigrateDown(db))
		require.NoError(t, Migrate(db))
	})
}
