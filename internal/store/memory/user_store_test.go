package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tsrunner/internal/models"
	"github.com/wolfeidau/tsrunner/internal/store"
)

func TestUserStore(t *testing.T) {
	ctx := context.Background()
	st := NewUserStore()

	alice := &models.User{UserID: uuid.Must(uuid.NewV7()), Username: "alice", PasswordHash: "hash", IsActive: true}
	require.NoError(t, st.Create(ctx, alice))

	t.Run("get by id and username", func(t *testing.T) {
		got, err := st.Get(ctx, alice.UserID)
		require.NoError(t, err)
		require.Equal(t, "alice", got.Username)
		require.False(t, got.CreatedAt.IsZero())

		got, err = st.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, alice.UserID, got.UserID)
	})

	t.Run("duplicates are rejected", func(t *testing.T) {
		err := st.Create(ctx, &models.User{UserID: alice.UserID, Username: "other"})
		require.ErrorIs(t, err, store.ErrUserAlreadyExists)

		err = st.Create(ctx, &models.User{UserID: uuid.Must(uuid.NewV7()), Username: "alice"})
		require.ErrorIs(t, err, store.ErrUserAlreadyExists)
	})

	t.Run("missing user", func(t *testing.T) {
		_, err := st.Get(ctx, uuid.Must(uuid.NewV7()))
		require.ErrorIs(t, err, store.ErrUserNotFound)

		_, err = st.GetByUsername(ctx, "bob")
		require.ErrorIs(t, err, store.ErrUserNotFound)
	})

	t.Run("returned users are copies", func(t *testing.T) {
		got, err := st.Get(ctx, alice.UserID)
		require.NoError(t, err)
		got.Username = "mallory"

		again, err := st.Get(ctx, alice.UserID)
		require.NoError(t, err)
		require.Equal(t, "alice", again.Username)
	})
}

func TestDatasetStore(t *testing.T) {
	ctx := context.Background()
	st := NewDatasetStore()

	owner := uuid.Must(uuid.NewV7())
	stranger := uuid.Must(uuid.NewV7())

	older := &models.Dataset{
		DatasetID: uuid.Must(uuid.NewV7()),
		UserID:    owner,
		FileName:  "old.csv",
		Columns:   []string{"value"},
		CreatedAt: time.Now().Add(-time.Hour).UTC(),
	}
	newer := &models.Dataset{
		DatasetID: uuid.Must(uuid.NewV7()),
		UserID:    owner,
		FileName:  "new.csv",
		Columns:   []string{"value", "temp"},
	}
	require.NoError(t, st.Create(ctx, older))
	require.NoError(t, st.Create(ctx, newer))

	t.Run("owner only", func(t *testing.T) {
		got, err := st.Get(ctx, owner, newer.DatasetID)
		require.NoError(t, err)
		require.Equal(t, []string{"value", "temp"}, got.Columns)

		_, err = st.Get(ctx, stranger, newer.DatasetID)
		require.ErrorIs(t, err, store.ErrDatasetNotFound)
	})

	t.Run("list newest first", func(t *testing.T) {
		list, err := st.ListByUser(ctx, owner)
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, newer.DatasetID, list[0].DatasetID)

		list, err = st.ListByUser(ctx, stranger)
		require.NoError(t, err)
		require.Empty(t, list)
	})

	t.Run("columns are copied", func(t *testing.T) {
		got, err := st.Get(ctx, owner, older.DatasetID)
		require.NoError(t, err)
		got.Columns[0] = "changed"

		again, err := st.Get(ctx, owner, older.DatasetID)
		require.NoError(t, err)
		require.Equal(t, "value", again.Columns[0])
	})
}
