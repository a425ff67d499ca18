package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tsrunner/internal/models"
	"github.com/wolfeidau/tsrunner/internal/store"
)

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	userID := uuid.Must(uuid.NewV7())

	t.Run("upsert keeps one session per device", func(t *testing.T) {
		st := NewSessionStore()

		for _, hash := range []string{"hash-1", "hash-2", "hash-3"} {
			err := st.Upsert(ctx, &models.Session{
				UserID:           userID,
				DeviceKey:        "device-a",
				RefreshTokenHash: hash,
			})
			require.NoError(t, err)
		}

		sessions, err := st.ListByUser(ctx, userID)
		require.NoError(t, err)
		require.Len(t, sessions, 1)
		require.Equal(t, "hash-3", sessions[0].RefreshTokenHash)
	})

	t.Run("devices are independent", func(t *testing.T) {
		st := NewSessionStore()

		require.NoError(t, st.Upsert(ctx, &models.Session{UserID: userID, DeviceKey: "device-a", RefreshTokenHash: "a"}))
		require.NoError(t, st.Upsert(ctx, &models.Session{UserID: userID, DeviceKey: "device-b", RefreshTokenHash: "b"}))

		sessions, err := st.ListByUser(ctx, userID)
		require.NoError(t, err)
		require.Len(t, sessions, 2)

		require.NoError(t, st.Delete(ctx, userID, "device-a"))

		_, err = st.Lookup(ctx, "a", "device-a")
		require.ErrorIs(t, err, store.ErrSessionNotFound)

		session, err := st.Lookup(ctx, "b", "device-b")
		require.NoError(t, err)
		require.Equal(t, userID, session.UserID)
	})

	t.Run("lookup requires matching device", func(t *testing.T) {
		st := NewSessionStore()
		require.NoError(t, st.Upsert(ctx, &models.Session{UserID: userID, DeviceKey: "device-a", RefreshTokenHash: "a"}))

		_, err := st.Lookup(ctx, "a", "device-b")
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("rotate is compare and swap", func(t *testing.T) {
		st := NewSessionStore()
		require.NoError(t, st.Upsert(ctx, &models.Session{UserID: userID, DeviceKey: "device-a", RefreshTokenHash: "old"}))

		require.NoError(t, st.Rotate(ctx, userID, "device-a", "old", "new"))
		require.ErrorIs(t, st.Rotate(ctx, userID, "device-a", "old", "newer"), store.ErrSessionNotFound)

		_, err := st.Lookup(ctx, "old", "device-a")
		require.ErrorIs(t, err, store.ErrSessionNotFound)

		session, err := st.Lookup(ctx, "new", "device-a")
		require.NoError(t, err)
		require.Equal(t, "new", session.RefreshTokenHash)
	})

	t.Run("concurrent rotate lets exactly one win", func(t *testing.T) {
		st := NewSessionStore()
		require.NoError(t, st.Upsert(ctx, &models.Session{UserID: userID, DeviceKey: "device-a", RefreshTokenHash: "old"}))

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := st.Rotate(ctx, userID, "device-a", "old", uuid.NewString()); err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		require.Equal(t, 1, wins)
	})

	t.Run("delete missing session is not an error", func(t *testing.T) {
		st := NewSessionStore()
		require.NoError(t, st.Delete(ctx, userID, "nope"))
	})
}
