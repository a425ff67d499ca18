package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tsrunner/internal/models"
	"github.com/wolfeidau/tsrunner/internal/store"
)

func TestResultStore(t *testing.T) {
	ctx := context.Background()
	alice := uuid.Must(uuid.NewV7())
	bob := uuid.Must(uuid.NewV7())

	t.Run("create is append only", func(t *testing.T) {
		st := NewResultStore()
		result := models.NewResult(alice, "forecast", nil)

		require.NoError(t, st.Create(ctx, result))
		require.ErrorIs(t, st.Create(ctx, result), store.ErrResultExists)
		require.Equal(t, 1, st.Count(alice))
	})

	t.Run("get checks ownership", func(t *testing.T) {
		st := NewResultStore()
		result := models.NewResult(alice, "anomaly", nil)
		require.NoError(t, st.Create(ctx, result))

		got, err := st.Get(ctx, alice, result.ResultID)
		require.NoError(t, err)
		require.Equal(t, result.ResultID, got.ResultID)

		_, err = st.Get(ctx, bob, result.ResultID)
		require.ErrorIs(t, err, store.ErrResultNotFound)

		_, err = st.Get(ctx, alice, uuid.Must(uuid.NewV7()))
		require.ErrorIs(t, err, store.ErrResultNotFound)
	})

	t.Run("list filters by pipeline newest first", func(t *testing.T) {
		st := NewResultStore()
		first := models.NewResult(alice, "forecast", nil)
		second := models.NewResult(alice, "forecast", nil)
		other := models.NewResult(alice, "anomaly", nil)
		for _, r := range []*models.Result{first, second, other, models.NewResult(bob, "forecast", nil)} {
			require.NoError(t, st.Create(ctx, r))
		}

		results, err := st.ListByUser(ctx, alice, "forecast")
		require.NoError(t, err)
		require.Len(t, results, 2)
		require.Equal(t, second.ResultID, results[0].ResultID)
		require.Equal(t, first.ResultID, results[1].ResultID)
	})

	t.Run("stored copy is isolated from caller", func(t *testing.T) {
		st := NewResultStore()
		result := models.NewResult(alice, "forecast", nil)
		result.TrainMetrics = map[string]float64{"RMSE": 1}
		require.NoError(t, st.Create(ctx, result))

		result.TrainMetrics["RMSE"] = 99

		got, err := st.Get(ctx, alice, result.ResultID)
		require.NoError(t, err)
		require.InDelta(t, 1, got.TrainMetrics["RMSE"], 0)
	})
}
