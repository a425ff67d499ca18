package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/tsrunner/internal/apierr"
	"github.com/wolfeidau/tsrunner/internal/models"
)

func collect(events <-chan Event) []Event {
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestStream(t *testing.T) {
	f := newFixture(t)
	fileID := f.addDataset(t, f.user, 50)

	events := collect(f.runner.Stream(context.Background(), f.user, KindForecast, forecastPayload(t, fileID, nil)))
	require.Len(t, events, len(Stages(KindForecast))+1)

	for i, ev := range events[:len(events)-1] {
		require.False(t, ev.Terminal())
		require.Equal(t, Stages(KindForecast)[i], *ev.Stage)
	}

	last := events[len(events)-1]
	require.True(t, last.Terminal())
	require.NoError(t, last.Err)
	require.Equal(t, models.StatusSuccess, last.Result.Status)
}

func TestStreamError(t *testing.T) {
	f := newFixture(t)
	fileID := f.addDataset(t, f.user, 15)

	events := collect(f.runner.Stream(context.Background(), f.user, KindForecast, forecastPayload(t, fileID, nil)))
	require.Len(t, events, 3)
	require.Equal(t, StageStart, events[0].Stage.Name)
	require.Equal(t, StageFileExist, events[1].Stage.Name)

	last := events[2]
	require.True(t, last.Terminal())
	require.Nil(t, last.Result)
	var apiErr *apierr.Error
	require.ErrorAs(t, last.Err, &apiErr)
	require.Equal(t, apierr.KindService, apiErr.Kind)
}

func TestStreamValidationError(t *testing.T) {
	f := newFixture(t)

	events := collect(f.runner.Stream(context.Background(), f.user, KindAnomaly, []byte(`{"columns":[]}`)))
	require.Len(t, events, 1)
	require.True(t, events[0].Terminal())

	var apiErr *apierr.Error
	require.ErrorAs(t, events[0].Err, &apiErr)
	require.Equal(t, apierr.KindValidation, apiErr.Kind)
}

func TestStreamCancelledReaderStillPersists(t *testing.T) {
	f := newFixture(t)
	fileID := f.addDataset(t, f.user, 50)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// delivery stops, the job does not; draining waits for the close
	collect(f.runner.Stream(ctx, f.user, KindForecast, forecastPayload(t, fileID, nil)))

	stored := onlyResult(t, f, KindForecast)
	require.Equal(t, models.StatusSuccess, stored.Status)
}
