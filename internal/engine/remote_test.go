package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestRemote(url string) *Remote {
	r := NewRemote(RemoteConfig{BaseURL: url + "/", Timeout: 5 * time.Second, MaxElapsed: 5 * time.Second})
	r.initialInterval = time.Millisecond
	return r
}

func TestRemoteForecast(t *testing.T) {
	frame := testFrame(t, map[string][]float64{"y": linear(30, 0, 1)})
	train, test := frame.Split(80)

	t.Run("retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, forecastPath, r.URL.Path)
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}

			var req remoteForecastRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, "Prophet", req.Algorithm)
			require.Equal(t, 24, req.Train.Len())

			_ = json.NewEncoder(w).Encode(remoteForecastResponse{
				Model:       &Model{Algorithm: "Prophet", State: json.RawMessage(`{"k":1}`)},
				TestMetrics: map[string]float64{"RMSE": 0.5},
				TestPred:    req.Test,
			})
		}))
		defer srv.Close()

		progress, stages := recordStages()
		out, err := newTestRemote(srv.URL).Forecast(context.Background(), &ForecastRequest{
			Algorithm: "Prophet",
			Train:     train,
			Test:      test,
			TargetCol: "y",
		}, progress)
		require.NoError(t, err)
		require.Equal(t, int32(2), calls.Load())
		require.Equal(t, 0.5, out.TestMetrics["RMSE"])
		require.Equal(t, 6, out.TestPred.Len())
		require.Equal(t, StageTestMetricsComputed, (*stages)[len(*stages)-1])
	})

	t.Run("client errors are permanent", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "unknown algorithm", http.StatusBadRequest)
		}))
		defer srv.Close()

		_, err := newTestRemote(srv.URL).Forecast(context.Background(), &ForecastRequest{
			Algorithm: "Prophet",
			Train:     train,
			Test:      test,
			TargetCol: "y",
		}, nil)
		require.ErrorContains(t, err, "unknown algorithm")
		require.Equal(t, int32(1), calls.Load())
	})
}

func TestRemoteDetectAnomalies(t *testing.T) {
	values, labels := spiky(40, 30)
	frame := testFrame(t, map[string][]float64{"v": values, "label": labels})
	train, test := frame.Split(50)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, anomalyPath, r.URL.Path)

		var req remoteAnomalyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []string{"v"}, req.Columns)
		require.Equal(t, "AggregateAlarms", req.Threshold.Class)

		_ = json.NewEncoder(w).Encode(remoteAnomalyResponse{
			Model:       &Model{Algorithm: req.Algorithm},
			TestMetrics: map[string]float64{"F1": 1},
			TestTS:      req.Test,
		})
	}))
	defer srv.Close()

	out, err := newTestRemote(srv.URL).DetectAnomalies(context.Background(), &AnomalyRequest{
		Algorithm:   "IsolationForest",
		Train:       train,
		Test:        test,
		Columns:     []string{"v"},
		LabelColumn: "label",
		Threshold:   &Threshold{Class: "AggregateAlarms"},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 1.0, out.TestMetrics["F1"])
	require.Equal(t, "IsolationForest", out.Model.Algorithm)
}

type stubEngine struct {
	forecasts int
	anomalies int
}

func (s *stubEngine) Forecast(context.Context, *ForecastRequest, Progress) (*ForecastOutput, error) {
	s.forecasts++
	return &ForecastOutput{}, nil
}

func (s *stubEngine) DetectAnomalies(context.Context, *AnomalyRequest, Progress) (*AnomalyOutput, error) {
	s.anomalies++
	return &AnomalyOutput{}, nil
}

func TestRouter(t *testing.T) {
	frame := testFrame(t, map[string][]float64{"y": linear(30, 0, 1)})
	train, test := frame.Split(80)

	t.Run("builtin algorithms stay local", func(t *testing.T) {
		remote := &stubEngine{}
		router := NewRouter(NewBuiltin(), remote)
		out, err := router.Forecast(context.Background(), &ForecastRequest{Algorithm: "ETS", Train: train, Test: test, TargetCol: "y"}, nil)
		require.NoError(t, err)
		require.NotNil(t, out.Model)
		require.Zero(t, remote.forecasts)
	})

	t.Run("other algorithms go remote", func(t *testing.T) {
		remote := &stubEngine{}
		router := NewRouter(NewBuiltin(), remote)
		_, err := router.Forecast(context.Background(), &ForecastRequest{Algorithm: "Sarima"}, nil)
		require.NoError(t, err)
		_, err = router.DetectAnomalies(context.Background(), &AnomalyRequest{Algorithm: "RandomCutForest"}, nil)
		require.NoError(t, err)
		require.Equal(t, 1, remote.forecasts)
		require.Equal(t, 1, remote.anomalies)
	})

	t.Run("no remote configured", func(t *testing.T) {
		router := NewRouter(NewBuiltin(), nil)
		_, err := router.Forecast(context.Background(), &ForecastRequest{Algorithm: "Sarima"}, nil)
		require.ErrorIs(t, err, ErrUnsupportedAlgorithm)
	})
}
