package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tsrunner/internal/models"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	forecastPath = "/v1/forecast"
	anomalyPath  = "/v1/anomaly"

	maxErrorBody = 4 << 10
)

// RemoteConfig configures the remote analytics service client.
type RemoteConfig struct {
	BaseURL    string
	Timeout    time.Duration // per attempt
	MaxElapsed time.Duration // across retries
}

// Remote calls an external analytics service over JSON/HTTP. Transport
// errors and 5xx responses are retried with exponential backoff, 4xx
// responses are not.
type Remote struct {
	baseURL    string
	client     *http.Client
	maxElapsed time.Duration

	initialInterval time.Duration // overrides the backoff default when set
}

// NewRemote creates a remote engine client.
func NewRemote(cfg RemoteConfig) *Remote {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.MaxElapsed == 0 {
		cfg.MaxElapsed = 2 * time.Minute
	}
	return &Remote{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		maxElapsed: cfg.MaxElapsed,
	}
}

type remoteForecastRequest struct {
	Algorithm   string             `json:"algorithm"`
	Params      map[string]any     `json:"params"`
	Train       *models.Timeseries `json:"train"`
	Test        *models.Timeseries `json:"test"`
	TargetCol   string             `json:"target_col"`
	FeatureCols []string           `json:"feature_cols,omitempty"`
	ExogCols    []string           `json:"exog_cols,omitempty"`
}

type remoteForecastResponse struct {
	Model        *Model             `json:"model"`
	TrainMetrics map[string]float64 `json:"train_metrics"`
	TestMetrics  map[string]float64 `json:"test_metrics"`
	TrainTS      *models.Timeseries `json:"train_ts"`
	TestTS       *models.Timeseries `json:"test_ts"`
	ExogTS       *models.Timeseries `json:"exog_ts"`
	TestPred     *models.Timeseries `json:"test_pred"`
}

type remoteAnomalyRequest struct {
	Algorithm   string             `json:"algorithm"`
	Params      map[string]any     `json:"params"`
	Train       *models.Timeseries `json:"train"`
	Test        *models.Timeseries `json:"test"`
	Columns     []string           `json:"columns"`
	LabelColumn string             `json:"label_column,omitempty"`
	Threshold   *Threshold         `json:"threshold,omitempty"`
}

type remoteAnomalyResponse struct {
	Model        *Model             `json:"model"`
	TrainMetrics map[string]float64 `json:"train_metrics"`
	TestMetrics  map[string]float64 `json:"test_metrics"`
	TestTS       *models.Timeseries `json:"test_ts"`
	TestPred     *models.Timeseries `json:"test_pred"`
	TestLabels   *models.Timeseries `json:"test_labels"`
}

// Forecast runs a forecast on the remote service. The service does not stream
// sub-progress, so the training stages are reported around the call.
func (r *Remote) Forecast(ctx context.Context, req *ForecastRequest, progress Progress) (*ForecastOutput, error) {
	report(progress, StageModelInitialized)
	report(progress, StageTrainingStarted)

	var resp remoteForecastResponse
	err := r.post(ctx, forecastPath, &remoteForecastRequest{
		Algorithm:   req.Algorithm,
		Params:      req.Params,
		Train:       req.Train.Timeseries(),
		Test:        req.Test.Timeseries(),
		TargetCol:   req.TargetCol,
		FeatureCols: req.FeatureCols,
		ExogCols:    req.ExogCols,
	}, &resp)
	if err != nil {
		return nil, err
	}

	report(progress, StageTrainingCompleted)
	report(progress, StageTrainMetricsComputed)
	report(progress, StageTestMetricsComputed)

	return &ForecastOutput{
		Model:        resp.Model,
		TrainMetrics: resp.TrainMetrics,
		TestMetrics:  resp.TestMetrics,
		TrainTS:      resp.TrainTS,
		TestTS:       resp.TestTS,
		ExogTS:       resp.ExogTS,
		TestPred:     resp.TestPred,
	}, nil
}

// DetectAnomalies runs anomaly detection on the remote service.
func (r *Remote) DetectAnomalies(ctx context.Context, req *AnomalyRequest, progress Progress) (*AnomalyOutput, error) {
	report(progress, StageDetectorTrainingStarted)

	var resp remoteAnomalyResponse
	err := r.post(ctx, anomalyPath, &remoteAnomalyRequest{
		Algorithm:   req.Algorithm,
		Params:      req.Params,
		Train:       req.Train.Timeseries(),
		Test:        req.Test.Timeseries(),
		Columns:     req.Columns,
		LabelColumn: req.LabelColumn,
		Threshold:   req.Threshold,
	}, &resp)
	if err != nil {
		return nil, err
	}

	report(progress, StageTrainingCompleted)
	report(progress, StageTrainMetricsComputed)
	report(progress, StageTestPredicted)

	return &AnomalyOutput{
		Model:        resp.Model,
		TrainMetrics: resp.TrainMetrics,
		TestMetrics:  resp.TestMetrics,
		TestTS:       resp.TestTS,
		TestPred:     resp.TestPred,
		TestLabels:   resp.TestLabels,
	}, nil
}

func (r *Remote) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode engine request: %w", err)
	}

	attempt := 0
	operation := func() (struct{}, error) {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.client.Do(req)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Int("attempt", attempt).Msg("Engine request failed, will retry")
			return struct{}{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusBadRequest {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			err := fmt.Errorf("engine returned %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
			if resp.StatusCode < http.StatusInternalServerError {
				return struct{}{}, backoff.Permanent(err)
			}
			log.Warn().Err(err).Str("path", path).Int("attempt", attempt).Msg("Engine error response, will retry")
			return struct{}{}, err
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("failed to decode engine response: %w", err))
		}
		return struct{}{}, nil
	}

	expBackoff := backoff.NewExponentialBackOff()
	if r.initialInterval > 0 {
		expBackoff.InitialInterval = r.initialInterval
	}

	_, err = backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxElapsedTime(r.maxElapsed),
	)
	if err != nil {
		return fmt.Errorf("engine call %s failed after %d attempts: %w", path, attempt, err)
	}
	return nil
}
