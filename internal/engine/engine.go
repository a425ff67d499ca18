// Package engine runs the analytical part of a job: train a model on one
// frame, evaluate it on another, and return metrics and series.
package engine

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/wolfeidau/tsrunner/internal/dataset"
	"github.com/wolfeidau/tsrunner/internal/models"
)

// ErrUnsupportedAlgorithm is returned by an engine that cannot run the requested algorithm.
var ErrUnsupportedAlgorithm = errors.New("algorithm not supported by engine")

// Sub-progress stage names reported through Progress. The job runner maps
// them onto its stage tables and drops names it does not know.
const (
	StageModelInitialized        = "model_initialized"
	StageTrainingStarted         = "training_started"
	StageDetectorTrainingStarted = "detector_training_started"
	StageTrainingCompleted       = "training_completed"
	StageTrainMetricsComputed    = "train_metrics_computed"
	StageTestMetricsComputed     = "test_metrics_computed"
	StageTestPredicted           = "test_predicted"
)

// Progress receives sub-progress from an engine. It must not block.
type Progress func(stage string)

// Model is a trained model in serializable form.
type Model struct {
	Algorithm string          `json:"algorithm"`
	State     json.RawMessage `json:"state"`
}

// Threshold selects the alarm post-processing for anomaly scores.
type Threshold struct {
	Class  string         `json:"class"`
	Params map[string]any `json:"params,omitempty"`
}

// ForecastRequest is the input of a forecast run.
type ForecastRequest struct {
	Algorithm   string
	Params      map[string]any
	Train       *dataset.Frame
	Test        *dataset.Frame
	TargetCol   string
	FeatureCols []string
	ExogCols    []string
}

// ForecastOutput is the outcome of a forecast run.
type ForecastOutput struct {
	Model        *Model
	TrainMetrics map[string]float64
	TestMetrics  map[string]float64
	TrainTS      *models.Timeseries
	TestTS       *models.Timeseries
	ExogTS       *models.Timeseries
	TestPred     *models.Timeseries
}

// AnomalyRequest is the input of an anomaly detection run.
type AnomalyRequest struct {
	Algorithm   string
	Params      map[string]any
	Train       *dataset.Frame
	Test        *dataset.Frame
	Columns     []string
	LabelColumn string
	Threshold   *Threshold
}

// AnomalyOutput is the outcome of an anomaly detection run.
type AnomalyOutput struct {
	Model        *Model
	TrainMetrics map[string]float64
	TestMetrics  map[string]float64
	TestTS       *models.Timeseries
	TestPred     *models.Timeseries
	TestLabels   *models.Timeseries
}

// Engine trains and evaluates models. Implementations must honour ctx on a
// best-effort basis.
type Engine interface {
	Forecast(ctx context.Context, req *ForecastRequest, progress Progress) (*ForecastOutput, error)
	DetectAnomalies(ctx context.Context, req *AnomalyRequest, progress Progress) (*AnomalyOutput, error)
}

func report(progress Progress, stage string) {
	if progress != nil {
		progress(stage)
	}
}
