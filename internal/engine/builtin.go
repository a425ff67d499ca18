package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/wolfeidau/tsrunner/internal/dataset"
	"github.com/wolfeidau/tsrunner/internal/models"
)

const (
	defaultAlpha       = 0.5
	defaultAlarmZ      = 3.0
	defaultWindowSize  = 30
	anomalyScoreSeries = "anom_score"
	minWindowForStats  = 2
	zeroStdReplacement = 1.0
	zeroStdTolerance   = 1e-12
)

// Builtin is a pure Go baseline engine. It serves a small subset of the
// registered algorithms; the rest need the remote engine.
//
//	forecast: DefaultForecaster (linear drift), ETS (simple exponential smoothing)
//	anomaly:  DefaultDetector, ZMS (z-score), WindStats (rolling window z-score)
type Builtin struct{}

// NewBuiltin creates the baseline engine.
func NewBuiltin() *Builtin { return &Builtin{} }

// SupportsForecast reports whether algorithm is implemented here.
func (b *Builtin) SupportsForecast(algorithm string) bool {
	switch algorithm {
	case "DefaultForecaster", "ETS":
		return true
	}
	return false
}

// SupportsAnomaly reports whether algorithm is implemented here.
func (b *Builtin) SupportsAnomaly(algorithm string) bool {
	switch algorithm {
	case "DefaultDetector", "ZMS", "WindStats":
		return true
	}
	return false
}

// forecaster is a univariate model fitted on the target column.
type forecaster interface {
	// fit trains on y and returns one step ahead in-sample predictions.
	fit(y []float64) []float64
	// forecast predicts h steps past the end of the training data.
	forecast(h int) []float64
}

type driftModel struct {
	Last  float64 `json:"last"`
	Slope float64 `json:"slope"`
}

func (m *driftModel) fit(y []float64) []float64 {
	pred := make([]float64, len(y))
	if len(y) == 0 {
		return pred
	}
	if len(y) > 1 {
		m.Slope = (y[len(y)-1] - y[0]) / float64(len(y)-1)
	}
	pred[0] = y[0]
	for i := 1; i < len(y); i++ {
		pred[i] = y[i-1] + m.Slope
	}
	m.Last = y[len(y)-1]
	return pred
}

func (m *driftModel) forecast(h int) []float64 {
	out := make([]float64, h)
	for i := range out {
		out[i] = m.Last + m.Slope*float64(i+1)
	}
	return out
}

type sesModel struct {
	Alpha float64 `json:"alpha"`
	Level float64 `json:"level"`
}

func (m *sesModel) fit(y []float64) []float64 {
	pred := make([]float64, len(y))
	if len(y) == 0 {
		return pred
	}
	m.Level = y[0]
	for i, v := range y {
		pred[i] = m.Level
		m.Level = m.Alpha*v + (1-m.Alpha)*m.Level
	}
	return pred
}

func (m *sesModel) forecast(h int) []float64 {
	out := make([]float64, h)
	for i := range out {
		out[i] = m.Level
	}
	return out
}

// Forecast fits the target column of the train frame and forecasts the test frame.
func (b *Builtin) Forecast(ctx context.Context, req *ForecastRequest, progress Progress) (*ForecastOutput, error) {
	if !b.SupportsForecast(req.Algorithm) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, req.Algorithm)
	}
	if err := requireColumns(req.Train, req.Test, append([]string{req.TargetCol}, req.FeatureCols...)...); err != nil {
		return nil, err
	}
	if err := requireColumns(req.Train, req.Test, req.ExogCols...); err != nil {
		return nil, fmt.Errorf("exogenous variable: %w", err)
	}

	var model forecaster
	switch req.Algorithm {
	case "ETS":
		alpha := floatParam(req.Params, "alpha", defaultAlpha)
		if alpha <= 0 || alpha > 1 {
			return nil, fmt.Errorf("alpha must be in (0, 1], got %v", alpha)
		}
		model = &sesModel{Alpha: alpha}
	default:
		model = &driftModel{}
	}
	report(progress, StageModelInitialized)

	report(progress, StageTrainingStarted)
	y := req.Train.Column(req.TargetCol)
	if len(y) == 0 {
		return nil, errors.New("train set is empty")
	}
	trainPred := model.fit(y)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report(progress, StageTrainingCompleted)

	trainMetrics := forecastMetrics(y, trainPred)
	report(progress, StageTrainMetricsComputed)

	test := req.Test
	if steps, ok := intParam(req.Params, "max_forecast_steps"); ok {
		n := min(test.Len(), steps)
		test = test.Slice(0, n)
	}
	if test.Len() == 0 {
		return nil, errors.New("test set is empty")
	}

	actual := test.Column(req.TargetCol)
	testPred := model.forecast(test.Len())
	testMetrics := forecastMetrics(actual, testPred)
	report(progress, StageTestMetricsComputed)

	state, err := json.Marshal(model)
	if err != nil {
		return nil, fmt.Errorf("failed to encode model state: %w", err)
	}

	return &ForecastOutput{
		Model:        &Model{Algorithm: req.Algorithm, State: state},
		TrainMetrics: trainMetrics,
		TestMetrics:  testMetrics,
		TrainTS:      req.Train.Timeseries(append([]string{req.TargetCol}, req.FeatureCols...)...),
		TestTS:       test.Timeseries(req.TargetCol),
		TestPred:     series(test.Index(), req.TargetCol, testPred),
	}, nil
}

// columnStats is the trained state of the z-score detectors.
type columnStats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

type detectorState struct {
	Columns    map[string]columnStats `json:"columns"`
	WindowSize int                    `json:"window_size,omitempty"`
	Threshold  float64                `json:"threshold"`
}

// DetectAnomalies scores the selected columns and raises alarms where the
// score reaches the threshold.
func (b *Builtin) DetectAnomalies(ctx context.Context, req *AnomalyRequest, progress Progress) (*AnomalyOutput, error) {
	if !b.SupportsAnomaly(req.Algorithm) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, req.Algorithm)
	}
	if len(req.Columns) == 0 {
		return nil, errors.New("no columns selected")
	}
	if err := requireColumns(req.Train, req.Test, req.Columns...); err != nil {
		return nil, err
	}
	if req.LabelColumn != "" && !req.Test.Has(req.LabelColumn) {
		return nil, fmt.Errorf("%w: %s", dataset.ErrColumnNotFound, req.LabelColumn)
	}

	state := &detectorState{
		Columns:   make(map[string]columnStats, len(req.Columns)),
		Threshold: defaultAlarmZ,
	}
	if req.Threshold != nil {
		state.Threshold = floatParam(req.Threshold.Params, "alm_threshold", defaultAlarmZ)
	}
	if req.Algorithm == "WindStats" {
		state.WindowSize = defaultWindowSize
		if n, ok := intParam(req.Params, "wind_sz"); ok {
			if n < minWindowForStats {
				return nil, fmt.Errorf("wind_sz must be at least %d, got %d", minWindowForStats, n)
			}
			state.WindowSize = n
		}
	}

	report(progress, StageDetectorTrainingStarted)
	for _, col := range req.Columns {
		mean, std := meanStd(req.Train.Column(col))
		state.Columns[col] = columnStats{Mean: mean, Std: std}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report(progress, StageTrainingCompleted)

	trainScores := state.scores(req.Train, req.Columns, nil)
	trainAlarms := state.alarms(trainScores)
	var trainLabels []float64
	if req.LabelColumn != "" {
		trainLabels = req.Train.Column(req.LabelColumn)
	}
	trainMetrics := alarmMetrics(trainAlarms, trainLabels)
	report(progress, StageTrainMetricsComputed)

	testScores := state.scores(req.Test, req.Columns, req.Train)
	testAlarms := state.alarms(testScores)
	thresholded := make([]float64, len(testScores))
	for i, s := range testScores {
		if testAlarms[i] {
			thresholded[i] = s
		}
	}
	report(progress, StageTestPredicted)

	out := &AnomalyOutput{
		TestTS:   req.Test.Timeseries(req.Columns...),
		TestPred: series(req.Test.Index(), anomalyScoreSeries, thresholded),
	}
	var testLabels []float64
	if req.LabelColumn != "" {
		testLabels = req.Test.Column(req.LabelColumn)
		out.TestLabels = req.Test.Timeseries(req.LabelColumn)
	}
	out.TrainMetrics = trainMetrics
	out.TestMetrics = alarmMetrics(testAlarms, testLabels)

	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode model state: %w", err)
	}
	out.Model = &Model{Algorithm: req.Algorithm, State: raw}

	return out, nil
}

// scores returns the per row anomaly score, the largest absolute z-score
// over the selected columns. With a window size the statistics come from the
// preceding rows, seeded from history when given.
func (s *detectorState) scores(frame *dataset.Frame, columns []string, history *dataset.Frame) []float64 {
	out := make([]float64, frame.Len())
	for _, col := range columns {
		values := frame.Column(col)
		var past []float64
		if history != nil && s.WindowSize > 0 {
			h := history.Column(col)
			past = h[max(0, len(h)-s.WindowSize):]
		}

		for i, v := range values {
			mean, std := s.Columns[col].Mean, s.Columns[col].Std
			if s.WindowSize > 0 {
				window := windowBefore(past, values, i, s.WindowSize)
				if len(window) < minWindowForStats {
					continue
				}
				mean, std = meanStd(window)
			}
			if std < zeroStdTolerance {
				std = zeroStdReplacement
			}
			out[i] = max(out[i], math.Abs(v-mean)/std)
		}
	}
	return out
}

func (s *detectorState) alarms(scores []float64) []bool {
	out := make([]bool, len(scores))
	for i, v := range scores {
		out[i] = v >= s.Threshold
	}
	return out
}

// windowBefore returns up to size values preceding values[i], continuing
// into past when i is near the start.
func windowBefore(past, values []float64, i, size int) []float64 {
	start := i - size
	if start >= 0 {
		return values[start:i]
	}
	need := -start
	window := make([]float64, 0, size)
	window = append(window, past[max(0, len(past)-need):]...)
	return append(window, values[:i]...)
}

func requireColumns(train, test *dataset.Frame, cols ...string) error {
	for _, col := range cols {
		if !train.Has(col) || !test.Has(col) {
			return fmt.Errorf("%w: %s", dataset.ErrColumnNotFound, col)
		}
	}
	return nil
}

func series(index []time.Time, name string, values []float64) *models.Timeseries {
	return &models.Timeseries{
		Data:  map[string][]float64{name: values},
		Index: append([]time.Time(nil), index...),
	}
}

func floatParam(params map[string]any, key string, def float64) float64 {
	if v, ok := params[key].(float64); ok {
		return v
	}
	return def
}

func intParam(params map[string]any, key string) (int, bool) {
	v, ok := params[key].(float64)
	if !ok {
		return 0, false
	}
	return int(v), true
}
