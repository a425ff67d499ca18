package server

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/tsrunner/internal/apierr"
	"github.com/wolfeidau/tsrunner/internal/engine"
	"github.com/wolfeidau/tsrunner/internal/models"
	"github.com/wolfeidau/tsrunner/internal/pipeline"
)

// Frame is one message of a job stream, and the body of a single response
// job submission.
type Frame struct {
	Status   string          `json:"status"`
	Progress *pipeline.Stage `json:"progress"`
	Detail   []apierr.Detail `json:"detail,omitempty"`
	Message  string          `json:"message,omitempty"`
	Data     *ResultData     `json:"data,omitempty"`
}

// ResultData carries the metrics and series of a result.
type ResultData struct {
	ID           uuid.UUID          `json:"id"`
	TrainMetrics map[string]float64 `json:"train_metrics,omitempty"`
	TestMetrics  map[string]float64 `json:"test_metrics,omitempty"`
	TrainTS      *models.Timeseries `json:"train_ts,omitempty"`
	TestTS       *models.Timeseries `json:"test_ts,omitempty"`
	ExogTS       *models.Timeseries `json:"exog_ts,omitempty"`
	TestPred     *models.Timeseries `json:"test_pred,omitempty"`
	TestLabels   *models.Timeseries `json:"test_labels,omitempty"`
}

// ResultSummary is a history list entry.
type ResultSummary struct {
	ID           uuid.UUID          `json:"id"`
	Status       string             `json:"status"`
	Message      string             `json:"message,omitempty"`
	Algorithm    string             `json:"algorithm"`
	TrainMetrics map[string]float64 `json:"train_metrics,omitempty"`
	TestMetrics  map[string]float64 `json:"test_metrics,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

// ResultDetail is a single history entry with its series.
type ResultDetail struct {
	ID        uuid.UUID       `json:"id"`
	Status    string          `json:"status"`
	Message   string          `json:"message,omitempty"`
	Algorithm string          `json:"algorithm"`
	Params    json.RawMessage `json:"params"`
	CreatedAt time.Time       `json:"created_at"`
	*ResultData
}

// ListBody wraps list responses.
type ListBody[T any] struct {
	Data []T `json:"data"`
}

// AlgorithmView describes a registered algorithm and its parameter types.
type AlgorithmView struct {
	Name   string                      `json:"name"`
	Params map[string]engine.ParamType `json:"params"`
}

// AlgorithmsBody is the algorithm catalogue of a pipeline.
type AlgorithmsBody struct {
	Data             []AlgorithmView `json:"data"`
	ThresholdClasses []AlgorithmView `json:"threshold_classes,omitempty"`
}

func newResultData(r *models.Result) *ResultData {
	return &ResultData{
		ID:           r.ResultID,
		TrainMetrics: r.TrainMetrics,
		TestMetrics:  r.TestMetrics,
		TrainTS:      r.Series[models.SeriesTrain],
		TestTS:       r.Series[models.SeriesTest],
		ExogTS:       r.Series[models.SeriesExog],
		TestPred:     r.Series[models.SeriesTestPred],
		TestLabels:   r.Series[models.SeriesTestLabels],
	}
}

func newResultSummary(r *models.Result) ResultSummary {
	return ResultSummary{
		ID:           r.ResultID,
		Status:       r.Status,
		Message:      r.Message,
		Algorithm:    r.Algorithm,
		TrainMetrics: r.TrainMetrics,
		TestMetrics:  r.TestMetrics,
		CreatedAt:    r.CreatedAt,
	}
}

func newResultDetail(r *models.Result) *ResultDetail {
	return &ResultDetail{
		ID:         r.ResultID,
		Status:     r.Status,
		Message:    r.Message,
		Algorithm:  r.Algorithm,
		Params:     r.Params,
		CreatedAt:  r.CreatedAt,
		ResultData: newResultData(r),
	}
}

func progressFrame(stage pipeline.Stage) *Frame {
	return &Frame{Status: models.StatusInProcess, Progress: &stage}
}

// resultFrame reports a finished run at the final stage of its pipeline.
func resultFrame(kind pipeline.Kind, r *models.Result) *Frame {
	stages := pipeline.Stages(kind)
	return &Frame{
		Status:   r.Status,
		Progress: &stages[len(stages)-1],
		Message:  r.Message,
		Data:     newResultData(r),
	}
}

// errorFrame reports err at the last stage reached, nil when none was.
// Service and unexpected errors also carry their text as the frame message.
func errorFrame(last *pipeline.Stage, err error) *Frame {
	e := apierr.From(err)
	f := &Frame{
		Status:   models.StatusError,
		Progress: last,
		Detail:   e.DetailList(),
	}
	if e.Kind != apierr.KindValidation {
		f.Message = e.Message
	}
	return f
}

func algorithmViews(names []string, lookup func(string) (engine.Algorithm, bool)) []AlgorithmView {
	out := make([]AlgorithmView, 0, len(names))
	for _, name := range names {
		alg, ok := lookup(name)
		if !ok {
			continue
		}
		out = append(out, AlgorithmView{Name: alg.Name, Params: alg.Params})
	}
	return out
}
