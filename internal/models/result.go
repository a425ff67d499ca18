package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Result statuses. in_process only ever appears on the wire, a persisted
// result is always terminal.
const (
	StatusInProcess = "in_process"
	StatusSuccess   = "success"
	StatusError     = "error"
)

// Series names attached to a result.
const (
	SeriesTrain      = "train_ts"
	SeriesTest       = "test_ts"
	SeriesExog       = "exog_ts"
	SeriesTestPred   = "test_pred"
	SeriesTestLabels = "test_labels"
)

// Result is the terminal outcome of one pipeline run. It is written exactly
// once and never updated.
type Result struct {
	ResultID uuid.UUID // UUIDv7
	UserID   uuid.UUID
	Pipeline string // "forecast" or "anomaly"

	Params  json.RawMessage // input payload as submitted
	Status  string
	Message string

	Algorithm    string
	ModelKey     string // model store key, empty if the model was never saved
	TrainMetrics map[string]float64
	TestMetrics  map[string]float64
	Series       map[string]*Timeseries

	CreatedAt time.Time
}

// NewResult starts a result for a run. Status defaults to error so a result
// persisted from a failed branch never claims success.
func NewResult(userID uuid.UUID, pipeline string, params json.RawMessage) *Result {
	return &Result{
		ResultID: uuid.Must(uuid.NewV7()),
		UserID:   userID,
		Pipeline: pipeline,
		Params:   params,
		Status:   StatusError,
		Series:   map[string]*Timeseries{},
	}
}

// Clone returns a deep copy of the result.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	c := *r
	c.Params = append(json.RawMessage(nil), r.Params...)
	c.TrainMetrics = cloneMetrics(r.TrainMetrics)
	c.TestMetrics = cloneMetrics(r.TestMetrics)
	if r.Series != nil {
		c.Series = make(map[string]*Timeseries, len(r.Series))
		for k, v := range r.Series {
			c.Series[k] = v.Clone()
		}
	}
	return &c
}

func cloneMetrics(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
