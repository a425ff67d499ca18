package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/wolfeidau/tsrunner/internal/apierr"
	"github.com/wolfeidau/tsrunner/internal/dataset"
	"github.com/wolfeidau/tsrunner/internal/engine"
	"github.com/wolfeidau/tsrunner/internal/models"
	"github.com/wolfeidau/tsrunner/internal/validate"
)

// File modes.
const (
	FileModeSingle = "single"
	FileModeMulti  = "multi"
)

// ForecastInput is the payload of a forecast job.
type ForecastInput struct {
	FileID          uuid.UUID      `json:"file_id" validate:"required"`
	TargetCol       string         `json:"target_col" validate:"required"`
	Algorithm       string         `json:"algorithm" validate:"required"`
	AlgorithmParams []engine.Param `json:"algorithm_params" validate:"dive"`
	TrainPercentage int            `json:"train_percentage" validate:"gte=10,lte=100"`
	FileMode        string         `json:"file_mode" validate:"omitempty,oneof=single multi"`
	TestFileID      *uuid.UUID     `json:"test_file_id" validate:"required_if=FileMode multi"`
	FeatureCols     []string       `json:"feature_cols" validate:"dive,required"`
	ExogCols        []string       `json:"exog_cols" validate:"dive,required"`
}

// AnomalyInput is the payload of an anomaly detection job.
type AnomalyInput struct {
	FileID          uuid.UUID      `json:"file_id" validate:"required"`
	Columns         []string       `json:"columns" validate:"required,min=1,dive,required"`
	Algorithm       string         `json:"algorithm" validate:"required"`
	AlgorithmParams []engine.Param `json:"algorithm_params" validate:"dive"`
	LabelColumn     string         `json:"label_column"`
	TrainPercentage int            `json:"train_percentage" validate:"gte=10,lte=100"`
	FileMode        string         `json:"file_mode" validate:"omitempty,oneof=single multi"`
	TestFileID      *uuid.UUID     `json:"test_file_id" validate:"required_if=FileMode multi"`
	ThresholdClass  string         `json:"threshold_class"`
	ThresholdParams []engine.Param `json:"threshold_params" validate:"dive"`
}

// source says where a job's frames come from.
type source struct {
	fileID          uuid.UUID
	testFileID      *uuid.UUID
	mode            string
	trainPercentage int
}

// execution is what a job produced, ready to attach to a result.
type execution struct {
	model        *engine.Model
	trainMetrics map[string]float64
	testMetrics  map[string]float64
	series       map[string]*models.Timeseries
}

// job is a validated input of one of the pipelines.
type job interface {
	source() source
	algorithm() string
	// columns lists every column the frames must contain.
	columns() []string
	execute(ctx context.Context, eng engine.Engine, train, test *dataset.Frame, progress engine.Progress) (*execution, error)
}

// decodeJob decodes and validates a payload for kind. Failures are
// validation errors.
func decodeJob(v *validate.Validator, kind Kind, payload []byte) (job, error) {
	switch kind {
	case KindForecast:
		var in ForecastInput
		if err := v.DecodeAndValidate(payload, &in); err != nil {
			return nil, err
		}
		if err := in.check(); err != nil {
			return nil, err
		}
		return &in, nil
	case KindAnomaly:
		var in AnomalyInput
		if err := v.DecodeAndValidate(payload, &in); err != nil {
			return nil, err
		}
		if err := in.check(); err != nil {
			return nil, err
		}
		return &in, nil
	default:
		return nil, apierr.Validation(apierr.Detail{
			Loc:  []string{"path", "pipeline"},
			Msg:  fmt.Sprintf("unknown pipeline %q", kind),
			Type: "enum",
		})
	}
}

func (in *ForecastInput) check() error {
	alg, ok := engine.ForecastAlgorithm(in.Algorithm)
	if !ok {
		return apierr.Validation(unknownAlgorithm("algorithm", in.Algorithm, engine.ForecastAlgorithms()))
	}
	if details := alg.CheckParams("algorithm_params", in.AlgorithmParams); len(details) > 0 {
		return apierr.Validation(details...)
	}
	return nil
}

func (in *ForecastInput) source() source {
	return source{fileID: in.FileID, testFileID: in.TestFileID, mode: in.FileMode, trainPercentage: in.TrainPercentage}
}

func (in *ForecastInput) algorithm() string { return in.Algorithm }

func (in *ForecastInput) columns() []string {
	cols := append([]string{in.TargetCol}, in.FeatureCols...)
	return append(cols, in.ExogCols...)
}

func (in *ForecastInput) execute(ctx context.Context, eng engine.Engine, train, test *dataset.Frame, progress engine.Progress) (*execution, error) {
	out, err := eng.Forecast(ctx, &engine.ForecastRequest{
		Algorithm:   in.Algorithm,
		Params:      engine.ParamMap(in.AlgorithmParams),
		Train:       train,
		Test:        test,
		TargetCol:   in.TargetCol,
		FeatureCols: in.FeatureCols,
		ExogCols:    in.ExogCols,
	}, progress)
	if err != nil {
		return nil, err
	}

	return &execution{
		model:        out.Model,
		trainMetrics: out.TrainMetrics,
		testMetrics:  out.TestMetrics,
		series: seriesMap(map[string]*models.Timeseries{
			models.SeriesTrain:    out.TrainTS,
			models.SeriesTest:     out.TestTS,
			models.SeriesExog:     out.ExogTS,
			models.SeriesTestPred: out.TestPred,
		}),
	}, nil
}

func (in *AnomalyInput) check() error {
	alg, ok := engine.AnomalyAlgorithm(in.Algorithm)
	if !ok {
		return apierr.Validation(unknownAlgorithm("algorithm", in.Algorithm, engine.AnomalyAlgorithms()))
	}
	details := alg.CheckParams("algorithm_params", in.AlgorithmParams)

	if in.ThresholdClass != "" {
		threshold, ok := engine.ThresholdClass(in.ThresholdClass)
		if !ok {
			details = append(details, apierr.Detail{
				Loc:  []string{validate.BodyLoc, "threshold_class"},
				Msg:  fmt.Sprintf("unknown threshold class %q", in.ThresholdClass),
				Type: "enum",
			})
		} else {
			details = append(details, threshold.CheckParams("threshold_params", in.ThresholdParams)...)
		}
	}

	if len(details) > 0 {
		return apierr.Validation(details...)
	}
	return nil
}

func (in *AnomalyInput) source() source {
	return source{fileID: in.FileID, testFileID: in.TestFileID, mode: in.FileMode, trainPercentage: in.TrainPercentage}
}

func (in *AnomalyInput) algorithm() string { return in.Algorithm }

func (in *AnomalyInput) columns() []string {
	cols := append([]string(nil), in.Columns...)
	if in.LabelColumn != "" {
		cols = append(cols, in.LabelColumn)
	}
	return cols
}

func (in *AnomalyInput) execute(ctx context.Context, eng engine.Engine, train, test *dataset.Frame, progress engine.Progress) (*execution, error) {
	var threshold *engine.Threshold
	if in.ThresholdClass != "" {
		threshold = &engine.Threshold{Class: in.ThresholdClass, Params: engine.ParamMap(in.ThresholdParams)}
	}

	out, err := eng.DetectAnomalies(ctx, &engine.AnomalyRequest{
		Algorithm:   in.Algorithm,
		Params:      engine.ParamMap(in.AlgorithmParams),
		Train:       train,
		Test:        test,
		Columns:     in.Columns,
		LabelColumn: in.LabelColumn,
		Threshold:   threshold,
	}, progress)
	if err != nil {
		return nil, err
	}

	return &execution{
		model:        out.Model,
		trainMetrics: out.TrainMetrics,
		testMetrics:  out.TestMetrics,
		series: seriesMap(map[string]*models.Timeseries{
			models.SeriesTest:       out.TestTS,
			models.SeriesTestPred:   out.TestPred,
			models.SeriesTestLabels: out.TestLabels,
		}),
	}, nil
}

func unknownAlgorithm(field, name string, known []string) apierr.Detail {
	return apierr.Detail{
		Loc:  []string{validate.BodyLoc, field},
		Msg:  fmt.Sprintf("unknown algorithm %q, expected one of %v", name, known),
		Type: "enum",
	}
}

// seriesMap drops absent series.
func seriesMap(in map[string]*models.Timeseries) map[string]*models.Timeseries {
	out := make(map[string]*models.Timeseries, len(in))
	for k, v := range in {
		if v != nil {
			out[k] = v
		}
	}
	return out
}
