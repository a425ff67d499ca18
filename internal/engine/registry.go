package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/wolfeidau/tsrunner/internal/apierr"
)

// ParamType is the expected JSON type of an algorithm parameter. The names
// are the ones shown to users in validation messages.
type ParamType string

const (
	TypeInt   ParamType = "int"
	TypeFloat ParamType = "float"
	TypeStr   ParamType = "str"
	TypeBool  ParamType = "bool"
	TypeList  ParamType = "list"
	TypeDict  ParamType = "dict"
)

// Param is one submitted algorithm parameter.
type Param struct {
	Name  string `json:"name" validate:"required"`
	Value any    `json:"value"`
}

// Algorithm describes a registered algorithm and the parameters it accepts.
type Algorithm struct {
	Name   string
	Params map[string]ParamType
}

var forecastingParams = map[string]ParamType{
	"max_forecast_steps": TypeInt,
	"target_seq_index":   TypeInt,
}

var treeParams = map[string]ParamType{
	"maxlags":       TypeInt,
	"n_estimators":  TypeInt,
	"max_depth":     TypeInt,
	"sampling_mode": TypeStr,
}

var prophetParams = map[string]ParamType{
	"yearly_seasonality":  TypeBool,
	"weekly_seasonality":  TypeBool,
	"daily_seasonality":   TypeBool,
	"add_seasonality":     TypeStr,
	"uncertainty_samples": TypeInt,
}

var forecastAlgorithms = registry(
	Algorithm{Name: "DefaultForecaster", Params: with(forecastingParams, map[string]ParamType{"granularity": TypeStr})},
	Algorithm{Name: "Arima", Params: with(forecastingParams, map[string]ParamType{"order": TypeList})},
	Algorithm{Name: "LGBMForecaster", Params: with(forecastingParams, treeParams, map[string]ParamType{"learning_rate": TypeFloat, "n_jobs": TypeInt})},
	Algorithm{Name: "ETS", Params: with(forecastingParams, map[string]ParamType{
		"error": TypeStr, "trend": TypeStr, "damped_trend": TypeBool, "seasonal_periods": TypeInt, "alpha": TypeFloat,
	})},
	Algorithm{Name: "AutoETS", Params: with(forecastingParams, map[string]ParamType{"periodicity_strategy": TypeStr, "auto_seasonality": TypeBool})},
	Algorithm{Name: "Prophet", Params: with(forecastingParams, prophetParams)},
	Algorithm{Name: "AutoProphet", Params: with(forecastingParams, prophetParams, map[string]ParamType{"periodicity_strategy": TypeStr})},
	Algorithm{Name: "Sarima", Params: with(forecastingParams, map[string]ParamType{"order": TypeList, "seasonal_order": TypeList})},
	Algorithm{Name: "VectorAR", Params: with(forecastingParams, map[string]ParamType{"maxlags": TypeInt})},
	Algorithm{Name: "RandomForestForecaster", Params: with(forecastingParams, treeParams)},
	Algorithm{Name: "ExtraTreesForecaster", Params: with(forecastingParams, treeParams)},
)

var detectorParams = map[string]ParamType{
	"enable_calibrator": TypeBool,
	"enable_threshold":  TypeBool,
}

var anomalyAlgorithms = registry(
	Algorithm{Name: "DefaultDetector", Params: with(detectorParams, map[string]ParamType{"granularity": TypeStr, "n_threads": TypeInt})},
	Algorithm{Name: "ArimaDetector", Params: with(detectorParams, map[string]ParamType{"order": TypeList, "max_forecast_steps": TypeInt})},
	Algorithm{Name: "DynamicBaseline", Params: with(detectorParams, map[string]ParamType{
		"fixed_period": TypeList, "train_window": TypeStr, "wind_sz": TypeStr, "trends": TypeList,
	})},
	Algorithm{Name: "IsolationForest", Params: with(detectorParams, map[string]ParamType{"n_estimators": TypeInt, "max_n_samples": TypeInt})},
	Algorithm{Name: "ETSDetector", Params: with(detectorParams, map[string]ParamType{
		"error": TypeStr, "trend": TypeStr, "damped_trend": TypeBool, "seasonal_periods": TypeInt,
	})},
	Algorithm{Name: "MSESDetector", Params: with(detectorParams, map[string]ParamType{
		"max_backstep": TypeInt, "recency_weight": TypeFloat, "online_updates": TypeBool,
	})},
	Algorithm{Name: "ProphetDetector", Params: with(detectorParams, prophetParams)},
	Algorithm{Name: "RandomCutForest", Params: with(detectorParams, map[string]ParamType{
		"n_estimators": TypeInt, "parallel": TypeBool, "seed": TypeInt, "max_n_samples": TypeInt,
	})},
	Algorithm{Name: "SarimaDetector", Params: with(detectorParams, map[string]ParamType{"order": TypeList, "seasonal_order": TypeList})},
	Algorithm{Name: "WindStats", Params: with(detectorParams, map[string]ParamType{"wind_sz": TypeInt, "max_day": TypeInt})},
	Algorithm{Name: "SpectralResidual", Params: with(detectorParams, map[string]ParamType{
		"local_wind_sz": TypeInt, "q": TypeInt, "estimated_points": TypeInt, "predicting_points": TypeInt,
	})},
	Algorithm{Name: "ZMS", Params: with(detectorParams, map[string]ParamType{"n_lags": TypeInt, "lag_inflation": TypeFloat})},
	Algorithm{Name: "DeepPointAnomalyDetector", Params: with(detectorParams, map[string]ParamType{
		"lr": TypeFloat, "batch_size": TypeInt, "num_epochs": TypeInt,
	})},
)

var thresholdClasses = registry(
	Algorithm{Name: "Threshold", Params: map[string]ParamType{"alm_threshold": TypeFloat, "abs_score": TypeBool}},
	Algorithm{Name: "AggregateAlarms", Params: map[string]ParamType{
		"alm_threshold":        TypeFloat,
		"abs_score":            TypeBool,
		"min_alm_in_window":    TypeInt,
		"alm_window_minutes":   TypeFloat,
		"alm_suppress_minutes": TypeFloat,
	}},
)

// ForecastAlgorithm looks up a forecast algorithm by name.
func ForecastAlgorithm(name string) (Algorithm, bool) {
	a, ok := forecastAlgorithms[name]
	return a, ok
}

// AnomalyAlgorithm looks up an anomaly detector by name.
func AnomalyAlgorithm(name string) (Algorithm, bool) {
	a, ok := anomalyAlgorithms[name]
	return a, ok
}

// ThresholdClass looks up an alarm threshold class by name.
func ThresholdClass(name string) (Algorithm, bool) {
	a, ok := thresholdClasses[name]
	return a, ok
}

// ForecastAlgorithms returns the registered forecast algorithm names, sorted.
func ForecastAlgorithms() []string { return names(forecastAlgorithms) }

// AnomalyAlgorithms returns the registered anomaly detector names, sorted.
func AnomalyAlgorithms() []string { return names(anomalyAlgorithms) }

// ThresholdClasses returns the registered threshold class names, sorted.
func ThresholdClasses() []string { return names(thresholdClasses) }

// CheckParams validates submitted parameters against the algorithm. Unknown
// names and values of the wrong type each produce one detail at loc.
// A null value is always accepted and means "use the default".
func (a Algorithm) CheckParams(loc string, params []Param) []apierr.Detail {
	var details []apierr.Detail
	for _, p := range params {
		want, ok := a.Params[p.Name]
		if !ok {
			details = append(details, apierr.Detail{
				Loc:  []string{"body", loc},
				Msg:  fmt.Sprintf("Параметр %s не существует", p.Name),
				Type: "algorithm_parameter_not_exists",
			})
			continue
		}
		if p.Value != nil && !want.Matches(p.Value) {
			details = append(details, apierr.Detail{
				Loc:  []string{"body", loc},
				Msg:  fmt.Sprintf("Параметр %s имеет не верный тип. Необходимый тип: %s", p.Name, want),
				Type: "algorithm_parameter_type",
			})
		}
	}
	return details
}

// Matches reports whether a decoded JSON value has this type.
func (t ParamType) Matches(v any) bool {
	switch t {
	case TypeInt:
		f, ok := v.(float64)
		return ok && f == math.Trunc(f) && !math.IsInf(f, 0)
	case TypeFloat:
		_, ok := v.(float64)
		return ok
	case TypeStr:
		_, ok := v.(string)
		return ok
	case TypeBool:
		_, ok := v.(bool)
		return ok
	case TypeList:
		_, ok := v.([]any)
		return ok
	case TypeDict:
		_, ok := v.(map[string]any)
		return ok
	default:
		return false
	}
}

// ParamMap flattens submitted parameters, dropping null values.
func ParamMap(params []Param) map[string]any {
	out := make(map[string]any, len(params))
	for _, p := range params {
		if p.Value != nil {
			out[p.Name] = p.Value
		}
	}
	return out
}

func registry(algs ...Algorithm) map[string]Algorithm {
	m := make(map[string]Algorithm, len(algs))
	for _, a := range algs {
		m[a.Name] = a
	}
	return m
}

func with(sets ...map[string]ParamType) map[string]ParamType {
	out := map[string]ParamType{}
	for _, s := range sets {
		for k, v := range s {
			out[k] = v
		}
	}
	return out
}

func names(m map[string]Algorithm) []string {
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
