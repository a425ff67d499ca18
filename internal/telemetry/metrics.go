package telemetry

import (
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const (
	meterName = "github.com/wolfeidau/tsrunner"
)

// Attribute keys shared by the instruments.
var (
	AttrPipeline = attribute.Key("pipeline")
	AttrStatus   = attribute.Key("status")
	AttrKind     = attribute.Key("error.kind")
	AttrOutcome  = attribute.Key("outcome")
)

// Metrics holds all the OpenTelemetry metric instruments. It is built once at
// startup and passed to the components that record into it.
type Metrics struct {
	// Job metrics
	JobsStartedTotal   metric.Int64Counter
	JobsCompletedTotal metric.Int64Counter
	JobsRejectedTotal  metric.Int64Counter
	JobDuration        metric.Float64Histogram

	// Result metrics
	ResultPersistErrorsTotal metric.Int64Counter
	ResultEventErrorsTotal   metric.Int64Counter

	// Stream metrics
	ActiveStreams       metric.Int64UpDownCounter
	StreamFramesTotal   metric.Int64Counter
	StreamDroppedTotal  metric.Int64Counter
	StreamRejectedTotal metric.Int64Counter

	// Auth metrics
	LoginAttemptsTotal metric.Int64Counter
	RefreshTotal       metric.Int64Counter
}

// Meter returns the meter for this service from the global provider.
func Meter() metric.Meter {
	return otel.GetMeterProvider().Meter(meterName)
}

// NoopMetrics returns instruments that record nothing.
func NoopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(meterName))
	return m
}

// NewMetrics creates and registers all metric instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var errs []error

	track := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error

	// Job metrics
	m.JobsStartedTotal, err = meter.Int64Counter(
		"tsrunner.jobs.started.total",
		metric.WithDescription("Total number of jobs that passed validation and started"),
		metric.WithUnit("{job}"),
	)
	track(err)

	m.JobsCompletedTotal, err = meter.Int64Counter(
		"tsrunner.jobs.completed.total",
		metric.WithDescription("Total number of jobs that reached a terminal state"),
		metric.WithUnit("{job}"),
	)
	track(err)

	m.JobsRejectedTotal, err = meter.Int64Counter(
		"tsrunner.jobs.rejected.total",
		metric.WithDescription("Total number of jobs rejected before a result was written"),
		metric.WithUnit("{job}"),
	)
	track(err)

	m.JobDuration, err = meter.Float64Histogram(
		"tsrunner.jobs.duration",
		metric.WithDescription("Duration of job runs"),
		metric.WithUnit("ms"),
	)
	track(err)

	// Result metrics
	m.ResultPersistErrorsTotal, err = meter.Int64Counter(
		"tsrunner.results.persist.errors.total",
		metric.WithDescription("Total number of failed result writes"),
		metric.WithUnit("{error}"),
	)
	track(err)

	m.ResultEventErrorsTotal, err = meter.Int64Counter(
		"tsrunner.results.publish.errors.total",
		metric.WithDescription("Total number of result events that failed to publish"),
		metric.WithUnit("{error}"),
	)
	track(err)

	// Stream metrics
	m.ActiveStreams, err = meter.Int64UpDownCounter(
		"tsrunner.streams.active",
		metric.WithDescription("Number of open job streams"),
		metric.WithUnit("{stream}"),
	)
	track(err)

	m.StreamFramesTotal, err = meter.Int64Counter(
		"tsrunner.streams.frames.total",
		metric.WithDescription("Total number of frames written to job streams"),
		metric.WithUnit("{frame}"),
	)
	track(err)

	m.StreamDroppedTotal, err = meter.Int64Counter(
		"tsrunner.streams.dropped.total",
		metric.WithDescription("Total number of events not delivered because the client went away"),
		metric.WithUnit("{event}"),
	)
	track(err)

	m.StreamRejectedTotal, err = meter.Int64Counter(
		"tsrunner.streams.rejected.total",
		metric.WithDescription("Total number of stream connections rejected by the auth gate"),
		metric.WithUnit("{stream}"),
	)
	track(err)

	// Auth metrics
	m.LoginAttemptsTotal, err = meter.Int64Counter(
		"tsrunner.auth.login.total",
		metric.WithDescription("Total number of login attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	track(err)

	m.RefreshTotal, err = meter.Int64Counter(
		"tsrunner.auth.refresh.total",
		metric.WithDescription("Total number of token refreshes by outcome"),
		metric.WithUnit("{refresh}"),
	)
	track(err)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return m, nil
}
