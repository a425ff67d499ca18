package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/tsrunner/internal/apierr"
	"github.com/wolfeidau/tsrunner/internal/dataset"
	"github.com/wolfeidau/tsrunner/internal/engine"
	"github.com/wolfeidau/tsrunner/internal/events"
	"github.com/wolfeidau/tsrunner/internal/modelstore"
	"github.com/wolfeidau/tsrunner/internal/models"
	"github.com/wolfeidau/tsrunner/internal/store"
	"github.com/wolfeidau/tsrunner/internal/telemetry"
	"github.com/wolfeidau/tsrunner/internal/validate"
	"go.opentelemetry.io/otel/metric"
)

// MinSeriesLength is the shortest series a job accepts; anything with this
// many rows or fewer is rejected.
const MinSeriesLength = 20

// User facing failure messages.
const (
	MsgDatasetNotFound     = "Файл с датасетом временного ряда не существует."
	MsgTestDatasetNotFound = "Тестовый файл с датасетом временного ряда не существует."
	MsgSeriesTooShort      = "Длина входного временного ряда (%d) слишком мала."
	MsgColumnNotFound      = "Переменная %s отсутствует во временном ряду."
	MsgEmptySplit          = "Обучающая или тестовая выборка пуста. Измените train_percentage."
	MsgComputationFailed   = "Не удалось произвести вычисления."
)

var errComputationFailed = apierr.Service(MsgComputationFailed)

// Deps are the collaborators of a Runner.
type Deps struct {
	Datasets  store.DatasetStore
	Results   store.ResultStore
	Loader    dataset.Loader
	Engine    engine.Engine
	Models    modelstore.Store
	Events    events.Publisher    // optional
	Validator *validate.Validator // optional
	Metrics   *telemetry.Metrics  // optional
}

// Runner executes pipeline jobs. It holds no per job state and is safe for
// concurrent use.
type Runner struct {
	datasets  store.DatasetStore
	results   store.ResultStore
	loader    dataset.Loader
	engine    engine.Engine
	models    modelstore.Store
	events    events.Publisher
	validator *validate.Validator
	metrics   *telemetry.Metrics
	now       func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(deps Deps) *Runner {
	r := &Runner{
		datasets:  deps.Datasets,
		results:   deps.Results,
		loader:    deps.Loader,
		engine:    deps.Engine,
		models:    deps.Models,
		events:    deps.Events,
		validator: deps.Validator,
		metrics:   deps.Metrics,
		now:       time.Now,
	}
	if r.events == nil {
		r.events = events.Discard{}
	}
	if r.validator == nil {
		r.validator = validate.New()
	}
	if r.metrics == nil {
		r.metrics = telemetry.NoopMetrics()
	}
	return r
}

// Run executes one job for userID and returns its persisted result.
//
// A payload that fails validation is rejected with a validation error before
// any progress is reported. An unknown dataset is a service error and
// nothing is persisted. Once the dataset is resolved exactly one result is
// written, whichever way the job ends, using a context detached from ctx.
// Engine, loader and model store failures are logged, recorded on the result
// with a generic message, and returned as a service error carrying that
// message. If the result cannot be written the caller gets an unexpected error.
func (r *Runner) Run(ctx context.Context, userID uuid.UUID, kind Kind, payload []byte, sink Sink) (*models.Result, error) {
	attrs := metric.WithAttributes(telemetry.AttrPipeline.String(string(kind)))

	j, err := decodeJob(r.validator, kind, payload)
	if err != nil {
		r.metrics.JobsRejectedTotal.Add(ctx, 1, attrs)
		return nil, err
	}

	started := r.now()
	r.metrics.JobsStartedTotal.Add(ctx, 1, attrs)

	t := newTracker(kind, sink)
	t.advance(StageStart)

	src := j.source()
	ds, err := r.datasets.Get(ctx, userID, src.fileID)
	if err != nil {
		r.metrics.JobsRejectedTotal.Add(ctx, 1, attrs)
		if errors.Is(err, store.ErrDatasetNotFound) {
			return nil, apierr.Service(MsgDatasetNotFound)
		}
		return nil, apierr.Unexpected(fmt.Errorf("failed to resolve dataset: %w", err))
	}
	t.advance(StageFileExist)

	result := models.NewResult(userID, string(kind), payload)
	result.Algorithm = j.algorithm()

	runErr := r.execute(ctx, userID, j, ds, t, result)
	if runErr == nil {
		t.advance(StageFullProcessSuccess)
		result.Status = models.StatusSuccess
	} else {
		result.Status = models.StatusError
		result.Message = apierr.From(runErr).Message
	}
	result.CreatedAt = r.now().UTC()

	logger := log.With().
		Str("pipeline", string(kind)).
		Str("user_id", userID.String()).
		Str("result_id", result.ResultID.String()).
		Str("algorithm", result.Algorithm).
		Logger()

	if runErr != nil {
		ev := logger.Warn().Err(runErr)
		if stage, ok := t.current(); ok {
			ev = ev.Str("last_stage", stage.Name)
		}
		ev.Msg("Job failed")
	}

	// the client may be gone, the result is written regardless
	persistCtx := context.WithoutCancel(ctx)
	if err := r.results.Create(persistCtx, result); err != nil {
		r.metrics.ResultPersistErrorsTotal.Add(persistCtx, 1, attrs)
		logger.Error().Err(err).Msg("Failed to persist result")
		return nil, apierr.Unexpected(fmt.Errorf("failed to persist result: %w", err))
	}

	r.metrics.JobsCompletedTotal.Add(persistCtx, 1, metric.WithAttributes(
		telemetry.AttrPipeline.String(string(kind)),
		telemetry.AttrStatus.String(result.Status),
	))
	r.metrics.JobDuration.Record(persistCtx, float64(r.now().Sub(started).Milliseconds()), attrs)

	if err := r.events.PublishResult(persistCtx, result); err != nil {
		r.metrics.ResultEventErrorsTotal.Add(persistCtx, 1, attrs)
		logger.Warn().Err(err).Msg("Failed to publish result event")
	}

	logger.Info().
		Str("status", result.Status).
		Dur("duration", r.now().Sub(started)).
		Msg("Job finished")

	if runErr != nil {
		return nil, runErr
	}

	t.advance(StageSaveToDBSuccess)
	t.advance(StageFinish)

	return result, nil
}

// execute runs the stages between dataset resolution and persistence,
// filling result on success. Returned errors are always *apierr.Error.
func (r *Runner) execute(ctx context.Context, userID uuid.UUID, j job, ds *models.Dataset, t *tracker, result *models.Result) error {
	src := j.source()

	frame, err := r.loader.Load(ctx, ds.FilePath)
	if err != nil {
		return errComputationFailed.WithCause(fmt.Errorf("failed to load dataset %s: %w", ds.DatasetID, err))
	}
	if frame.Len() <= MinSeriesLength {
		return apierr.Service(fmt.Sprintf(MsgSeriesTooShort, frame.Len()))
	}

	var train, test *dataset.Frame
	switch src.mode {
	case FileModeMulti:
		testDS, err := r.datasets.Get(ctx, userID, *src.testFileID)
		if err != nil {
			if errors.Is(err, store.ErrDatasetNotFound) {
				return apierr.Service(MsgTestDatasetNotFound)
			}
			return errComputationFailed.WithCause(fmt.Errorf("failed to resolve test dataset: %w", err))
		}
		testFrame, err := r.loader.Load(ctx, testDS.FilePath)
		if err != nil {
			return errComputationFailed.WithCause(fmt.Errorf("failed to load test dataset %s: %w", testDS.DatasetID, err))
		}
		train, test = frame, testFrame
	default:
		train, test = frame.Split(src.trainPercentage)
	}

	for _, col := range j.columns() {
		if !train.Has(col) || !test.Has(col) {
			return apierr.Service(fmt.Sprintf(MsgColumnNotFound, col))
		}
	}
	if train.Len() == 0 || test.Len() == 0 {
		return apierr.Service(MsgEmptySplit)
	}
	t.advance(StageDataLoaded)

	exec, err := j.execute(ctx, r.engine, train, test, func(stage string) { t.advance(stage) })
	if err != nil {
		return errComputationFailed.WithCause(err)
	}
	t.advance(StageSaveModelTrain)

	key, err := r.models.Save(ctx, exec.model)
	if err != nil {
		return errComputationFailed.WithCause(fmt.Errorf("failed to save model: %w", err))
	}

	result.ModelKey = key
	result.TrainMetrics = exec.trainMetrics
	result.TestMetrics = exec.testMetrics
	result.Series = exec.series

	return nil
}
