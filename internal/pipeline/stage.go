// Package pipeline runs forecast and anomaly detection jobs as an ordered
// sequence of stages, reporting progress and persisting exactly one result
// for every job that gets past dataset resolution.
package pipeline

import "github.com/wolfeidau/tsrunner/internal/engine"

// Kind names a pipeline.
type Kind string

const (
	KindForecast Kind = "forecast"
	KindAnomaly  Kind = "anomaly"
)

// ParseKind validates a pipeline name.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindForecast, KindAnomaly:
		return Kind(s), true
	}
	return "", false
}

// Stage is a checkpoint within a run. Percent never decreases along a table.
type Stage struct {
	Name    string `json:"stage"`
	Label   string `json:"label"`
	Percent int    `json:"percent"`
}

// Stage names shared by both pipelines. Engine sub-progress uses the names
// declared in the engine package.
const (
	StageStart              = "start"
	StageFileExist          = "file_exist"
	StageDataLoaded         = "data_loaded"
	StageSaveModelTrain     = "save_model_train"
	StageFullProcessSuccess = "full_process_success"
	StageSaveToDBSuccess    = "save_to_db_success"
	StageFinish             = "finish"
)

const (
	labelStart      = "Запрос получен."
	labelDataLoaded = "Данные из файла загружены."
	labelSaveModel  = "Происходит сохранение модели."
	labelSaveToDB   = "Сохранение в БД успешно произведено. Ждите результат."
	labelFinish     = "Завершено"
)

var stageTables = map[Kind][]Stage{
	KindForecast: {
		{StageStart, labelStart, 5},
		{StageFileExist, "Файл с датасетом найден. Запускается процесс прогнозирования.", 10},
		{StageDataLoaded, labelDataLoaded, 20},
		{engine.StageModelInitialized, "Модель инициализирована.", 25},
		{engine.StageTrainingStarted, "Обучение модели началось.", 30},
		{engine.StageTrainingCompleted, "Обучение модели завершено.", 70},
		{engine.StageTrainMetricsComputed, "Обучающие метрики вычислены.", 75},
		{engine.StageTestMetricsComputed, "Тестовые метрики вычислены.", 80},
		{StageSaveModelTrain, labelSaveModel, 85},
		{StageFullProcessSuccess, "Процесс прогнозирование успешно произведен. Идет сохранение в БД.", 90},
		{StageSaveToDBSuccess, labelSaveToDB, 95},
		{StageFinish, labelFinish, 100},
	},
	KindAnomaly: {
		{StageStart, labelStart, 5},
		{StageFileExist, "Файл с датасетом временного ряда найден", 5},
		{StageDataLoaded, labelDataLoaded, 20},
		{engine.StageDetectorTrainingStarted, "Обучение детектора аномалий ...", 20},
		{engine.StageTrainingCompleted, "Обучение завершено.", 60},
		{engine.StageTrainMetricsComputed, "Вычисление показателей эффективности обучения...", 70},
		{engine.StageTestPredicted, "Получение результатов во время тестирования...", 80},
		{StageSaveModelTrain, labelSaveModel, 85},
		{StageFullProcessSuccess, "Формирование данных для ответа.", 90},
		{StageSaveToDBSuccess, labelSaveToDB, 95},
		{StageFinish, labelFinish, 100},
	},
}

// Stages returns the ordered stage table of a pipeline.
func Stages(kind Kind) []Stage {
	return append([]Stage(nil), stageTables[kind]...)
}
