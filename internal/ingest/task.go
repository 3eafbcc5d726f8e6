// Package ingest implements one fetch-normalize-persist tick.
package ingest

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-recorder/internal/models"
	"github.com/kjstillabower/weather-recorder/internal/observability"
	"github.com/kjstillabower/weather-recorder/internal/units"
)

// ConditionsFetcher is implemented by client.OpenMeteoClient.
type ConditionsFetcher interface {
	GetCurrent(ctx context.Context) (models.Conditions, error)
}

// RecordInserter is implemented by store.Store.
type RecordInserter interface {
	Insert(ctx context.Context, rec models.WeatherRecord) (models.WeatherRecord, error)
}

// Task fetches current conditions, normalizes them and appends one record.
type Task struct {
	fetcher ConditionsFetcher
	store   RecordInserter
	labels  units.LabelSet
	logger  *zap.Logger
}

// NewTask returns a Task that labels wind direction with labels.
func NewTask(fetcher ConditionsFetcher, store RecordInserter, labels units.LabelSet, logger *zap.Logger) *Task {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Task{fetcher: fetcher, store: store, labels: labels, logger: logger}
}

// Run performs one tick. On error nothing was written. Errors wrap
// models.ErrTransport, models.ErrMalformedResponse or models.ErrPersistence.
func (t *Task) Run(ctx context.Context) (models.WeatherRecord, error) {
	logger := observability.LoggerFromContext(ctx, t.logger)

	cond, err := t.fetcher.GetCurrent(ctx)
	if err != nil {
		return models.WeatherRecord{}, err
	}

	rec, err := t.store.Insert(ctx, Normalize(cond, t.labels))
	if err != nil {
		return models.WeatherRecord{}, err
	}

	observability.LastSuccessfulFetch.Set(float64(time.Now().Unix()))
	logger.Info("weather record stored",
		zap.Int64("id", rec.ID),
		zap.Float64("temperature", rec.Temperature),
		zap.Float64("surface_pressure_mmhg", rec.SurfacePressure),
		zap.String("precipitation_type", string(rec.PrecipitationType)),
		zap.Float64("precipitation", rec.PrecipitationAmount),
		zap.String("wind_direction", rec.WindDirectionLabel),
	)
	return rec, nil
}

// Normalize derives the stored record from provider conditions. Pressure is rounded to 2 decimals.
func Normalize(cond models.Conditions, labels units.LabelSet) models.WeatherRecord {
	amount, precipType := units.ClassifyPrecipitation(cond.Rain, cond.Showers, cond.Snowfall)
	return models.WeatherRecord{
		Temperature:         cond.Temperature,
		WindSpeed:           cond.WindSpeed,
		PrecipitationAmount: amount,
		PrecipitationType:   precipType,
		SurfacePressure:     roundTo(units.ConvertPressure(cond.SurfacePressureHPa), 2),
		WindDirectionLabel:  labels.Label(cond.WindDirectionDeg),
	}
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
