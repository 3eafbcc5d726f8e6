package models

import "time"

// PrecipitationType is the kind of precipitation recorded for a reading.
type PrecipitationType string

const (
	PrecipitationRain     PrecipitationType = "rain"
	PrecipitationShowers  PrecipitationType = "showers"
	PrecipitationSnowfall PrecipitationType = "snowfall"
	PrecipitationNone     PrecipitationType = "none"
)

// Conditions is the provider's current-conditions block before normalization.
type Conditions struct {
	Temperature        float64 // °C
	SurfacePressureHPa float64
	WindSpeed          float64 // m/s
	WindDirectionDeg   float64
	Rain               float64 // mm
	Showers            float64 // mm
	Snowfall           float64
}

// WeatherRecord is one persisted reading. ID and CapturedAt are assigned by the store.
type WeatherRecord struct {
	ID                  int64             `json:"id"`
	Temperature         float64           `json:"temperature"`
	WindSpeed           float64           `json:"windSpeed"`
	PrecipitationAmount float64           `json:"precipitationAmount"`
	PrecipitationType   PrecipitationType `json:"precipitationType"`
	SurfacePressure     float64           `json:"surfacePressure"`
	WindDirectionLabel  string            `json:"windDirectionLabel"`
	CapturedAt          time.Time         `json:"capturedAt"`
}
