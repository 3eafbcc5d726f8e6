// Package units holds the pure conversions and classifications applied to provider readings.
package units

import (
	"fmt"
	"math"
	"strings"

	"github.com/kjstillabower/weather-recorder/internal/models"
)

// PressureCoefficient converts hectopascals to millimeters of mercury.
const PressureCoefficient = 0.7506

const sectorWidth = 22.5

// ConvertPressure converts hPa to mmHg.
func ConvertPressure(hPa float64) float64 {
	return hPa * PressureCoefficient
}

// LabelSet names the 16 compass sectors, starting at North and going clockwise.
type LabelSet [16]string

var (
	// RussianLabels is the label set stored by default.
	RussianLabels = LabelSet{"С", "ССВ", "СВ", "ВСВ", "В", "ВЮВ", "ЮВ", "ЮЮВ", "Ю", "ЮЮЗ", "ЮЗ", "ЗЮЗ", "З", "ЗСЗ", "СЗ", "ССЗ"}
	EnglishLabels = LabelSet{"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE", "S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW"}
)

// LabelSetByName returns the label set for "ru" or "en".
func LabelSetByName(name string) (LabelSet, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "ru":
		return RussianLabels, nil
	case "en":
		return EnglishLabels, nil
	}
	return LabelSet{}, fmt.Errorf("unknown compass label set %q (want ru or en)", name)
}

// SectorIndex returns the compass sector (0 = North) for a wind direction in degrees.
// Degrees outside [0, 360) are normalized modulo 360 first.
func SectorIndex(degrees float64) int {
	d := math.Mod(degrees, 360)
	if d < 0 {
		d += 360
	}
	return int(math.Floor(d/sectorWidth+0.5)) % 16
}

// Label returns the sector label for degrees.
func (ls LabelSet) Label(degrees float64) string {
	return ls[SectorIndex(degrees)]
}

// CompassLabel maps degrees to a label from RussianLabels.
func CompassLabel(degrees float64) string {
	return RussianLabels.Label(degrees)
}

// ClassifyPrecipitation picks the first non-zero quantity in priority order
// rain > showers > snowfall. All zero yields (0, none).
func ClassifyPrecipitation(rain, showers, snowfall float64) (float64, models.PrecipitationType) {
	switch {
	case rain > 0:
		return rain, models.PrecipitationRain
	case showers > 0:
		return showers, models.PrecipitationShowers
	case snowfall > 0:
		return snowfall, models.PrecipitationSnowfall
	}
	return 0, models.PrecipitationNone
}
