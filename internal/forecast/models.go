package forecast

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HorizonHours is the number of hourly points in one cached series.
const HorizonHours = 24

// Parameter identifies one of the recognized weather parameters. Its value
// is the Open-Meteo wire key, used verbatim in upstream requests, stored
// series, and per-parameter lookups.
type Parameter string

const (
	ParamTemperature   Parameter = "temperature_2m"
	ParamHumidity      Parameter = "relative_humidity_2m"
	ParamPrecipitation Parameter = "precipitation"
	ParamWindSpeed     Parameter = "wind_speed_10m"
	ParamPressure      Parameter = "surface_pressure"
)

// Parameters lists every recognized parameter in wire order.
func Parameters() []Parameter {
	return []Parameter{
		ParamTemperature,
		ParamHumidity,
		ParamPrecipitation,
		ParamWindSpeed,
		ParamPressure,
	}
}

// ParseParameter validates a wire key against the closed parameter set.
func ParseParameter(s string) (Parameter, error) {
	for _, p := range Parameters() {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown weather parameter %q", s)
}

// Coordinates is a latitude/longitude pair.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Location is a registered place tracked for forecasts. Coordinates are
// quantized to ~100 m so near-identical registrations deduplicate.
type Location struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Lat  float64   `json:"lat"`
	Lon  float64   `json:"lon"`
}

// LocationRef is the (id, lat, lon) projection of a location used by batch
// refresh paging.
type LocationRef struct {
	ID uuid.UUID
	Coordinates
}

// QuantizeCoordinate rounds a coordinate to 3 decimal places (~100 m).
func QuantizeCoordinate(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// NormalizeName canonicalizes a location name for storage and lookup.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// User is a registered user who can track locations.
type User struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Series is a cached hourly multi-parameter forecast anchored at StartTime.
// Index 0 of every parameter sequence corresponds to StartTime, and all
// sequences have equal length. A series is always created or replaced in
// full, never merged.
type Series struct {
	StartTime time.Time               `json:"start_time"`
	Hourly    map[Parameter][]float64 `json:"hourly"`
	FetchedAt time.Time               `json:"fetched_at"`
}

// Validate checks the equal-length invariant across parameter sequences.
func (s Series) Validate() error {
	n := -1
	for p, vals := range s.Hourly {
		if n == -1 {
			n = len(vals)
			continue
		}
		if len(vals) != n {
			return fmt.Errorf("series sequence length mismatch for %s", p)
		}
	}
	return nil
}

// Instant is a current-conditions snapshot.
type Instant struct {
	Temperature float64   `json:"temperature"`
	WindSpeed   float64   `json:"wind_speed"`
	Pressure    float64   `json:"pressure"`
	Time        time.Time `json:"time"`
}
