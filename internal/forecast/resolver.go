package forecast

import (
	"errors"
	"fmt"
	"time"
)

// ErrOutOfRange is returned when a requested time cannot be placed inside
// the cached forecast horizon.
var ErrOutOfRange = errors.New("requested time outside cached forecast horizon")

// TimeOfDay is a user-supplied wall-clock time with no date attached.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minutes() int {
	return t.Hour*60 + t.Minute
}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return TimeOfDay{Hour: ts.Hour(), Minute: ts.Minute()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time of day %q; use HH:MM", s)
}

// ResolveIndex maps a requested time of day to an offset into an hourly
// series that begins at start and may lag behind now.
//
// Only a time of day is given, so the calendar hour the user means has to
// be disambiguated against now: a time later today than the current moment
// is taken as the nearest upcoming hour boundary (minute <= 30 keeps the
// hour, otherwise the next hour mod 24), while a time at or before now
// keeps its hour unrounded.
//
// Wraparound rule: the naive difference requestedHour - startHour is
// negative exactly when the requested hour falls past midnight relative to
// the series start, so 24 is added once. Any result outside [0, horizon) is
// ErrOutOfRange, never an out-of-bounds index.
func ResolveIndex(start time.Time, requested TimeOfDay, now time.Time, horizon int) (int, error) {
	updateHour := start.Hour()

	requestedHour := requested.Hour
	nowMinutes := now.Hour()*60 + now.Minute()
	if requested.minutes() > nowMinutes && requested.Minute > 30 {
		requestedHour = (requested.Hour + 1) % 24
	}

	index := requestedHour - updateHour
	if index < 0 {
		index += 24
	}
	if index >= horizon {
		return 0, ErrOutOfRange
	}
	return index, nil
}
