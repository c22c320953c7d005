package forecast

import (
	"errors"
	"testing"
	"time"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, 1, 15, hour, minute, 0, 0, time.UTC)
}

func TestResolveIndex(t *testing.T) {
	tests := []struct {
		name      string
		startHour int
		requested TimeOfDay
		now       time.Time
		horizon   int
		want      int
		wantErr   error
	}{
		{
			name:      "exact start hour just past",
			startHour: 10,
			requested: TimeOfDay{Hour: 10, Minute: 0},
			now:       at(10, 5),
			horizon:   24,
			want:      0,
		},
		{
			name:      "future request on the hour",
			startHour: 10,
			requested: TimeOfDay{Hour: 14, Minute: 0},
			now:       at(9, 0),
			horizon:   24,
			want:      4,
		},
		{
			name:      "future request rounds down at half past",
			startHour: 10,
			requested: TimeOfDay{Hour: 14, Minute: 30},
			now:       at(9, 0),
			horizon:   24,
			want:      4,
		},
		{
			name:      "future request rounds up past half",
			startHour: 10,
			requested: TimeOfDay{Hour: 14, Minute: 31},
			now:       at(9, 0),
			horizon:   24,
			want:      5,
		},
		{
			name:      "past request never rounds",
			startHour: 10,
			requested: TimeOfDay{Hour: 8, Minute: 45},
			now:       at(11, 0),
			horizon:   24,
			want:      22,
		},
		{
			name:      "rounding wraps hour 23 to 0",
			startHour: 10,
			requested: TimeOfDay{Hour: 23, Minute: 45},
			now:       at(9, 0),
			horizon:   24,
			want:      14,
		},
		{
			name:      "series started before midnight, requested after",
			startHour: 23,
			requested: TimeOfDay{Hour: 1, Minute: 0},
			now:       at(0, 30),
			horizon:   24,
			want:      2,
		},
		{
			name:      "series started before midnight, requested at start hour",
			startHour: 23,
			requested: TimeOfDay{Hour: 23, Minute: 0},
			now:       at(23, 5),
			horizon:   24,
			want:      0,
		},
		{
			name:      "midnight start, late evening request",
			startHour: 0,
			requested: TimeOfDay{Hour: 23, Minute: 0},
			now:       at(23, 30),
			horizon:   24,
			want:      23,
		},
		{
			name:      "midnight start, midnight request",
			startHour: 0,
			requested: TimeOfDay{Hour: 0, Minute: 0},
			now:       at(0, 5),
			horizon:   24,
			want:      0,
		},
		{
			name:      "wrapped index beyond short horizon",
			startHour: 10,
			requested: TimeOfDay{Hour: 9, Minute: 0},
			now:       at(9, 30),
			horizon:   12,
			wantErr:   ErrOutOfRange,
		},
		{
			name:      "forward index beyond short horizon",
			startHour: 0,
			requested: TimeOfDay{Hour: 15, Minute: 0},
			now:       at(9, 0),
			horizon:   12,
			wantErr:   ErrOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := time.Date(2025, 1, 15, tt.startHour, 0, 0, 0, time.UTC)

			got, err := ResolveIndex(start, tt.requested, tt.now, tt.horizon)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ResolveIndex() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveIndex() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolveIndex() = %d, want %d", got, tt.want)
			}
		})
	}
}

// The same index must come out for every parameter of a series; the
// resolver only ever sees the shared time axis, so it cannot diverge, but
// the uniform-projection path in Service relies on this staying a pure
// function of (start, requested, now).
func TestResolveIndexIsDeterministic(t *testing.T) {
	start := time.Date(2025, 1, 15, 7, 0, 0, 0, time.UTC)
	req := TimeOfDay{Hour: 12, Minute: 15}
	now := at(8, 0)

	first, err := ResolveIndex(start, req, now, HorizonHours)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		got, err := ResolveIndex(start, req, now, HorizonHours)
		if err != nil || got != first {
			t.Fatalf("ResolveIndex() = %d, %v; want stable %d", got, err, first)
		}
	}
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		input   string
		want    TimeOfDay
		wantErr bool
	}{
		{input: "10:00", want: TimeOfDay{Hour: 10, Minute: 0}},
		{input: "23:59", want: TimeOfDay{Hour: 23, Minute: 59}},
		{input: "07:30:15", want: TimeOfDay{Hour: 7, Minute: 30}},
		{input: "24:00", wantErr: true},
		{input: "10", wantErr: true},
		{input: "", wantErr: true},
		{input: "not a time", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseTimeOfDay(%q) expected error, got %+v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTimeOfDay(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseTimeOfDay(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseParameter(t *testing.T) {
	for _, p := range Parameters() {
		got, err := ParseParameter(string(p))
		if err != nil || got != p {
			t.Errorf("ParseParameter(%q) = %v, %v; want %v", p, got, err, p)
		}
	}

	if _, err := ParseParameter("visibility"); err == nil {
		t.Error("ParseParameter accepted a key outside the recognized set")
	}
	if _, err := ParseParameter(""); err == nil {
		t.Error("ParseParameter accepted an empty key")
	}
}
