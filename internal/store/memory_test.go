package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/InOutLake/weatherio/internal/forecast"
)

func newLocation(name string, lat, lon float64) forecast.Location {
	return forecast.Location{ID: uuid.New(), Name: name, Lat: lat, Lon: lon}
}

func sampleSeries(fetchedAt time.Time, temp float64) forecast.Series {
	return forecast.Series{
		StartTime: fetchedAt.Truncate(time.Hour),
		Hourly: map[forecast.Parameter][]float64{
			forecast.ParamTemperature: {temp},
			forecast.ParamWindSpeed:   {3.2},
		},
		FetchedAt: fetchedAt,
	}
}

func TestCreateLocationReturnsExistingOnExactMatch(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.CreateLocation(ctx, newLocation("berlin", 52.52, 13.405))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := s.CreateLocation(ctx, newLocation("berlin", 52.52, 13.405))
	if err != nil {
		t.Fatalf("create duplicate: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("duplicate registration got id %s, want existing %s", second.ID, first.ID)
	}

	// Same name, different coordinates is a distinct location.
	third, err := s.CreateLocation(ctx, newLocation("berlin", 52.52, 13.5))
	if err != nil {
		t.Fatalf("create sibling: %v", err)
	}
	if third.ID == first.ID {
		t.Error("location with different coordinates collapsed into the existing one")
	}
}

func TestListLocationPageCoversEveryLocationOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const total = 7
	ids := make(map[uuid.UUID]bool, total)
	for i := 0; i < total; i++ {
		loc, err := s.CreateLocation(ctx, newLocation(string(rune('a'+i)), float64(i), float64(-i)))
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		ids[loc.ID] = false
	}

	cursor := ""
	pages := 0
	for {
		refs, next, err := s.ListLocationPage(ctx, cursor, 3)
		if err != nil {
			t.Fatalf("page: %v", err)
		}
		for _, ref := range refs {
			seen, ok := ids[ref.ID]
			if !ok {
				t.Fatalf("page returned unknown location %s", ref.ID)
			}
			if seen {
				t.Fatalf("location %s returned twice", ref.ID)
			}
			ids[ref.ID] = true
		}
		if next == "" {
			break
		}
		cursor = next
		if pages++; pages > total {
			t.Fatal("pagination did not terminate")
		}
	}

	for id, seen := range ids {
		if !seen {
			t.Errorf("location %s never paged out", id)
		}
	}
}

func TestListLocationPageResumesFromCursor(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := s.CreateLocation(ctx, newLocation(string(rune('a'+i)), 1, 1)); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	first, next, err := s.ListLocationPage(ctx, "", 2)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first) != 2 || next == "" {
		t.Fatalf("first page = %d refs, next %q", len(first), next)
	}

	// Resuming from the same cursor twice yields the same page: a restarted
	// cycle can safely re-walk from any saved position.
	second, _, err := s.ListLocationPage(ctx, next, 2)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	repeat, _, err := s.ListLocationPage(ctx, next, 2)
	if err != nil {
		t.Fatalf("repeated page: %v", err)
	}
	if len(second) != len(repeat) || second[0].ID != repeat[0].ID {
		t.Error("same cursor produced different pages")
	}
	if second[0].ID == first[0].ID || second[0].ID == first[1].ID {
		t.Error("second page overlapped the first")
	}
}

func TestWriteForecastReplacesWholeSeries(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	loc, err := s.CreateLocation(ctx, newLocation("oslo", 59.913, 10.752))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	old := sampleSeries(time.Now().Add(-time.Hour), 1)
	old.Hourly[forecast.ParamPressure] = []float64{990}
	if err := s.WriteForecast(ctx, loc.ID, old); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Replacement carries fewer parameters; nothing from the old series may
	// survive.
	if err := s.WriteForecast(ctx, loc.ID, sampleSeries(time.Now(), 2)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	got, err := s.ReadForecast(ctx, "oslo")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Hourly[forecast.ParamTemperature][0] != 2 {
		t.Errorf("temperature = %v, want replacement value 2", got.Hourly[forecast.ParamTemperature][0])
	}
	if _, stale := got.Hourly[forecast.ParamPressure]; stale {
		t.Error("stale parameter survived a full series replacement")
	}
}

func TestWriteForecastUnknownLocation(t *testing.T) {
	s := NewMemoryStore()
	err := s.WriteForecast(context.Background(), uuid.New(), sampleSeries(time.Now(), 1))
	if !errors.Is(err, ErrLocationNotFound) {
		t.Errorf("err = %v, want ErrLocationNotFound", err)
	}
}

func TestReadForecastDistinguishesMissingStates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.CreateLocation(ctx, newLocation("uncached", 1, 2)); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := s.ReadForecast(ctx, "nowhere"); !errors.Is(err, ErrLocationNotFound) {
		t.Errorf("unknown name err = %v, want ErrLocationNotFound", err)
	}
	if _, err := s.ReadForecast(ctx, "uncached"); !errors.Is(err, ErrNoForecast) {
		t.Errorf("uncached err = %v, want ErrNoForecast", err)
	}
}

func TestLinkUserLocationAndFilteredListing(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "ada")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	mine, err := s.CreateLocation(ctx, newLocation("mine", 1, 1))
	if err != nil {
		t.Fatalf("create location: %v", err)
	}
	if _, err := s.CreateLocation(ctx, newLocation("other", 2, 2)); err != nil {
		t.Fatalf("create location: %v", err)
	}

	if err := s.LinkUserLocation(ctx, user.ID, mine.ID); err != nil {
		t.Fatalf("link: %v", err)
	}
	// Idempotent.
	if err := s.LinkUserLocation(ctx, user.ID, mine.ID); err != nil {
		t.Fatalf("relink: %v", err)
	}

	if err := s.LinkUserLocation(ctx, uuid.New(), mine.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown user err = %v, want ErrUserNotFound", err)
	}
	if err := s.LinkUserLocation(ctx, user.ID, uuid.New()); !errors.Is(err, ErrLocationNotFound) {
		t.Errorf("unknown location err = %v, want ErrLocationNotFound", err)
	}

	all, err := s.Locations(ctx, nil)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d locations, want 2", len(all))
	}

	filtered, err := s.Locations(ctx, &user.ID)
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != mine.ID {
		t.Fatalf("filtered listing = %+v, want only %s", filtered, mine.ID)
	}
}

func TestStatsTracksCoverage(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	fresh, err := s.CreateLocation(ctx, newLocation("fresh", 1, 1))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	stale, err := s.CreateLocation(ctx, newLocation("stale", 2, 2))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateLocation(ctx, newLocation("empty", 3, 3)); err != nil {
		t.Fatalf("create: %v", err)
	}

	oldest := time.Date(2025, 1, 15, 6, 0, 0, 0, time.UTC)
	if err := s.WriteForecast(ctx, stale.ID, sampleSeries(oldest, 1)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.WriteForecast(ctx, fresh.ID, sampleSeries(oldest.Add(2*time.Hour), 1)); err != nil {
		t.Fatalf("write: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Locations != 3 || stats.MissingForecast != 1 {
		t.Errorf("stats = %+v, want 3 locations with 1 missing", stats)
	}
	if !stats.OldestFetch.Equal(oldest) {
		t.Errorf("oldest fetch = %v, want %v", stats.OldestFetch, oldest)
	}
}
