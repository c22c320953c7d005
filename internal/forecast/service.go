package forecast

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// Service orchestrates registration, cached forecast reads, and synchronous
// upstream lookups. The refresh loop writes through the same Store
// concurrently; reads here never wait on it.
type Service struct {
	store    Store
	registry Registry
	fetcher  Fetcher

	now func() time.Time
}

// NewService creates a new Service.
func NewService(store Store, registry Registry, fetcher Fetcher) *Service {
	return &Service{
		store:    store,
		registry: registry,
		fetcher:  fetcher,
		now:      time.Now,
	}
}

// RegisterUser creates a new user.
func (s *Service) RegisterUser(ctx context.Context, name string) (User, error) {
	return s.registry.CreateUser(ctx, name)
}

// RegisterLocation stores a new location and fetches its first forecast
// best-effort. Upstream being down at registration time is a recoverable
// state: the location is created uncached and picked up by the next refresh
// cycle.
func (s *Service) RegisterLocation(ctx context.Context, name string, lat, lon float64) (Location, error) {
	loc := Location{
		ID:   uuid.New(),
		Name: NormalizeName(name),
		Lat:  QuantizeCoordinate(lat),
		Lon:  QuantizeCoordinate(lon),
	}

	created, err := s.registry.CreateLocation(ctx, loc)
	if err != nil {
		return Location{}, err
	}
	if created.ID != loc.ID {
		// Existing registration; its cached series stays in place.
		return created, nil
	}

	series, err := s.fetcher.FetchMany(ctx, []Coordinates{{Lat: created.Lat, Lon: created.Lon}}, HorizonHours)
	if err != nil {
		log.Printf("initial forecast fetch failed for %s: %v", created.Name, err)
		return created, nil
	}
	if len(series) == 1 {
		if err := s.store.WriteForecast(ctx, created.ID, series[0]); err != nil {
			log.Printf("initial forecast write failed for %s: %v", created.Name, err)
		}
	}
	return created, nil
}

// LinkUserLocation attaches an existing location to a user's list.
func (s *Service) LinkUserLocation(ctx context.Context, userID, locationID uuid.UUID) error {
	return s.registry.LinkUserLocation(ctx, userID, locationID)
}

// Locations lists registered locations, optionally filtered by user.
func (s *Service) Locations(ctx context.Context, userID *uuid.UUID) ([]Location, error) {
	return s.registry.Locations(ctx, userID)
}

// CurrentConditions fetches an instant snapshot straight from upstream.
// Upstream errors propagate so the caller decides the user-facing response.
func (s *Service) CurrentConditions(ctx context.Context, lat, lon float64) (Instant, error) {
	return s.fetcher.FetchInstant(ctx, lat, lon)
}

// WeatherAt resolves a time of day against the cached series for the named
// location and projects the requested parameters at the resolved index. One
// index is computed and applied uniformly across all parameter sequences.
func (s *Service) WeatherAt(ctx context.Context, name string, at TimeOfDay, include []Parameter) (map[Parameter]float64, error) {
	series, err := s.store.ReadForecast(ctx, NormalizeName(name))
	if err != nil {
		return nil, err
	}

	index, err := ResolveIndex(series.StartTime, at, s.now(), HorizonHours)
	if err != nil {
		return nil, err
	}

	values := make(map[Parameter]float64, len(include))
	for _, p := range include {
		seq, ok := series.Hourly[p]
		if !ok || index >= len(seq) {
			return nil, ErrOutOfRange
		}
		values[p] = seq[index]
	}
	return values, nil
}
