package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/InOutLake/weatherio/internal/forecast"
)

var (
	// ErrLocationNotFound is returned when a location is not registered.
	ErrLocationNotFound = errors.New("location is not registered")

	// ErrNoForecast is returned when a registered location has no cached
	// forecast yet. Distinct from ErrLocationNotFound so callers can answer
	// "not registered" and "not fetched yet" differently.
	ErrNoForecast = errors.New("no forecast cached for location")

	// ErrUserNotFound is returned when a user is not registered.
	ErrUserNotFound = errors.New("user is not registered")
)

type locationRecord struct {
	loc    forecast.Location
	series *forecast.Series
}

// MemoryStore is a concurrency-safe in-memory implementation of
// forecast.Store and forecast.Registry. It backs tests and lets the service
// run without a database.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[uuid.UUID]forecast.User
	locations map[uuid.UUID]*locationRecord
	links     map[uuid.UUID]map[uuid.UUID]struct{} // user id -> location ids
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[uuid.UUID]forecast.User),
		locations: make(map[uuid.UUID]*locationRecord),
		links:     make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

// CreateUser registers a new user.
func (s *MemoryStore) CreateUser(ctx context.Context, name string) (forecast.User, error) {
	user := forecast.User{ID: uuid.New(), Name: name}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[user.ID] = user
	return user, nil
}

// CreateLocation stores a location, returning the existing one when the
// same name and coordinates are already registered.
func (s *MemoryStore) CreateLocation(ctx context.Context, loc forecast.Location) (forecast.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.locations {
		if rec.loc.Name == loc.Name && rec.loc.Lat == loc.Lat && rec.loc.Lon == loc.Lon {
			return rec.loc, nil
		}
	}

	s.locations[loc.ID] = &locationRecord{loc: loc}
	return loc, nil
}

// LinkUserLocation attaches a location to a user's list. Idempotent.
func (s *MemoryStore) LinkUserLocation(ctx context.Context, userID, locationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return ErrUserNotFound
	}
	if _, ok := s.locations[locationID]; !ok {
		return ErrLocationNotFound
	}

	set, ok := s.links[userID]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		s.links[userID] = set
	}
	set[locationID] = struct{}{}
	return nil
}

// Locations lists registered locations ordered by name, optionally filtered
// by user.
func (s *MemoryStore) Locations(ctx context.Context, userID *uuid.UUID) ([]forecast.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []forecast.Location
	for id, rec := range s.locations {
		if userID != nil {
			if _, linked := s.links[*userID][id]; !linked {
				continue
			}
		}
		result = append(result, rec.loc)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// ListLocationPage returns up to limit locations ordered by id string,
// starting after cursor.
func (s *MemoryStore) ListLocationPage(ctx context.Context, cursor string, limit int) ([]forecast.LocationRef, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.locations))
	for id := range s.locations {
		ids = append(ids, id.String())
	}
	sort.Strings(ids)

	var refs []forecast.LocationRef
	for _, id := range ids {
		if cursor != "" && id <= cursor {
			continue
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		rec := s.locations[parsed]
		refs = append(refs, forecast.LocationRef{
			ID:          rec.loc.ID,
			Coordinates: forecast.Coordinates{Lat: rec.loc.Lat, Lon: rec.loc.Lon},
		})
		if len(refs) == limit {
			break
		}
	}

	next := ""
	if len(refs) == limit {
		next = refs[len(refs)-1].ID.String()
	}
	return refs, next, nil
}

// WriteForecast fully replaces the cached series for a location. The
// replacement is a single pointer swap under the lock, so readers see
// either the old series or the new one, never a mix.
func (s *MemoryStore) WriteForecast(ctx context.Context, id uuid.UUID, series forecast.Series) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.locations[id]
	if !ok {
		return ErrLocationNotFound
	}
	rec.series = &series
	return nil
}

// ReadForecast returns the cached series for the named location.
func (s *MemoryStore) ReadForecast(ctx context.Context, name string) (forecast.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.locations {
		if rec.loc.Name != name {
			continue
		}
		if rec.series == nil {
			return forecast.Series{}, ErrNoForecast
		}
		return *rec.series, nil
	}
	return forecast.Series{}, ErrLocationNotFound
}

// Stats summarizes cache coverage.
func (s *MemoryStore) Stats(ctx context.Context) (forecast.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := forecast.StoreStats{Locations: len(s.locations)}
	for _, rec := range s.locations {
		if rec.series == nil {
			stats.MissingForecast++
			continue
		}
		if stats.OldestFetch.IsZero() || rec.series.FetchedAt.Before(stats.OldestFetch) {
			stats.OldestFetch = rec.series.FetchedAt
		}
	}
	return stats, nil
}

// Health always succeeds for the in-memory store.
func (s *MemoryStore) Health(ctx context.Context) error {
	return nil
}
