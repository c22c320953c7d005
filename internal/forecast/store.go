package forecast

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUpstreamUnavailable means the provider exhausted retries or failed
	// with a server-side or connectivity error. Recoverable: cached series
	// stay in place and the next refresh cycle tries again.
	ErrUpstreamUnavailable = errors.New("upstream weather provider unavailable")

	// ErrUpstreamBadRequest means the outbound request was malformed. Never
	// retried.
	ErrUpstreamBadRequest = errors.New("bad request to upstream weather provider")
)

// Fetcher abstracts the upstream forecast provider.
type Fetcher interface {
	// FetchMany returns one series per coordinate pair, in input order. An
	// empty input returns an empty result without a network call.
	FetchMany(ctx context.Context, coords []Coordinates, horizonHours int) ([]Series, error)

	// FetchInstant returns current conditions for one coordinate pair.
	FetchInstant(ctx context.Context, lat, lon float64) (Instant, error)
}

// Store is the durable forecast store shared by the refresh loop and the
// request path. Implementations must make each WriteForecast atomically
// visible so readers never observe a half-written series.
type Store interface {
	// ListLocationPage returns up to limit locations ordered by id, starting
	// after cursor ("" for the first page). The returned cursor is "" when
	// no pages remain. Listing is restartable from "" at any time.
	ListLocationPage(ctx context.Context, cursor string, limit int) ([]LocationRef, string, error)

	// WriteForecast fully replaces the cached series for a location.
	WriteForecast(ctx context.Context, id uuid.UUID, s Series) error

	// ReadForecast returns the cached series for the named location. A
	// registered location with nothing cached yet is reported distinctly
	// from an unknown location.
	ReadForecast(ctx context.Context, name string) (Series, error)

	// Stats summarizes cache coverage for monitoring.
	Stats(ctx context.Context) (StoreStats, error)

	// Health checks connectivity to the backing store.
	Health(ctx context.Context) error
}

// Registry is the user and location registration surface of the store.
type Registry interface {
	CreateUser(ctx context.Context, name string) (User, error)

	// CreateLocation stores a location, or returns the existing one when the
	// same name and quantized coordinates are already registered.
	CreateLocation(ctx context.Context, loc Location) (Location, error)

	LinkUserLocation(ctx context.Context, userID, locationID uuid.UUID) error

	// Locations lists registered locations, optionally filtered by user.
	Locations(ctx context.Context, userID *uuid.UUID) ([]Location, error)
}

// StoreStats is a point-in-time summary of cache coverage.
type StoreStats struct {
	Locations       int
	MissingForecast int
	OldestFetch     time.Time
}
