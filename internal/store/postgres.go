package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/InOutLake/weatherio/internal/forecast"
)

// PostgresStore implements forecast.Store and forecast.Registry on
// PostgreSQL. Forecast writes are single-row UPDATEs, so a series is
// replaced atomically and readers never see a partial write.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore on an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the tables on first run.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			username TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS locations (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			latitude DOUBLE PRECISION NOT NULL,
			longitude DOUBLE PRECISION NOT NULL,
			forecast JSONB,
			fetched_at TIMESTAMPTZ,
			UNIQUE (name, latitude, longitude)
		);

		CREATE TABLE IF NOT EXISTS user_locations (
			user_id UUID REFERENCES users (id) ON DELETE CASCADE,
			location_id UUID REFERENCES locations (id) ON DELETE CASCADE,
			PRIMARY KEY (user_id, location_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("postgres: failed to ensure schema: %w", err)
	}
	return nil
}

// CreateUser registers a new user.
func (s *PostgresStore) CreateUser(ctx context.Context, name string) (forecast.User, error) {
	user := forecast.User{ID: uuid.New(), Name: name}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username) VALUES ($1, $2)`,
		user.ID, user.Name,
	)
	if err != nil {
		return forecast.User{}, fmt.Errorf("postgres: failed to create user: %w", err)
	}
	return user, nil
}

// CreateLocation stores a location, returning the existing one when the
// same name and coordinates are already registered.
func (s *PostgresStore) CreateLocation(ctx context.Context, loc forecast.Location) (forecast.Location, error) {
	var existing forecast.Location
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, latitude, longitude FROM locations
		 WHERE name = $1 AND latitude = $2 AND longitude = $3`,
		loc.Name, loc.Lat, loc.Lon,
	).Scan(&existing.ID, &existing.Name, &existing.Lat, &existing.Lon)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return forecast.Location{}, fmt.Errorf("postgres: failed to look up location: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO locations (id, name, latitude, longitude) VALUES ($1, $2, $3, $4)`,
		loc.ID, loc.Name, loc.Lat, loc.Lon,
	)
	if err != nil {
		return forecast.Location{}, fmt.Errorf("postgres: failed to create location: %w", err)
	}
	return loc, nil
}

// LinkUserLocation attaches a location to a user's list. Idempotent.
func (s *PostgresStore) LinkUserLocation(ctx context.Context, userID, locationID uuid.UUID) error {
	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: failed to check user: %w", err)
	}
	if !exists {
		return ErrUserNotFound
	}

	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM locations WHERE id = $1)`, locationID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: failed to check location: %w", err)
	}
	if !exists {
		return ErrLocationNotFound
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_locations (user_id, location_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		userID, locationID,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to link user and location: %w", err)
	}
	return nil
}

// Locations lists registered locations ordered by name, optionally filtered
// by user.
func (s *PostgresStore) Locations(ctx context.Context, userID *uuid.UUID) ([]forecast.Location, error) {
	query := `SELECT id, name, latitude, longitude FROM locations ORDER BY name`
	args := []any{}
	if userID != nil {
		query = `
			SELECT l.id, l.name, l.latitude, l.longitude
			FROM locations l
			JOIN user_locations ul ON l.id = ul.location_id
			WHERE ul.user_id = $1
			ORDER BY l.name
		`
		args = append(args, *userID)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query locations: %w", err)
	}
	defer rows.Close()

	var result []forecast.Location
	for rows.Next() {
		var loc forecast.Location
		if err := rows.Scan(&loc.ID, &loc.Name, &loc.Lat, &loc.Lon); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan location row: %w", err)
		}
		result = append(result, loc)
	}
	return result, rows.Err()
}

// ListLocationPage returns up to limit locations in id order, starting
// after cursor. Keyset paging keeps a refresh cycle from ever loading the
// full location set.
func (s *PostgresStore) ListLocationPage(ctx context.Context, cursor string, limit int) ([]forecast.LocationRef, string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, latitude, longitude FROM locations
		WHERE id::text > $1
		ORDER BY id::text
		LIMIT $2
	`, cursor, limit)
	if err != nil {
		return nil, "", fmt.Errorf("postgres: failed to query location page: %w", err)
	}
	defer rows.Close()

	var refs []forecast.LocationRef
	for rows.Next() {
		var ref forecast.LocationRef
		if err := rows.Scan(&ref.ID, &ref.Lat, &ref.Lon); err != nil {
			return nil, "", fmt.Errorf("postgres: failed to scan location page row: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("postgres: failed to read location page: %w", err)
	}

	next := ""
	if len(refs) == limit {
		next = refs[len(refs)-1].ID.String()
	}
	return refs, next, nil
}

// WriteForecast fully replaces the cached series for a location.
func (s *PostgresStore) WriteForecast(ctx context.Context, id uuid.UUID, series forecast.Series) error {
	payload, err := json.Marshal(series)
	if err != nil {
		return fmt.Errorf("postgres: failed to encode series: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE locations SET forecast = $1, fetched_at = $2 WHERE id = $3`,
		payload, series.FetchedAt, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: failed to write forecast: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLocationNotFound
	}
	return nil
}

// ReadForecast returns the cached series for the named location.
func (s *PostgresStore) ReadForecast(ctx context.Context, name string) (forecast.Series, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT forecast FROM locations WHERE name = $1`, name,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return forecast.Series{}, ErrLocationNotFound
	}
	if err != nil {
		return forecast.Series{}, fmt.Errorf("postgres: failed to read forecast: %w", err)
	}
	if payload == nil {
		return forecast.Series{}, ErrNoForecast
	}

	var series forecast.Series
	if err := json.Unmarshal(payload, &series); err != nil {
		return forecast.Series{}, fmt.Errorf("postgres: failed to decode series: %w", err)
	}
	return series, nil
}

// Stats summarizes cache coverage.
func (s *PostgresStore) Stats(ctx context.Context) (forecast.StoreStats, error) {
	var stats forecast.StoreStats
	var oldest *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE forecast IS NULL), MIN(fetched_at)
		FROM locations
	`).Scan(&stats.Locations, &stats.MissingForecast, &oldest)
	if err != nil {
		return forecast.StoreStats{}, fmt.Errorf("postgres: failed to query stats: %w", err)
	}
	if oldest != nil {
		stats.OldestFetch = *oldest
	}
	return stats, nil
}

// Health checks database connectivity.
func (s *PostgresStore) Health(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: health check failed: %w", err)
	}
	return nil
}
