package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/InOutLake/weatherio/internal/forecast"
)

// Open-Meteo returns ISO-8601 timestamps without an offset.
const hourLayout = "2006-01-02T15:04"

var errServerError = errors.New("upstream server error")

// Config controls endpoint and retry behaviour for upstream calls.
type Config struct {
	BaseURL     string
	MaxAttempts int           // total attempts per call
	RetryWait   time.Duration // fixed wait between attempts
}

// Client fetches hourly forecast series and instant conditions from
// Open-Meteo. It holds no cache; retry and circuit breaking live here and
// nowhere else.
type Client struct {
	httpClient *http.Client
	cfg        Config
	circuit    *gobreaker.CircuitBreaker

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error
}

// NewClient creates a Client. Zero config fields fall back to the
// Open-Meteo defaults: 3 attempts, 10s between them.
func NewClient(httpClient *http.Client, cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.open-meteo.com/v1/forecast"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 10 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openmeteo",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		httpClient: httpClient,
		cfg:        cfg,
		circuit:    cb,
		now:        time.Now,
		wait:       waitContext,
	}
}

// FetchMany requests one batched forecast covering every coordinate pair
// and returns one series per pair, in input order. The requested window
// starts at the top of the current hour and covers horizonHours hourly
// points. An empty input is a local no-op.
func (c *Client) FetchMany(ctx context.Context, coords []forecast.Coordinates, horizonHours int) ([]forecast.Series, error) {
	if len(coords) == 0 {
		return nil, nil
	}

	lats := make([]string, len(coords))
	lons := make([]string, len(coords))
	for i, co := range coords {
		lats[i] = formatCoord(co.Lat)
		lons[i] = formatCoord(co.Lon)
	}

	params := forecast.Parameters()
	keys := make([]string, len(params))
	for i, p := range params {
		keys[i] = string(p)
	}

	start := c.now().Truncate(time.Hour)

	values := url.Values{}
	values.Set("latitude", strings.Join(lats, ","))
	values.Set("longitude", strings.Join(lons, ","))
	values.Set("hourly", strings.Join(keys, ","))
	values.Set("timezone", "auto")
	values.Set("start_hour", start.Format(hourLayout))
	values.Set("end_hour", start.Add(time.Duration(horizonHours-1)*time.Hour).Format(hourLayout))

	body, err := c.getWithRetry(ctx, values)
	if err != nil {
		return nil, err
	}

	payloads, err := decodePayloads(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", forecast.ErrUpstreamUnavailable, err)
	}

	fetchedAt := c.now().UTC()
	series := make([]forecast.Series, 0, len(payloads))
	for _, p := range payloads {
		s, err := p.toSeries(fetchedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", forecast.ErrUpstreamUnavailable, err)
		}
		series = append(series, s)
	}
	return series, nil
}

// FetchInstant returns current conditions for a single coordinate pair.
func (c *Client) FetchInstant(ctx context.Context, lat, lon float64) (forecast.Instant, error) {
	values := url.Values{}
	values.Set("latitude", formatCoord(lat))
	values.Set("longitude", formatCoord(lon))
	values.Set("current", "temperature_2m,wind_speed_10m,surface_pressure")

	body, err := c.getWithRetry(ctx, values)
	if err != nil {
		return forecast.Instant{}, err
	}

	var payload struct {
		Current struct {
			Time        string  `json:"time"`
			Temperature float64 `json:"temperature_2m"`
			WindSpeed   float64 `json:"wind_speed_10m"`
			Pressure    float64 `json:"surface_pressure"`
		} `json:"current"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return forecast.Instant{}, fmt.Errorf("%w: %v", forecast.ErrUpstreamUnavailable, err)
	}

	ts, err := time.Parse(hourLayout, payload.Current.Time)
	if err != nil {
		ts = c.now().UTC()
	}

	return forecast.Instant{
		Temperature: payload.Current.Temperature,
		WindSpeed:   payload.Current.WindSpeed,
		Pressure:    payload.Current.Pressure,
		Time:        ts,
	}, nil
}

// getWithRetry performs the request through the circuit breaker with up to
// MaxAttempts attempts and a fixed wait between them. Client errors (4xx)
// are never retried; server errors and connection failures are, and
// exhausting the attempts maps to ErrUpstreamUnavailable.
func (c *Client) getWithRetry(ctx context.Context, values url.Values) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := c.wait(ctx, c.cfg.RetryWait); err != nil {
				return nil, err
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		body, err := c.getOnce(ctx, values)
		if err == nil {
			return body, nil
		}
		if errors.Is(err, forecast.ErrUpstreamBadRequest) {
			return nil, err
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", forecast.ErrUpstreamUnavailable)
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %v", forecast.ErrUpstreamUnavailable, lastErr)
}

func (c *Client) getOnce(ctx context.Context, values url.Values) ([]byte, error) {
	u := c.cfg.BaseURL + "?" + values.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", forecast.ErrUpstreamBadRequest, err)
	}

	result, err := c.circuit.Execute(func() (interface{}, error) {
		resp, doErr := c.httpClient.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: status %d", errServerError, resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("%w: status %d", forecast.ErrUpstreamBadRequest, resp.StatusCode)
		}

		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, readErr
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}

	body, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return body, nil
}

// forecastPayload mirrors one Open-Meteo response object: an hourly block
// with a time axis and one index-aligned list per requested parameter.
type forecastPayload struct {
	Hourly struct {
		Time          []string  `json:"time"`
		Temperature   []float64 `json:"temperature_2m"`
		Humidity      []float64 `json:"relative_humidity_2m"`
		Precipitation []float64 `json:"precipitation"`
		WindSpeed     []float64 `json:"wind_speed_10m"`
		Pressure      []float64 `json:"surface_pressure"`
	} `json:"hourly"`
}

func (p forecastPayload) toSeries(fetchedAt time.Time) (forecast.Series, error) {
	if len(p.Hourly.Time) == 0 {
		return forecast.Series{}, errors.New("hourly payload has no time axis")
	}
	start, err := time.Parse(hourLayout, p.Hourly.Time[0])
	if err != nil {
		return forecast.Series{}, fmt.Errorf("bad hourly timestamp %q: %v", p.Hourly.Time[0], err)
	}

	hourly := map[forecast.Parameter][]float64{
		forecast.ParamTemperature:   p.Hourly.Temperature,
		forecast.ParamHumidity:      p.Hourly.Humidity,
		forecast.ParamPrecipitation: p.Hourly.Precipitation,
		forecast.ParamWindSpeed:     p.Hourly.WindSpeed,
		forecast.ParamPressure:      p.Hourly.Pressure,
	}
	for key, vals := range hourly {
		if len(vals) != len(p.Hourly.Time) {
			return forecast.Series{}, fmt.Errorf("parameter %s not aligned with time axis", key)
		}
	}

	return forecast.Series{
		StartTime: start.Truncate(time.Hour),
		Hourly:    hourly,
		FetchedAt: fetchedAt,
	}, nil
}

// decodePayloads normalizes the Open-Meteo response shape: a bare object
// for a single coordinate, an array for several.
func decodePayloads(body []byte) ([]forecastPayload, error) {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var many []forecastPayload
		if err := json.Unmarshal(trimmed, &many); err != nil {
			return nil, err
		}
		return many, nil
	}

	var one forecastPayload
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, err
	}
	return []forecastPayload{one}, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func waitContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
