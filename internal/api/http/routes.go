package httpapi

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/InOutLake/weatherio/internal/forecast"
	"github.com/InOutLake/weatherio/internal/store"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *forecast.Service) {
	v1 := app.Group("/api/v1")

	v1.Post("/users", func(c *fiber.Ctx) error {
		var req createUserRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		user, err := service.RegisterUser(c.Context(), req.Name)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to register user")
		}
		return c.JSON(user)
	})

	v1.Post("/cities", func(c *fiber.Ctx) error {
		var req createCityRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		loc, err := service.RegisterLocation(c.Context(), req.Name, req.Lat, req.Lon)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to register city")
		}

		if raw := c.Query("user_id"); raw != "" {
			userID, err := uuid.Parse(raw)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid user_id")
			}
			if err := service.LinkUserLocation(c.Context(), userID, loc.ID); err != nil {
				if errors.Is(err, store.ErrUserNotFound) {
					return fiber.NewError(fiber.StatusNotFound, "user is not registered")
				}
				return fiber.NewError(fiber.StatusInternalServerError, "failed to link city to user")
			}
		}

		return c.JSON(loc)
	})

	v1.Get("/cities", func(c *fiber.Ctx) error {
		var userID *uuid.UUID
		if raw := c.Query("user_id"); raw != "" {
			parsed, err := uuid.Parse(raw)
			if err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid user_id")
			}
			userID = &parsed
		}

		locs, err := service.Locations(c.Context(), userID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list cities")
		}
		if locs == nil {
			locs = []forecast.Location{}
		}
		return c.JSON(locs)
	})

	v1.Get("/weather/current", func(c *fiber.Ctx) error {
		coords, err := parseCoordinatesQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		instant, err := service.CurrentConditions(c.Context(), coords.Lat, coords.Lon)
		if err != nil {
			if errors.Is(err, forecast.ErrUpstreamUnavailable) {
				return fiber.NewError(fiber.StatusServiceUnavailable, "weather provider is unavailable")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch current weather")
		}
		return c.JSON(instant)
	})

	v1.Get("/weather/city/:name", func(c *fiber.Ctx) error {
		name := c.Params("name")

		at, err := forecast.ParseTimeOfDay(c.Query("time"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		include, err := parseIncludeQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		values, err := service.WeatherAt(c.Context(), name, at, include)
		switch {
		case errors.Is(err, store.ErrLocationNotFound):
			return fiber.NewError(fiber.StatusNotFound, "city is not registered")
		case errors.Is(err, store.ErrNoForecast):
			return fiber.NewError(fiber.StatusNotFound, "forecast is not available yet for this city")
		case errors.Is(err, forecast.ErrOutOfRange):
			return fiber.NewError(fiber.StatusNotFound, "no forecast data for the requested time")
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read forecast")
		}

		return c.JSON(weatherResponse{
			CityName: forecast.NormalizeName(name),
			Time:     at.String(),
			Data:     values,
		})
	})
}

// createUserRequest holds the body of a user registration.
type createUserRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}

// createCityRequest holds the body of a city registration.
type createCityRequest struct {
	Name string  `json:"name" validate:"required,min=1,max=64"`
	Lat  float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon  float64 `json:"lon" validate:"gte=-180,lte=180"`
}

// weatherResponse is the point-in-time weather projection for one city.
type weatherResponse struct {
	CityName string                         `json:"city_name"`
	Time     string                         `json:"time"`
	Data     map[forecast.Parameter]float64 `json:"data"`
}

func parseCoordinatesQuery(c *fiber.Ctx) (forecast.Coordinates, error) {
	var q struct {
		Lat float64 `validate:"gte=-90,lte=90"`
		Lon float64 `validate:"gte=-180,lte=180"`
	}

	latStr := c.Query("lat")
	lonStr := c.Query("lon")
	if latStr == "" || lonStr == "" {
		return forecast.Coordinates{}, errors.New("lat and lon query parameters are required")
	}

	var err error
	if q.Lat, err = strconv.ParseFloat(latStr, 64); err != nil {
		return forecast.Coordinates{}, errors.New("invalid lat")
	}
	if q.Lon, err = strconv.ParseFloat(lonStr, 64); err != nil {
		return forecast.Coordinates{}, errors.New("invalid lon")
	}

	if err := validate.Struct(q); err != nil {
		return forecast.Coordinates{}, err
	}
	return forecast.Coordinates{Lat: q.Lat, Lon: q.Lon}, nil
}

// parseIncludeQuery reads the repeated include parameter and rejects keys
// outside the recognized parameter set.
func parseIncludeQuery(c *fiber.Ctx) ([]forecast.Parameter, error) {
	raw := c.Context().QueryArgs().PeekMulti("include")
	if len(raw) == 0 {
		return nil, errors.New("at least one include parameter is required")
	}

	include := make([]forecast.Parameter, 0, len(raw))
	for _, r := range raw {
		p, err := forecast.ParseParameter(string(r))
		if err != nil {
			return nil, err
		}
		include = append(include, p)
	}
	return include, nil
}
