package httpapi

import (
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/radar-data-cache/internal/radar"
	"github.com/i474232898/radar-data-cache/internal/scheduler"
	"github.com/i474232898/radar-data-cache/internal/store"
)

var validate = validator.New()

// StatsSource reports scheduler counters for the health endpoint.
type StatsSource interface {
	Stats() scheduler.Stats
}

// RegisterHealth adds GET /health. stats may be nil.
func RegisterHealth(app *fiber.App, service *radar.Service, stats StatsSource) {
	app.Get("/health", func(c *fiber.Ctx) error {
		body := fiber.Map{
			"status":   "ok",
			"service":  "radar-data-cache",
			"capacity": service.Capacity(),
		}
		if stats != nil {
			body["scheduler"] = stats.Stats()
		}
		return c.JSON(body)
	})
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *radar.Service) {
	v1 := app.Group("/api/v1/radar")

	v1.Get("/frames", func(c *fiber.Ctx) error {
		frames, err := service.Frames()
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list cached frames")
		}

		return c.JSON(fiber.Map{
			"capacity": service.Capacity(),
			"frames":   frames,
		})
	})

	v1.Get("/frames/latest", func(c *fiber.Ctx) error {
		path, err := service.LatestPath()
		if err != nil {
			return frameError(err)
		}
		return c.SendFile(path)
	})

	v1.Get("/frames/:name", func(c *fiber.Ctx) error {
		name, err := url.PathUnescape(c.Params("name"))
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid frame name")
		}
		path, err := service.FramePath(name)
		if err != nil {
			return frameError(err)
		}
		return c.SendFile(path)
	})

	v1.Post("/fetch", func(c *fiber.Ctx) error {
		name, err := service.FetchLatest(c.UserContext())
		if err != nil {
			if errors.Is(err, store.ErrFetch) {
				return fiber.NewError(fiber.StatusBadGateway, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch radar frame")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"name": name})
	})

	v1.Get("/available", func(c *fiber.Ctx) error {
		var req availableQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		frames, err := service.Available(c.UserContext(), req.toQuery())
		if err != nil {
			if errors.Is(err, radar.ErrNoCatalog) {
				return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
			}
			return fiber.NewError(fiber.StatusBadGateway, "failed to list available radar maps")
		}

		body := fiber.Map{"frames": frames}
		if !req.From.IsZero() {
			body["from"] = req.From
		}
		if !req.To.IsZero() {
			body["to"] = req.To
		}
		return c.JSON(body)
	})
}

func frameError(err error) error {
	switch {
	case errors.Is(err, store.ErrInvalidName):
		return fiber.NewError(fiber.StatusBadRequest, "invalid frame name")
	case errors.Is(err, store.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "radar frame not found")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "failed to read radar frame")
	}
}

// availableQuery holds query parameters for the catalog endpoint. Both bounds
// are optional.
type availableQuery struct {
	StoredQuery string    `validate:"omitempty,max=128"`
	From        time.Time `validate:"-"`
	To          time.Time `validate:"-"`
}

// timeRange is validated only when both bounds are given.
type timeRange struct {
	From time.Time `validate:"required"`
	To   time.Time `validate:"required,gtefield=From"`
}

func (a *availableQuery) bind(c *fiber.Ctx) error {
	a.StoredQuery = c.Query("storedquery")

	if s := c.Query("from"); s != "" {
		from, err := parseTime(s)
		if err != nil {
			return err
		}
		a.From = from
	}
	if s := c.Query("to"); s != "" {
		to, err := parseTime(s)
		if err != nil {
			return err
		}
		a.To = to
	}

	if err := validate.Struct(a); err != nil {
		return err
	}
	if !a.From.IsZero() && !a.To.IsZero() {
		if err := validate.Struct(timeRange{From: a.From, To: a.To}); err != nil {
			return errors.New("to must not be before from")
		}
	}
	return nil
}

func (a availableQuery) toQuery() radar.Query {
	return radar.Query{
		StoredQueryID: a.StoredQuery,
		Start:         a.From,
		End:           a.To,
	}
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC(), nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
