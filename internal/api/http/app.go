package httpapi

import (
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/i474232898/artist-trends/internal/trends"
)

const serviceName = "google-trends"

// serverError is a 5xx response carrying the endpoint's message and its cause.
type serverError struct {
	Code    int
	Message string
	Err     error
}

func (e *serverError) Error() string { return e.Message + ": " + e.Err.Error() }

func (e *serverError) Unwrap() error { return e.Err }

// Options tweak the app for tests.
type Options struct {
	// AccessLog enables the per-request access log.
	AccessLog bool
}

// NewApp builds the Fiber app with middleware, health, metrics and the trends
// routes.
func NewApp(service *trends.Service, log zerolog.Logger, opts Options) *fiber.App {
	log = log.With().Str("component", "http").Logger()

	app := fiber.New(fiber.Config{
		AppName:               "artist-trends",
		DisableStartupMessage: true,
		Immutable:             true,
		ReadTimeout:           10 * time.Second,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          errorHandler(log),
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(cors.New())
	if opts.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}?${queryParams}\n",
		}))
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": serviceName,
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	RegisterRoutes(app, service)
	return app
}

// errorHandler renders client errors as {"error"} and server errors as
// {"error","details","status"}.
func errorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var se *serverError
		if errors.As(err, &se) {
			log.Error().Err(se.Err).Str("path", c.Path()).Msg(se.Message)
			return c.Status(se.Code).JSON(fiber.Map{
				"error":   se.Message,
				"details": se.Err.Error(),
				"status":  trends.StatusError,
			})
		}

		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code < fiber.StatusInternalServerError {
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		}

		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return c.Status(code).JSON(fiber.Map{
			"error":   "Internal server error",
			"details": err.Error(),
			"status":  trends.StatusError,
		})
	}
}
