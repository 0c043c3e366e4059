package httpapi

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/artist-trends/internal/trends"
)

const missingArtistMessage = "Artist name is required"

var validate = validator.New()

// RegisterRoutes wires the trends handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *trends.Service) {
	t := app.Group("/trends")

	t.Get("/interest", func(c *fiber.Ctx) error {
		q, err := parseArtistQuery(c)
		if err != nil {
			return err
		}

		report, err := service.InterestOverTime(c.UserContext(), q.Artist)
		if err != nil {
			return failure("Failed to fetch trends data", err)
		}
		return c.JSON(report)
	})

	t.Get("/regional", func(c *fiber.Ctx) error {
		q, err := parseArtistQuery(c)
		if err != nil {
			return err
		}

		report, err := service.RegionalInterest(c.UserContext(), q.Artist)
		if err != nil {
			return failure("Failed to fetch regional trends data", err)
		}
		return c.JSON(report)
	})

	t.Get("/related", func(c *fiber.Ctx) error {
		q, err := parseArtistQuery(c)
		if err != nil {
			return err
		}

		report, err := service.RelatedQueries(c.UserContext(), q.Artist)
		if err != nil {
			return failure("Failed to fetch related queries", err)
		}
		return c.JSON(report)
	})

	t.Get("/trending", func(c *fiber.Ctx) error {
		country := c.Query("country", trends.DefaultCountry)

		report, err := service.TrendingSearches(c.UserContext(), country)
		if err != nil {
			return failure("Failed to fetch trending searches", err)
		}
		return c.JSON(report)
	})
}

// artistQuery holds the query parameters of the artist endpoints.
type artistQuery struct {
	Artist string `validate:"required"`
}

func parseArtistQuery(c *fiber.Ctx) (artistQuery, error) {
	q := artistQuery{Artist: c.Query("artist")}
	if err := validate.Struct(q); err != nil {
		return q, fiber.NewError(fiber.StatusBadRequest, missingArtistMessage)
	}
	return q, nil
}

// failure maps a service error onto the API's error shapes.
func failure(message string, err error) error {
	if errors.Is(err, trends.ErrMissingParameter) {
		return fiber.NewError(fiber.StatusBadRequest, missingArtistMessage)
	}
	return &serverError{Code: fiber.StatusInternalServerError, Message: message, Err: err}
}
