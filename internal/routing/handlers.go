package routing

import (
	"backend-fieldops/internal/gps"

	"github.com/gofiber/fiber/v2"
)

type estimateRequest struct {
	Coordinates []gps.RawSample `json:"coordinates"`
	Mode        TravelMode      `json:"mode"`
}

// RegisterRoutes exposes ad-hoc distance estimation, used by planners to
// price a route before any session exists. Estimates go through the
// cache; path geometry asks OSRM directly.
func RegisterRoutes(r fiber.Router, cache *Cache, calc *Calculator, authMiddleware fiber.Handler) {
	r.Post("/estimate", authMiddleware, func(c *fiber.Ctx) error {
		samples, mode, err := parseEstimate(c)
		if err != nil {
			return err
		}
		return c.JSON(cache.GetOrCompute(c.Context(), samples, mode))
	})

	r.Post("/path", authMiddleware, func(c *fiber.Ctx) error {
		samples, mode, err := parseEstimate(c)
		if err != nil {
			return err
		}
		return c.JSON(calc.Path(c.Context(), gps.Points(samples), mode))
	})
}

func parseEstimate(c *fiber.Ctx) ([]gps.Sample, TravelMode, error) {
	var req estimateRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, "", fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if len(req.Coordinates) < 2 {
		return nil, "", fiber.NewError(fiber.StatusBadRequest, "at least two coordinates required")
	}

	var samples []gps.Sample
	for _, raw := range req.Coordinates {
		sample, ok := gps.Sanitize(raw)
		if !ok || !gps.Validate(sample, gps.DefaultMaxAccuracyM).Valid {
			continue
		}
		samples = append(samples, sample)
	}
	if len(samples) < 2 {
		return nil, "", fiber.NewError(fiber.StatusBadRequest, "not enough valid coordinates")
	}

	mode := req.Mode
	if mode == "" {
		mode = ModeDriving
	}
	return samples, mode, nil
}
