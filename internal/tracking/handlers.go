package tracking

import (
	"backend-fieldops/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/sessions", authMiddleware, func(c *fiber.Ctx) error {
		var req OpenRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		res, err := svc.Open(c.Context(), callerID(c), req)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	})

	r.Post("/sessions/:id/coordinates", authMiddleware, func(c *fiber.Ctx) error {
		var req IngestRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		res, err := svc.Ingest(c.Context(), c.Params("id"), callerID(c), req.Coordinates)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(res)
	})

	r.Post("/sessions/:id/close", authMiddleware, func(c *fiber.Ctx) error {
		var req CloseRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		res, err := svc.Close(c.Context(), c.Params("id"), callerID(c), req)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(res)
	})

	r.Post("/sessions/:id/force-close", authMiddleware, func(c *fiber.Ctx) error {
		var req ForceCloseRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		res, err := svc.ForceClose(c.Context(), c.Params("id"), callerID(c), req.Reason)
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(res)
	})

	r.Get("/sessions/:id", authMiddleware, func(c *fiber.Ctx) error {
		sess, err := svc.Get(c.Context(), c.Params("id"), callerID(c))
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(sess)
	})

	r.Get("/sessions/:id/points", authMiddleware, func(c *fiber.Ctx) error {
		points, err := svc.Points(c.Context(), c.Params("id"), callerID(c))
		if err != nil {
			return apperr.ToFiber(err)
		}
		return c.JSON(points)
	})
}

func callerID(c *fiber.Ctx) string {
	if id, ok := c.Locals("user_id").(string); ok {
		return id
	}
	return ""
}
