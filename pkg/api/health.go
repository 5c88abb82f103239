package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/learnizone/enrollcore/pkg/metrics"
)

// health is a liveness check: 200 while the process serves requests
func (s *Server) health(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(metrics.GetHealth())
}

// ready runs the registered checks and reports 503 until the critical
// components are healthy
func (s *Server) ready(c *fiber.Ctx) error {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	metrics.RunChecks(ctx)
	status := metrics.GetReadiness()
	if status.Status != metrics.StatusReady {
		return c.Status(fiber.StatusServiceUnavailable).JSON(status)
	}
	return c.Status(fiber.StatusOK).JSON(status)
}

func metricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(metrics.Handler())
}
