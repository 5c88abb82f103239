package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/learnizone/enrollcore/pkg/metrics"
)

// instrument records request metrics and a debug log line per request
func (s *Server) instrument() fiber.Handler {
	return func(c *fiber.Ctx) error {
		timer := metrics.NewTimer()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = statusFor(err)
		}
		route := c.Route().Path
		method := c.Method()

		metrics.APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, method, route)

		s.logger.Debug().
			Str("method", method).
			Str("path", c.Path()).
			Int("status", status).
			Dur("duration", timer.Duration()).
			Msg("Request handled")
		return err
	}
}
