package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"
)

// AccessLogMiddleware logs each request with its status, latency and request
// ID. 4xx responses log at warn, 5xx and handler errors at error.
func AccessLogMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		path := c.Path()
		method := c.Method()

		err := c.Next()

		status := c.Response().StatusCode()
		reqID, _ := c.Locals("requestid").(string)
		entry := log.WithFields(log.Fields{
			"method":     method,
			"path":       path,
			"status":     status,
			"latency":    time.Since(start).String(),
			"bytes_out":  len(c.Response().Body()),
			"request_id": reqID,
		})

		switch {
		case err != nil:
			entry.WithError(err).Error("Request failed")
		case status >= 500:
			entry.Error("Request completed")
		case status >= 400:
			entry.Warn("Request completed")
		default:
			entry.Info("Request completed")
		}
		return err
	}
}
