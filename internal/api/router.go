// Package api serves parcel detection over HTTP.
package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"

	"github.com/ironsheep/parcel-tracer/internal/metrics"
)

// defaultRequestTimeout applies when Dependencies.RequestTimeout is unset.
const defaultRequestTimeout = 5 * time.Minute

// SetupRoutes registers the API, health and metrics routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	app.Use(requestid.New())
	app.Use(AccessLogMiddleware())

	app.Get("/v1/health", HealthHandler(deps))

	limit := deps.RequestTimeout
	if limit <= 0 {
		limit = defaultRequestTimeout
	}

	v1 := app.Group("/v1")
	v1.Get("/detect", timeout.NewWithContext(DetectHandler(deps), limit))
	v1.Get("/tiles", TilesHandler(deps))
	v1.Get("/tiles/:z/:x/:y", timeout.NewWithContext(TileImageHandler(deps), limit))
}
