package api

import (
	"time"

	"github.com/ironsheep/parcel-tracer/internal/detection"
	"github.com/ironsheep/parcel-tracer/internal/pipeline"
	"github.com/ironsheep/parcel-tracer/internal/tiles"
)

// Dependencies holds the services and defaults used by the handlers.
type Dependencies struct {
	Pipeline *pipeline.Pipeline
	Fetcher  pipeline.Fetcher

	// Region, Zoom and Params apply when a request omits them.
	Region tiles.Region
	Zoom   int
	Params detection.Params

	// RequestTimeout bounds a single detect request.
	RequestTimeout time.Duration

	Version string
}
