package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/ironsheep/parcel-tracer/internal/detection"
	"github.com/ironsheep/parcel-tracer/internal/pipeline"
	"github.com/ironsheep/parcel-tracer/internal/tiles"
)

// maxListedTiles bounds the size of a /v1/tiles listing.
const maxListedTiles = 10000

// DetectParams echoes the settings used for a detect request.
type DetectParams struct {
	CannyLow  int          `json:"canny_low"`
	CannyHigh int          `json:"canny_high"`
	MinArea   float64      `json:"min_area"`
	Zoom      int          `json:"zoom"`
	Region    tiles.Region `json:"region"`
}

// DetectResponse is the body of GET /v1/detect.
type DetectResponse struct {
	Count  int                        `json:"count"`
	Params DetectParams               `json:"params"`
	Stats  pipeline.Stats             `json:"stats"`
	Data   *geojson.FeatureCollection `json:"data"`
}

// TileEntry is one tile in a grid listing. Bounds is
// [min_lon, min_lat, max_lon, max_lat].
type TileEntry struct {
	tiles.Index
	Bounds [4]float64 `json:"bounds"`
}

// TilesResponse is the body of GET /v1/tiles.
type TilesResponse struct {
	Zoom    int         `json:"zoom"`
	Columns int         `json:"columns"`
	Rows    int         `json:"rows"`
	Count   int         `json:"count"`
	Tiles   []TileEntry `json:"tiles"`
}

// HealthHandler returns a basic liveness check.
func HealthHandler(deps *Dependencies) fiber.Handler {
	startedAt := time.Now()
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"uptime":  time.Since(startedAt).String(),
			"version": version,
		})
	}
}

// DetectHandler runs the detection pipeline over the requested region.
//
// Query: min_lat, max_lat, min_lon, max_lon, zoom, canny_low, canny_high,
// min_area. Omitted values fall back to the configured defaults.
func DetectHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req, err := parseRequest(c, deps)
		if err != nil {
			return errBadRequest(c, err.Error())
		}

		fc, stats, err := deps.Pipeline.RunWithStats(c.UserContext(), req)
		if err != nil {
			var cfgErr *pipeline.ConfigError
			switch {
			case errors.As(err, &cfgErr):
				return errBadRequest(c, err.Error())
			case errors.Is(err, context.DeadlineExceeded):
				return err
			default:
				return errInternal(c, err.Error())
			}
		}

		return c.JSON(DetectResponse{
			Count: len(fc.Features),
			Params: DetectParams{
				CannyLow:  req.Params.CannyLow,
				CannyHigh: req.Params.CannyHigh,
				MinArea:   req.Params.MinArea,
				Zoom:      req.Zoom,
				Region:    req.Region,
			},
			Stats: stats,
			Data:  fc,
		})
	}
}

// TilesHandler lists the tiles covering a region.
func TilesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		req, err := parseRequest(c, deps)
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		if err := req.Region.Validate(); err != nil {
			return errBadRequest(c, err.Error())
		}
		if err := tiles.ValidateZoom(req.Zoom); err != nil {
			return errBadRequest(c, err.Error())
		}

		grid := tiles.NewGrid(req.Region, req.Zoom)
		if grid.Len() > maxListedTiles {
			return errBadRequest(c, fmt.Sprintf("region covers %d tiles, limit is %d", grid.Len(), maxListedTiles))
		}

		resp := TilesResponse{
			Zoom:    req.Zoom,
			Columns: grid.Columns(),
			Rows:    grid.Rows(),
			Count:   grid.Len(),
			Tiles:   make([]TileEntry, 0, grid.Len()),
		}
		for _, idx := range grid.Tiles() {
			b := idx.Bounds()
			resp.Tiles = append(resp.Tiles, TileEntry{
				Index:  idx,
				Bounds: [4]float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()},
			})
		}
		return c.JSON(resp)
	}
}

// TileImageHandler proxies one imagery tile as PNG.
func TileImageHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var idx tiles.Index
		var err error
		if idx.Zoom, err = c.ParamsInt("z"); err != nil {
			return errBadRequest(c, "z must be an integer")
		}
		if idx.X, err = c.ParamsInt("x"); err != nil {
			return errBadRequest(c, "x must be an integer")
		}
		if idx.Y, err = c.ParamsInt("y"); err != nil {
			return errBadRequest(c, "y must be an integer")
		}
		if !idx.Valid() {
			return errBadRequest(c, fmt.Sprintf("tile %d/%d/%d is out of range", idx.Zoom, idx.X, idx.Y))
		}

		res := deps.Fetcher.Fetch(c.UserContext(), idx)
		if !res.Present() {
			return errNotFound(c, fmt.Sprintf("tile %d/%d/%d unavailable", idx.Zoom, idx.X, idx.Y))
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, res.Raster.Image); err != nil {
			return errInternal(c, err.Error())
		}
		c.Set(fiber.HeaderContentType, "image/png")
		c.Set(fiber.HeaderCacheControl, "public, max-age=86400")
		c.Set("X-Tile-Source", res.Source)
		return c.Send(buf.Bytes())
	}
}

// parseRequest reads region, zoom and detection parameters from the query
// string, starting from the configured defaults.
func parseRequest(c *fiber.Ctx, deps *Dependencies) (pipeline.Request, error) {
	req := pipeline.Request{
		Region: deps.Region,
		Zoom:   deps.Zoom,
		Params: deps.Params,
	}
	if req.Zoom == 0 {
		req.Zoom = pipeline.DefaultZoom
	}
	if req.Params == (detection.Params{}) {
		req.Params = detection.DefaultParams()
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"min_lat", &req.Region.MinLat},
		{"max_lat", &req.Region.MaxLat},
		{"min_lon", &req.Region.MinLon},
		{"max_lon", &req.Region.MaxLon},
		{"min_area", &req.Params.MinArea},
	}
	for _, f := range floats {
		if raw := c.Query(f.key); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return req, fmt.Errorf("%s must be a number, got %q", f.key, raw)
			}
			*f.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"zoom", &req.Zoom},
		{"canny_low", &req.Params.CannyLow},
		{"canny_high", &req.Params.CannyHigh},
	}
	for _, f := range ints {
		if raw := c.Query(f.key); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil {
				return req, fmt.Errorf("%s must be an integer, got %q", f.key, raw)
			}
			*f.dst = v
		}
	}

	return req, nil
}
