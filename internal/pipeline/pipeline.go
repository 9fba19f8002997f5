package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb/geojson"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ironsheep/parcel-tracer/internal/detection"
	"github.com/ironsheep/parcel-tracer/internal/fetch"
	"github.com/ironsheep/parcel-tracer/internal/metrics"
	"github.com/ironsheep/parcel-tracer/internal/telemetry"
	"github.com/ironsheep/parcel-tracer/internal/tiles"
)

// DefaultZoom is the zoom level used when a request does not set one.
const DefaultZoom = 19

// Fetcher retrieves one raster tile. *fetch.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, idx tiles.Index) fetch.Result
}

// Options tunes how a Pipeline schedules tiles.
type Options struct {
	// Workers is the number of tiles processed concurrently. Values below
	// one mean one.
	Workers int

	// MinDelay is the minimum spacing between tile requests across all
	// workers. Zero disables pacing.
	MinDelay time.Duration

	// MaxFeaturesPerTile keeps only the first N features of each tile.
	// Zero means no cap.
	MaxFeaturesPerTile int

	// MaxTiles rejects regions whose grid holds more tiles. Values below one
	// mean DefaultMaxTiles.
	MaxTiles int
}

// DefaultMaxTiles bounds a single run to roughly 17 minutes of fetching at
// the default request spacing.
const DefaultMaxTiles = 10000

// DefaultOptions returns sequential processing with a 100ms request spacing.
func DefaultOptions() Options {
	return Options{
		Workers:  1,
		MinDelay: 100 * time.Millisecond,
		MaxTiles: DefaultMaxTiles,
	}
}

// Request describes one detection run.
type Request struct {
	Region tiles.Region     `json:"region"`
	Zoom   int              `json:"zoom"`
	Params detection.Params `json:"params"`
}

// Validate checks the region, zoom and detection parameters.
func (r Request) Validate() error {
	if err := r.Region.Validate(); err != nil {
		return &ConfigError{Field: "region", Err: err}
	}
	if err := tiles.ValidateZoom(r.Zoom); err != nil {
		return &ConfigError{Field: "zoom", Err: err}
	}
	if err := r.Params.Validate(); err != nil {
		return &ConfigError{Field: "params", Err: err}
	}
	return nil
}

// Status is the result class of one tile.
type Status string

const (
	StatusDetected Status = "detected"
	StatusAbsent   Status = "absent"
)

// TileOutcome is what one tile contributed to a run.
type TileOutcome struct {
	Index    tiles.Index
	Status   Status
	Source   string
	Err      error
	Contours []detection.Contour
	Features []*geojson.Feature
}

// Stats summarises a run.
type Stats struct {
	Tiles    int           `json:"tiles"`
	Fetched  int           `json:"fetched"`
	Absent   int           `json:"absent"`
	Contours int           `json:"contours"`
	Features int           `json:"features"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Pipeline runs region detection against a tile Fetcher.
type Pipeline struct {
	fetcher Fetcher
	opts    Options
	limiter *rate.Limiter
}

// New creates a Pipeline. The rate limiter is shared by every run on the
// returned Pipeline.
func New(f Fetcher, opts Options) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxTiles < 1 {
		opts.MaxTiles = DefaultMaxTiles
	}
	limit := rate.Inf
	if opts.MinDelay > 0 {
		limit = rate.Every(opts.MinDelay)
	}
	return &Pipeline{
		fetcher: f,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Options returns the effective options.
func (p *Pipeline) Options() Options { return p.opts }

// Run detects parcel boundaries across req.Region and returns them as one
// FeatureCollection in scan order.
func (p *Pipeline) Run(ctx context.Context, req Request) (*geojson.FeatureCollection, error) {
	fc, _, err := p.RunWithStats(ctx, req)
	return fc, err
}

// RunWithStats is Run, also returning the run summary.
func (p *Pipeline) RunWithStats(ctx context.Context, req Request) (*geojson.FeatureCollection, Stats, error) {
	start := time.Now()
	var stats Stats

	if err := req.Validate(); err != nil {
		metrics.Runs.WithLabelValues("invalid").Inc()
		return nil, stats, err
	}

	grid := tiles.NewGrid(req.Region, req.Zoom)
	if n := grid.Len(); n > p.opts.MaxTiles {
		metrics.Runs.WithLabelValues("invalid").Inc()
		return nil, stats, &ConfigError{
			Field: "region",
			Err:   fmt.Errorf("covers %d tiles at zoom %d, limit is %d", n, req.Zoom, p.opts.MaxTiles),
		}
	}
	indices := grid.Tiles()
	stats.Tiles = len(indices)

	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.Run")
	defer span.End()
	span.SetAttributes(
		attribute.Int("zoom", req.Zoom),
		attribute.Int("tiles", len(indices)),
		attribute.Int("workers", p.opts.Workers),
	)

	logger := log.WithFields(log.Fields{
		"zoom":    req.Zoom,
		"columns": grid.Columns(),
		"rows":    grid.Rows(),
		"tiles":   len(indices),
	})
	logger.Info("Starting detection run")

	outcomes := make([]TileOutcome, len(indices))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for i, idx := range indices {
		if gctx.Err() != nil {
			break
		}
		i, idx := i, idx
		g.Go(func() error {
			if err := p.wait(gctx); err != nil {
				return err
			}
			outcomes[i] = p.RunTile(gctx, idx, req.Params)
			return gctx.Err()
		})
	}

	err := g.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	if err != nil {
		result := "canceled"
		if errors.Is(err, context.DeadlineExceeded) {
			result = "timeout"
		}
		metrics.Runs.WithLabelValues(result).Inc()
		span.SetStatus(codes.Error, err.Error())
		logger.WithError(err).Warn("Detection run stopped")
		return nil, stats, err
	}

	fc := geojson.NewFeatureCollection()
	for _, o := range outcomes {
		switch o.Status {
		case StatusDetected:
			stats.Fetched++
		default:
			stats.Absent++
		}
		stats.Contours += len(o.Contours)
		fc.Features = append(fc.Features, o.Features...)
	}
	stats.Features = len(fc.Features)
	stats.Elapsed = time.Since(start)

	metrics.Runs.WithLabelValues("ok").Inc()
	metrics.RunDuration.Observe(stats.Elapsed.Seconds())
	span.SetAttributes(attribute.Int("features", stats.Features))

	logger.WithFields(log.Fields{
		"fetched":  stats.Fetched,
		"absent":   stats.Absent,
		"features": stats.Features,
		"elapsed":  stats.Elapsed.Round(time.Millisecond),
	}).Info("Detection run complete")

	return fc, stats, nil
}

// wait blocks for the next request slot. A deadline that falls before the
// slot is reported as context.DeadlineExceeded.
func (p *Pipeline) wait(ctx context.Context) error {
	err := p.limiter.Wait(ctx)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if _, ok := ctx.Deadline(); ok {
		return context.DeadlineExceeded
	}
	return err
}

// RunTile fetches and processes a single tile. Fetch failures produce an
// absent outcome with Err set; they are never returned as errors.
func (p *Pipeline) RunTile(ctx context.Context, idx tiles.Index, params detection.Params) TileOutcome {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.RunTile")
	defer span.End()
	span.SetAttributes(attribute.String("tile", idx.String()))

	out := TileOutcome{Index: idx, Status: StatusAbsent}

	res := p.fetcher.Fetch(ctx, idx)
	out.Source = res.Source
	if !res.Present() {
		out.Err = res.Err
		if out.Err == nil {
			out.Err = fmt.Errorf("tile %s: no raster", idx)
		}
		metrics.TilesProcessed.WithLabelValues(string(StatusAbsent)).Inc()
		log.WithFields(log.Fields{
			"tile":  idx.String(),
			"zoom":  idx.Zoom,
			"error": out.Err,
		}).Warn("Tile unavailable, skipping")
		return out
	}

	raster := res.Raster
	out.Status = StatusDetected
	out.Contours = detection.Detect(raster.Image, params)
	out.Features = BuildFeatures(idx.String(), out.Contours, idx.Bounds(),
		raster.Width(), raster.Height(), p.opts.MaxFeaturesPerTile)

	metrics.TilesProcessed.WithLabelValues(string(StatusDetected)).Inc()
	metrics.ContoursDetected.Add(float64(len(out.Contours)))
	metrics.FeaturesEmitted.Add(float64(len(out.Features)))
	span.SetAttributes(attribute.Int("features", len(out.Features)))

	log.WithFields(log.Fields{
		"tile":     idx.String(),
		"source":   res.Source,
		"contours": len(out.Contours),
		"features": len(out.Features),
	}).Debug("Tile processed")

	return out
}
