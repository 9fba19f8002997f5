// Package fetch downloads and decodes slippy-map raster tiles.
//
// A fetch never fails a run: every problem (network error, non-200 status,
// undecodable body) is reported as an absent tile through Result, and the
// caller decides what absence means.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/ironsheep/parcel-tracer/internal/imaging"
	"github.com/ironsheep/parcel-tracer/internal/metrics"
	"github.com/ironsheep/parcel-tracer/internal/tiles"
)

// DefaultUserAgent identifies tile requests.
const DefaultUserAgent = "OpenClaw/1.0"

// maxTileBytes bounds how much of a response body is read.
const maxTileBytes = 16 << 20

// Raster is a decoded tile.
type Raster struct {
	Index tiles.Index
	Image *image.NRGBA
}

// Width returns the raster width in pixels.
func (r *Raster) Width() int { return r.Image.Bounds().Dx() }

// Height returns the raster height in pixels.
func (r *Raster) Height() int { return r.Image.Bounds().Dy() }

// Result is the outcome of fetching one tile. A tile is present when Raster
// is set; otherwise Err explains why it is absent.
type Result struct {
	Index  tiles.Index
	Raster *Raster
	Source string
	Err    error
}

// Present reports whether the tile was fetched and decoded.
func (r Result) Present() bool { return r.Raster != nil }

// StatusError is returned for non-200 responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d %s", e.Code, http.StatusText(e.Code))
}

// Config configures a Client.
type Config struct {
	// Sources are tried in order until one returns a decodable tile.
	Sources []Source

	// UserAgent is sent with every request.
	UserAgent string

	// Timeout bounds each individual request.
	Timeout time.Duration

	// Retries is the number of extra attempts per source for transport
	// errors and 5xx responses. Zero means a single attempt.
	Retries int

	// RetryDelay is the initial backoff between attempts.
	RetryDelay time.Duration
}

// DefaultConfig returns ESRI imagery with a 10 second timeout and no retries.
func DefaultConfig() Config {
	return Config{
		Sources:    []Source{ESRIWorldImagery},
		UserAgent:  DefaultUserAgent,
		Timeout:    10 * time.Second,
		RetryDelay: 500 * time.Millisecond,
	}
}

// Client fetches tiles over HTTP.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates a tile client. An empty source list falls back to
// ESRIWorldImagery.
func NewClient(cfg Config) *Client {
	if len(cfg.Sources) == 0 {
		cfg.Sources = []Source{ESRIWorldImagery}
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Fetch downloads one tile, trying each configured source in turn.
func (c *Client) Fetch(ctx context.Context, idx tiles.Index) Result {
	var errs []error
	for _, src := range c.cfg.Sources {
		start := time.Now()
		img, err := c.fetchFrom(ctx, src, idx)
		metrics.TileFetchDuration.WithLabelValues(src.Name).Observe(time.Since(start).Seconds())

		if err == nil {
			metrics.TileFetches.WithLabelValues(src.Name, "ok").Inc()
			return Result{
				Index:  idx,
				Raster: &Raster{Index: idx, Image: img},
				Source: src.Name,
			}
		}

		metrics.TileFetches.WithLabelValues(src.Name, outcomeLabel(err)).Inc()
		log.WithFields(log.Fields{
			"tile":   idx.String(),
			"zoom":   idx.Zoom,
			"source": src.Name,
		}).WithError(err).Debug("tile fetch failed")
		errs = append(errs, fmt.Errorf("%s: %w", src.Name, err))

		if ctx.Err() != nil {
			break
		}
	}
	return Result{Index: idx, Err: errors.Join(errs...)}
}

func (c *Client) fetchFrom(ctx context.Context, src Source, idx tiles.Index) (*image.NRGBA, error) {
	var b backoff.BackOff = backoff.WithMaxRetries(c.newBackOff(), uint64(max(c.cfg.Retries, 0)))
	b = backoff.WithContext(b, ctx)

	return backoff.RetryWithData(func() (*image.NRGBA, error) {
		return c.get(ctx, src.URL(idx))
	}, b)
}

func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	eb := backoff.NewExponentialBackOff()
	if c.cfg.RetryDelay > 0 {
		eb.InitialInterval = c.cfg.RetryDelay
	}
	eb.MaxElapsedTime = 0
	return eb
}

// get performs a single request. Errors that a retry cannot fix are wrapped
// as permanent.
func (c *Client) get(ctx context.Context, url string) (*image.NRGBA, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("failed to download tile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		statusErr := &StatusError{Code: resp.StatusCode}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxTileBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read tile data: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	return img, nil
}

func outcomeLabel(err error) string {
	var se *StatusError
	switch {
	case errors.As(err, &se):
		return "status_" + fmt.Sprint(se.Code/100) + "xx"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
