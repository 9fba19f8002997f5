// Package pipeline assembles parcel-boundary features for a geographic
// region.
//
// A run covers the region with slippy-map tiles, then for every tile in scan
// order (rows north to south, columns west to east) it fetches the raster,
// detects contours, reprojects them into WGS84 and wraps each ring as a
// GeoJSON polygon feature. The merged FeatureCollection preserves that
// order, with contours in discovery order within each tile.
//
// # Failure Model
//
// Invalid configuration (region, zoom, detection params) is reported as a
// *ConfigError before any tile is requested. Tiles that cannot be fetched
// are skipped and logged; they never fail the run. A canceled context stops
// the run and no partial collection is returned.
//
// # Concurrency
//
// Options.Workers bounds how many tiles are processed at once (default 1,
// fully sequential). Requests from all workers share one rate limiter, so
// Options.MinDelay bounds the aggregate request rate regardless of the
// worker count.
package pipeline
