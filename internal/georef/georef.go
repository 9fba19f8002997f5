// Package georef maps pixel contours onto the geographic extent of the tile
// they were found in.
//
// The mapping is linear in longitude and latitude across the tile. Web
// Mercator stretches latitude within a tile, but at the zoom levels used for
// parcel detection the error is far below a pixel.
package georef

import (
	"github.com/paulmach/orb"

	"github.com/ironsheep/parcel-tracer/internal/detection"
)

// Transform converts pixel coordinates of a width x height raster to lon/lat
// inside bound. Pixel (0, 0) maps to the northwest corner.
type Transform struct {
	bound         orb.Bound
	width, height int
}

// NewTransform returns the pixel-to-geographic mapping for a raster.
func NewTransform(bound orb.Bound, width, height int) Transform {
	return Transform{bound: bound, width: width, height: height}
}

// Point converts a single pixel coordinate.
func (t Transform) Point(p detection.Point) orb.Point {
	lon := t.bound.Min[0] + float64(p.X)*(t.bound.Max[0]-t.bound.Min[0])/float64(t.width)
	lat := t.bound.Max[1] - float64(p.Y)*(t.bound.Max[1]-t.bound.Min[1])/float64(t.height)
	return orb.Point{lon, lat}
}

// Reproject converts a contour to a closed geographic ring.
//
// The ring is closed by repeating the first point when needed. Contours with
// fewer than three distinct points cannot form a polygon; Reproject returns
// false for them and for rasters with no pixels.
func Reproject(points []detection.Point, bound orb.Bound, width, height int) (orb.Ring, bool) {
	if width <= 0 || height <= 0 || distinct(points) < 3 {
		return nil, false
	}

	t := NewTransform(bound, width, height)
	ring := make(orb.Ring, 0, len(points)+1)
	for _, p := range points {
		ring = append(ring, t.Point(p))
	}
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return ring, true
}

func distinct(points []detection.Point) int {
	seen := make(map[detection.Point]struct{}, len(points))
	for _, p := range points {
		seen[p] = struct{}{}
	}
	return len(seen)
}
