package tiles

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// metersPerDegree is the length of one degree of latitude, and of longitude at
// the equator.
const metersPerDegree = 111320.0

// Region is a geographic bounding box in WGS84 degrees.
type Region struct {
	MinLat float64 `json:"min_lat" mapstructure:"min_lat"`
	MaxLat float64 `json:"max_lat" mapstructure:"max_lat"`
	MinLon float64 `json:"min_lon" mapstructure:"min_lon"`
	MaxLon float64 `json:"max_lon" mapstructure:"max_lon"`
}

// Validate checks ordering and the projection limits.
func (r Region) Validate() error {
	for _, v := range []float64{r.MinLat, r.MaxLat, r.MinLon, r.MaxLon} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("region contains a non-finite coordinate")
		}
	}
	if r.MinLat >= r.MaxLat {
		return fmt.Errorf("min_lat (%g) must be less than max_lat (%g)", r.MinLat, r.MaxLat)
	}
	if r.MinLon >= r.MaxLon {
		return fmt.Errorf("min_lon (%g) must be less than max_lon (%g)", r.MinLon, r.MaxLon)
	}
	if r.MinLat < -MaxLatitude || r.MaxLat > MaxLatitude {
		return fmt.Errorf("latitude must be within ±%g, got %g..%g", MaxLatitude, r.MinLat, r.MaxLat)
	}
	if r.MinLon < -180 || r.MaxLon > 180 {
		return fmt.Errorf("longitude must be within ±180, got %g..%g", r.MinLon, r.MaxLon)
	}
	return nil
}

// Bound returns the region as an orb.Bound.
func (r Region) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{r.MinLon, r.MinLat},
		Max: orb.Point{r.MaxLon, r.MaxLat},
	}
}

// RegionAround builds a square-ish region centred on a point, extending
// radiusMeters in each direction. Latitudes are clamped to the projection
// limits and longitudes to ±180.
func RegionAround(lat, lon, radiusMeters float64) Region {
	dLat := radiusMeters / metersPerDegree
	dLon := radiusMeters / (metersPerDegree * math.Cos(lat*math.Pi/180))

	return Region{
		MinLat: math.Max(lat-dLat, -MaxLatitude),
		MaxLat: math.Min(lat+dLat, MaxLatitude),
		MinLon: math.Max(lon-dLon, -180),
		MaxLon: math.Min(lon+dLon, 180),
	}
}

// ValidateZoom checks that zoom lies in [0, MaxZoom].
func ValidateZoom(zoom int) error {
	if zoom < 0 || zoom > MaxZoom {
		return fmt.Errorf("zoom must be within 0..%d, got %d", MaxZoom, zoom)
	}
	return nil
}

// Grid is the inclusive rectangle of tiles covering a region.
type Grid struct {
	Zoom int `json:"zoom"`
	MinX int `json:"min_x"`
	MinY int `json:"min_y"`
	MaxX int `json:"max_x"`
	MaxY int `json:"max_y"`
}

// NewGrid returns the tiles spanning from the tile containing the region's
// northwest corner to the tile containing its southeast corner.
func NewGrid(r Region, zoom int) Grid {
	nw := FromGeo(r.MaxLat, r.MinLon, zoom)
	se := FromGeo(r.MinLat, r.MaxLon, zoom)
	return Grid{
		Zoom: zoom,
		MinX: nw.X,
		MinY: nw.Y,
		MaxX: se.X,
		MaxY: se.Y,
	}
}

// Columns returns the number of tiles along X.
func (g Grid) Columns() int { return g.MaxX - g.MinX + 1 }

// Rows returns the number of tiles along Y.
func (g Grid) Rows() int { return g.MaxY - g.MinY + 1 }

// Len returns the total number of tiles in the grid.
func (g Grid) Len() int { return g.Columns() * g.Rows() }

// Tiles lists the grid in scan order: rows north to south, and within each row
// columns west to east.
func (g Grid) Tiles() []Index {
	out := make([]Index, 0, g.Len())
	for y := g.MinY; y <= g.MaxY; y++ {
		for x := g.MinX; x <= g.MaxX; x++ {
			out = append(out, Index{Zoom: g.Zoom, X: x, Y: y})
		}
	}
	return out
}
