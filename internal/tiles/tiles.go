package tiles

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

const (
	// MaxZoom is the deepest zoom level accepted by the mapper.
	MaxZoom = 24

	// MaxLatitude is the northern (and, negated, southern) limit of the
	// Web-Mercator projection.
	MaxLatitude = 85.05112878
)

// Index identifies a single slippy-map tile.
type Index struct {
	Zoom int `json:"z"`
	X    int `json:"x"`
	Y    int `json:"y"`
}

// FromGeo returns the tile containing the given point.
//
// Points on the eastern or southern edge of the world (lon = 180, or latitudes
// at the projection limit) are clamped into the last column or row so that the
// result is always a valid index. Callers are expected to keep latitude within
// ±MaxLatitude; Region.Validate enforces that for whole regions.
func FromGeo(lat, lon float64, zoom int) Index {
	n := math.Exp2(float64(zoom))
	latRad := lat * math.Pi / 180

	x := math.Floor((lon + 180) / 360 * n)
	y := math.Floor((1 - math.Asinh(math.Tan(latRad))/math.Pi) / 2 * n)

	return Index{
		Zoom: zoom,
		X:    clampIndex(x, n),
		Y:    clampIndex(y, n),
	}
}

// ToGeo returns the northwest corner of tile (x, y) at the given zoom.
func ToGeo(x, y, zoom int) (lat, lon float64) {
	n := math.Exp2(float64(zoom))
	lon = float64(x)/n*360 - 180
	lat = math.Atan(math.Sinh(math.Pi*(1-2*float64(y)/n))) * 180 / math.Pi
	return lat, lon
}

// Bounds returns the geographic extent of the tile. Min holds the southwest
// corner and Max the northeast corner, both as (lon, lat).
func (i Index) Bounds() orb.Bound {
	north, west := ToGeo(i.X, i.Y, i.Zoom)
	south, east := ToGeo(i.X+1, i.Y+1, i.Zoom)
	return orb.Bound{
		Min: orb.Point{west, south},
		Max: orb.Point{east, north},
	}
}

// Valid reports whether the index lies inside the world grid for its zoom.
func (i Index) Valid() bool {
	if i.Zoom < 0 || i.Zoom > MaxZoom {
		return false
	}
	n := 1 << uint(i.Zoom)
	return i.X >= 0 && i.X < n && i.Y >= 0 && i.Y < n
}

// MapTile converts the index to orb's tile type.
func (i Index) MapTile() maptile.Tile {
	return maptile.New(uint32(i.X), uint32(i.Y), maptile.Zoom(i.Zoom))
}

// Quadkey returns the base-4 quadkey used by Bing-style tile services, one
// digit per zoom level. Zoom 0 has the empty quadkey.
func (i Index) Quadkey() string {
	if i.Zoom == 0 {
		return ""
	}
	k := strconv.FormatUint(i.MapTile().Quadkey(), 4)
	return strings.Repeat("0", i.Zoom-len(k)) + k
}

// String returns the "x_y" form used to label features by source tile.
func (i Index) String() string {
	return fmt.Sprintf("%d_%d", i.X, i.Y)
}

func clampIndex(v, n float64) int {
	if v < 0 {
		return 0
	}
	if v > n-1 {
		return int(n - 1)
	}
	return int(v)
}
