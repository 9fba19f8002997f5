package fetch

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ironsheep/parcel-tracer/internal/tiles"
)

// Source is a tile imagery endpoint. Template holds the {z}, {x} and {y}
// placeholders in whatever order the service expects, which makes the axis
// order explicit: ESRI-style services use .../{z}/{y}/{x}, OSM-style
// services use .../{z}/{x}/{y}.png. Services addressed by quadkey use a
// single {q} placeholder instead.
type Source struct {
	Name     string `json:"name" mapstructure:"name"`
	Template string `json:"template" mapstructure:"template"`
}

var (
	// ESRIWorldImagery is the default satellite imagery source.
	ESRIWorldImagery = Source{
		Name:     "esri",
		Template: "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
	}

	// OpenStreetMap is the standard OSM raster layer, usable as a fallback
	// when satellite imagery is unavailable.
	OpenStreetMap = Source{
		Name:     "osm",
		Template: "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
	}
)

// Validate checks that the template is an http(s) URL with either {q} or
// all three of {z}, {x} and {y}.
func (s Source) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("source name is required")
	}
	if !strings.Contains(s.Template, "{q}") {
		for _, p := range []string{"{z}", "{x}", "{y}"} {
			if !strings.Contains(s.Template, p) {
				return fmt.Errorf("source %s: template must contain %s or {q}", s.Name, p)
			}
		}
	}
	u, err := url.Parse(s.URL(tiles.Index{}))
	if err != nil {
		return fmt.Errorf("source %s: invalid template: %w", s.Name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("source %s: unsupported URL scheme %q (only http and https are supported)", s.Name, u.Scheme)
	}
	return nil
}

// URL expands the template for one tile.
func (s Source) URL(idx tiles.Index) string {
	return strings.NewReplacer(
		"{z}", strconv.Itoa(idx.Zoom),
		"{x}", strconv.Itoa(idx.X),
		"{y}", strconv.Itoa(idx.Y),
		"{q}", idx.Quadkey(),
	).Replace(s.Template)
}
