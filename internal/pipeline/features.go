package pipeline

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/ironsheep/parcel-tracer/internal/detection"
	"github.com/ironsheep/parcel-tracer/internal/georef"
)

// Feature property names.
const (
	PropID         = "id"
	PropSourceTile = "sourceTile"
	PropPixelArea  = "pixelArea"
)

// BuildFeatures converts a tile's contours to polygon features.
//
// tileLabel is the "x_y" form of the source tile; feature ids are
// "{tileLabel}_{j}" with j counting the features emitted for the tile.
// Contours that cannot form a ring are skipped. limit caps the number of
// features (0 means no cap).
func BuildFeatures(tileLabel string, contours []detection.Contour, bound orb.Bound, width, height, limit int) []*geojson.Feature {
	features := make([]*geojson.Feature, 0, len(contours))
	for _, c := range contours {
		if limit > 0 && len(features) >= limit {
			break
		}
		ring, ok := georef.Reproject(c.Points, bound, width, height)
		if !ok {
			continue
		}

		id := fmt.Sprintf("%s_%d", tileLabel, len(features))
		f := geojson.NewFeature(orb.Polygon{ring})
		f.ID = id
		f.Properties[PropID] = id
		f.Properties[PropSourceTile] = tileLabel
		f.Properties[PropPixelArea] = c.Area
		features = append(features, f)
	}
	return features
}
