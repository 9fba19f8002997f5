package detection

import (
	"image"

	"github.com/ironsheep/parcel-tracer/internal/imaging"
)

// StageMasks holds the intermediate masks of one detector run.
type StageMasks struct {
	Edges      *image.Gray
	Vegetation *image.Gray
	Combined   *image.Gray
	Closed     *image.Gray
}

// Stages runs the raster part of the detector and returns every
// intermediate mask. Params are assumed valid.
func Stages(img image.Image, p Params) StageMasks {
	src := imaging.ToNRGBA(img)

	edges := imaging.Canny(imaging.Smooth(src, p.BlurRadius), p.CannyLow, p.CannyHigh)
	vegetation := imaging.HSVMask(src, p.Vegetation)
	combined := imaging.Or(edges, vegetation)
	closed := imaging.Erode(imaging.Dilate(combined, p.DilateIterations), p.ErodeIterations)

	return StageMasks{
		Edges:      edges,
		Vegetation: vegetation,
		Combined:   combined,
		Closed:     closed,
	}
}

// Detect returns the outer boundaries of candidate parcels in img, in
// discovery order. Contours with Area < p.MinArea are dropped. The result is
// empty, never nil, when nothing qualifies.
//
// Params are assumed valid; callers should run p.Validate first.
func Detect(img image.Image, p Params) []Contour {
	return ContoursFromMask(Stages(img, p).Closed, p.MinArea)
}

// ContoursFromMask traces the external contours of a closed mask and keeps
// those with area of at least minArea.
func ContoursFromMask(mask *image.Gray, minArea float64) []Contour {
	result := make([]Contour, 0)
	for _, pts := range FindExternalContours(mask) {
		area := polygonArea(pts)
		if area < minArea {
			continue
		}
		result = append(result, Contour{
			Points: pts,
			Area:   area,
			Bounds: boundsOf(pts),
		})
	}
	return result
}
