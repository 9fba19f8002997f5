package detection

import (
	"fmt"
	"strings"

	"github.com/ironsheep/parcel-tracer/internal/imaging"
)

// Params tunes the detector.
type Params struct {
	// CannyLow and CannyHigh are the hysteresis thresholds, in 8-bit gradient
	// units. CannyLow must be strictly less than CannyHigh.
	CannyLow  int `json:"canny_low" mapstructure:"canny_low"`
	CannyHigh int `json:"canny_high" mapstructure:"canny_high"`

	// MinArea is the smallest polygon area, in square pixels, that is kept.
	MinArea float64 `json:"min_area" mapstructure:"min_area"`

	// BlurRadius is the Gaussian radius applied before edge detection.
	BlurRadius float64 `json:"blur_radius" mapstructure:"blur_radius"`

	// Vegetation selects pixels treated as cultivated land.
	Vegetation imaging.HSVRange `json:"vegetation" mapstructure:"vegetation"`

	// DilateIterations and ErodeIterations control the closing pass.
	DilateIterations int `json:"dilate_iterations" mapstructure:"dilate_iterations"`
	ErodeIterations  int `json:"erode_iterations" mapstructure:"erode_iterations"`
}

// DefaultParams returns the settings tuned for 256x256 satellite tiles at
// zoom 19.
func DefaultParams() Params {
	return Params{
		CannyLow:         30,
		CannyHigh:        80,
		MinArea:          40,
		BlurRadius:       1,
		Vegetation:       imaging.DefaultVegetation,
		DilateIterations: 2,
		ErodeIterations:  1,
	}
}

// Validate reports every problem with p in a single error.
func (p Params) Validate() error {
	var errs []string

	if p.CannyLow < 0 {
		errs = append(errs, fmt.Sprintf("canny_low must be non-negative, got %d", p.CannyLow))
	}
	if p.CannyLow >= p.CannyHigh {
		errs = append(errs, fmt.Sprintf("canny_low (%d) must be less than canny_high (%d)", p.CannyLow, p.CannyHigh))
	}
	if p.MinArea < 0 {
		errs = append(errs, fmt.Sprintf("min_area must be non-negative, got %g", p.MinArea))
	}
	if p.BlurRadius < 0 {
		errs = append(errs, fmt.Sprintf("blur_radius must be non-negative, got %g", p.BlurRadius))
	}
	if p.DilateIterations < 0 || p.ErodeIterations < 0 {
		errs = append(errs, "dilate_iterations and erode_iterations must be non-negative")
	}
	if err := p.Vegetation.Validate(); err != nil {
		errs = append(errs, "vegetation: "+err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid detection params: %s", strings.Join(errs, "; "))
	}
	return nil
}
