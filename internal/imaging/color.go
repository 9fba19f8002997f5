package imaging

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// HSVColor is a color on the 8-bit HSV scale used by most raster toolkits:
// hue is halved to fit a byte.
type HSVColor struct {
	H int `json:"h"` // Hue: 0-179 (half degrees; 30=yellow, 60=green)
	S int `json:"s"` // Saturation: 0-255
	V int `json:"v"` // Value: 0-255
}

// HSVRange is an inclusive box in 8-bit HSV space.
type HSVRange struct {
	Lower HSVColor `json:"lower" mapstructure:"lower"`
	Upper HSVColor `json:"upper" mapstructure:"upper"`
}

// DefaultVegetation is the range treated as vegetation: yellow-green through
// green hues with at least slight saturation, excluding very bright pixels.
var DefaultVegetation = HSVRange{
	Lower: HSVColor{H: 20, S: 20, V: 20},
	Upper: HSVColor{H: 90, S: 255, V: 200},
}

// Validate checks that each channel bound is on-scale and ordered.
func (r HSVRange) Validate() error {
	if r.Lower.H < 0 || r.Upper.H > 179 {
		return fmt.Errorf("hue bounds must be within 0..179, got %d..%d", r.Lower.H, r.Upper.H)
	}
	if r.Lower.S < 0 || r.Upper.S > 255 || r.Lower.V < 0 || r.Upper.V > 255 {
		return fmt.Errorf("saturation and value bounds must be within 0..255")
	}
	if r.Lower.H > r.Upper.H || r.Lower.S > r.Upper.S || r.Lower.V > r.Upper.V {
		return fmt.Errorf("lower HSV bound %+v exceeds upper bound %+v", r.Lower, r.Upper)
	}
	return nil
}

// Contains reports whether c lies inside the range on every channel.
func (r HSVRange) Contains(c HSVColor) bool {
	return c.H >= r.Lower.H && c.H <= r.Upper.H &&
		c.S >= r.Lower.S && c.S <= r.Upper.S &&
		c.V >= r.Lower.V && c.V <= r.Upper.V
}

// ToHSV converts an 8-bit RGB triple to the 8-bit HSV scale.
func ToHSV(r, g, b uint8) HSVColor {
	c := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
	h, s, v := c.Hsv()

	hue := int(math.Round(h / 2))
	if hue >= 180 {
		hue -= 180
	}
	return HSVColor{
		H: hue,
		S: int(math.Round(s * 255)),
		V: int(math.Round(v * 255)),
	}
}

// HSVMask marks every pixel whose color falls inside rng. Alpha is ignored.
func HSVMask(img *image.NRGBA, rng HSVRange) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))

	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			p := row[x*4 : x*4+3]
			if rng.Contains(ToHSV(p[0], p[1], p[2])) {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// ColorResult describes one pixel for interactive tuning of the HSV range.
type ColorResult struct {
	Hex        string   `json:"hex"`
	RGB        [3]uint8 `json:"rgb"`
	HSV        HSVColor `json:"hsv"`
	Vegetation bool     `json:"vegetation"`
}

// SampleColor returns the color at (x, y) and whether rng classifies it as
// vegetation.
func SampleColor(img image.Image, x, y int, rng HSVRange) (*ColorResult, error) {
	bounds := img.Bounds()
	if x < bounds.Min.X || x >= bounds.Max.X || y < bounds.Min.Y || y >= bounds.Max.Y {
		return nil, fmt.Errorf("coordinates (%d,%d) outside image bounds", x, y)
	}

	c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	hsv := ToHSV(c.R, c.G, c.B)

	return &ColorResult{
		Hex:        fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B),
		RGB:        [3]uint8{c.R, c.G, c.B},
		HSV:        hsv,
		Vegetation: rng.Contains(hsv),
	}, nil
}
