package imaging

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
)

// Smooth converts img to grayscale and applies a Gaussian blur of the given
// radius. A radius of 1 corresponds to a 3x3 kernel; a radius of 0 or less
// skips blurring.
//
// The returned image always has its origin at (0, 0).
func Smooth(img image.Image, radius float64) *image.Gray {
	gray := effect.Grayscale(img)
	if radius <= 0 {
		return firstChannel(gray)
	}
	return firstChannel(blur.Gaussian(gray, radius))
}

// firstChannel copies the R channel of an RGBA image whose R, G and B are
// equal into a Gray image.
func firstChannel(src *image.RGBA) *image.Gray {
	b := src.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		row := src.Pix[y*src.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < b.Dx(); x++ {
			dst[x] = row[x*4]
		}
	}
	return out
}

// Canny detects edges in a smoothed grayscale image and returns a binary mask
// (255 for edge pixels, 0 elsewhere).
//
// # Algorithm
//
//  1. Gradients from 3x3 Sobel operators with replicated borders.
//     Magnitude is the L1 norm |Gx| + |Gy|.
//
//  2. Non-maximum suppression along the gradient direction, quantised to
//     four sectors (0°, 45°, 90°, 135°). Border pixels are never edges.
//
//  3. Hysteresis: pixels above high are strong edges. Pixels above low are
//     kept only when 8-connected, directly or through other such pixels, to
//     a strong edge.
//
// Thresholds are in gradient units of an 8-bit image, so the usual
// low/high pairs (for example 30/80 or 50/150) apply directly.
func Canny(gray *image.Gray, low, high int) *image.Gray {
	b := gray.Bounds()
	width, height := b.Dx(), b.Dy()
	result := image.NewGray(image.Rect(0, 0, width, height))
	if width < 3 || height < 3 {
		return result
	}

	at := func(x, y int) float64 {
		x = clamp(x, 0, width-1)
		y = clamp(y, 0, height-1)
		return float64(gray.Pix[y*gray.Stride+x])
	}

	magnitude := make([]float64, width*height)
	direction := make([]float64, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			gx := -at(x-1, y-1) + at(x+1, y-1) -
				2*at(x-1, y) + 2*at(x+1, y) -
				at(x-1, y+1) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)

			magnitude[y*width+x] = math.Abs(gx) + math.Abs(gy)
			direction[y*width+x] = math.Atan2(gy, gx)
		}
	}

	// Non-maximum suppression
	suppressed := make([]float64, width*height)
	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			i := y*width + x
			mag := magnitude[i]
			if mag == 0 {
				continue
			}

			angle := direction[i]
			if angle < 0 {
				angle += math.Pi
			}

			// Neighbours along the gradient; image Y grows downward.
			var n1, n2 float64
			switch {
			case angle < math.Pi/8 || angle >= 7*math.Pi/8:
				n1 = magnitude[i-1]
				n2 = magnitude[i+1]
			case angle < 3*math.Pi/8:
				n1 = magnitude[i-width-1]
				n2 = magnitude[i+width+1]
			case angle < 5*math.Pi/8:
				n1 = magnitude[i-width]
				n2 = magnitude[i+width]
			default:
				n1 = magnitude[i-width+1]
				n2 = magnitude[i+width-1]
			}

			if mag >= n1 && mag > n2 {
				suppressed[i] = mag
			}
		}
	}

	// Double threshold and hysteresis
	lowThresh := float64(low)
	highThresh := float64(high)
	stack := make([]int, 0, 64)
	for i, v := range suppressed {
		if v > highThresh && result.Pix[i] == 0 {
			result.Pix[i] = 255
			stack = append(stack, i)
		}
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			px, py := p%width, p/width
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := px+dx, py+dy
					if nx < 0 || nx >= width || ny < 0 || ny >= height {
						continue
					}
					j := ny*width + nx
					if suppressed[j] > lowThresh && result.Pix[j] == 0 {
						result.Pix[j] = 255
						stack = append(stack, j)
					}
				}
			}
		}
	}

	return result
}

// clamp constrains an integer value to the range [min, max].
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
