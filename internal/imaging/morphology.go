package imaging

import "image"

// Masks handled here are binary *image.Gray images: any non-zero pixel is
// foreground. All operations return a new mask and leave their inputs intact.
//
// The structuring element is a 3x3 square. Neighbours outside the image are
// ignored, so borders neither grow nor erode because of the frame.

// Or combines two masks of equal size.
func Or(a, b *image.Gray) *image.Gray {
	w, h := a.Bounds().Dx(), a.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		ra := a.Pix[y*a.Stride:]
		rb := b.Pix[y*b.Stride:]
		for x := 0; x < w; x++ {
			if ra[x] != 0 || rb[x] != 0 {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// Dilate grows foreground regions by one pixel per iteration.
func Dilate(m *image.Gray, iterations int) *image.Gray {
	out := copyMask(m)
	for i := 0; i < iterations; i++ {
		out = morph(out, true)
	}
	return out
}

// Erode shrinks foreground regions by one pixel per iteration.
func Erode(m *image.Gray, iterations int) *image.Gray {
	out := copyMask(m)
	for i := 0; i < iterations; i++ {
		out = morph(out, false)
	}
	return out
}

// morph applies one pass of dilation (grow) or erosion over the 3x3
// neighbourhood of every pixel.
func morph(m *image.Gray, grow bool) *image.Gray {
	w, h := m.Bounds().Dx(), m.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// Dilation: any neighbour set. Erosion: every neighbour set.
			hit := !grow
			for dy := -1; dy <= 1; dy++ {
				ny := y + dy
				if ny < 0 || ny >= h {
					continue
				}
				for dx := -1; dx <= 1; dx++ {
					nx := x + dx
					if nx < 0 || nx >= w {
						continue
					}
					set := m.Pix[ny*m.Stride+nx] != 0
					if grow && set {
						hit = true
					} else if !grow && !set {
						hit = false
					}
				}
			}
			if hit {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// copyMask returns a copy of m with its origin moved to (0, 0).
func copyMask(m *image.Gray) *image.Gray {
	w, h := m.Bounds().Dx(), m.Bounds().Dy()
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+w], m.Pix[y*m.Stride:y*m.Stride+w])
	}
	return out
}

// Count returns the number of foreground pixels in m.
func Count(m *image.Gray) int {
	n := 0
	w, h := m.Bounds().Dx(), m.Bounds().Dy()
	for y := 0; y < h; y++ {
		for _, v := range m.Pix[y*m.Stride : y*m.Stride+w] {
			if v != 0 {
				n++
			}
		}
	}
	return n
}
