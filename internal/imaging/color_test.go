package imaging

import (
	"image"
	"image/color"
	"testing"
)

// createInMemoryImage creates a solid-color image.
func createInMemoryImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}

func TestToHSV(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
		want    HSVColor
	}{
		{"black", 0, 0, 0, HSVColor{0, 0, 0}},
		{"white", 255, 255, 255, HSVColor{0, 0, 255}},
		{"red", 255, 0, 0, HSVColor{0, 255, 255}},
		{"green", 0, 255, 0, HSVColor{60, 255, 255}},
		{"blue", 0, 0, 255, HSVColor{120, 255, 255}},
		{"yellow", 255, 255, 0, HSVColor{30, 255, 255}},
		{"dark green", 0, 100, 0, HSVColor{60, 255, 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToHSV(tt.r, tt.g, tt.b)
			if got != tt.want {
				t.Errorf("ToHSV(%d,%d,%d): got %+v, want %+v", tt.r, tt.g, tt.b, got, tt.want)
			}
		})
	}
}

func TestHSVRange_Validate(t *testing.T) {
	if err := DefaultVegetation.Validate(); err != nil {
		t.Errorf("DefaultVegetation.Validate: %v", err)
	}

	bad := []HSVRange{
		{Lower: HSVColor{90, 0, 0}, Upper: HSVColor{20, 255, 255}},
		{Lower: HSVColor{0, 0, 0}, Upper: HSVColor{200, 255, 255}},
		{Lower: HSVColor{0, -1, 0}, Upper: HSVColor{10, 255, 255}},
	}
	for _, r := range bad {
		if err := r.Validate(); err == nil {
			t.Errorf("Validate(%+v): expected error", r)
		}
	}
}

func TestHSVMask(t *testing.T) {
	tests := []struct {
		name string
		c    color.Color
		want bool
	}{
		{"field green", color.RGBA{60, 140, 40, 255}, true},
		{"paddy yellow-green", color.RGBA{150, 170, 60, 255}, true},
		{"black", color.RGBA{0, 0, 0, 255}, false},
		{"gray road", color.RGBA{128, 128, 128, 255}, false},
		{"red roof", color.RGBA{200, 40, 30, 255}, false},
		{"blue water", color.RGBA{30, 60, 180, 255}, false},
		{"bright green over value limit", color.RGBA{0, 255, 0, 255}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := toNRGBA(createInMemoryImage(8, 8, tt.c))
			mask := HSVMask(img, DefaultVegetation)

			want := 0
			if tt.want {
				want = 64
			}
			if got := Count(mask); got != want {
				t.Errorf("foreground: got %d, want %d", got, want)
			}
		})
	}
}

func TestSampleColor(t *testing.T) {
	img := createInMemoryImage(10, 10, color.RGBA{60, 140, 40, 255})

	result, err := SampleColor(img, 3, 4, DefaultVegetation)
	if err != nil {
		t.Fatalf("SampleColor failed: %v", err)
	}
	if result.Hex != "#3C8C28" {
		t.Errorf("Hex: got %s, want #3C8C28", result.Hex)
	}
	if !result.Vegetation {
		t.Errorf("Vegetation: got false for %+v", result.HSV)
	}

	if _, err := SampleColor(img, 10, 0, DefaultVegetation); err == nil {
		t.Error("SampleColor should fail outside the image")
	}
}
