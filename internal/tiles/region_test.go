package tiles

import (
	"testing"
)

var baxian = Region{MinLat: 24.6538, MaxLat: 24.6660, MinLon: 121.7770, MaxLon: 121.7935}

func TestRegion_Validate(t *testing.T) {
	tests := []struct {
		name    string
		region  Region
		wantErr bool
	}{
		{"baxian", baxian, false},
		{"inverted latitude", Region{MinLat: 2, MaxLat: 1, MinLon: 0, MaxLon: 1}, true},
		{"equal longitude", Region{MinLat: 0, MaxLat: 1, MinLon: 5, MaxLon: 5}, true},
		{"beyond mercator", Region{MinLat: 80, MaxLat: 89, MinLon: 0, MaxLon: 1}, true},
		{"beyond antimeridian", Region{MinLat: 0, MaxLat: 1, MinLon: 170, MaxLon: 181}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.region.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate: got err=%v, wantErr=%v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateZoom(t *testing.T) {
	for _, z := range []int{0, 19, MaxZoom} {
		if err := ValidateZoom(z); err != nil {
			t.Errorf("ValidateZoom(%d): unexpected error %v", z, err)
		}
	}
	for _, z := range []int{-1, MaxZoom + 1} {
		if err := ValidateZoom(z); err == nil {
			t.Errorf("ValidateZoom(%d): expected error", z)
		}
	}
}

func TestNewGrid_Baxian(t *testing.T) {
	g := NewGrid(baxian, 19)

	if g.Columns() != 25 {
		t.Errorf("Columns: got %d, want 25", g.Columns())
	}
	if g.Rows() != 21 {
		t.Errorf("Rows: got %d, want 21", g.Rows())
	}
	if g.Len() != 525 {
		t.Errorf("Len: got %d, want 525", g.Len())
	}
}

func TestGrid_TilesScanOrder(t *testing.T) {
	g := Grid{Zoom: 10, MinX: 5, MinY: 7, MaxX: 7, MaxY: 8}
	got := g.Tiles()

	want := []Index{
		{10, 5, 7}, {10, 6, 7}, {10, 7, 7},
		{10, 5, 8}, {10, 6, 8}, {10, 7, 8},
	}
	if len(got) != len(want) {
		t.Fatalf("len: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("tile %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestNewGrid_SinglePointRegion(t *testing.T) {
	r := Region{MinLat: 10, MaxLat: 10.0000001, MinLon: 20, MaxLon: 20.0000001}
	g := NewGrid(r, 3)
	if g.Len() != 1 {
		t.Errorf("Len: got %d, want 1", g.Len())
	}
}

func TestRegionAround(t *testing.T) {
	r := RegionAround(24.66, 121.785, 500)
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if r.MinLat >= 24.66 || r.MaxLat <= 24.66 {
		t.Errorf("latitude span %v..%v should contain the center", r.MinLat, r.MaxLat)
	}
	// Longitude degrees are shorter away from the equator, so the span widens.
	if (r.MaxLon - r.MinLon) <= (r.MaxLat - r.MinLat) {
		t.Errorf("longitude span %v should exceed latitude span %v", r.MaxLon-r.MinLon, r.MaxLat-r.MinLat)
	}

	clamped := RegionAround(85, 179.99, 100000)
	if clamped.MaxLat > MaxLatitude || clamped.MaxLon > 180 {
		t.Errorf("RegionAround should clamp to projection limits, got %+v", clamped)
	}
}
