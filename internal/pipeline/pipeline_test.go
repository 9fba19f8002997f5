package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/ironsheep/parcel-tracer/internal/detection"
	"github.com/ironsheep/parcel-tracer/internal/fetch"
	"github.com/ironsheep/parcel-tracer/internal/tiles"
)

// fakeFetcher records calls and delegates to fn.
type fakeFetcher struct {
	mu    sync.Mutex
	calls []tiles.Index
	fn    func(ctx context.Context, idx tiles.Index) fetch.Result
}

func (f *fakeFetcher) Fetch(ctx context.Context, idx tiles.Index) fetch.Result {
	f.mu.Lock()
	f.calls = append(f.calls, idx)
	f.mu.Unlock()
	if f.fn == nil {
		return fetch.Result{Index: idx, Err: errors.New("offline")}
	}
	return f.fn(ctx, idx)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// createFieldTile draws vegetation-colored squares on a black tile.
func createFieldTile(size int, fields ...image.Rectangle) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetNRGBA(x, y, color.NRGBA{0, 0, 0, 255})
		}
	}
	for _, f := range fields {
		for y := f.Min.Y; y < f.Max.Y; y++ {
			for x := f.Min.X; x < f.Max.X; x++ {
				img.SetNRGBA(x, y, color.NRGBA{60, 140, 40, 255})
			}
		}
	}
	return img
}

func present(img *image.NRGBA) func(context.Context, tiles.Index) fetch.Result {
	return func(_ context.Context, idx tiles.Index) fetch.Result {
		return fetch.Result{
			Index:  idx,
			Source: "fake",
			Raster: &fetch.Raster{Index: idx, Image: img},
		}
	}
}

var baxian = tiles.Region{MinLat: 24.6538, MaxLat: 24.6660, MinLon: 121.7770, MaxLon: 121.7935}

// regionOver returns a region whose corners sit at tile centres, so its grid
// is exactly cols x rows tiles starting at origin.
func regionOver(origin tiles.Index, cols, rows int) tiles.Region {
	nw := origin.Bounds().Center()
	se := tiles.Index{Zoom: origin.Zoom, X: origin.X + cols - 1, Y: origin.Y + rows - 1}.Bounds().Center()
	return tiles.Region{MinLat: se.Lat(), MaxLat: nw.Lat(), MinLon: nw.Lon(), MaxLon: se.Lon()}
}

var origin = tiles.Index{Zoom: 19, X: 439494, Y: 225057}

func fastOptions(workers int) Options {
	return Options{Workers: workers}
}

func TestRun_ConfigErrorBeforeFetch(t *testing.T) {
	badParams := detection.DefaultParams()
	badParams.CannyLow = 90

	tests := []struct {
		name  string
		req   Request
		field string
	}{
		{"inverted latitude", Request{Region: tiles.Region{MinLat: 25, MaxLat: 24, MinLon: 121, MaxLon: 122}, Zoom: 19, Params: detection.DefaultParams()}, "region"},
		{"zoom too high", Request{Region: baxian, Zoom: 30, Params: detection.DefaultParams()}, "zoom"},
		{"negative zoom", Request{Region: baxian, Zoom: -1, Params: detection.DefaultParams()}, "zoom"},
		{"canny low above high", Request{Region: baxian, Zoom: 19, Params: badParams}, "params"},
		{"whole world at deepest zoom", Request{Region: tiles.Region{MinLat: -85, MaxLat: 85, MinLon: -180, MaxLon: 180}, Zoom: tiles.MaxZoom, Params: detection.DefaultParams()}, "region"},
		{"one degree square at zoom 19", Request{Region: tiles.Region{MinLat: 24, MaxLat: 25, MinLon: 121, MaxLon: 122}, Zoom: 19, Params: detection.DefaultParams()}, "region"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{}
			fc, err := New(f, fastOptions(1)).Run(context.Background(), tt.req)

			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("error: got %v, want *ConfigError", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("Field: got %s, want %s", cfgErr.Field, tt.field)
			}
			if fc != nil {
				t.Error("collection should be nil on config error")
			}
			if f.callCount() != 0 {
				t.Errorf("fetches: got %d, want 0", f.callCount())
			}
		})
	}
}

func TestRun_AllTilesAbsent(t *testing.T) {
	f := &fakeFetcher{}
	req := Request{Region: baxian, Zoom: 19, Params: detection.DefaultParams()}

	fc, stats, err := New(f, fastOptions(8)).RunWithStats(context.Background(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if fc == nil {
		t.Fatal("collection should not be nil")
	}
	if len(fc.Features) != 0 {
		t.Errorf("features: got %d, want 0", len(fc.Features))
	}
	if f.callCount() != 525 {
		t.Errorf("fetches: got %d, want 525", f.callCount())
	}
	if stats.Tiles != 525 || stats.Absent != 525 || stats.Fetched != 0 {
		t.Errorf("stats: got %+v, want 525 tiles all absent", stats)
	}
}

func TestRun_BlackTilesYieldNothing(t *testing.T) {
	f := &fakeFetcher{fn: present(createFieldTile(256))}
	req := Request{Region: regionOver(origin, 2, 2), Zoom: 19, Params: detection.DefaultParams()}

	fc, stats, err := New(f, fastOptions(1)).RunWithStats(context.Background(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(fc.Features) != 0 {
		t.Errorf("features: got %d, want 0", len(fc.Features))
	}
	if stats.Fetched != 4 {
		t.Errorf("fetched: got %d, want 4", stats.Fetched)
	}
}

func TestRun_FeaturesAreClosedRingsInsideTheirTile(t *testing.T) {
	f := &fakeFetcher{fn: present(createFieldTile(256, image.Rect(40, 40, 120, 120)))}
	req := Request{Region: regionOver(origin, 2, 2), Zoom: 19, Params: detection.DefaultParams()}

	fc, err := New(f, fastOptions(1)).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(fc.Features) != 4 {
		t.Fatalf("features: got %d, want 4", len(fc.Features))
	}

	for _, feat := range fc.Features {
		poly, ok := feat.Geometry.(orb.Polygon)
		if !ok {
			t.Fatalf("geometry: got %T, want orb.Polygon", feat.Geometry)
		}
		ring := poly[0]
		if len(ring) < 4 {
			t.Errorf("%v: ring has %d points, want at least 4", feat.ID, len(ring))
		}
		if !ring.Closed() {
			t.Errorf("%v: ring is not closed", feat.ID)
		}

		var idx tiles.Index
		idx.Zoom = 19
		if _, err := fmt.Sscanf(feat.Properties.MustString(PropSourceTile), "%d_%d", &idx.X, &idx.Y); err != nil {
			t.Fatalf("sourceTile: %v", err)
		}
		b := idx.Bounds()
		for _, p := range ring {
			if !b.Contains(p) {
				t.Errorf("%v: point %v outside tile bounds %v", feat.ID, p, b)
				break
			}
		}

		if got := feat.Properties.MustString(PropID); got != feat.ID {
			t.Errorf("id property: got %s, want %v", got, feat.ID)
		}
		if area := feat.Properties.MustFloat64(PropPixelArea); area < 40 {
			t.Errorf("pixelArea: got %v, want >= 40", area)
		}
	}
}

func TestRun_PreservesScanOrderWithWorkers(t *testing.T) {
	img := createFieldTile(256, image.Rect(40, 40, 120, 120))
	f := &fakeFetcher{fn: func(ctx context.Context, idx tiles.Index) fetch.Result {
		time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
		return present(img)(ctx, idx)
	}}
	region := regionOver(origin, 3, 3)
	req := Request{Region: region, Zoom: 19, Params: detection.DefaultParams()}

	fc, err := New(f, fastOptions(4)).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := tiles.NewGrid(region, 19).Tiles()
	if len(fc.Features) != len(want) {
		t.Fatalf("features: got %d, want %d", len(fc.Features), len(want))
	}
	for i, idx := range want {
		wantID := idx.String() + "_0"
		if fc.Features[i].ID != wantID {
			t.Errorf("feature %d: got %v, want %s", i, fc.Features[i].ID, wantID)
		}
	}
}

func TestRun_AbsentTilesAreSkipped(t *testing.T) {
	img := createFieldTile(256, image.Rect(40, 40, 120, 120))
	f := &fakeFetcher{fn: func(ctx context.Context, idx tiles.Index) fetch.Result {
		if idx.X == origin.X {
			return fetch.Result{Index: idx, Err: &fetch.StatusError{Code: 404}}
		}
		return present(img)(ctx, idx)
	}}
	req := Request{Region: regionOver(origin, 2, 2), Zoom: 19, Params: detection.DefaultParams()}

	fc, stats, err := New(f, fastOptions(2)).RunWithStats(context.Background(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Errorf("features: got %d, want 2", len(fc.Features))
	}
	if stats.Absent != 2 || stats.Fetched != 2 {
		t.Errorf("stats: got %+v, want 2 absent and 2 fetched", stats)
	}
}

func TestRun_MaxFeaturesPerTile(t *testing.T) {
	img := createFieldTile(256, image.Rect(20, 20, 80, 80), image.Rect(150, 150, 230, 230))
	f := &fakeFetcher{fn: present(img)}
	req := Request{Region: regionOver(origin, 1, 1), Zoom: 19, Params: detection.DefaultParams()}

	all, err := New(f, fastOptions(1)).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(all.Features) != 2 {
		t.Fatalf("uncapped features: got %d, want 2", len(all.Features))
	}

	opts := fastOptions(1)
	opts.MaxFeaturesPerTile = 1
	capped, err := New(f, opts).Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(capped.Features) != 1 {
		t.Fatalf("capped features: got %d, want 1", len(capped.Features))
	}
	if capped.Features[0].ID != all.Features[0].ID {
		t.Errorf("capped feature: got %v, want first discovered %v", capped.Features[0].ID, all.Features[0].ID)
	}
}

func TestRun_CanceledBeforeStart(t *testing.T) {
	f := &fakeFetcher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fc, err := New(f, fastOptions(1)).Run(ctx, Request{Region: baxian, Zoom: 19, Params: detection.DefaultParams()})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error: got %v, want context.Canceled", err)
	}
	if fc != nil {
		t.Error("collection should be nil after cancellation")
	}
	if f.callCount() != 0 {
		t.Errorf("fetches: got %d, want 0", f.callCount())
	}
}

func TestRun_CanceledMidway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &fakeFetcher{}
	f.fn = func(_ context.Context, idx tiles.Index) fetch.Result {
		if f.callCount() == 3 {
			cancel()
		}
		return fetch.Result{Index: idx, Err: errors.New("offline")}
	}

	fc, err := New(f, fastOptions(1)).Run(ctx, Request{Region: baxian, Zoom: 19, Params: detection.DefaultParams()})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error: got %v, want context.Canceled", err)
	}
	if fc != nil {
		t.Error("collection should be nil after cancellation")
	}
	if got := f.callCount(); got != 3 {
		t.Errorf("fetches: got %d, want 3", got)
	}
}

func TestRun_MinDelayPacesRequests(t *testing.T) {
	f := &fakeFetcher{}
	opts := Options{Workers: 4, MinDelay: 20 * time.Millisecond}
	req := Request{Region: regionOver(origin, 2, 2), Zoom: 19, Params: detection.DefaultParams()}

	start := time.Now()
	if _, err := New(f, opts).Run(context.Background(), req); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// First request is immediate, the other three wait one interval each.
	if elapsed := time.Since(start); elapsed < 55*time.Millisecond {
		t.Errorf("elapsed: got %v, want at least 60ms", elapsed)
	}
}

func TestRun_MaxTiles(t *testing.T) {
	req := Request{Region: regionOver(origin, 3, 2), Zoom: 19, Params: detection.DefaultParams()}

	f := &fakeFetcher{}
	_, err := New(f, Options{Workers: 1, MaxTiles: 5}).Run(context.Background(), req)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "region" {
		t.Fatalf("error: got %v, want region *ConfigError", err)
	}
	if f.callCount() != 0 {
		t.Errorf("fetches: got %d, want 0", f.callCount())
	}

	f = &fakeFetcher{}
	if _, err := New(f, Options{Workers: 1, MaxTiles: 6}).Run(context.Background(), req); err != nil {
		t.Fatalf("Run at the limit failed: %v", err)
	}
	if f.callCount() != 6 {
		t.Errorf("fetches: got %d, want 6", f.callCount())
	}
}

func TestNew_DefaultMaxTiles(t *testing.T) {
	if got := New(&fakeFetcher{}, Options{}).Options().MaxTiles; got != DefaultMaxTiles {
		t.Errorf("MaxTiles: got %d, want %d", got, DefaultMaxTiles)
	}
}

func TestRun_DeadlineBeforeNextSlot(t *testing.T) {
	f := &fakeFetcher{}
	opts := Options{Workers: 1, MinDelay: time.Second}
	req := Request{Region: regionOver(origin, 3, 1), Zoom: 19, Params: detection.DefaultParams()}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	fc, err := New(f, opts).Run(ctx, req)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error: got %v, want context.DeadlineExceeded", err)
	}
	if fc != nil {
		t.Error("collection should be nil after a timeout")
	}
	// The limiter refuses to wait past the deadline instead of sleeping.
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("elapsed: got %v, want well under the 1s spacing", elapsed)
	}
	if f.callCount() != 1 {
		t.Errorf("fetches: got %d, want 1", f.callCount())
	}
}

func TestRunTile_Outcome(t *testing.T) {
	p := New(&fakeFetcher{fn: present(createFieldTile(256, image.Rect(40, 40, 120, 120)))}, fastOptions(1))
	out := p.RunTile(context.Background(), origin, detection.DefaultParams())

	if out.Status != StatusDetected {
		t.Errorf("Status: got %s, want %s", out.Status, StatusDetected)
	}
	if out.Source != "fake" {
		t.Errorf("Source: got %s, want fake", out.Source)
	}
	if len(out.Contours) != 1 || len(out.Features) != 1 {
		t.Errorf("got %d contours and %d features, want 1 and 1", len(out.Contours), len(out.Features))
	}

	absent := New(&fakeFetcher{}, fastOptions(1)).RunTile(context.Background(), origin, detection.DefaultParams())
	if absent.Status != StatusAbsent || absent.Err == nil {
		t.Errorf("absent outcome: got status %s err %v", absent.Status, absent.Err)
	}
}
