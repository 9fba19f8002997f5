package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ironsheep/parcel-tracer/internal/detection"
	"github.com/ironsheep/parcel-tracer/internal/fetch"
	"github.com/ironsheep/parcel-tracer/internal/pipeline"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Pipeline.Zoom != pipeline.DefaultZoom {
		t.Errorf("zoom: got %d, want %d", cfg.Pipeline.Zoom, pipeline.DefaultZoom)
	}
	if cfg.Pipeline.Workers != 1 {
		t.Errorf("workers: got %d, want 1", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.MaxTiles != pipeline.DefaultMaxTiles {
		t.Errorf("max_tiles: got %d, want %d", cfg.Pipeline.MaxTiles, pipeline.DefaultMaxTiles)
	}
	if cfg.Detection != detection.DefaultParams() {
		t.Errorf("detection: got %+v, want defaults", cfg.Detection)
	}
	if cfg.Pipeline.Region.MinLat != 24.6538 || cfg.Pipeline.Region.MaxLon != 121.7935 {
		t.Errorf("region: got %+v, want the Baxian default", cfg.Pipeline.Region)
	}

	fc, err := cfg.Imagery.FetchConfig()
	if err != nil {
		t.Fatalf("FetchConfig failed: %v", err)
	}
	if len(fc.Sources) != 1 || fc.Sources[0] != fetch.ESRIWorldImagery {
		t.Errorf("sources: got %+v, want [esri]", fc.Sources)
	}
	if fc.Timeout != 10*time.Second {
		t.Errorf("timeout: got %v, want 10s", fc.Timeout)
	}
}

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate(): %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PARCEL_PIPELINE_ZOOM", "18")
	t.Setenv("PARCEL_PIPELINE_MIN_DELAY", "750ms")
	t.Setenv("PARCEL_DETECTION_CANNY_HIGH", "120")
	t.Setenv("PARCEL_IMAGERY_FALLBACK", "osm")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Pipeline.Zoom != 18 {
		t.Errorf("zoom: got %d, want 18", cfg.Pipeline.Zoom)
	}
	if cfg.Pipeline.MinDelay != 750*time.Millisecond {
		t.Errorf("min_delay: got %v, want 750ms", cfg.Pipeline.MinDelay)
	}
	if cfg.Detection.CannyHigh != 120 {
		t.Errorf("canny_high: got %d, want 120", cfg.Detection.CannyHigh)
	}

	sources, err := cfg.Imagery.Sources()
	if err != nil {
		t.Fatalf("Sources failed: %v", err)
	}
	if len(sources) != 2 || sources[1] != fetch.OpenStreetMap {
		t.Errorf("sources: got %+v, want [esri osm]", sources)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parcel-tracer.yaml")
	content := `
imagery:
  source: "https://tiles.example.com/{z}/{x}/{y}.jpg"
pipeline:
  workers: 4
  region:
    min_lat: 10
    max_lat: 10.5
    min_lon: 20
    max_lon: 20.5
detection:
  min_area: 100
  vegetation:
    lower: {h: 25, s: 30, v: 30}
log:
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Errorf("workers: got %d, want 4", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.Region.MaxLat != 10.5 {
		t.Errorf("region.max_lat: got %v, want 10.5", cfg.Pipeline.Region.MaxLat)
	}
	if cfg.Detection.MinArea != 100 {
		t.Errorf("min_area: got %v, want 100", cfg.Detection.MinArea)
	}
	if cfg.Detection.Vegetation.Lower.H != 25 || cfg.Detection.Vegetation.Upper.H != 90 {
		t.Errorf("vegetation: got %+v, want lower.h 25 and default upper.h 90", cfg.Detection.Vegetation)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("log.format: got %s, want json", cfg.Log.Format)
	}

	sources, err := cfg.Imagery.Sources()
	if err != nil {
		t.Fatalf("Sources failed: %v", err)
	}
	if sources[0].Name != "custom" {
		t.Errorf("source name: got %s, want custom", sources[0].Name)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load should fail for a missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"bad zoom", func(c *Config) { c.Pipeline.Zoom = 25 }, "pipeline.zoom"},
		{"no workers", func(c *Config) { c.Pipeline.Workers = 0 }, "pipeline.workers"},
		{"no tile budget", func(c *Config) { c.Pipeline.MaxTiles = 0 }, "pipeline.max_tiles"},
		{"inverted region", func(c *Config) { c.Pipeline.Region.MinLat = 30 }, "pipeline.region"},
		{"canny order", func(c *Config) { c.Detection.CannyLow = 200 }, "detection"},
		{"unknown source", func(c *Config) { c.Imagery.Source = "bing" }, "imagery.source"},
		{"ftp template", func(c *Config) { c.Imagery.Fallback = "ftp://x/{z}/{x}/{y}" }, "imagery.fallback"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"bad log level", func(c *Config) { c.Log.Level = "chatty" }, "log.level"},
		{"telemetry without endpoint", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Endpoint = ""
		}, "telemetry.endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %s", err, tt.want)
			}
		})
	}
}
