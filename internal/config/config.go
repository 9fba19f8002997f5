// Package config loads parcel-tracer settings from defaults, an optional
// YAML file and PARCEL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/ironsheep/parcel-tracer/internal/detection"
	"github.com/ironsheep/parcel-tracer/internal/fetch"
	"github.com/ironsheep/parcel-tracer/internal/logging"
	"github.com/ironsheep/parcel-tracer/internal/pipeline"
	"github.com/ironsheep/parcel-tracer/internal/telemetry"
	"github.com/ironsheep/parcel-tracer/internal/tiles"
)

// EnvPrefix is prepended to environment overrides:
// PARCEL_PIPELINE_ZOOM sets pipeline.zoom.
const EnvPrefix = "PARCEL"

// Config holds all application configuration.
type Config struct {
	Imagery   ImageryConfig    `mapstructure:"imagery"`
	Pipeline  PipelineConfig   `mapstructure:"pipeline"`
	Detection detection.Params `mapstructure:"detection"`
	Server    ServerConfig     `mapstructure:"server"`
	Log       logging.Config   `mapstructure:"log"`
	Telemetry telemetry.Config `mapstructure:"telemetry"`
}

// ImageryConfig selects the tile sources. Source and Fallback accept "esri",
// "osm" or a URL template containing {z}, {x} and {y}, or a single {q}
// quadkey.
type ImageryConfig struct {
	Source     string        `mapstructure:"source"`
	Fallback   string        `mapstructure:"fallback"`
	UserAgent  string        `mapstructure:"user_agent"`
	Timeout    time.Duration `mapstructure:"timeout"`
	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

// PipelineConfig controls region runs. Region is used when a caller does not
// supply one.
type PipelineConfig struct {
	Zoom               int           `mapstructure:"zoom"`
	Workers            int           `mapstructure:"workers"`
	MinDelay           time.Duration `mapstructure:"min_delay"`
	MaxFeaturesPerTile int           `mapstructure:"max_features_per_tile"`
	MaxTiles           int           `mapstructure:"max_tiles"`
	Region             tiles.Region  `mapstructure:"region"`
}

// ServerConfig configures the HTTP API. Timeouts are in seconds.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	ReadTimeout    int `mapstructure:"read_timeout"`
	WriteTimeout   int `mapstructure:"write_timeout"`
	RequestTimeout int `mapstructure:"request_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string { return fmt.Sprintf(":%d", s.Port) }

// Load reads configuration. When path is empty, parcel-tracer.yaml is looked
// up in the working directory and ./configs and may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("parcel-tracer")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	if used := v.ConfigFileUsed(); used != "" {
		log.WithField("file", used).Debug("Loaded config file")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the built-in configuration without consulting files or
// the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	fc := fetch.DefaultConfig()
	v.SetDefault("imagery.source", fetch.ESRIWorldImagery.Name)
	v.SetDefault("imagery.fallback", "")
	v.SetDefault("imagery.user_agent", fc.UserAgent)
	v.SetDefault("imagery.timeout", fc.Timeout)
	v.SetDefault("imagery.retries", fc.Retries)
	v.SetDefault("imagery.retry_delay", fc.RetryDelay)

	opts := pipeline.DefaultOptions()
	v.SetDefault("pipeline.zoom", pipeline.DefaultZoom)
	v.SetDefault("pipeline.workers", opts.Workers)
	v.SetDefault("pipeline.min_delay", opts.MinDelay)
	v.SetDefault("pipeline.max_features_per_tile", opts.MaxFeaturesPerTile)
	v.SetDefault("pipeline.max_tiles", opts.MaxTiles)
	// Baxian, Yilan County
	v.SetDefault("pipeline.region.min_lat", 24.6538)
	v.SetDefault("pipeline.region.max_lat", 24.6660)
	v.SetDefault("pipeline.region.min_lon", 121.7770)
	v.SetDefault("pipeline.region.max_lon", 121.7935)

	p := detection.DefaultParams()
	v.SetDefault("detection.canny_low", p.CannyLow)
	v.SetDefault("detection.canny_high", p.CannyHigh)
	v.SetDefault("detection.min_area", p.MinArea)
	v.SetDefault("detection.blur_radius", p.BlurRadius)
	v.SetDefault("detection.dilate_iterations", p.DilateIterations)
	v.SetDefault("detection.erode_iterations", p.ErodeIterations)
	v.SetDefault("detection.vegetation.lower.h", p.Vegetation.Lower.H)
	v.SetDefault("detection.vegetation.lower.s", p.Vegetation.Lower.S)
	v.SetDefault("detection.vegetation.lower.v", p.Vegetation.Lower.V)
	v.SetDefault("detection.vegetation.upper.h", p.Vegetation.Upper.H)
	v.SetDefault("detection.vegetation.upper.s", p.Vegetation.Upper.S)
	v.SetDefault("detection.vegetation.upper.v", p.Vegetation.Upper.V)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 300)
	v.SetDefault("server.request_timeout", 300)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "parcel-tracer")
	v.SetDefault("telemetry.endpoint", "localhost:4317")
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []string

	if _, err := c.Imagery.Sources(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Imagery.Timeout <= 0 {
		errs = append(errs, "imagery.timeout must be positive")
	}
	if c.Imagery.Retries < 0 {
		errs = append(errs, fmt.Sprintf("imagery.retries must be >= 0, got %d", c.Imagery.Retries))
	}

	if err := tiles.ValidateZoom(c.Pipeline.Zoom); err != nil {
		errs = append(errs, "pipeline.zoom: "+err.Error())
	}
	if c.Pipeline.Workers < 1 {
		errs = append(errs, fmt.Sprintf("pipeline.workers must be >= 1, got %d", c.Pipeline.Workers))
	}
	if c.Pipeline.MinDelay < 0 {
		errs = append(errs, "pipeline.min_delay must not be negative")
	}
	if c.Pipeline.MaxFeaturesPerTile < 0 {
		errs = append(errs, "pipeline.max_features_per_tile must not be negative")
	}
	if c.Pipeline.MaxTiles < 1 {
		errs = append(errs, fmt.Sprintf("pipeline.max_tiles must be >= 1, got %d", c.Pipeline.MaxTiles))
	}
	if err := c.Pipeline.Region.Validate(); err != nil {
		errs = append(errs, "pipeline.region: "+err.Error())
	}

	if err := c.Detection.Validate(); err != nil {
		errs = append(errs, "detection: "+err.Error())
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, "server.request_timeout must be positive")
	}

	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Sprintf("log.level %q is not a valid level", c.Log.Level))
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		errs = append(errs, fmt.Sprintf("log.format must be text or json, got %q", c.Log.Format))
	}

	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		errs = append(errs, "telemetry.endpoint is required when telemetry is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Sources resolves the primary and optional fallback source.
func (c ImageryConfig) Sources() ([]fetch.Source, error) {
	primary, err := resolveSource(c.Source)
	if err != nil {
		return nil, fmt.Errorf("imagery.source: %w", err)
	}
	sources := []fetch.Source{primary}
	if c.Fallback != "" {
		fallback, err := resolveSource(c.Fallback)
		if err != nil {
			return nil, fmt.Errorf("imagery.fallback: %w", err)
		}
		if fallback.Name == primary.Name {
			fallback.Name += "-fallback"
		}
		sources = append(sources, fallback)
	}
	return sources, nil
}

// FetchConfig converts the section to a fetch client configuration.
func (c ImageryConfig) FetchConfig() (fetch.Config, error) {
	sources, err := c.Sources()
	if err != nil {
		return fetch.Config{}, err
	}
	return fetch.Config{
		Sources:    sources,
		UserAgent:  c.UserAgent,
		Timeout:    c.Timeout,
		Retries:    c.Retries,
		RetryDelay: c.RetryDelay,
	}, nil
}

// Options converts the section to pipeline options.
func (c PipelineConfig) Options() pipeline.Options {
	return pipeline.Options{
		Workers:            c.Workers,
		MinDelay:           c.MinDelay,
		MaxFeaturesPerTile: c.MaxFeaturesPerTile,
		MaxTiles:           c.MaxTiles,
	}
}

func resolveSource(s string) (fetch.Source, error) {
	var src fetch.Source
	switch strings.ToLower(s) {
	case fetch.ESRIWorldImagery.Name:
		src = fetch.ESRIWorldImagery
	case fetch.OpenStreetMap.Name:
		src = fetch.OpenStreetMap
	case "":
		return src, errors.New("source is required")
	default:
		src = fetch.Source{Name: "custom", Template: s}
	}
	if err := src.Validate(); err != nil {
		return src, err
	}
	return src, nil
}
