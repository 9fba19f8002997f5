package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ironsheep/parcel-tracer/internal/api"
	"github.com/ironsheep/parcel-tracer/internal/config"
	"github.com/ironsheep/parcel-tracer/internal/fetch"
	"github.com/ironsheep/parcel-tracer/internal/logging"
	"github.com/ironsheep/parcel-tracer/internal/output"
	"github.com/ironsheep/parcel-tracer/internal/pipeline"
	"github.com/ironsheep/parcel-tracer/internal/server"
	"github.com/ironsheep/parcel-tracer/internal/telemetry"
	"github.com/ironsheep/parcel-tracer/internal/tiles"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	rootCmd = &cobra.Command{
		Use:               "parcel-tracer",
		Short:             "Trace land parcel boundaries from satellite imagery tiles.",
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	cfg               *config.Config
	shutdownTelemetry func(context.Context) error

	flagConfigPath string
	flagLogLevel   string
	flagLogFormat  string

	flagBBox      string
	flagLat       float64
	flagLon       float64
	flagRadius    float64
	flagZoom      int
	flagCannyLow  int
	flagCannyHigh int
	flagMinArea   float64
	flagWorkers   int
	flagOutPath   string
	flagList      bool
)

func init() {
	cobra.EnablePrefixMatching = true

	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file (default: parcel-tracer.yaml in . or ./configs)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format: text or json")

	detectCmd := &cobra.Command{
		Use:   "detect",
		Short: "detect parcel boundaries in a region and write GeoJSON",
		RunE:  detectCommand,
	}
	addRegionFlags(detectCmd)
	detectCmd.Flags().IntVar(&flagCannyLow, "canny-low", 0, "lower Canny threshold")
	detectCmd.Flags().IntVar(&flagCannyHigh, "canny-high", 0, "upper Canny threshold")
	detectCmd.Flags().Float64Var(&flagMinArea, "min-area", 0, "minimum polygon area in square pixels")
	detectCmd.Flags().IntVar(&flagWorkers, "workers", 0, "tiles processed concurrently")
	detectCmd.Flags().StringVarP(&flagOutPath, "out", "o", "", "output file (default: stdout)")
	rootCmd.AddCommand(detectCmd)

	tileCmd := &cobra.Command{
		Use:   "tile",
		Short: "print the tile containing a point",
		RunE:  tileCommand,
	}
	tileCmd.Flags().Float64Var(&flagLat, "lat", 0, "latitude in degrees")
	tileCmd.Flags().Float64Var(&flagLon, "lon", 0, "longitude in degrees")
	tileCmd.Flags().IntVar(&flagZoom, "zoom", 0, "zoom level (default from config)")
	tileCmd.MarkFlagRequired("lat")
	tileCmd.MarkFlagRequired("lon")
	rootCmd.AddCommand(tileCmd)

	gridCmd := &cobra.Command{
		Use:   "grid",
		Short: "print the tiles covering a region",
		RunE:  gridCommand,
	}
	addRegionFlags(gridCmd)
	gridCmd.Flags().BoolVar(&flagList, "list", false, "list every tile")
	rootCmd.AddCommand(gridCmd)

	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "serve MCP tools over stdin/stdout",
		RunE:  mcpCommand,
	}
	rootCmd.AddCommand(mcpCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "start the HTTP detection API",
		RunE:  serveCommand,
	}
	rootCmd.AddCommand(serveCmd)

	versionCmd := &cobra.Command{
		Use:               "version",
		Short:             "print version information",
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("parcel-tracer %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
		},
	}
	rootCmd.AddCommand(versionCmd)
}

func addRegionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagBBox, "bbox", "", "region as west,south,east,north in degrees (default from config)")
	cmd.Flags().Float64Var(&flagLat, "lat", 0, "center latitude, used with --radius")
	cmd.Flags().Float64Var(&flagLon, "lon", 0, "center longitude, used with --radius")
	cmd.Flags().Float64Var(&flagRadius, "radius", 0, "half the side of a square region around --lat/--lon, in meters")
	cmd.Flags().IntVar(&flagZoom, "zoom", 0, "zoom level (default from config)")
	cmd.MarkFlagsMutuallyExclusive("bbox", "radius")
	cmd.MarkFlagsRequiredTogether("lat", "lon", "radius")
}

// setup loads configuration and initializes logging and tracing for every
// command except version.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(flagConfigPath)
	if err != nil {
		return err
	}

	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.Log.Format = flagLogFormat
	}
	if err := logging.Setup(cfg.Log); err != nil {
		return err
	}

	shutdownTelemetry, err = telemetry.Init(cmd.Context(), cfg.Telemetry)
	if err != nil {
		log.WithError(err).Warn("Telemetry init failed, continuing without tracing")
		shutdownTelemetry = nil
	}

	log.WithFields(log.Fields{"version": Version, "commit": GitCommit}).Debug("parcel-tracer starting")
	return nil
}

// region resolves the region flags against the configured default.
func region(cmd *cobra.Command) (tiles.Region, error) {
	switch {
	case cmd.Flags().Changed("bbox"):
		return parseBBox(flagBBox)
	case cmd.Flags().Changed("radius"):
		if flagRadius <= 0 {
			return tiles.Region{}, fmt.Errorf("--radius must be positive")
		}
		return tiles.RegionAround(flagLat, flagLon, flagRadius), nil
	default:
		return cfg.Pipeline.Region, nil
	}
}

func parseBBox(s string) (tiles.Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return tiles.Region{}, fmt.Errorf("--bbox needs 4 comma-separated values, got %d", len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return tiles.Region{}, fmt.Errorf("--bbox value %q: %w", p, err)
		}
		v[i] = f
	}
	return tiles.Region{MinLon: v[0], MinLat: v[1], MaxLon: v[2], MaxLat: v[3]}, nil
}

func zoom(cmd *cobra.Command) int {
	if cmd.Flags().Changed("zoom") {
		return flagZoom
	}
	return cfg.Pipeline.Zoom
}

func newPipeline() (*pipeline.Pipeline, *fetch.Client, error) {
	fc, err := cfg.Imagery.FetchConfig()
	if err != nil {
		return nil, nil, err
	}
	client := fetch.NewClient(fc)
	return pipeline.New(client, cfg.Pipeline.Options()), client, nil
}

func detectCommand(cmd *cobra.Command, args []string) error {
	r, err := region(cmd)
	if err != nil {
		return err
	}

	params := cfg.Detection
	if cmd.Flags().Changed("canny-low") {
		params.CannyLow = flagCannyLow
	}
	if cmd.Flags().Changed("canny-high") {
		params.CannyHigh = flagCannyHigh
	}
	if cmd.Flags().Changed("min-area") {
		params.MinArea = flagMinArea
	}
	if cmd.Flags().Changed("workers") {
		cfg.Pipeline.Workers = flagWorkers
	}

	p, _, err := newPipeline()
	if err != nil {
		return err
	}

	fc, err := p.Run(cmd.Context(), pipeline.Request{Region: r, Zoom: zoom(cmd), Params: params})
	if err != nil {
		return err
	}

	if flagOutPath == "" {
		return output.Encode(os.Stdout, fc)
	}
	if err := output.WriteFile(flagOutPath, fc); err != nil {
		return err
	}
	log.WithFields(log.Fields{"path": flagOutPath, "features": len(fc.Features)}).Info("Wrote feature collection")
	return nil
}

func tileCommand(cmd *cobra.Command, args []string) error {
	z := zoom(cmd)
	if err := tiles.ValidateZoom(z); err != nil {
		return err
	}
	idx := tiles.FromGeo(flagLat, flagLon, z)
	b := idx.Bounds()
	return printJSON(map[string]interface{}{
		"z":       idx.Zoom,
		"x":       idx.X,
		"y":       idx.Y,
		"label":   idx.String(),
		"quadkey": idx.Quadkey(),
		"bounds":  [4]float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()},
	})
}

func gridCommand(cmd *cobra.Command, args []string) error {
	r, err := region(cmd)
	if err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	z := zoom(cmd)
	if err := tiles.ValidateZoom(z); err != nil {
		return err
	}

	grid := tiles.NewGrid(r, z)
	result := map[string]interface{}{
		"zoom":    z,
		"columns": grid.Columns(),
		"rows":    grid.Rows(),
		"count":   grid.Len(),
		"min":     tiles.Index{Zoom: z, X: grid.MinX, Y: grid.MinY},
		"max":     tiles.Index{Zoom: z, X: grid.MaxX, Y: grid.MaxY},
	}
	if flagList {
		result["tiles"] = grid.Tiles()
	}
	return printJSON(result)
}

func mcpCommand(cmd *cobra.Command, args []string) error {
	p, _, err := newPipeline()
	if err != nil {
		return err
	}
	srv := server.New(server.Config{
		Pipeline: p,
		Region:   cfg.Pipeline.Region,
		Zoom:     cfg.Pipeline.Zoom,
		Params:   cfg.Detection,
		Version:  Version,
	})
	log.Info("MCP server listening on stdio")
	return srv.Run(cmd.Context())
}

func serveCommand(cmd *cobra.Command, args []string) error {
	p, client, err := newPipeline()
	if err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.Server.WriteTimeout) * time.Second,
		AppName:               "parcel-tracer",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	api.SetupRoutes(app, &api.Dependencies{
		Pipeline:       p,
		Fetcher:        client,
		Region:         cfg.Pipeline.Region,
		Zoom:           cfg.Pipeline.Zoom,
		Params:         cfg.Detection,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
		Version:        Version,
	})

	errCh := make(chan error, 1)
	go func() {
		addr := cfg.Server.Addr()
		log.WithField("addr", addr).Info("API server starting")
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-cmd.Context().Done():
	}

	log.Info("Shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	log.Info("Server stopped")
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if shutdownTelemetry != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := shutdownTelemetry(flushCtx); err != nil {
			log.WithError(err).Warn("Telemetry shutdown failed")
		}
		cancel()
	}

	fatalIf(err)
}

func fatalIf(err error) {
	if err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
