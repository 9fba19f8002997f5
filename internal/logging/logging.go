// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Config selects the log level and output format.
type Config struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Setup configures the standard logger to write to stderr. Stdout is kept
// free for GeoJSON and MCP traffic.
func Setup(cfg Config) error {
	return SetupWriter(os.Stderr, cfg)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, cfg Config) error {
	level := log.InfoLevel
	if cfg.Level != "" {
		var err error
		level, err = log.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	var formatter log.Formatter
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		formatter = &log.TextFormatter{FullTimestamp: true}
	case "json":
		formatter = &log.JSONFormatter{}
	default:
		return fmt.Errorf("invalid log format %q: want text or json", cfg.Format)
	}

	log.SetOutput(w)
	log.SetLevel(level)
	log.SetFormatter(formatter)
	return nil
}
