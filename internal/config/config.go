// Package config reads the runtime configuration from the environment.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/ironsheep/omr-eval/internal/omr"
)

// Environment variable names.
const (
	EnvLogLevel       = "OMR_LOG_LEVEL"
	EnvGridConfig     = "OMR_GRID_CONFIG"
	EnvWorkers        = "OMR_WORKERS"
	EnvDatabaseURL    = "OMR_DATABASE_URL"
	EnvTessdataPrefix = "OMR_TESSDATA_PREFIX"
	EnvOCRLanguage    = "OMR_OCR_LANGUAGE"
)

// Config holds the process settings read from the environment by Load.
type Config struct {
	LogLevel logrus.Level

	// GridConfigPath is empty when the default layout is used.
	GridConfigPath string
	Grid           omr.GridConfig

	Workers int

	// DatabaseURL enables result persistence when set.
	DatabaseURL string

	TessdataPrefix string
	OCRLanguage    string
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// Load reads every setting, falling back to defaults for unset variables.
func Load() (*Config, error) {
	level, err := logrus.ParseLevel(getEnv(EnvLogLevel, "info"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnvLogLevel, err)
	}

	workers, err := strconv.Atoi(getEnv(EnvWorkers, "4"))
	if err != nil || workers < 1 {
		return nil, fmt.Errorf("%s must be a positive integer, got %q", EnvWorkers, os.Getenv(EnvWorkers))
	}

	cfg := &Config{
		LogLevel:       level,
		GridConfigPath: getEnv(EnvGridConfig, ""),
		Grid:           omr.DefaultGridConfig(),
		Workers:        workers,
		DatabaseURL:    getEnv(EnvDatabaseURL, ""),
		TessdataPrefix: getEnv(EnvTessdataPrefix, ""),
		OCRLanguage:    getEnv(EnvOCRLanguage, "eng"),
	}
	if cfg.GridConfigPath != "" {
		grid, err := omr.LoadGridConfig(cfg.GridConfigPath)
		if err != nil {
			return nil, err
		}
		cfg.Grid = grid
	}
	return cfg, nil
}

// NewLogger returns a text logger at the configured level. Output goes to w,
// normally stderr because stdout carries the MCP protocol.
func (c *Config) NewLogger(w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(c.LogLevel)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log
}
