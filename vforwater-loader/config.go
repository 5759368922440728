package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vforwater/vforwater-loader/internal/platform/env"
	"github.com/vforwater/vforwater-loader/internal/platform/objectstore"
	"github.com/vforwater/vforwater-loader/internal/platform/postgres"
)

// config is read once at startup. Nothing below main looks at the
// environment.
type config struct {
	ToolName  string
	ParamFile string
	OutDir    string
	// DataRoot is the directory local datasource paths are resolved
	// against. Empty disables local datasources.
	DataRoot string
	// DataURL is a gocloud bucket URL (file:///data) used instead of
	// DataRoot when set.
	DataURL         string
	Workers         int
	Eager           bool
	ShutdownTimeout time.Duration
	LogLevel        slog.Level
	Database        postgres.Config
	Objects         objectstore.Config
}

func configFromEnv() (config, error) {
	workers, err := env.Int("LOADER_WORKERS", 0)
	if err != nil {
		return config{}, err
	}
	eager, err := env.Bool("LOADER_EAGER", false)
	if err != nil {
		return config{}, err
	}
	shutdownTimeout, err := env.Duration("LOADER_SHUTDOWN_TIMEOUT", 0)
	if err != nil {
		return config{}, err
	}
	level, err := env.Level("LOADER_LOG_LEVEL", slog.LevelInfo)
	if err != nil {
		return config{}, err
	}
	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		return config{}, fmt.Errorf("database: %w", err)
	}
	objCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		return config{}, fmt.Errorf("object store: %w", err)
	}

	cfg := config{
		ToolName:        strings.ToLower(strings.TrimSpace(env.String("TOOL_RUN", toolName))),
		ParamFile:       env.String("PARAM_FILE", "/in/inputs.json"),
		OutDir:          env.String("LOADER_OUT_DIR", "/out"),
		DataRoot:        strings.TrimSpace(env.String("LOADER_DATA_ROOT", "/")),
		DataURL:         strings.TrimSpace(env.String("LOADER_DATA_URL", "")),
		Workers:         workers,
		Eager:           eager,
		ShutdownTimeout: shutdownTimeout,
		LogLevel:        level,
		Database:        dbCfg,
		Objects:         objCfg,
	}
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c config) validate() error {
	if c.ToolName != toolName {
		return fmt.Errorf("either no TOOL_RUN environment variable available, or %q is not valid", c.ToolName)
	}
	if strings.TrimSpace(c.ParamFile) == "" {
		return errors.New("PARAM_FILE is required")
	}
	if strings.TrimSpace(c.OutDir) == "" {
		return errors.New("LOADER_OUT_DIR is required")
	}
	if c.Workers < 0 {
		return errors.New("LOADER_WORKERS must be >= 0")
	}
	if c.DataURL != "" && !strings.Contains(c.DataURL, "://") {
		return fmt.Errorf("LOADER_DATA_URL %q is not a bucket URL", c.DataURL)
	}
	if c.ShutdownTimeout < 0 {
		return errors.New("LOADER_SHUTDOWN_TIMEOUT must be >= 0")
	}
	return nil
}
