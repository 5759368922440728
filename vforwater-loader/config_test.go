package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/vforwater/vforwater-loader/internal/domain"
	"github.com/vforwater/vforwater-loader/internal/orchestrator"
	"github.com/vforwater/vforwater-loader/internal/platform/postgres"
)

func TestConfigFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"TOOL_RUN", "PARAM_FILE", "LOADER_OUT_DIR", "LOADER_WORKERS", "LOADER_DATA_ROOT", "LOADER_DATA_URL", "VFW_POSTGRES_URI", "METACATALOG_URI", "VFW_MINIO_ENDPOINT"} {
		t.Setenv(key, "")
	}
	t.Setenv("TOOL_RUN", "vforwater_loader")
	t.Setenv("PARAM_FILE", "/in/inputs.json")
	t.Setenv("LOADER_OUT_DIR", "/out")
	t.Setenv("LOADER_WORKERS", "0")
	t.Setenv("LOADER_DATA_ROOT", "/")

	cfg, err := configFromEnv()
	if err != nil {
		t.Fatalf("configFromEnv() err=%v", err)
	}
	if cfg.ToolName != toolName || cfg.ParamFile != "/in/inputs.json" || cfg.OutDir != "/out" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Workers != 0 || cfg.Eager || cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("unexpected runtime config %+v", cfg)
	}
	if cfg.Database.Explicit {
		t.Fatalf("expected default database url")
	}
	if cfg.Objects.Enabled() {
		t.Fatalf("expected object store to be disabled")
	}
	if cfg.DataRoot != "/" || cfg.DataURL != "" {
		t.Fatalf("unexpected data source config %+v", cfg)
	}
}

func TestConfigFromEnvDataURL(t *testing.T) {
	t.Setenv("TOOL_RUN", "vforwater_loader")
	t.Setenv("LOADER_DATA_URL", " file:///data ")
	cfg, err := configFromEnv()
	if err != nil {
		t.Fatalf("configFromEnv() err=%v", err)
	}
	if cfg.DataURL != "file:///data" {
		t.Fatalf("DataURL=%q", cfg.DataURL)
	}
}

func TestConfigFromEnvToolRunIsCaseInsensitive(t *testing.T) {
	t.Setenv("TOOL_RUN", " VFORWATER_LOADER ")
	t.Setenv("LOADER_WORKERS", "4")
	t.Setenv("LOADER_LOG_LEVEL", "debug")

	cfg, err := configFromEnv()
	if err != nil {
		t.Fatalf("configFromEnv() err=%v", err)
	}
	if cfg.Workers != 4 || cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestConfigFromEnvRejectsUnknownTool(t *testing.T) {
	t.Setenv("TOOL_RUN", "vforwater_merger")
	_, err := configFromEnv()
	if err == nil || !strings.Contains(err.Error(), "vforwater_merger") {
		t.Fatalf("configFromEnv() err=%v, want invalid tool", err)
	}
}

func TestConfigFromEnvRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"LOADER_WORKERS":          "-1",
		"LOADER_EAGER":            "maybe",
		"LOADER_SHUTDOWN_TIMEOUT": "soon",
		"LOADER_LOG_LEVEL":        "loud",
		"LOADER_DATA_URL":         "/data",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("TOOL_RUN", "vforwater_loader")
			t.Setenv(key, value)
			if _, err := configFromEnv(); err == nil {
				t.Fatalf("expected error for %s=%q", key, value)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{fmt.Errorf("%w: invalid polygon", orchestrator.ErrReferenceArea), exitRefArea},
		{fmt.Errorf("%w: shutdown: %w", orchestrator.ErrPool, context.DeadlineExceeded), exitPool},
		{fmt.Errorf("run interrupted: %w", context.Canceled), exitInterrupted},
		{errors.New("disk full"), exitGeneral},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Fatalf("exitCode(%v)=%d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestNewHeader(t *testing.T) {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := config{Database: postgres.Config{URL: "postgres://loader:secret@db:5432/metacatalog", Explicit: true}}
	req := domain.RunRequest{
		DatasetIDs:    []int64{10, 11},
		TimeRange:     &domain.TimeRange{Start: start},
		ReferenceArea: json.RawMessage(`{"type":"Point","coordinates":[8.4,49.0]}`),
		CellTouches:   true,
	}

	h := newHeader(cfg, "run-1", req)
	if h.StartDate == nil || !h.StartDate.Equal(start) || h.EndDate != nil {
		t.Fatalf("unexpected dates %v %v", h.StartDate, h.EndDate)
	}
	if !h.ReferenceArea || !h.CellTouches || !h.DatabaseConnection || len(h.DatasetIDs) != 2 {
		t.Fatalf("unexpected header %+v", h)
	}
	if strings.Contains(h.DatabaseURI, "secret") {
		t.Fatalf("password not redacted: %s", h.DatabaseURI)
	}
}
