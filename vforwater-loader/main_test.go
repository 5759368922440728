package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vforwater/vforwater-loader/internal/report"
)

func TestRunReplacesProcessingLogOnInvalidParameters(t *testing.T) {
	out := t.TempDir()
	logPath := filepath.Join(out, report.FileName)
	if err := os.WriteFile(logPath, []byte("previous run\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() err=%v", err)
	}
	t.Setenv("TOOL_RUN", toolName)
	t.Setenv("PARAM_FILE", filepath.Join(out, "missing.json"))
	t.Setenv("LOADER_OUT_DIR", out)
	t.Setenv("LOADER_DATA_URL", "")

	if code := run(); code != exitConfig {
		t.Fatalf("run()=%d, want %d", code, exitConfig)
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile() err=%v", err)
	}
	got := string(data)
	if strings.Contains(got, "previous run") {
		t.Fatalf("stale processing log kept:\n%s", got)
	}
	if !strings.Contains(got, `msg="invalid parameters"`) {
		t.Fatalf("processing log missing parameter error:\n%s", got)
	}
}
