package progress

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vforwater/vforwater-loader/internal/domain"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{0, "0s"},
		{12 * time.Second, "12s"},
		{90 * time.Second, "1m 30s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h 2m 3s"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.input); got != tt.expected {
			t.Errorf("formatDuration(%s) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestReporterLines(t *testing.T) {
	var out bytes.Buffer
	reporter := NewReporter(Options{Total: 3, Workers: 2, Output: &out})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	reporter.now = func() time.Time {
		calls++
		return base.Add(time.Duration(calls-1) * 12 * time.Second)
	}

	reporter.Start()
	reporter.ItemCompleted(1, 3, domain.Loaded(domain.Descriptor{ID: 1}, "/out/1.csv"))
	reporter.ItemCompleted(2, 3, domain.Skipped(2, domain.ReasonNoData))
	reporter.ItemCompleted(3, 3, domain.Failed(3, domain.ItemLoadFailed, errors.New("boom")))
	reporter.Stop()
	reporter.Stop()

	want := strings.Join([]string{
		"[vforwater-loader] Datasets: 3 | Workers: 2",
		"[vforwater-loader] Loading: 1/3 datasets (0 skipped, 0 failed)",
		"[vforwater-loader] Loading: 2/3 datasets (1 skipped, 0 failed)",
		"[vforwater-loader] Loading: 3/3 datasets (1 skipped, 1 failed)",
		"[vforwater-loader] Done: 1 loaded | 1 skipped | 1 failed | Total time: 12s",
		"",
	}, "\n")
	if out.String() != want {
		t.Errorf("output =\n%s\nwant\n%s", out.String(), want)
	}
}
