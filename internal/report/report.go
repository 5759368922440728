// Package report writes the run's processing log and the file mapping
// manifest.
//
// The processing log starts with a fixed header describing the request,
// receives the run's log lines through Write and ends with a summary. Report
// methods never fail the run: write errors are logged and the report keeps
// going.
package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vforwater/vforwater-loader/internal/domain"
)

// FileName is the name of the processing log inside the output directory.
const FileName = "processing.log"

// Header echoes the request at the top of the processing log.
type Header struct {
	Tool               string
	Version            string
	RunID              string
	StartDate          *time.Time
	EndDate            *time.Time
	ReferenceArea      bool
	CellTouches        bool
	DatasetIDs         []int64
	DatabaseConnection bool
	// DatabaseURI must already be redacted.
	DatabaseURI string
}

type Report struct {
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	file   *os.File
	failed bool
}

// Open creates the processing log at path, truncating an existing one.
// logger receives the report's own write failures and must not write into
// the report.
func Open(path string, logger *slog.Logger) (*Report, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	return &Report{path: path, logger: logger, file: f}, nil
}

func (r *Report) Path() string {
	return r.path
}

// Write appends p to the log. It implements io.Writer for log handlers.
func (r *Report) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return 0, os.ErrClosed
	}
	n, err := r.file.Write(p)
	if err != nil && !r.failed {
		// Only the first failure is logged.
		r.failed = true
		r.logger.Error("write processing log", "path", r.path, "error", err)
	}
	return n, err
}

func (r *Report) writeString(s string) {
	_, _ = r.Write([]byte(s))
}

// WriteHeader writes the request description and the separator after which
// log lines follow.
func (r *Report) WriteHeader(h Header) {
	var b strings.Builder
	fmt.Fprintf(&b, "This is the V-FOR-WaTer data loader report\n\n")
	fmt.Fprintf(&b, "The loader version is: %s %s (Go: %s)\n", h.Tool, h.Version, runtime.Version())
	fmt.Fprintf(&b, "Running on: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if h.RunID != "" {
		fmt.Fprintf(&b, "Run ID: %s\n", h.RunID)
	}
	b.WriteString("The following information has been submitted to the tool:\n\n")
	fmt.Fprintf(&b, "START DATE:         %s\n", formatDate(h.StartDate))
	fmt.Fprintf(&b, "END DATE:           %s\n", formatDate(h.EndDate))
	fmt.Fprintf(&b, "REFERENCE AREA:     %t\n", h.ReferenceArea)
	fmt.Fprintf(&b, "CELL TOUCHES:       %t\n\n", h.CellTouches)
	b.WriteString("DATASET IDS:\n")
	b.WriteString(joinIDs(h.DatasetIDs))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "DATABASE CONNECTION: %t\n", h.DatabaseConnection)
	fmt.Fprintf(&b, "DATABASE URI:        %s\n\n", h.DatabaseURI)
	b.WriteString("Processing logs:\n----------------\n")
	r.writeString(b.String())
}

// WriteSummary appends the run totals and one line per dataset that was not
// loaded.
func (r *Report) WriteSummary(stats domain.Stats, results []domain.LoadResult) {
	var b strings.Builder
	b.WriteString("\nSummary:\n--------\n")
	fmt.Fprintf(&b, "ATTEMPTED: %d\n", stats.Attempted)
	fmt.Fprintf(&b, "LOADED:    %d\n", stats.Loaded)
	fmt.Fprintf(&b, "SKIPPED:   %d\n", stats.Skipped)
	fmt.Fprintf(&b, "FAILED:    %d\n", stats.Failed)
	fmt.Fprintf(&b, "RUNTIME:   %.2f seconds\n", stats.Duration().Seconds())
	for _, res := range results {
		switch res.Outcome {
		case domain.OutcomeSkipped:
			fmt.Fprintf(&b, "SKIPPED dataset <ID=%d>: %s\n", res.DatasetID, res.Reason)
		case domain.OutcomeFailed:
			fmt.Fprintf(&b, "FAILED dataset <ID=%d>: %s\n", res.DatasetID, res.Reason)
		}
	}
	if stats.Attempted > 0 && stats.Loaded == 0 {
		fmt.Fprintf(&b, "WARNING: none of the %d requested datasets was loaded. The content of 'datasets' is empty.\n", stats.Attempted)
	}
	r.writeString(b.String())
}

// Contents returns the whole processing log.
func (r *Report) Contents() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file != nil {
		if err := r.file.Sync(); err != nil {
			r.logger.Warn("sync processing log", "path", r.path, "error", err)
		}
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return "", fmt.Errorf("read report: %w", err)
	}
	return string(data), nil
}

func (r *Report) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	if err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	return nil
}

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "None"
	}
	return t.UTC().Format(time.RFC3339)
}

func joinIDs(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ", ")
}
