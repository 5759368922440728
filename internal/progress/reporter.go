package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vforwater/vforwater-loader/internal/domain"
)

const prefix = "[vforwater-loader]"

// Options configures the progress reporter.
type Options struct {
	// Total is the number of requested datasets.
	Total int

	// Workers is the pool size (for display).
	Workers int

	// Output is where progress lines go.
	// Default: os.Stderr
	Output io.Writer
}

// Reporter writes human-readable progress lines.
type Reporter struct {
	opts Options
	now  func() time.Time

	mu        sync.Mutex
	startTime time.Time
	loaded    int
	skipped   int
	failed    int
	stopped   bool
}

func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	return &Reporter{opts: opts, now: time.Now}
}

// Start prints the header line.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startTime = r.now()
	fmt.Fprintf(r.opts.Output, "%s Datasets: %d | Workers: %d\n", prefix, r.opts.Total, r.opts.Workers)
}

// ItemCompleted records one finished dataset and prints the running totals.
func (r *Reporter) ItemCompleted(done, total int, res domain.LoadResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch res.Outcome {
	case domain.OutcomeLoaded:
		r.loaded++
	case domain.OutcomeSkipped:
		r.skipped++
	case domain.OutcomeFailed:
		r.failed++
	}
	fmt.Fprintf(r.opts.Output, "%s Loading: %d/%d datasets (%d skipped, %d failed)\n",
		prefix, done, total, r.skipped, r.failed)
}

// Stop prints the final status once.
func (r *Reporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true

	var elapsed time.Duration
	if !r.startTime.IsZero() {
		elapsed = r.now().Sub(r.startTime)
	}
	fmt.Fprintf(r.opts.Output, "%s Done: %d loaded | %d skipped | %d failed | Total time: %s\n",
		prefix, r.loaded, r.skipped, r.failed, formatDuration(elapsed))
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm %ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}
