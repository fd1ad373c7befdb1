// Package progress renders a one-line progress bar while a hunt runs.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Display manages the progress line and the final summary.
type Display struct {
	mu      sync.Mutex
	out     io.Writer
	started bool
	stopped bool

	pagesVisited atomic.Int64
	maxPages     atomic.Int64
	queueSize    atomic.Int64
	captured     atomic.Int64
	duplicates   atomic.Int64
	errors       atomic.Int64

	startTime time.Time
	target    string
	lastLine  string
}

// New creates a display writing to stderr.
func New() *Display {
	return NewWithWriter(os.Stderr)
}

// NewWithWriter creates a display writing to w.
func NewWithWriter(w io.Writer) *Display {
	return &Display{out: w}
}

// Start begins the progress display.
func (d *Display) Start(target string, maxPages int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}
	d.started = true
	d.startTime = time.Now()
	d.target = target
	d.maxPages.Store(int64(maxPages))
}

// Update redraws the line with current counts.
func (d *Display) Update(pagesVisited, queueSize, captured, duplicates, errors int) {
	d.pagesVisited.Store(int64(pagesVisited))
	d.queueSize.Store(int64(queueSize))
	d.captured.Store(int64(captured))
	d.duplicates.Store(int64(duplicates))
	d.errors.Store(int64(errors))

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started || d.stopped {
		return
	}

	total := int(d.maxPages.Load())
	if total <= 0 {
		total = 1
	}
	progress := pagesVisited * 100 / total
	if progress > 100 {
		progress = 100
	}

	elapsed := time.Since(d.startTime)
	barWidth := 30
	filled := progress * barWidth / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	line := fmt.Sprintf("\r[%s] %3d%% | Pages: %d/%d | Queue: %d | APIs: %d | Dups: %d | Errors: %d | %s",
		bar, progress, pagesVisited, total, queueSize, captured, duplicates, errors, formatDuration(elapsed))

	if n := len(d.lastLine); len(line) < n {
		fmt.Fprint(d.out, "\r"+strings.Repeat(" ", n))
	}
	fmt.Fprint(d.out, line)
	d.lastLine = line
}

// Stop ends the progress line.
func (d *Display) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || !d.started {
		return
	}
	d.stopped = true
	fmt.Fprintln(d.out)
}

// PrintSummary prints the final counts.
func (d *Display) PrintSummary(endpoints int) {
	duration := time.Since(d.startTime)

	fmt.Fprintln(d.out)
	fmt.Fprintln(d.out, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(d.out, "║                        Hunt Complete                         ║")
	fmt.Fprintln(d.out, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(d.out)
	fmt.Fprintf(d.out, "  Target:              %s\n", truncateURL(d.target, 50))
	fmt.Fprintf(d.out, "  Duration:            %s\n", formatDuration(duration))
	fmt.Fprintf(d.out, "  Pages Visited:       %d\n", d.pagesVisited.Load())
	fmt.Fprintf(d.out, "  API Calls Captured:  %d\n", d.captured.Load())
	fmt.Fprintf(d.out, "  Duplicates Skipped:  %d\n", d.duplicates.Load())
	fmt.Fprintf(d.out, "  Unique Endpoints:    %d\n", endpoints)
	fmt.Fprintf(d.out, "  Errors:              %d\n", d.errors.Load())
	fmt.Fprintln(d.out)
}

// Stats returns the last counts passed to Update.
func (d *Display) Stats() (pagesVisited, captured, duplicates, errors int64) {
	return d.pagesVisited.Load(), d.captured.Load(), d.duplicates.Load(), d.errors.Load()
}

func truncateURL(url string, maxLen int) string {
	r := []rune(url)
	if len(r) <= maxLen {
		return url
	}
	return string(r[:maxLen-3]) + "..."
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
