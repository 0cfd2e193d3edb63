// Package progress reports per-file transfer progress during an
// archival run.
package progress

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Reporter handles progress reporting for file transfers
type Reporter interface {
	// Start begins tracking a new file transfer
	Start(path string, totalBytes int64)
	// Update reports bytes transferred so far on the current file
	Update(bytesTransferred int64)
	// Complete marks the current transfer as complete
	Complete()
	// Error reports an error on the current transfer
	Error(err error)
}

const (
	// drawInterval throttles progress bar redraws
	drawInterval = 100 * time.Millisecond

	// barThreshold: files smaller than this never draw a bar
	barThreshold = 1 << 20

	barWidth = 30
)

// ConsoleReporter implements Reporter on a terminal-style writer. It
// draws an in-place progress bar for large files and a one-line
// summary per completed transfer.
type ConsoleReporter struct {
	w           io.Writer
	path        string
	total       int64
	transferred int64
	startTime   time.Time
	lastDraw    time.Time
	drew        bool

	// minDrawInterval overrides drawInterval, for tests
	minDrawInterval time.Duration
}

// NewConsoleReporter creates a reporter writing to w, or standard
// error when w is nil
func NewConsoleReporter(w io.Writer) *ConsoleReporter {
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleReporter{w: w, minDrawInterval: drawInterval}
}

// Start implements the Reporter interface
func (r *ConsoleReporter) Start(path string, totalBytes int64) {
	r.path = path
	r.total = totalBytes
	r.transferred = 0
	r.startTime = time.Now()
	r.lastDraw = time.Time{}
	r.drew = false
}

// Update implements the Reporter interface
func (r *ConsoleReporter) Update(bytesTransferred int64) {
	r.transferred = bytesTransferred
	if r.total < barThreshold {
		return
	}

	now := time.Now()
	if now.Sub(r.lastDraw) < r.minDrawInterval {
		return
	}
	r.lastDraw = now
	r.drew = true

	var speed float64
	if elapsed := now.Sub(r.startTime).Seconds(); elapsed > 0 {
		speed = float64(bytesTransferred) / elapsed
	}
	fmt.Fprintf(r.w, "\r%s %s %s", filepath.Base(r.path),
		FormatProgress(bytesTransferred, r.total, barWidth), FormatSpeed(speed))
}

// Complete implements the Reporter interface
func (r *ConsoleReporter) Complete() {
	elapsed := time.Since(r.startTime)
	var speed float64
	if s := elapsed.Seconds(); s > 0 {
		speed = float64(r.total) / s
	}
	if r.drew {
		fmt.Fprint(r.w, "\n")
	}
	fmt.Fprintf(r.w, "%s: %s in %s (%s)\n", r.path,
		FormatBytes(r.total), elapsed.Round(time.Millisecond), FormatSpeed(speed))
}

// Error implements the Reporter interface
func (r *ConsoleReporter) Error(err error) {
	if r.drew {
		fmt.Fprint(r.w, "\n")
	}
	fmt.Fprintf(r.w, "%s: %v\n", r.path, err)
}

// ProgressReader wraps an io.Reader to track read progress
type ProgressReader struct {
	reader      io.Reader
	reporter    Reporter
	transferred int64
}

// NewProgressReader creates a new progress-tracking reader
func NewProgressReader(r io.Reader, reporter Reporter) *ProgressReader {
	return &ProgressReader{
		reader:   r,
		reporter: reporter,
	}
}

// Read implements io.Reader
func (pr *ProgressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 {
		pr.transferred += int64(n)
		if pr.reporter != nil {
			pr.reporter.Update(pr.transferred)
		}
	}
	return n, err
}

// NullReporter is a no-op reporter
type NullReporter struct{}

func (NullReporter) Start(path string, totalBytes int64) {}
func (NullReporter) Update(bytesTransferred int64)       {}
func (NullReporter) Complete()                           {}
func (NullReporter) Error(err error)                     {}

// FormatBytes formats bytes into human-readable string
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatSpeed formats bytes per second into human-readable string
func FormatSpeed(bytesPerSecond float64) string {
	return FormatBytes(int64(bytesPerSecond)) + "/s"
}

// FormatProgress returns a progress bar string
func FormatProgress(current, total int64, width int) string {
	if total == 0 {
		return ""
	}

	percent := float64(current) / float64(total)
	filled := int(percent * float64(width))
	if filled > width {
		filled = width
	}

	bar := make([]byte, width)
	for i := 0; i < width; i++ {
		if i < filled {
			bar[i] = '='
		} else if i == filled {
			bar[i] = '>'
		} else {
			bar[i] = ' '
		}
	}

	return fmt.Sprintf("[%s] %5.1f%%", string(bar), percent*100)
}
