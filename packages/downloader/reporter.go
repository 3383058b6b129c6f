package downloader

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// Reporter prints human-facing run output
type Reporter struct {
	writer  io.Writer
	noColor bool
	verbose bool
	quiet   bool

	// Colors
	green  *color.Color
	red    *color.Color
	yellow *color.Color
	cyan   *color.Color
	bold   *color.Color
	dim    *color.Color
}

// ReporterOption configures the reporter
type ReporterOption func(*Reporter)

// WithWriter sets the output writer
func WithWriter(w io.Writer) ReporterOption {
	return func(r *Reporter) {
		r.writer = w
	}
}

// WithNoColor disables colored output
func WithNoColor(noColor bool) ReporterOption {
	return func(r *Reporter) {
		r.noColor = noColor
	}
}

// WithVerbose adds per-iteration details
func WithVerbose(verbose bool) ReporterOption {
	return func(r *Reporter) {
		r.verbose = verbose
	}
}

// WithQuiet suppresses the start banner and iteration lines, used with JSON
// output
func WithQuiet(quiet bool) ReporterOption {
	return func(r *Reporter) {
		r.quiet = quiet
	}
}

// NewReporter creates a new reporter
func NewReporter(opts ...ReporterOption) *Reporter {
	r := &Reporter{
		writer: os.Stdout,
	}

	for _, opt := range opts {
		opt(r)
	}

	// Initialize colors
	color.NoColor = r.noColor
	r.green = color.New(color.FgGreen)
	r.red = color.New(color.FgRed)
	r.yellow = color.New(color.FgYellow)
	r.cyan = color.New(color.FgCyan)
	r.bold = color.New(color.Bold)
	r.dim = color.New(color.Faint)

	return r
}

// Start prints the run banner
func (r *Reporter) Start(url string, count int, prefix string) {
	if r.quiet {
		return
	}
	r.cyan.Fprintf(r.writer, "%s\n", url)
	r.dim.Fprintf(r.writer, "%d iteration(s) -> %s_*\n", count, prefix)
}

// Iteration prints one line per finished iteration
func (r *Reporter) Iteration(res Result) {
	if r.quiet {
		return
	}

	fmt.Fprintf(r.writer, "%d ", res.Iteration)
	switch res.Status {
	case StatusComplete:
		r.green.Fprintf(r.writer, "✓ ")
		fmt.Fprintf(r.writer, "%s", res.Key)
		r.dim.Fprintf(r.writer, " (%s, %s)", formatBytes(res.Bytes), formatDuration(res.Duration))
	case StatusAbandoned:
		r.yellow.Fprintf(r.writer, "- ")
		fmt.Fprintf(r.writer, "abandoned: %s", res.Reason)
	case StatusFailed:
		r.red.Fprintf(r.writer, "✗ ")
		fmt.Fprintf(r.writer, "%v", res.Err)
	}
	fmt.Fprintln(r.writer)

	if r.verbose && res.StatusLine != "" {
		status := r.green
		if !res.Success {
			status = r.yellow
		}
		fmt.Fprint(r.writer, "    ")
		status.Fprint(r.writer, res.StatusLine)
		if res.ContentType != "" {
			r.dim.Fprintf(r.writer, " | %s", res.ContentType)
		}
		fmt.Fprintln(r.writer)
	}
}

// Summary prints the final summary
func (r *Reporter) Summary(summary *Summary) {
	fmt.Fprintln(r.writer)
	r.bold.Fprintln(r.writer, "FETCH SUMMARY")
	fmt.Fprintln(r.writer, strings.Repeat("─", 40))

	fmt.Fprintf(r.writer, "Duration:   %s\n", formatDuration(summary.Duration))
	fmt.Fprintf(r.writer, "Iterations: ")
	r.bold.Fprintf(r.writer, "%s\n", formatNumber(summary.Iterations))

	fmt.Fprintf(r.writer, "Complete:   ")
	r.green.Fprintf(r.writer, "%s", formatNumber(summary.Completed))
	fmt.Fprintf(r.writer, " (%s)\n", formatBytes(int(summary.Bytes)))

	fmt.Fprintf(r.writer, "Abandoned:  ")
	if summary.Abandoned > 0 {
		r.yellow.Fprintf(r.writer, "%s\n", formatNumber(summary.Abandoned))
	} else {
		fmt.Fprintf(r.writer, "%s\n", formatNumber(summary.Abandoned))
	}

	fmt.Fprintf(r.writer, "Failed:     ")
	if summary.Failed > 0 {
		r.red.Fprintf(r.writer, "%s", formatNumber(summary.Failed))
	} else {
		fmt.Fprintf(r.writer, "%s", formatNumber(summary.Failed))
	}
	if summary.Timeouts > 0 {
		fmt.Fprintf(r.writer, " (%s timeouts)", formatNumber(summary.Timeouts))
	}
	fmt.Fprintln(r.writer)

	if summary.Completed+summary.Abandoned > 0 {
		fmt.Fprintln(r.writer)
		r.bold.Fprintln(r.writer, "LATENCY (ms)")
		fmt.Fprintf(r.writer, "  p50: %-6s | p95: %-6s | p99: %-6s | max: %s\n",
			formatLatencyMs(summary.P50),
			formatLatencyMs(summary.P95),
			formatLatencyMs(summary.P99),
			formatLatencyMs(summary.Max))
		fmt.Fprintf(r.writer, "  min: %-6s | mean: %s\n",
			formatLatencyMs(summary.Min),
			formatLatencyMs(summary.Mean))
	}

	if r.verbose {
		fmt.Fprintln(r.writer)
		r.dim.Fprintf(r.writer, "run %s, %d fetch(es) in the last minute\n", summary.RunID, summary.PerMinute)
	}

	fmt.Fprintln(r.writer)
}

// JSONSummary outputs the summary as JSON
func (r *Reporter) JSONSummary(summary *Summary) error {
	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(summary)
}

// Error prints an error message
func (r *Reporter) Error(format string, args ...interface{}) {
	r.red.Fprintf(r.writer, "Error: "+format+"\n", args...)
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	if seconds == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dm %02ds", minutes, seconds)
}

// formatLatencyMs formats latency in milliseconds
func formatLatencyMs(d time.Duration) string {
	ms := float64(d.Microseconds()) / 1000
	if ms < 1 {
		return fmt.Sprintf("%.2f", ms)
	}
	if ms < 10 {
		return fmt.Sprintf("%.1f", ms)
	}
	return fmt.Sprintf("%.0f", ms)
}

// formatBytes formats a byte count with a binary unit
func formatBytes(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := int64(n) / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// formatNumber formats a number with commas
func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	s := fmt.Sprintf("%d", n)
	result := make([]byte, 0, len(s)+(len(s)-1)/3)

	start := len(s) % 3
	if start == 0 {
		start = 3
	}

	result = append(result, s[:start]...)
	for i := start; i < len(s); i += 3 {
		result = append(result, ',')
		result = append(result, s[i:i+3]...)
	}

	return string(result)
}
