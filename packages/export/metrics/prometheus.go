package metrics

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/abdul-hamid-achik/capfetch/packages/downloader"
)

// PrometheusExporter writes summaries in the Prometheus text format, suitable
// for the node_exporter textfile collector.
type PrometheusExporter struct {
	writer   io.Writer
	filePath string
}

// PrometheusOption is a functional option for PrometheusExporter
type PrometheusOption func(*PrometheusExporter)

// WithPrometheusWriter sets the output writer for Prometheus metrics
func WithPrometheusWriter(w io.Writer) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.writer = w
	}
}

// WithPrometheusFile writes metrics to path, replacing it atomically
func WithPrometheusFile(path string) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.filePath = path
	}
}

// NewPrometheusExporter creates a new Prometheus metrics exporter
func NewPrometheusExporter(opts ...PrometheusOption) *PrometheusExporter {
	p := &PrometheusExporter{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Export renders the summary
func (p *PrometheusExporter) Export(s *downloader.Summary) error {
	var buf bytes.Buffer
	writeMetrics(&buf, s)

	if p.filePath != "" {
		if err := writeFileAtomic(p.filePath, buf.Bytes()); err != nil {
			return fmt.Errorf("failed to write metrics file: %w", err)
		}
	}
	if p.writer != nil {
		if _, err := p.writer.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}

func (p *PrometheusExporter) Close() error {
	return nil
}

func writeMetrics(w io.Writer, s *downloader.Summary) {
	labels := fmt.Sprintf("run_id=\"%s\",url=\"%s\"", sanitizeLabel(s.RunID), sanitizeLabel(s.URL))

	fmt.Fprintf(w, "# HELP capfetch_fetches_total Fetch iterations by outcome\n")
	fmt.Fprintf(w, "# TYPE capfetch_fetches_total counter\n")
	fmt.Fprintf(w, "capfetch_fetches_total{%s,status=\"%s\"} %d\n", labels, downloader.StatusComplete, s.Completed)
	fmt.Fprintf(w, "capfetch_fetches_total{%s,status=\"%s\"} %d\n", labels, downloader.StatusAbandoned, s.Abandoned)
	fmt.Fprintf(w, "capfetch_fetches_total{%s,status=\"%s\"} %d\n", labels, downloader.StatusFailed, s.Failed)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP capfetch_timeouts_total Fetches that failed on a read timeout\n")
	fmt.Fprintf(w, "# TYPE capfetch_timeouts_total counter\n")
	fmt.Fprintf(w, "capfetch_timeouts_total{%s} %d\n", labels, s.Timeouts)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP capfetch_body_bytes_total Body bytes received by completed fetches\n")
	fmt.Fprintf(w, "# TYPE capfetch_body_bytes_total counter\n")
	fmt.Fprintf(w, "capfetch_body_bytes_total{%s} %d\n", labels, s.Bytes)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP capfetch_run_duration_seconds Wall time of the run\n")
	fmt.Fprintf(w, "# TYPE capfetch_run_duration_seconds gauge\n")
	fmt.Fprintf(w, "capfetch_run_duration_seconds{%s} %.3f\n", labels, s.Duration.Seconds())
	fmt.Fprintln(w)

	fmt.Fprintf(w, "# HELP capfetch_fetch_duration_ms Fetch latency in milliseconds\n")
	fmt.Fprintf(w, "# TYPE capfetch_fetch_duration_ms gauge\n")
	quantiles := []struct {
		name  string
		value float64
	}{
		{"min", s.Latency.Min},
		{"0.50", s.Latency.P50},
		{"0.95", s.Latency.P95},
		{"0.99", s.Latency.P99},
		{"max", s.Latency.Max},
		{"avg", s.Latency.Mean},
	}
	for _, q := range quantiles {
		fmt.Fprintf(w, "capfetch_fetch_duration_ms{%s,quantile=\"%s\"} %.2f\n", labels, q.name, q.value)
	}

	if len(s.StatusCodes) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "# HELP capfetch_responses_by_status_total Completed fetches by HTTP status code\n")
	fmt.Fprintf(w, "# TYPE capfetch_responses_by_status_total counter\n")

	codes := make([]int, 0, len(s.StatusCodes))
	for code := range s.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "capfetch_responses_by_status_total{%s,code=\"%d\"} %d\n", labels, code, s.StatusCodes[code])
	}
}

// sanitizeLabel makes a string safe for use as a Prometheus label value
func sanitizeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
