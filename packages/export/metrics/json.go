package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/abdul-hamid-achik/capfetch/packages/downloader"
)

// JSONExporter exports summaries as a JSON document
type JSONExporter struct {
	writer   io.Writer
	filePath string
	pretty   bool
	now      func() time.Time
}

// JSONOption is a functional option for JSONExporter
type JSONOption func(*JSONExporter)

// WithJSONWriter sets the output writer for JSON metrics
func WithJSONWriter(w io.Writer) JSONOption {
	return func(j *JSONExporter) {
		j.writer = w
	}
}

// WithJSONFile sets the output file for JSON metrics
func WithJSONFile(path string) JSONOption {
	return func(j *JSONExporter) {
		j.filePath = path
	}
}

// WithJSONPretty toggles indented output
func WithJSONPretty(pretty bool) JSONOption {
	return func(j *JSONExporter) {
		j.pretty = pretty
	}
}

// NewJSONExporter creates a new JSON metrics exporter
func NewJSONExporter(opts ...JSONOption) *JSONExporter {
	j := &JSONExporter{
		pretty: true,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// JSONMetricsOutput is the complete JSON output structure
type JSONMetricsOutput struct {
	Metadata JSONMetadata        `json:"metadata"`
	Summary  *downloader.Summary `json:"summary"`
}

// JSONMetadata describes when the document was produced
type JSONMetadata struct {
	GeneratedAt string `json:"generated_at"`
	Duration    string `json:"duration"`
	Version     string `json:"version"`
}

// Export writes the summary
func (j *JSONExporter) Export(s *downloader.Summary) error {
	output := JSONMetricsOutput{
		Metadata: JSONMetadata{
			GeneratedAt: j.now().UTC().Format(time.RFC3339),
			Duration:    s.Duration.String(),
			Version:     "1.0",
		},
		Summary: s,
	}

	var data []byte
	var err error
	if j.pretty {
		data, err = json.MarshalIndent(output, "", "  ")
	} else {
		data, err = json.Marshal(output)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}
	data = append(data, '\n')

	if j.filePath != "" {
		if err := writeFileAtomic(j.filePath, data); err != nil {
			return fmt.Errorf("failed to write metrics file: %w", err)
		}
	}
	if j.writer != nil {
		if _, err := j.writer.Write(data); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return nil
}

func (j *JSONExporter) Close() error {
	return nil
}
