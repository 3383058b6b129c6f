// Package metrics exports fetch run summaries for external collectors.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/abdul-hamid-achik/capfetch/packages/downloader"
)

// Supported export formats
const (
	FormatPrometheus = "prometheus"
	FormatJSON       = "json"
)

// Exporter is the interface for metrics exporters
type Exporter interface {
	// Export writes the summary of a finished run
	Export(summary *downloader.Summary) error

	// Close flushes any buffered data
	Close() error
}

// NewFileExporter returns an exporter writing format to path. An empty format
// is picked from the file extension, .json meaning JSON and anything else the
// Prometheus text format.
func NewFileExporter(format, path string) (Exporter, error) {
	if format == "" {
		format = FormatPrometheus
		if strings.EqualFold(filepath.Ext(path), ".json") {
			format = FormatJSON
		}
	}

	switch strings.ToLower(format) {
	case FormatPrometheus:
		return NewPrometheusExporter(WithPrometheusFile(path)), nil
	case FormatJSON:
		return NewJSONExporter(WithJSONFile(path)), nil
	default:
		return nil, fmt.Errorf("unknown metrics format %q (want %s or %s)", format, FormatPrometheus, FormatJSON)
	}
}

// writeFileAtomic replaces path so a collector never reads a partial file
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
