package downloader

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics()
	m.Start()

	m.Record(Result{Status: StatusComplete, StatusCode: 200, Bytes: 100, Duration: 100 * time.Millisecond})
	m.Record(Result{Status: StatusComplete, StatusCode: 404, Bytes: 50, Duration: 200 * time.Millisecond})
	m.Record(Result{Status: StatusAbandoned, Duration: 10 * time.Millisecond})
	m.Record(Result{Status: StatusFailed, Timeout: true, Err: errors.New("timeout")})
	m.Record(Result{Status: StatusFailed, Err: errors.New("refused")})

	m.Stop()

	s := m.GetSummary()
	assert.Equal(t, int64(5), s.Iterations)
	assert.Equal(t, int64(2), s.Completed)
	assert.Equal(t, int64(1), s.Abandoned)
	assert.Equal(t, int64(2), s.Failed)
	assert.Equal(t, int64(1), s.Timeouts)
	assert.Equal(t, int64(150), s.Bytes)
	assert.Equal(t, int64(5), s.PerMinute)
	assert.Equal(t, map[int]int64{200: 1, 404: 1}, s.StatusCodes)

	assert.InDelta(t, float64(10*time.Millisecond), float64(s.Min), float64(time.Millisecond))
	assert.InDelta(t, float64(200*time.Millisecond), float64(s.Max), float64(time.Millisecond))
	assert.InDelta(t, 200, s.Latency.Max, 1)
}

func TestMetrics_EmptySummary(t *testing.T) {
	m := NewMetrics()
	m.Start()
	m.Stop()

	s := m.GetSummary()
	assert.Zero(t, s.Iterations)
	assert.Zero(t, s.P50)
	assert.Zero(t, s.Max)
	assert.Nil(t, s.StatusCodes)
}

func TestReporter_JSONSummary(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(WithWriter(&buf), WithNoColor(true))

	require.NoError(t, r.JSONSummary(&Summary{
		RunID:      "abc",
		URL:        "http://example.com/x",
		Iterations: 2,
		Completed:  1,
		Failed:     1,
		Artifacts:  []string{"out_0.png"},
	}))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "abc", decoded["runId"])
	assert.Equal(t, float64(2), decoded["iterations"])
	assert.Equal(t, []any{"out_0.png"}, decoded["artifacts"])
	assert.Contains(t, decoded, "latencyMs")
}

func TestFormatHelpers(t *testing.T) {
	assert.Equal(t, "500ms", formatDuration(500*time.Millisecond))
	assert.Equal(t, "1.5s", formatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m 05s", formatDuration(125*time.Second))
	assert.Equal(t, "1,234,567", formatNumber(1234567))
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "12", formatLatencyMs(12*time.Millisecond))
}
