package downloader

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/paulbellamy/ratecounter"
)

const (
	minLatencyUs = 1
	maxLatencyUs = 60_000_000
)

// Metrics aggregates fetch outcomes and latencies for one run
type Metrics struct {
	mu sync.Mutex

	// Counters
	completed int64
	abandoned int64
	failed    int64
	timeouts  int64
	bytes     int64

	statusCodes map[int]int64

	// Latency histogram (in microseconds for precision)
	histogram *hdrhistogram.Histogram

	// Fetches over the trailing minute
	perMinute *ratecounter.RateCounter

	startTime time.Time
	endTime   time.Time
}

// NewMetrics creates a new Metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		// Histogram: 1us to 60s range, 3 significant digits
		histogram:   hdrhistogram.New(minLatencyUs, maxLatencyUs, 3),
		perMinute:   ratecounter.NewRateCounter(time.Minute),
		statusCodes: make(map[int]int64),
	}
}

// Start marks the beginning of the run
func (m *Metrics) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startTime = time.Now()
}

// Stop marks the end of the run
func (m *Metrics) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endTime = time.Now()
}

// Record adds one iteration result
func (m *Metrics) Record(r Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.perMinute.Incr(1)

	switch r.Status {
	case StatusComplete:
		m.completed++
		m.bytes += int64(r.Bytes)
		m.statusCodes[r.StatusCode]++
	case StatusAbandoned:
		m.abandoned++
	case StatusFailed:
		m.failed++
		if r.Timeout {
			m.timeouts++
		}
		// Failed fetches never produced a latency worth reporting
		return
	}

	latencyUs := r.Duration.Microseconds()
	if latencyUs < minLatencyUs {
		latencyUs = minLatencyUs
	}
	if latencyUs > maxLatencyUs {
		latencyUs = maxLatencyUs
	}
	_ = m.histogram.RecordValue(latencyUs)
}

// Summary is the final report of a run
type Summary struct {
	RunID      string        `json:"runId"`
	URL        string        `json:"url"`
	Iterations int64         `json:"iterations"`
	Completed  int64         `json:"completed"`
	Abandoned  int64         `json:"abandoned"`
	Failed     int64         `json:"failed"`
	Timeouts   int64         `json:"timeouts"`
	Bytes      int64         `json:"bytes"`
	Duration   time.Duration `json:"-"`
	DurationMs int64         `json:"durationMs"`
	PerMinute  int64         `json:"perMinute"`

	// Latency percentiles
	P50  time.Duration `json:"-"`
	P95  time.Duration `json:"-"`
	P99  time.Duration `json:"-"`
	Min  time.Duration `json:"-"`
	Max  time.Duration `json:"-"`
	Mean time.Duration `json:"-"`

	Latency LatencyMs `json:"latencyMs"`

	// Completed fetches by status code, 0 when the status line had none
	StatusCodes map[int]int64 `json:"statusCodes,omitempty"`

	Artifacts []string `json:"artifacts"`
}

// LatencyMs mirrors the Summary percentiles in milliseconds for JSON output
type LatencyMs struct {
	P50  float64 `json:"p50"`
	P95  float64 `json:"p95"`
	P99  float64 `json:"p99"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// HasFailures reports whether any iteration failed
func (s *Summary) HasFailures() bool {
	return s.Failed > 0
}

// GetSummary returns the metrics summary
func (m *Metrics) GetSummary() *Summary {
	m.mu.Lock()
	defer m.mu.Unlock()

	duration := m.endTime.Sub(m.startTime)
	if m.endTime.IsZero() {
		duration = time.Since(m.startTime)
	}

	s := &Summary{
		Iterations: m.completed + m.abandoned + m.failed,
		Completed:  m.completed,
		Abandoned:  m.abandoned,
		Failed:     m.failed,
		Timeouts:   m.timeouts,
		Bytes:      m.bytes,
		Duration:   duration,
		DurationMs: duration.Milliseconds(),
		PerMinute:  m.perMinute.Rate(),
	}
	if len(m.statusCodes) > 0 {
		s.StatusCodes = make(map[int]int64, len(m.statusCodes))
		for code, n := range m.statusCodes {
			s.StatusCodes[code] = n
		}
	}

	if m.histogram.TotalCount() > 0 {
		s.P50 = usDuration(m.histogram.ValueAtQuantile(50))
		s.P95 = usDuration(m.histogram.ValueAtQuantile(95))
		s.P99 = usDuration(m.histogram.ValueAtQuantile(99))
		s.Min = usDuration(m.histogram.Min())
		s.Max = usDuration(m.histogram.Max())
		s.Mean = time.Duration(m.histogram.Mean()) * time.Microsecond
	}
	s.Latency = LatencyMs{
		P50:  msFloat(s.P50),
		P95:  msFloat(s.P95),
		P99:  msFloat(s.P99),
		Min:  msFloat(s.Min),
		Max:  msFloat(s.Max),
		Mean: msFloat(s.Mean),
	}

	return s
}

func usDuration(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}

func msFloat(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
