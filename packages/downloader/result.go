package downloader

import "time"

// Status is how an iteration ended
type Status string

const (
	StatusComplete  Status = "complete"
	StatusAbandoned Status = "abandoned"
	StatusFailed    Status = "failed"
)

// Result describes one iteration
type Result struct {
	Iteration   int
	Name        string // artifact name before the extension, {prefix}_{i}
	Key         string // artifact key actually written
	Status      Status
	Reason      string // why the fetch was abandoned
	StatusLine  string
	StatusCode  int
	Success     bool // 2xx status code
	ContentType string
	Bytes       int
	Duration    time.Duration
	Timeout     bool
	Err         error
}
