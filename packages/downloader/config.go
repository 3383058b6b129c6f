// Package downloader runs the fetch loop: one request per iteration, strictly
// sequential, with a Gaussian pause between iterations and numbered
// artifacts named {prefix}_{i}.
package downloader

import (
	"fmt"
	"strings"
	"time"
)

// FailurePolicy decides what a failed iteration does to the rest of the run.
type FailurePolicy int

const (
	// ContinueOnError logs the failure and moves on to the next iteration
	ContinueOnError FailurePolicy = iota
	// AbortOnError stops the run and returns the iteration's error
	AbortOnError
)

func (p FailurePolicy) String() string {
	switch p {
	case ContinueOnError:
		return "continue"
	case AbortOnError:
		return "abort"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}

// ParseFailurePolicy parses "continue" or "abort". An empty string is
// ContinueOnError.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "continue":
		return ContinueOnError, nil
	case "abort":
		return AbortOnError, nil
	default:
		return ContinueOnError, fmt.Errorf("invalid failure policy %q: must be continue or abort", s)
	}
}

// Config holds the loop settings
type Config struct {
	DelayMean   time.Duration // mean pause between iterations
	DelayStdDev time.Duration // standard deviation of the pause
	MaxRate     float64       // fetches per second ceiling, 0 = unlimited
	OnError     FailurePolicy
}

// DefaultConfig returns |N(2s, 1s)| pauses, no rate ceiling and the continue
// policy.
func DefaultConfig() *Config {
	return &Config{
		DelayMean:   2 * time.Second,
		DelayStdDev: time.Second,
		MaxRate:     0,
		OnError:     ContinueOnError,
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.DelayMean < 0 {
		return fmt.Errorf("delay mean cannot be negative")
	}
	if c.DelayStdDev < 0 {
		return fmt.Errorf("delay standard deviation cannot be negative")
	}
	if c.MaxRate < 0 {
		return fmt.Errorf("max rate cannot be negative")
	}
	if c.OnError != ContinueOnError && c.OnError != AbortOnError {
		return fmt.Errorf("unknown failure policy %s", c.OnError)
	}
	return nil
}
