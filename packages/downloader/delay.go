package downloader

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// GaussianDelay draws |N(mean, stddev)|.
func GaussianDelay(rnd *rand.Rand, mean, stddev time.Duration) time.Duration {
	d := rnd.NormFloat64()*float64(stddev) + float64(mean)
	return time.Duration(math.Abs(d))
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
