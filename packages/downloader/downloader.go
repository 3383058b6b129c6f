package downloader

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/abdul-hamid-achik/capfetch/packages/history"
	"github.com/abdul-hamid-achik/capfetch/packages/http"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Fetcher performs one request/response cycle
type Fetcher interface {
	Get(ctx context.Context, url string) (http.Outcome, error)
}

// ArtifactWriter persists a completed body and returns the key it was
// written under
type ArtifactWriter interface {
	Write(ctx context.Context, name, contentType string, body []byte) (string, error)
}

// Recorder stores a history entry per iteration
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

// Downloader runs the fetch loop
type Downloader struct {
	config   *Config
	fetcher  Fetcher
	store    ArtifactWriter
	recorder Recorder
	reporter *Reporter
	logger   zerolog.Logger
	limiter  *rate.Limiter
	rnd      *rand.Rand
	sleep    func(ctx context.Context, d time.Duration) error
	runID    string
}

// Option configures the downloader
type Option func(*Downloader)

// WithReporter sets the reporter
func WithReporter(reporter *Reporter) Option {
	return func(d *Downloader) {
		d.reporter = reporter
	}
}

// WithRecorder records every iteration, typically into a history.Store
func WithRecorder(recorder Recorder) Option {
	return func(d *Downloader) {
		d.recorder = recorder
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Downloader) {
		d.logger = logger
	}
}

// WithRand sets the source of the inter-iteration delay
func WithRand(rnd *rand.Rand) Option {
	return func(d *Downloader) {
		d.rnd = rnd
	}
}

// WithSleep replaces the pause between iterations
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Downloader) {
		d.sleep = sleep
	}
}

// WithRunID sets the run id used in logs and history
func WithRunID(id string) Option {
	return func(d *Downloader) {
		d.runID = id
	}
}

// New creates a downloader. store may be nil, in which case completed bodies
// are fetched but not written.
func New(fetcher Fetcher, store ArtifactWriter, config *Config, opts ...Option) *Downloader {
	if config == nil {
		config = DefaultConfig()
	}
	d := &Downloader{
		config:  config,
		fetcher: fetcher,
		store:   store,
		logger:  zerolog.Nop(),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:   sleepContext,
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.reporter == nil {
		d.reporter = NewReporter(WithQuiet(true), WithNoColor(color.NoColor))
	}
	if d.runID == "" {
		d.runID = uuid.NewString()
	}

	// Pacing floor on top of the random delay
	if config.MaxRate > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(config.MaxRate), 1)
	}

	return d
}

// RunID returns the id of the run
func (d *Downloader) RunID() string {
	return d.runID
}

// Run fetches url count times in sequence, writing artifact {prefix}_{i} for
// every complete response. Iterations are separated by a pause drawn from
// |N(DelayMean, DelayStdDev)|; there is no pause after the last one.
//
// With ContinueOnError a failed iteration is reported and the loop goes on;
// with AbortOnError the failure is returned. Cancelling ctx stops the loop and
// returns ctx.Err(). The summary is returned in every case.
func (d *Downloader) Run(ctx context.Context, url string, count int, prefix string) (*Summary, error) {
	if err := d.config.Validate(); err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("count cannot be negative")
	}

	log := d.logger.With().Str("run_id", d.runID).Logger()
	metrics := NewMetrics()
	var artifacts []string

	finish := func(err error) (*Summary, error) {
		metrics.Stop()
		summary := metrics.GetSummary()
		summary.RunID = d.runID
		summary.URL = url
		summary.Artifacts = artifacts
		if summary.Artifacts == nil {
			summary.Artifacts = []string{}
		}
		log.Info().
			Int64("completed", summary.Completed).
			Int64("abandoned", summary.Abandoned).
			Int64("failed", summary.Failed).
			Msg("run finished")
		return summary, err
	}

	d.reporter.Start(url, count, prefix)
	log.Info().Str("url", url).Int("count", count).Str("prefix", prefix).Msg("run started")
	metrics.Start()

	for i := 0; i < count; i++ {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return finish(ctxErr(ctx, err))
			}
		}

		res := d.iterate(ctx, url, i, prefix)
		if res.Status == StatusFailed && ctx.Err() != nil {
			return finish(ctx.Err())
		}

		metrics.Record(res)
		if res.Key != "" {
			artifacts = append(artifacts, res.Key)
		}
		d.reporter.Iteration(res)
		d.record(ctx, log, url, res)

		if res.Status == StatusFailed {
			log.Warn().Err(res.Err).Int("iteration", i).Msg("iteration failed")
			if d.config.OnError == AbortOnError {
				return finish(fmt.Errorf("iteration %d: %w", i, res.Err))
			}
		}

		if i == count-1 {
			break
		}
		delay := GaussianDelay(d.rnd, d.config.DelayMean, d.config.DelayStdDev)
		log.Debug().Dur("delay", delay).Msg("sleeping")
		if err := d.sleep(ctx, delay); err != nil {
			return finish(ctxErr(ctx, err))
		}
	}

	return finish(nil)
}

// iterate runs one fetch and persists its body
func (d *Downloader) iterate(ctx context.Context, url string, i int, prefix string) Result {
	res := Result{
		Iteration: i,
		Name:      fmt.Sprintf("%s_%d", prefix, i),
	}

	start := time.Now()
	outcome, err := d.fetcher.Get(ctx, url)
	res.Duration = time.Since(start)
	if err != nil {
		res.Status = StatusFailed
		res.Err = err
		res.Timeout = errors.Is(err, http.ErrTimeout)
		return res
	}

	if outcome.Abandoned() {
		res.Status = StatusAbandoned
		res.Reason = outcome.Reason
		d.logger.Debug().Int("iteration", i).Str("reason", outcome.Reason).Msg("fetch abandoned")
		return res
	}

	resp := outcome.Response
	res.StatusLine = resp.StatusLine
	res.StatusCode = resp.StatusCode
	res.Success = resp.IsSuccess()
	res.ContentType = resp.ContentType
	res.Bytes = len(resp.Body)
	if resp.Duration > 0 {
		res.Duration = resp.Duration
	}

	if d.store == nil {
		res.Status = StatusComplete
		return res
	}

	key, err := d.store.Write(ctx, res.Name, resp.ContentType, resp.Body)
	if err != nil {
		res.Status = StatusFailed
		res.Err = fmt.Errorf("writing artifact %s: %w", res.Name, err)
		return res
	}
	res.Key = key
	res.Status = StatusComplete
	return res
}

func (d *Downloader) record(ctx context.Context, log zerolog.Logger, url string, res Result) {
	if d.recorder == nil {
		return
	}
	entry := history.Entry{
		RunID:       d.runID,
		Iteration:   res.Iteration,
		URL:         url,
		Name:        res.Name,
		Artifact:    res.Key,
		Status:      string(res.Status),
		Reason:      res.Reason,
		StatusLine:  res.StatusLine,
		ContentType: res.ContentType,
		Bytes:       res.Bytes,
		DurationMs:  res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		entry.Error = res.Err.Error()
	}
	if err := d.recorder.Record(ctx, entry); err != nil {
		log.Warn().Err(err).Int("iteration", res.Iteration).Msg("failed to record history")
	}
}

// ctxErr prefers the context's own error over the one a wait returned
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
