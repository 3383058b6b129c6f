package downloader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/capfetch/packages/artifact"
	"github.com/abdul-hamid-achik/capfetch/packages/history"
	"github.com/abdul-hamid-achik/capfetch/packages/http"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedFetcher replays one step per call
type scriptedFetcher struct {
	steps []func() (http.Outcome, error)
	calls int
}

func (f *scriptedFetcher) Get(ctx context.Context, url string) (http.Outcome, error) {
	step := f.steps[f.calls%len(f.steps)]
	f.calls++
	return step()
}

func complete(contentType, body string) func() (http.Outcome, error) {
	return func() (http.Outcome, error) {
		return http.Outcome{Response: &http.Response{
			StatusLine:  "HTTP/1.1 200 OK",
			StatusCode:  200,
			ContentType: contentType,
			Body:        []byte(body),
		}}, nil
	}
}

func abandoned(reason string) func() (http.Outcome, error) {
	return func() (http.Outcome, error) {
		return http.Outcome{Reason: reason}, nil
	}
}

func failing(err error) func() (http.Outcome, error) {
	return func() (http.Outcome, error) {
		return http.Outcome{}, err
	}
}

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

type memRecorder struct {
	mu      sync.Mutex
	entries []history.Entry
}

func (m *memRecorder) Record(ctx context.Context, e history.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func openMemStore(t *testing.T) *artifact.Store {
	t.Helper()
	store, err := artifact.Open(context.Background(), "mem://")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestParseFailurePolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    FailurePolicy
		wantErr bool
	}{
		{"", ContinueOnError, false},
		{"continue", ContinueOnError, false},
		{"ABORT", AbortOnError, false},
		{" abort ", AbortOnError, false},
		{"retry", ContinueOnError, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFailurePolicy(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, (&Config{DelayMean: -time.Second}).Validate())
	assert.Error(t, (&Config{DelayStdDev: -time.Second}).Validate())
	assert.Error(t, (&Config{MaxRate: -1}).Validate())
	assert.Error(t, (&Config{OnError: FailurePolicy(7)}).Validate())
}

func TestGaussianDelay(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))

	var total time.Duration
	const n = 20000
	for i := 0; i < n; i++ {
		d := GaussianDelay(rnd, 2*time.Second, time.Second)
		require.GreaterOrEqual(t, d, time.Duration(0))
		total += d
	}

	mean := total / n
	assert.InDelta(t, float64(2*time.Second), float64(mean), float64(100*time.Millisecond))
}

func TestGaussianDelay_ZeroDeviation(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	assert.Equal(t, 1500*time.Millisecond, GaussianDelay(rnd, 1500*time.Millisecond, 0))
}

func TestRun_NumberedArtifacts(t *testing.T) {
	ctx := context.Background()
	store := openMemStore(t)
	sleeper := &sleepRecorder{}
	fetcher := &scriptedFetcher{steps: []func() (http.Outcome, error){complete("image/png", "abc")}}

	d := New(fetcher, store, DefaultConfig(), WithSleep(sleeper.sleep), WithRand(rand.New(rand.NewSource(1))))
	summary, err := d.Run(ctx, "http://example.com/x", 3, "out")
	require.NoError(t, err)

	assert.Equal(t, 3, fetcher.calls)
	assert.Equal(t, []string{"out_0.png", "out_1.png", "out_2.png"}, summary.Artifacts)
	assert.Equal(t, int64(3), summary.Completed)
	assert.Equal(t, int64(9), summary.Bytes)
	assert.Equal(t, d.RunID(), summary.RunID)
	assert.Len(t, sleeper.delays, 2, "no pause after the last iteration")

	data, err := store.ReadAll(ctx, "out_1.png")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

func TestRun_AbandonedWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := openMemStore(t)
	fetcher := &scriptedFetcher{steps: []func() (http.Outcome, error){abandoned("missing Content-Length")}}
	sleeper := &sleepRecorder{}

	summary, err := New(fetcher, store, DefaultConfig(), WithSleep(sleeper.sleep)).Run(ctx, "http://example.com/x", 1, "out")
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.Abandoned)
	assert.Empty(t, summary.Artifacts)
	assert.Empty(t, sleeper.delays)

	exists, err := store.Exists(ctx, "out_0")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRun_ContinueOnError(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []func() (http.Outcome, error){
		complete("image/png", "a"),
		failing(fmt.Errorf("%w: connection refused", http.ErrTransport)),
		complete("image/png", "b"),
	}}
	sleeper := &sleepRecorder{}

	summary, err := New(fetcher, openMemStore(t), DefaultConfig(), WithSleep(sleeper.sleep)).
		Run(context.Background(), "http://example.com/x", 3, "out")
	require.NoError(t, err)

	assert.Equal(t, int64(2), summary.Completed)
	assert.Equal(t, int64(1), summary.Failed)
	assert.True(t, summary.HasFailures())
	assert.Equal(t, []string{"out_0.png", "out_2.png"}, summary.Artifacts)
}

func TestRun_AbortOnError(t *testing.T) {
	timeout := &http.ReadError{State: http.HeadersState, Err: fmt.Errorf("%w: i/o timeout", http.ErrTimeout)}
	fetcher := &scriptedFetcher{steps: []func() (http.Outcome, error){
		complete("image/png", "a"),
		failing(timeout),
		complete("image/png", "b"),
	}}
	cfg := DefaultConfig()
	cfg.OnError = AbortOnError
	sleeper := &sleepRecorder{}

	summary, err := New(fetcher, openMemStore(t), cfg, WithSleep(sleeper.sleep)).
		Run(context.Background(), "http://example.com/x", 3, "out")
	require.Error(t, err)
	assert.ErrorIs(t, err, http.ErrTimeout)

	var readErr *http.ReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, http.HeadersState, readErr.State)

	assert.Equal(t, 2, fetcher.calls)
	assert.Equal(t, int64(2), summary.Iterations)
	assert.Equal(t, int64(1), summary.Timeouts)
	assert.Len(t, sleeper.delays, 1)
}

func TestRun_CancelDuringPause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := &scriptedFetcher{steps: []func() (http.Outcome, error){complete("image/png", "a")}}
	sleep := func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	summary, err := New(fetcher, openMemStore(t), DefaultConfig(), WithSleep(sleep)).
		Run(ctx, "http://example.com/x", 5, "out")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, int64(1), summary.Completed)
}

func TestRun_RecordsHistory(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []func() (http.Outcome, error){
		complete("image/gif", "gif"),
		abandoned("missing Content-Type"),
	}}
	rec := &memRecorder{}
	sleeper := &sleepRecorder{}

	d := New(fetcher, openMemStore(t), DefaultConfig(),
		WithSleep(sleeper.sleep), WithRecorder(rec), WithRunID("run-42"))
	_, err := d.Run(context.Background(), "http://example.com/c", 2, "cap")
	require.NoError(t, err)

	require.Len(t, rec.entries, 2)
	assert.Equal(t, "run-42", rec.entries[0].RunID)
	assert.Equal(t, "cap_0", rec.entries[0].Name)
	assert.Equal(t, "cap_0.gif", rec.entries[0].Artifact)
	assert.Equal(t, "complete", rec.entries[0].Status)
	assert.Equal(t, 3, rec.entries[0].Bytes)
	assert.Equal(t, "abandoned", rec.entries[1].Status)
	assert.Equal(t, "missing Content-Type", rec.entries[1].Reason)
}

func TestRun_WithoutStore(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []func() (http.Outcome, error){complete("image/png", "abc")}}

	summary, err := New(fetcher, nil, DefaultConfig()).Run(context.Background(), "http://example.com/x", 1, "out")
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.Completed)
	assert.Empty(t, summary.Artifacts)
}

func TestRun_InvalidInput(t *testing.T) {
	fetcher := &scriptedFetcher{steps: []func() (http.Outcome, error){complete("image/png", "abc")}}

	_, err := New(fetcher, nil, DefaultConfig()).Run(context.Background(), "http://example.com/x", -1, "out")
	assert.Error(t, err)

	_, err = New(fetcher, nil, &Config{MaxRate: -2}).Run(context.Background(), "http://example.com/x", 1, "out")
	assert.Error(t, err)
	assert.Zero(t, fetcher.calls)
}

func TestRun_ReporterOutput(t *testing.T) {
	var buf bytes.Buffer
	fetcher := &scriptedFetcher{steps: []func() (http.Outcome, error){
		complete("image/png", "abc"),
		abandoned("missing Content-Length"),
		failing(errors.New("boom")),
	}}
	sleeper := &sleepRecorder{}
	reporter := NewReporter(WithWriter(&buf), WithNoColor(true))

	summary, err := New(fetcher, openMemStore(t), DefaultConfig(),
		WithSleep(sleeper.sleep), WithReporter(reporter)).
		Run(context.Background(), "http://example.com/x", 3, "out")
	require.NoError(t, err)
	reporter.Summary(summary)

	out := buf.String()
	assert.Contains(t, out, "http://example.com/x")
	assert.Contains(t, out, "0 ✓ out_0.png")
	assert.Contains(t, out, "1 - abandoned: missing Content-Length")
	assert.Contains(t, out, "2 ✗ boom")
	assert.Contains(t, out, "FETCH SUMMARY")
}

// serveOnce accepts connections and answers each request with response,
// handing the received request line to lines.
func serveOnce(t *testing.T, response string) (addr string, lines <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ch := make(chan string, 8)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			br := bufio.NewReader(conn)
			first, _ := br.ReadString('\n')
			ch <- strings.TrimRight(first, "\r\n")
			for {
				line, err := br.ReadString('\n')
				if err != nil || line == "\r\n" {
					break
				}
			}
			_, _ = conn.Write([]byte(response))
			_ = conn.Close()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		wg.Wait()
	})
	return ln.Addr().String(), ch
}

func TestRun_EndToEnd(t *testing.T) {
	ctx := context.Background()
	addr, lines := serveOnce(t, "HTTP/1.1 200 OK\r\nContent-Type: image/png\r\nContent-Length: 3\r\n\r\nabc")
	store := openMemStore(t)

	client := http.NewClient(http.WithReadTimeout(2 * time.Second))
	summary, err := New(client, store, DefaultConfig()).Run(ctx, "http://"+addr+"/x", 1, "out")
	require.NoError(t, err)

	assert.Equal(t, "GET /x HTTP/1.1", <-lines)
	assert.Equal(t, []string{"out_0.png"}, summary.Artifacts)

	data, err := store.ReadAll(ctx, "out_0.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)
}

func TestIterate_Success(t *testing.T) {
	notFound := func() (http.Outcome, error) {
		return http.Outcome{Response: &http.Response{
			StatusLine:  "HTTP/1.1 404 Not Found",
			StatusCode:  404,
			ContentType: "text/html",
			Body:        []byte("nope"),
		}}, nil
	}
	fetcher := &scriptedFetcher{steps: []func() (http.Outcome, error){complete("image/png", "abc"), notFound}}
	d := New(fetcher, nil, DefaultConfig())

	ok := d.iterate(context.Background(), "http://example.com/x", 0, "out")
	assert.Equal(t, StatusComplete, ok.Status)
	assert.True(t, ok.Success)

	missing := d.iterate(context.Background(), "http://example.com/x", 1, "out")
	assert.Equal(t, StatusComplete, missing.Status)
	assert.Equal(t, 404, missing.StatusCode)
	assert.False(t, missing.Success)
}

func TestReporter_StatusLineColor(t *testing.T) {
	t.Cleanup(func() { color.NoColor = true })

	var buf bytes.Buffer
	r := NewReporter(WithWriter(&buf), WithVerbose(true))
	r.Iteration(Result{Iteration: 0, Status: StatusComplete, Key: "out_0.png", StatusLine: "HTTP/1.1 200 OK", Success: true})
	r.Iteration(Result{Iteration: 1, Status: StatusComplete, Key: "out_1.html", StatusLine: "HTTP/1.1 404 Not Found"})

	out := buf.String()
	assert.Contains(t, out, "\x1b[32mHTTP/1.1 200 OK\x1b[0m")
	assert.Contains(t, out, "\x1b[33mHTTP/1.1 404 Not Found\x1b[0m")
}
