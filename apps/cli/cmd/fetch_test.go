package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/abdul-hamid-achik/capfetch/packages/core/config"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArtifactLocation(t *testing.T) {
	tests := []struct {
		bucket     string
		output     string
		wantBucket string
		wantPrefix string
	}{
		{".", "output", ".", "output"},
		{".", "caps/out", "caps", "out"},
		{"data", "caps/out", filepath.Join("data", "caps"), "out"},
		{"", "out", ".", "out"},
		{"mem://", "caps/out", "mem://", "caps/out"},
		{"file:///tmp/x", "out", "file:///tmp/x", "out"},
	}

	for _, tt := range tests {
		t.Run(tt.bucket+"|"+tt.output, func(t *testing.T) {
			bucket, prefix := artifactLocation(tt.bucket, tt.output)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantPrefix, prefix)
		})
	}
}

func TestArtifactLocation_Absolute(t *testing.T) {
	dir := t.TempDir()
	bucket, prefix := artifactLocation(".", filepath.Join(dir, "cap"))
	assert.Equal(t, dir, bucket)
	assert.Equal(t, "cap", prefix)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, exitCode(nil))
	assert.Equal(t, ExitFetchFailure, exitCode(errors.New("boom")))
	assert.Equal(t, ExitConfigError, exitCode(withExitCode(ExitConfigError, errors.New("bad"))))
	assert.Equal(t, ExitUsageError, exitCode(fmt.Errorf("wrapped: %w", withExitCode(ExitUsageError, errors.New("x")))))
	assert.Nil(t, withExitCode(ExitConfigError, nil))
}

// parseFetchFlags parses args into rootCmd's flag set after resetting it
func parseFetchFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := rootCmd.Flags()
	flags.VisitAll(func(f *pflag.Flag) {
		if _, ok := f.Value.(pflag.SliceValue); !ok {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
	fetchHeaderFlags = nil
	fetchDNSFlags = nil
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestApplyFetchFlags(t *testing.T) {
	base := config.DefaultConfig()
	base.Proxy = "socks5://file:1080"
	base.Headers = map[string]string{"Referer": "from-file"}

	flags := parseFetchFlags(t,
		"--timeout", "1500ms",
		"--delay-mean", "0s",
		"--forwarded-for", "",
		"-H", "Cookie: sid=1",
		"--insecure",
		"--on-error", "abort",
		"--dns", "1.1.1.1,9.9.9.9",
		"--notify-on", "always",
		"--teams-webhook", "https://teams.test/hook",
	)

	cfg, err := applyFetchFlags(flags, base)
	require.NoError(t, err)

	assert.Equal(t, 1500, cfg.Timeout)
	assert.Equal(t, 0, cfg.DelayMean)
	assert.Equal(t, config.DefaultDelayStdDev, cfg.DelayStdDev)
	assert.Equal(t, "", cfg.GetForwardedFor())
	assert.False(t, cfg.GetValidateSSL())
	assert.Equal(t, "abort", cfg.OnError)
	assert.Equal(t, []string{"1.1.1.1", "9.9.9.9"}, cfg.DNSServers)
	assert.Equal(t, "socks5://file:1080", cfg.Proxy)
	assert.Equal(t, map[string]string{"Referer": "from-file", "Cookie": "sid=1"}, cfg.Headers)
	assert.Equal(t, "always", cfg.NotifyOn)
	assert.Equal(t, "https://teams.test/hook", cfg.TeamsWebhook)
	assert.Empty(t, cfg.SlackWebhook)
}

func TestApplyFetchFlags_Untouched(t *testing.T) {
	base := config.DefaultConfig()
	base.DelayMean = 5000

	cfg, err := applyFetchFlags(parseFetchFlags(t), base)
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.DelayMean)
	assert.Equal(t, config.DefaultForwardedFor, cfg.GetForwardedFor())
}

func TestApplyFetchFlags_Invalid(t *testing.T) {
	tests := [][]string{
		{"--timeout", "soon"},
		{"--delay-stddev", "-1s"},
		{"--timeout", "500us"},
		{"--connect-timeout", "1ns"},
		{"-H", "no-colon"},
	}
	for _, args := range tests {
		_, err := applyFetchFlags(parseFetchFlags(t, args...), config.DefaultConfig())
		assert.Error(t, err, args)
	}
}

func TestFetchCommand_EndToEnd(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			br := bufio.NewReader(conn)
			for {
				line, err := br.ReadString('\n')
				if err != nil || line == "\r\n" {
					break
				}
			}
			_, _ = conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Type: image/png\r\nContent-Length: 3\r\n\r\nabc"))
			_ = conn.Close()
		}
	}()

	slackBodies := make(chan string, 1)
	slack := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		body, _ := io.ReadAll(r.Body)
		slackBodies <- string(body)
	}))
	defer slack.Close()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "history.db")
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("CAPFETCH_E2E_SLACK="+slack.URL+"\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("CAPFETCH_E2E_SLACK") })
	configPath := filepath.Join(dir, "capfetch.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("slackWebhook: ${CAPFETCH_E2E_SLACK}\n"), 0644))

	parseFetchFlags(t)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{
		"http://" + ln.Addr().String() + "/x",
		"--config", configPath,
		"--env-file", envFile,
		"-l", "2",
		"-o", filepath.Join(dir, "out"),
		"--delay-mean", "1ms",
		"--delay-stddev", "0s",
		"--history", dbPath,
		"--json",
		"--no-color",
		"--metrics-file", filepath.Join(dir, "run.prom"),
		"--notify-on", "always",
	})
	require.NoError(t, rootCmd.Execute())

	select {
	case body := <-slackBodies:
		assert.Contains(t, body, "2 fetch(es) finished")
	default:
		t.Fatal("slack webhook was not called")
	}

	var summary map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.Equal(t, float64(2), summary["completed"])

	for _, name := range []string{"out_0.png", "out_1.png"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Equal(t, "abc", string(data))
	}

	prom, err := os.ReadFile(filepath.Join(dir, "run.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(prom), `status="complete"} 2`)
	assert.Contains(t, string(prom), `code="200"} 2`)

	out.Reset()
	historyDBFlag, historyRunFlag, historyLimitFlag, historyJSONFlag = "", "", 50, false
	rootCmd.SetArgs([]string{"history", "--db", dbPath, "--json"})
	require.NoError(t, rootCmd.Execute())

	var entries []map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &entries))
	assert.Len(t, entries, 2)
}

func TestFetchCommand_UnknownMetricsFormat(t *testing.T) {
	dir := t.TempDir()
	emptyConfig := filepath.Join(dir, "capfetch.yaml")
	require.NoError(t, os.WriteFile(emptyConfig, []byte("{}\n"), 0644))

	parseFetchFlags(t)
	rootCmd.SetArgs([]string{
		"http://127.0.0.1:1/x",
		"--config", emptyConfig,
		"--metrics-file", filepath.Join(dir, "run.xml"),
		"--metrics-format", "xml",
	})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, exitCode(err))
}
