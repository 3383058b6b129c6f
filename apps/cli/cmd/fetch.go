package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/capfetch/packages/artifact"
	"github.com/abdul-hamid-achik/capfetch/packages/core/config"
	"github.com/abdul-hamid-achik/capfetch/packages/core/env"
	"github.com/abdul-hamid-achik/capfetch/packages/downloader"
	"github.com/abdul-hamid-achik/capfetch/packages/export/metrics"
	"github.com/abdul-hamid-achik/capfetch/packages/history"
	"github.com/abdul-hamid-achik/capfetch/packages/http"
	"github.com/abdul-hamid-achik/capfetch/packages/identity"
	"github.com/abdul-hamid-achik/capfetch/packages/logging"
	"github.com/abdul-hamid-achik/capfetch/packages/notify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	fetchOutputFlag         string
	fetchLoopFlag           int
	fetchVerboseFlag        bool
	fetchConfigFlag         string
	fetchTimeoutFlag        string
	fetchConnectTimeoutFlag string
	fetchDelayMeanFlag      string
	fetchDelayStdDevFlag    string
	fetchMaxRateFlag        float64
	fetchOnErrorFlag        string
	fetchFailOnErrorFlag    bool
	fetchForwardedForFlag   string
	fetchHeaderFlags        []string
	fetchBucketFlag         string
	fetchHistoryFlag        string
	fetchProxyFlag          string
	fetchDNSFlags           []string
	fetchTLSFlag            string
	fetchInsecureFlag       bool
	fetchNoColorFlag        bool
	fetchLogFileFlag        string
	fetchJSONFlag           bool
	fetchMetricsFileFlag    string
	fetchMetricsFormatFlag  string
	fetchSlackWebhookFlag   string
	fetchTeamsWebhookFlag   string
	fetchNotifyOnFlag       string
	fetchEnvFileFlag        string
)

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&fetchOutputFlag, "output", "o", "output", "Artifact name prefix, files are written as <prefix>_<i>")
	f.IntVarP(&fetchLoopFlag, "loop", "l", 1, "Number of fetches")
	f.BoolVarP(&fetchVerboseFlag, "verbose", "v", false, "Log requests and received headers")
	f.StringVarP(&fetchConfigFlag, "config", "c", "", "Config file (default: .capfetch.yaml in the current directory)")
	f.StringVar(&fetchEnvFileFlag, "env-file", ".env", "Environment file providing ${VAR} values for the config")
	f.StringVar(&fetchTimeoutFlag, "timeout", "10s", "Timeout for every single read")
	f.StringVar(&fetchConnectTimeoutFlag, "connect-timeout", "10s", "Timeout for connecting and the TLS handshake")
	f.StringVar(&fetchDelayMeanFlag, "delay-mean", "2s", "Mean pause between fetches")
	f.StringVar(&fetchDelayStdDevFlag, "delay-stddev", "1s", "Standard deviation of the pause between fetches")
	f.Float64Var(&fetchMaxRateFlag, "max-rate", 0, "Upper bound on fetches per second (0 = unlimited)")
	f.StringVar(&fetchOnErrorFlag, "on-error", "continue", "What a failed fetch does to the run: continue or abort")
	f.BoolVar(&fetchFailOnErrorFlag, "fail-on-error", false, "Exit with status 1 when any fetch failed")
	f.StringVar(&fetchForwardedForFlag, "forwarded-for", config.DefaultForwardedFor, "X-Forwarded-For value, empty to omit the header")
	f.StringArrayVarP(&fetchHeaderFlags, "header", "H", nil, "Extra request header as \"Name: value\" (repeatable)")
	f.StringVar(&fetchBucketFlag, "bucket", ".", "Directory or blob URL (file://, mem://, s3://...) artifacts are written to")
	f.StringVar(&fetchHistoryFlag, "history", "", "SQLite database recording every fetch")
	f.StringVar(&fetchProxyFlag, "proxy", "", "SOCKS5 proxy URL, e.g. socks5://127.0.0.1:1080")
	f.StringSliceVar(&fetchDNSFlags, "dns", nil, "DNS servers used instead of the system resolver")
	f.StringVar(&fetchTLSFlag, "tls", config.DefaultTLSFingerprint, "TLS fingerprint: go, chrome, firefox, safari, ios, edge or randomized")
	f.BoolVarP(&fetchInsecureFlag, "insecure", "k", false, "Disable TLS certificate validation")
	f.BoolVar(&fetchNoColorFlag, "no-color", false, "Disable colored output")
	f.StringVar(&fetchLogFileFlag, "log-file", "", "Also write JSON logs to this file (rotated)")
	f.BoolVar(&fetchJSONFlag, "json", false, "Print the run summary as JSON")
	f.StringVar(&fetchMetricsFileFlag, "metrics-file", "", "Write run metrics to this file when the run ends")
	f.StringVar(&fetchMetricsFormatFlag, "metrics-format", "", "Metrics file format: prometheus or json (default: from the file extension)")
	f.StringVar(&fetchSlackWebhookFlag, "slack-webhook", "", "Slack webhook URL notified when the run ends")
	f.StringVar(&fetchTeamsWebhookFlag, "teams-webhook", "", "Microsoft Teams webhook URL notified when the run ends")
	f.StringVar(&fetchNotifyOnFlag, "notify-on", "failure", "When to notify: always, failure or success")
}

func fetchCommand(cmd *cobra.Command, args []string) error {
	url := args[0]

	if fetchLoopFlag < 0 {
		return withExitCode(ExitUsageError, fmt.Errorf("--loop cannot be negative"))
	}

	exported, err := env.LoadAndExportDotEnv(fetchEnvFileFlag)
	if err != nil {
		if cmd.Flags().Changed("env-file") || !errors.Is(err, os.ErrNotExist) {
			return withExitCode(ExitConfigError, err)
		}
	}

	fileConfig, err := config.LoadConfig(fetchConfigFlag)
	if err != nil {
		return withExitCode(ExitConfigError, fmt.Errorf("loading config: %w", err))
	}

	cfg, err := applyFetchFlags(cmd.Flags(), fileConfig)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}

	policy, err := downloader.ParseFailurePolicy(cfg.OnError)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	if !http.ValidFingerprint(cfg.TLSFingerprint) {
		return withExitCode(ExitConfigError, fmt.Errorf("unknown TLS fingerprint %q", cfg.TLSFingerprint))
	}

	notifyOn, err := notify.ParseNotifyOn(cfg.NotifyOn)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	notifier := notify.NewManager(notifyOn)
	if cfg.SlackWebhook != "" {
		notifier.AddNotifier(notify.NewSlackNotifier(cfg.SlackWebhook))
	}
	if cfg.TeamsWebhook != "" {
		notifier.AddNotifier(notify.NewTeamsNotifier(cfg.TeamsWebhook))
	}

	var exporter metrics.Exporter
	if fetchMetricsFileFlag != "" {
		exporter, err = metrics.NewFileExporter(fetchMetricsFormatFlag, fetchMetricsFileFlag)
		if err != nil {
			return withExitCode(ExitConfigError, err)
		}
		defer exporter.Close()
	}

	logger, logCloser, err := logging.New(logging.Options{
		Verbose: cfg.GetVerbose(),
		NoColor: cfg.GetNoColor(),
		File:    cfg.LogFile,
	})
	if err != nil {
		return withExitCode(ExitConfigError, fmt.Errorf("opening log file: %w", err))
	}
	defer logCloser.Close()
	if len(exported) > 0 {
		logger.Debug().Str("file", fetchEnvFileFlag).Strs("exported", exported).Msg("loaded env file")
	}

	// Create HTTP client
	clientOpts := []http.ClientOption{
		http.WithReadTimeout(cfg.TimeoutDuration()),
		http.WithConnectTimeout(cfg.ConnectTimeoutDuration()),
		http.WithForwardedFor(cfg.GetForwardedFor()),
		http.WithDefaultHeaders(cfg.Headers),
		http.WithIdentities(identity.NewPool(cfg.UserAgents)),
		http.WithValidateSSL(cfg.GetValidateSSL()),
		http.WithTLSFingerprint(cfg.TLSFingerprint),
		http.WithLogger(logger),
	}
	if cfg.Proxy != "" {
		clientOpts = append(clientOpts, http.WithProxy(cfg.Proxy))
	}
	if len(cfg.DNSServers) > 0 {
		clientOpts = append(clientOpts, http.WithResolver(http.NewResolver(cfg.DNSServers, cfg.ConnectTimeoutDuration())))
	}
	client := http.NewClient(clientOpts...)

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nReceived interrupt, stopping gracefully...")
			cancel()
		case <-ctx.Done():
		}
	}()

	bucket, prefix := artifactLocation(cfg.Bucket, fetchOutputFlag)
	store, err := artifact.Open(ctx, bucket)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	defer store.Close()

	reporter := downloader.NewReporter(
		downloader.WithWriter(cmd.OutOrStdout()),
		downloader.WithNoColor(cfg.GetNoColor()),
		downloader.WithVerbose(cfg.GetVerbose()),
		downloader.WithQuiet(fetchJSONFlag),
	)

	opts := []downloader.Option{
		downloader.WithReporter(reporter),
		downloader.WithLogger(logger),
	}
	if cfg.History != "" {
		db, err := history.Open(cfg.History)
		if err != nil {
			return withExitCode(ExitConfigError, err)
		}
		defer db.Close()
		opts = append(opts, downloader.WithRecorder(db))
	}

	d := downloader.New(client, store, &downloader.Config{
		DelayMean:   cfg.DelayMeanDuration(),
		DelayStdDev: cfg.DelayStdDevDuration(),
		MaxRate:     cfg.MaxRate,
		OnError:     policy,
	}, opts...)

	summary, runErr := d.Run(ctx, url, fetchLoopFlag, prefix)
	if summary != nil {
		if fetchJSONFlag {
			if err := reporter.JSONSummary(summary); err != nil {
				return err
			}
		} else {
			reporter.Summary(summary)
		}
		if exporter != nil {
			if err := exporter.Export(summary); err != nil {
				logger.Error().Err(err).Str("file", fetchMetricsFileFlag).Msg("exporting metrics")
			}
		}
		if notifier.Len() > 0 {
			// ctx may already be cancelled by an interrupt
			notifyCtx, cancelNotify := context.WithTimeout(context.Background(), 15*time.Second)
			if err := notifier.Notify(notifyCtx, summary); err != nil {
				logger.Error().Err(err).Msg("sending notification")
			}
			cancelNotify()
		}
	}

	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		return withExitCode(ExitFetchFailure, fmt.Errorf("interrupted"))
	case errors.Is(runErr, http.ErrTransport), errors.Is(runErr, http.ErrTimeout):
		return withExitCode(ExitNetworkError, runErr)
	default:
		return withExitCode(ExitFetchFailure, runErr)
	}

	if fetchFailOnErrorFlag && summary.HasFailures() {
		return withExitCode(ExitFetchFailure, fmt.Errorf("%d of %d fetch(es) failed", summary.Failed, summary.Iterations))
	}
	return nil
}

// applyFetchFlags layers explicitly set flags over the file config
func applyFetchFlags(flags *pflag.FlagSet, base *config.Config) (*config.Config, error) {
	overrides := &config.Config{}

	durations := []struct {
		flag  string
		value string
		field *int
	}{
		{"timeout", fetchTimeoutFlag, &overrides.Timeout},
		{"connect-timeout", fetchConnectTimeoutFlag, &overrides.ConnectTimeout},
		{"delay-mean", fetchDelayMeanFlag, &overrides.DelayMean},
		{"delay-stddev", fetchDelayStdDevFlag, &overrides.DelayStdDev},
	}
	for _, d := range durations {
		if !flags.Changed(d.flag) {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return nil, fmt.Errorf("invalid --%s: %w", d.flag, err)
		}
		if parsed < 0 {
			return nil, fmt.Errorf("--%s cannot be negative", d.flag)
		}
		// Settings are kept in whole milliseconds.
		if parsed > 0 && parsed < time.Millisecond {
			return nil, fmt.Errorf("--%s must be 0 or at least 1ms, got %s", d.flag, parsed)
		}
		*d.field = int(parsed.Milliseconds())
	}

	if flags.Changed("max-rate") {
		overrides.MaxRate = fetchMaxRateFlag
	}
	if flags.Changed("on-error") {
		overrides.OnError = fetchOnErrorFlag
	}
	if flags.Changed("forwarded-for") {
		overrides.ForwardedFor = config.StringPtr(fetchForwardedForFlag)
	}
	if flags.Changed("header") {
		overrides.Headers = make(map[string]string, len(fetchHeaderFlags))
		for _, h := range fetchHeaderFlags {
			name, value, ok := strings.Cut(h, ":")
			if !ok {
				return nil, fmt.Errorf("invalid --header %q: expected \"Name: value\"", h)
			}
			overrides.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}
	if flags.Changed("bucket") {
		overrides.Bucket = fetchBucketFlag
	}
	if flags.Changed("history") {
		overrides.History = fetchHistoryFlag
	}
	if flags.Changed("proxy") {
		overrides.Proxy = fetchProxyFlag
	}
	if flags.Changed("dns") {
		overrides.DNSServers = fetchDNSFlags
	}
	if flags.Changed("tls") {
		overrides.TLSFingerprint = fetchTLSFlag
	}
	if flags.Changed("insecure") {
		overrides.ValidateSSL = config.BoolPtr(!fetchInsecureFlag)
	}
	if flags.Changed("verbose") {
		overrides.Verbose = config.BoolPtr(fetchVerboseFlag)
	}
	if flags.Changed("no-color") {
		overrides.NoColor = config.BoolPtr(fetchNoColorFlag)
	}
	if flags.Changed("log-file") {
		overrides.LogFile = fetchLogFileFlag
	}
	if flags.Changed("slack-webhook") {
		overrides.SlackWebhook = fetchSlackWebhookFlag
	}
	if flags.Changed("teams-webhook") {
		overrides.TeamsWebhook = fetchTeamsWebhookFlag
	}
	if flags.Changed("notify-on") {
		overrides.NotifyOn = fetchNotifyOnFlag
	}

	cfg := base.Merge(overrides)

	// Merge skips zero values; an explicit zero on the command line still wins
	if flags.Changed("delay-mean") {
		cfg.DelayMean = overrides.DelayMean
	}
	if flags.Changed("delay-stddev") {
		cfg.DelayStdDev = overrides.DelayStdDev
	}
	if flags.Changed("max-rate") {
		cfg.MaxRate = overrides.MaxRate
	}

	return cfg, nil
}

// artifactLocation splits the output prefix into the bucket holding the
// artifacts and the name prefix inside it. Blob URLs are used as given.
func artifactLocation(bucket, output string) (string, string) {
	if strings.Contains(bucket, "://") {
		return bucket, output
	}
	if bucket == "" {
		bucket = "."
	}
	if filepath.IsAbs(output) {
		return filepath.Dir(output), filepath.Base(output)
	}
	return filepath.Join(bucket, filepath.Dir(output)), filepath.Base(output)
}
