package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/hitseq/packages/core/config"
	"github.com/abdul-hamid-achik/hitseq/packages/core/sequencer"
	"github.com/abdul-hamid-achik/hitseq/packages/grammar"
	"github.com/abdul-hamid-achik/hitseq/packages/history"
	"github.com/abdul-hamid-achik/hitseq/packages/output"
	"github.com/abdul-hamid-achik/hitseq/packages/stats"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <grammar>",
	Short: "Execute a request sequence against an API",
	Long: `Execute the requests of a grammar file in declared order. Values
extracted from each response feed the requests that follow.

Examples:
  hitseq run grammar.yaml --target http://localhost:8888
  hitseq run grammar.yaml -d dict.yaml --token "Bearer abc"
  hitseq run grammar.yaml --set tenant=acme -o json
  hitseq run grammar.yaml --sequences 50 --concurrency 10 --rate 20
  hitseq run grammar.yaml --history runs.db
  hitseq run grammar.yaml --watch`,
	Args: cobra.ExactArgs(1),
	RunE: runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	timeoutFlag     string
	proxyFlag       string
	insecureFlag    bool
	rateFlag        float64
	burstFlag       int
	sequencesFlag   int
	concurrencyFlag int
	statusFlag      string
	historyFlag     string
	outputFlag      string
	outputFileFlag  string
	watchFlag       bool
	noRedirectsFlag bool
)

func init() {
	addEngineFlags(runCmd)

	// Network flags
	runCmd.Flags().StringVar(&timeoutFlag, "timeout", "30s", "Request timeout (e.g., 30s, 1m) (env: HITSEQ_TIMEOUT)")
	runCmd.Flags().StringVar(&proxyFlag, "proxy", "", "Proxy URL for HTTP requests (env: HITSEQ_PROXY)")
	runCmd.Flags().BoolVarP(&insecureFlag, "insecure", "k", false, "Disable SSL certificate validation")
	runCmd.Flags().BoolVar(&noRedirectsFlag, "no-redirects", false, "Do not follow redirects")
	runCmd.Flags().Float64Var(&rateFlag, "rate", 0, "Maximum requests per second across all sequences, 0 for unlimited (env: HITSEQ_RATE_LIMIT)")
	runCmd.Flags().IntVar(&burstFlag, "burst", 1, "Requests allowed above --rate in a burst")

	// Execution flags
	runCmd.Flags().IntVarP(&sequencesFlag, "sequences", "n", 1, "Number of independent sequences to run (env: HITSEQ_SEQUENCES)")
	runCmd.Flags().IntVarP(&concurrencyFlag, "concurrency", "c", sequencer.DefaultConcurrency, "Sequences run at the same time (env: HITSEQ_CONCURRENCY)")
	runCmd.Flags().StringVar(&statusFlag, "status", config.StatusPolicy2xx, "Responses that count as delivered: 2xx or any (env: HITSEQ_STATUS_POLICY)")
	runCmd.Flags().StringVar(&historyFlag, "history", "", "Record runs in this SQLite database (env: HITSEQ_HISTORY)")
	runCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch the grammar and dictionary and re-run on change")

	// Output flags
	runCmd.Flags().StringVarP(&outputFlag, "output", "o", "console", "Output format: console, json, junit, tap (env: HITSEQ_OUTPUT)")
	runCmd.Flags().StringVar(&outputFileFlag, "output-file", "", "Write output to file (default: stdout)")
}

func applyRunOverrides(cfg *config.Config, changed func(string) bool) {
	if changed("timeout") {
		// Parsed again in runCommand to report the error with usage context.
		if d, err := parseTimeout(timeoutFlag); err == nil {
			cfg.Timeout = d
		}
	}
	if changed("proxy") {
		cfg.Proxy = proxyFlag
	}
	if changed("insecure") && insecureFlag {
		cfg.ValidateSSL = false
	}
	if changed("no-redirects") && noRedirectsFlag {
		cfg.FollowRedirects = false
	}
	if changed("rate") {
		cfg.RateLimit = rateFlag
	}
	if changed("burst") {
		cfg.RateBurst = burstFlag
	}
	if changed("sequences") {
		cfg.Sequences = sequencesFlag
	}
	if changed("concurrency") {
		cfg.Concurrency = concurrencyFlag
	}
	if changed("status") {
		cfg.StatusPolicy = statusFlag
	}
	if changed("history") {
		cfg.History = historyFlag
	}
	if changed("output") {
		cfg.Output = outputFlag
	}
	if changed("no-color") {
		cfg.NoColor = noColorFlag
	}
}

// Formatter interface for all output formatters
type Formatter interface {
	FormatResult(result *sequencer.RunResult)
	FormatError(err error)
	FormatHeader(version string)
}

// StatsFormatter is implemented by formatters that report parallel runs.
type StatsFormatter interface {
	FormatStats(s *stats.Summary)
}

// Flushable interface for formatters that need to flush output
type Flushable interface {
	Flush(totalDuration time.Duration) error
}

func newFormatter(format string, w io.Writer, cfg *config.Config) (Formatter, error) {
	switch strings.ToLower(format) {
	case "json":
		return output.NewJSONFormatter(output.JSONWithWriter(w), output.JSONWithVerbose(verboseFlag > 0)), nil
	case "junit":
		return output.NewJUnitFormatter(output.JUnitWithWriter(w)), nil
	case "tap":
		return output.NewTAPFormatter(output.TAPWithWriter(w)), nil
	case "console", "":
		return output.NewConsoleFormatter(
			output.WithWriter(w),
			output.WithVerbose(verboseFlag > 0),
			output.WithNoColor(cfg.NoColor),
		), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (use console, json, junit or tap)", format)
	}
}

func runCommand(cmd *cobra.Command, args []string) error {
	grammarPath := args[0]

	if cmd.Flags().Changed("timeout") {
		if _, err := parseTimeout(timeoutFlag); err != nil {
			return withExitCode(ExitUsageError, err)
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if outputFileFlag != "" {
		f, err := os.Create(outputFileFlag)
		if err != nil {
			return fmt.Errorf("cannot create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if _, err := newFormatter(cfg.Output, out, cfg); err != nil {
		return withExitCode(ExitUsageError, err)
	}

	var store *history.Store
	if cfg.History != "" {
		store, err = history.Open(cfg.History)
		if err != nil {
			return withExitCode(ExitConfigError, err)
		}
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	passed, err := executeRun(ctx, grammarPath, cfg, out, store)
	if !watchFlag {
		if err != nil {
			return err
		}
		if !passed {
			return withExitCode(ExitSequenceFailure, nil)
		}
		return nil
	}

	return watch(ctx, cmd, grammarPath, cfg, out, store)
}

// executeRun loads the grammar and runs it once, or cfg.Sequences times in
// parallel. It reports whether every request of every run was applied.
func executeRun(ctx context.Context, grammarPath string, cfg *config.Config, out io.Writer, store *history.Store) (bool, error) {
	formatter, err := newFormatter(cfg.Output, out, cfg)
	if err != nil {
		return false, withExitCode(ExitUsageError, err)
	}
	formatter.FormatHeader(version)

	_, coll, err := grammar.LoadCollection(grammarPath)
	if err != nil {
		formatter.FormatError(err)
		flush(formatter, 0)
		return false, withExitCode(ExitParseError, err)
	}
	for _, issue := range coll.Lint() {
		logger.Warn("request ordering", "grammar", grammarPath, "issue", issue.String())
	}

	renderer, err := buildRenderer(cfg)
	if err != nil {
		formatter.FormatError(err)
		flush(formatter, 0)
		return false, err
	}

	var recorders []sequencer.Recorder
	if store != nil {
		recorders = append(recorders, store)
	}
	var metrics *stats.Metrics
	if cfg.Sequences > 1 {
		metrics = stats.NewMetrics()
		recorders = append(recorders, metrics)
	}

	seq := sequencer.New(buildClient(cfg), renderer,
		sequencer.WithLogger(logger),
		sequencer.WithSeed(cfg.Variables),
		sequencer.WithStatusPolicy(cfg.StatusAccepted()),
		sequencer.WithRecorder(sequencer.Recorders(recorders...)),
	)

	start := time.Now()
	var results []*sequencer.RunResult
	if cfg.Sequences > 1 {
		metrics.Start()
		results, err = seq.RunParallel(ctx, coll, cfg.Sequences, cfg.Concurrency)
		metrics.Stop()
	} else {
		var result *sequencer.RunResult
		result, err = seq.Run(ctx, coll)
		results = append(results, result)
	}
	if err != nil {
		formatter.FormatError(err)
		flush(formatter, time.Since(start))
		return false, err
	}

	passed := true
	for _, r := range results {
		if r == nil {
			continue
		}
		formatter.FormatResult(r)
		passed = passed && r.Passed()
	}
	if metrics != nil {
		if sf, ok := formatter.(StatsFormatter); ok {
			sf.FormatStats(metrics.Summary())
		}
	}

	if err := flush(formatter, time.Since(start)); err != nil {
		return passed, fmt.Errorf("error writing output: %w", err)
	}
	return passed, nil
}

func flush(formatter Formatter, d time.Duration) error {
	if flushable, ok := formatter.(Flushable); ok {
		return flushable.Flush(d)
	}
	return nil
}

// watch re-runs the grammar whenever it or the dictionary is written.
func watch(ctx context.Context, cmd *cobra.Command, grammarPath string, cfg *config.Config, out io.Writer, store *history.Store) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]bool)
	for _, p := range []string{grammarPath, cfg.Dictionary} {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		watched[abs] = true
		// Editors often replace files, so watch the directory.
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	return watchLoop(ctx, watcher.Events, watcher.Errors, watched, WatchDebounceDelay, func(name string) {
		fmt.Fprintf(cmd.ErrOrStderr(), "\nFile changed: %s\nRe-running...\n", name)
		if _, err := executeRun(ctx, grammarPath, cfg, out, store); err != nil {
			logger.Error("run failed", "error", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "\nWatching for changes... (press Ctrl+C to stop)\n")
	})
}

// watchLoop calls rerun once changes to watched files have settled for
// delay. rerun runs on the loop's goroutine, so runs never overlap and none
// is in flight once watchLoop returns.
func watchLoop(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, watched map[string]bool, delay time.Duration, rerun func(name string)) error {
	debounce := time.NewTimer(delay)
	debounce.Stop()
	defer debounce.Stop()

	var changed string
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-events:
			if !ok {
				return nil
			}
			abs, _ := filepath.Abs(event.Name)
			if !watched[abs] || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			changed = event.Name
			debounce.Reset(delay)

		case <-debounce.C:
			if ctx.Err() != nil {
				return nil
			}
			rerun(changed)

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			logger.Error("watcher error", "error", err)
		}
	}
}
