package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/blitz-test/blitz/packages/backend"
	"github.com/blitz-test/blitz/packages/cache"
	"github.com/blitz-test/blitz/packages/catalog"
	"github.com/blitz-test/blitz/packages/changes"
	"github.com/blitz-test/blitz/packages/core/config"
	"github.com/blitz-test/blitz/packages/core/graph"
	"github.com/blitz-test/blitz/packages/core/model"
	"github.com/blitz-test/blitz/packages/core/resolver"
	"github.com/blitz-test/blitz/packages/core/runner"
	"github.com/blitz-test/blitz/packages/fingerprint"
	"github.com/blitz-test/blitz/packages/output"
	"github.com/blitz-test/blitz/packages/selector"
	"github.com/blitz-test/blitz/packages/strategy"
)

var runCmd = &cobra.Command{
	Use:   "run [manifest]",
	Short: "Run tests from a collected manifest",
	Long: `Run tests described by a collected manifest, skipping whatever the
result cache proves unaffected by the change set.

Examples:
  blitz run blitz.manifest.json
  blitz run --baseline origin/main
  blitz run --name "test_create*" --markers smoke
  blitz run --no-cache --workers 8
  blitz run --watch`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	configFlag         string
	baselineFlag       string
	nameFlag           string
	markersFlag        string
	verboseFlag        bool
	noColorFlag        bool
	outputFlag         string
	noCacheFlag        bool
	cachePathFlag      string
	cacheCapFlag       int
	workersFlag        int
	warmPoolFlag       int
	warmThreshFlag     int
	parallelThreshFlag int
	startRateFlag      float64
	collectOnlyFlag    bool
	watchFlag          bool
	pythonFlag         string
	workdirFlag        string
	logFileFlag        string
)

func init() {
	runCmd.Flags().StringVar(&configFlag, "config", getEnvString("BLITZ_CONFIG", ""), "Path to config file (env: BLITZ_CONFIG)")
	runCmd.Flags().StringVarP(&baselineFlag, "baseline", "b", getEnvString("BLITZ_BASELINE", ""), "Baseline revision for change detection (env: BLITZ_BASELINE)")
	runCmd.Flags().StringVarP(&nameFlag, "name", "n", "", "Run only tests matching name pattern")
	runCmd.Flags().StringVarP(&markersFlag, "markers", "m", "", "Run only tests with specified markers (comma-separated)")

	runCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", getEnvBool("BLITZ_VERBOSE", false), "Verbose output (env: BLITZ_VERBOSE)")
	runCmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("BLITZ_NO_COLOR", false), "Disable colored output (env: BLITZ_NO_COLOR)")
	runCmd.Flags().StringVarP(&outputFlag, "output", "o", getEnvString("BLITZ_OUTPUT", "console"), "Output format: console, json (env: BLITZ_OUTPUT)")

	runCmd.Flags().BoolVar(&noCacheFlag, "no-cache", getEnvBool("BLITZ_NO_CACHE", false), "Ignore the result cache and run everything (env: BLITZ_NO_CACHE)")
	runCmd.Flags().StringVar(&cachePathFlag, "cache-path", getEnvString("BLITZ_CACHE_PATH", ""), "Result cache database path (env: BLITZ_CACHE_PATH)")
	runCmd.Flags().IntVar(&cacheCapFlag, "cache-capacity", getEnvInt("BLITZ_CACHE_CAPACITY", 0), "Max persisted cache entries (env: BLITZ_CACHE_CAPACITY)")

	runCmd.Flags().IntVar(&workersFlag, "workers", getEnvInt("BLITZ_WORKERS", 0), "Cap on full-parallel worker count (env: BLITZ_WORKERS)")
	runCmd.Flags().IntVar(&warmPoolFlag, "warm-pool", 0, "Worker count in warm-workers mode")
	runCmd.Flags().IntVar(&warmThreshFlag, "warm-threshold", 0, "Selected count at which warm-workers kicks in")
	runCmd.Flags().IntVar(&parallelThreshFlag, "parallel-threshold", 0, "Selected count at which full-parallel kicks in")
	runCmd.Flags().Float64Var(&startRateFlag, "start-rate", 0, "Max test starts per second in full-parallel mode")

	runCmd.Flags().BoolVar(&collectOnlyFlag, "collect-only", false, "Show what would run after selection without executing")
	runCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch source units for changes and re-run affected tests")
	runCmd.Flags().StringVar(&pythonFlag, "python", getEnvString("BLITZ_PYTHON", ""), "Interpreter for the subprocess backend (env: BLITZ_PYTHON)")
	runCmd.Flags().StringVar(&workdirFlag, "workdir", "", "Working directory tests run from")
	runCmd.Flags().StringVar(&logFileFlag, "log-file", getEnvString("BLITZ_LOG_FILE", ""), "Write debug logs to a rotated file (env: BLITZ_LOG_FILE)")
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// Formatter is implemented by all output formatters.
type Formatter interface {
	FormatOutcome(o model.Outcome)
	FormatSummary(s *runner.Summary)
	FormatError(err error)
}

func newFormatter() Formatter {
	switch strings.ToLower(outputFlag) {
	case "json":
		return output.NewJSONFormatter()
	default:
		return output.NewConsoleFormatter(
			output.WithVerbose(verboseFlag),
			output.WithNoColor(noColorFlag),
		)
	}
}

func newLogger() *slog.Logger {
	if logFileFlag == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	logWriter := &lumberjack.Logger{
		Filename:   logFileFlag,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     14, // days
	}
	return slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func runCommand(cmd *cobra.Command, args []string) error {
	fileConfig, err := config.LoadConfig(configFlag)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := fileConfig.Merge(flagOverrides(args))

	logger := newLogger()
	formatter := newFormatter()

	mf, err := catalog.LoadFile(cfg.Manifest)
	if err != nil {
		formatter.FormatError(err)
		os.Exit(ExitConfigError)
	}

	var rc *cache.Cache
	if !cfg.GetNoCache() {
		if err := os.MkdirAll(filepath.Dir(cfg.CachePath), 0755); err == nil {
			rc, err = cache.Open(cfg.CachePath, cfg.CacheCapacity)
			if err != nil {
				// A broken cache degrades to running everything.
				logger.Warn("opening result cache failed", "path", cfg.CachePath, "error", err)
				rc = nil
			}
		}
	}
	if rc != nil {
		defer rc.Close()
	}

	var provider selector.ChangeSetProvider = changes.NewGitProvider(".")

	summary, code := runOnce(cmd.Context(), cfg, mf, rc, provider, formatter, logger)
	if summary == nil && code != ExitSuccess {
		os.Exit(code)
	}

	if !watchFlag {
		os.Exit(code)
	}

	return watchLoop(cfg, mf, rc, logger)
}

// flagOverrides translates explicit CLI flags into a config overlay.
func flagOverrides(args []string) *config.Config {
	overlay := &config.Config{
		CachePath:         cachePathFlag,
		CacheCapacity:     cacheCapFlag,
		WarmThreshold:     warmThreshFlag,
		ParallelThreshold: parallelThreshFlag,
		WarmPoolSize:      warmPoolFlag,
		MaxWorkers:        workersFlag,
		StartRate:         startRateFlag,
		Baseline:          baselineFlag,
		Python:            pythonFlag,
	}
	if len(args) > 0 {
		overlay.Manifest = args[0]
	}
	if noCacheFlag {
		v := true
		overlay.NoCache = &v
	}
	if verboseFlag {
		v := true
		overlay.Verbose = &v
	}
	if noColorFlag {
		v := true
		overlay.NoColor = &v
	}
	return overlay
}

// runOnce builds the graph, selects, and executes one run. Returns the
// summary (nil on configuration errors) and the process exit code.
func runOnce(parent context.Context, cfg *config.Config, mf *catalog.Manifest, rc *cache.Cache, provider selector.ChangeSetProvider, formatter Formatter, logger *slog.Logger) (*runner.Summary, int) {
	tests := catalog.FilterName(mf.Tests, nameFlag)
	tests = catalog.FilterMarkers(tests, splitList(markersFlag))

	g, err := graph.Build(tests, mf.Fixtures)
	if err != nil {
		// Configuration-time errors abort before any execution starts.
		formatter.FormatError(err)
		return nil, ExitConfigError
	}

	cs := model.ChangeSet{}
	if provider != nil {
		cs, err = provider.Changes(cfg.Baseline)
		if err != nil {
			// Without a change set we still run correctly, just more.
			logger.Warn("change detection unavailable, running everything", "error", err)
			rc = nil
			cs = model.ChangeSet{}
		}
	}

	hasher := fingerprint.NewHasher(workdirFlag)
	sel, err := selector.Select(tests, g, hasher, cs, rc)
	if err != nil {
		formatter.FormatError(err)
		return nil, ExitConfigError
	}

	if collectOnlyFlag {
		for _, t := range sel.Run {
			fmt.Fprintf(os.Stdout, "would run: %s\n", t.ID)
		}
		fmt.Fprintf(os.Stdout, "%d to run, %d cache-satisfied\n", len(sel.Run), len(sel.Satisfied))
		return nil, ExitSuccess
	}

	backendOpts := []backend.SubprocessOption{}
	if cfg.Python != "" {
		backendOpts = append(backendOpts, backend.WithPython(cfg.Python))
	}
	if workdirFlag != "" {
		backendOpts = append(backendOpts, backend.WithWorkdir(workdirFlag))
	}
	exec := backend.NewSubprocess(backendOpts...)

	res := resolver.New(g)
	runnerOpts := []runner.Option{
		runner.WithOutcomeSink(formatter.FormatOutcome),
		runner.WithLogger(logger),
	}
	if rc != nil {
		runnerOpts = append(runnerOpts, runner.WithResultCache(rc))
	}
	r := runner.NewRunner(&runner.Config{
		Thresholds: strategy.Thresholds{
			Warm:     cfg.WarmThreshold,
			Parallel: cfg.ParallelThreshold,
		},
		WarmPoolSize: cfg.WarmPoolSize,
		MaxWorkers:   cfg.MaxWorkers,
		StartRate:    cfg.StartRate,
	}, exec, res, runnerOpts...)

	// External interrupts cancel the run; in-flight teardown completes.
	ctx, cancel := context.WithCancel(parent)
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

	summary, err := r.Run(ctx, sel)
	if err != nil {
		formatter.FormatError(err)
		return nil, ExitTestFailure
	}
	formatter.FormatSummary(summary)

	if summary.Failed > 0 || summary.Errored > 0 {
		return summary, ExitTestFailure
	}
	return summary, ExitSuccess
}

// watchLoop re-runs the selector with a fresh change set whenever a watched
// source unit is written.
func watchLoop(cfg *config.Config, mf *catalog.Manifest, rc *cache.Cache, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	watchedDirs := make(map[string]bool)
	addUnit := func(unit string) {
		dir := filepath.Dir(unit)
		if workdirFlag != "" && !filepath.IsAbs(dir) {
			dir = filepath.Join(workdirFlag, dir)
		}
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				logger.Warn("failed to watch directory", "dir", dir, "error", err)
			}
			watchedDirs[dir] = true
		}
	}
	for _, t := range mf.Tests {
		addUnit(t.Path)
	}
	for _, f := range mf.Fixtures {
		if f.Path != "" {
			addUnit(f.Path)
		}
	}

	fmt.Fprintf(os.Stdout, "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	var debounceTimer *time.Timer

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) || !isSourceUnit(event.Name) {
				continue
			}
			changed := event.Name
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
				fmt.Fprintf(os.Stdout, "\nFile changed: %s\nRe-running affected tests...\n\n", changed)

				unit := changed
				if workdirFlag != "" {
					if rel, err := filepath.Rel(workdirFlag, changed); err == nil {
						unit = rel
					}
				}
				provider := &changes.Static{Set: model.NewChangeSet(unit)}
				formatter := newFormatter()
				runOnce(context.Background(), cfg, mf, rc, provider, formatter, logger)

				fmt.Fprintf(os.Stdout, "\nWatching for changes... (press Ctrl+C to stop)\n")
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", "error", err)
		}
	}
}

func isSourceUnit(path string) bool {
	return filepath.Ext(path) == ".py"
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
