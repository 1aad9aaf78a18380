package output

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"

	"github.com/blitz-test/blitz/packages/core/model"
	"github.com/blitz-test/blitz/packages/core/runner"
)

// ConsoleFormatter streams outcomes to a terminal as they complete.
type ConsoleFormatter struct {
	mu      sync.Mutex
	writer  io.Writer
	verbose bool
	noColor bool
}

// ConsoleOption configures the console formatter.
type ConsoleOption func(*ConsoleFormatter)

// WithWriter redirects output (default os.Stdout).
func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) { f.writer = w }
}

// WithVerbose includes failure reasons and per-test durations.
func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) { f.verbose = v }
}

// WithNoColor disables ANSI colors.
func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) { f.noColor = nc }
}

// NewConsoleFormatter creates a console formatter.
func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{writer: os.Stdout}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

// FormatOutcome prints one completed test. Safe for concurrent callers;
// workers finish in no particular global order.
func (f *ConsoleFormatter) FormatOutcome(o model.Outcome) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	label := ""
	switch {
	case o.FromCache:
		label = cyan("CACHED")
	case o.Status == model.StatusPassed:
		label = green("PASS")
	case o.Status == model.StatusFailed:
		label = red("FAIL")
	default:
		label = yellow("ERROR")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.verbose {
		fmt.Fprintf(f.writer, "%s %s (%s)\n", label, o.TestID, o.Duration.Round(1e5))
		if o.Reason != "" {
			fmt.Fprintf(f.writer, "    %s\n", o.Reason)
		}
		return
	}
	fmt.Fprintf(f.writer, "%s %s\n", label, o.TestID)
}

// FormatSummary prints the aggregate run summary.
func (f *ConsoleFormatter) FormatSummary(s *runner.Summary) {
	bold := color.New(color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	f.mu.Lock()
	defer f.mu.Unlock()

	fmt.Fprintf(f.writer, "\n%s\n", bold("Summary"))
	fmt.Fprintf(f.writer, "  strategy: %s (%d workers)\n", s.Strategy, s.Workers)
	fmt.Fprintf(f.writer, "  %s  %s  %s  cached: %d  total: %d\n",
		green(fmt.Sprintf("passed: %d", s.Passed)),
		red(fmt.Sprintf("failed: %d", s.Failed)),
		yellow(fmt.Sprintf("errored: %d", s.Errored)),
		s.Cached, s.Total)
	if s.Passed+s.Failed+s.Errored > 0 {
		fmt.Fprintf(f.writer, "  p50: %s  p95: %s  p99: %s\n",
			s.P50.Round(1e5), s.P95.Round(1e5), s.P99.Round(1e5))
	}
	fmt.Fprintf(f.writer, "  duration: %s\n", s.Duration.Round(1e6))
	if s.Cancelled {
		fmt.Fprintf(f.writer, "  %s\n", yellow("run cancelled; recorded outcomes preserved"))
	}
}

// FormatError prints a run-level error.
func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	f.mu.Lock()
	defer f.mu.Unlock()
	fmt.Fprintf(f.writer, "%s %v\n", red("error:"), err)
}
