package output

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/blitz-test/blitz/packages/core/model"
	"github.com/blitz-test/blitz/packages/core/runner"
)

// JSONFormatter accumulates outcomes and writes one document at run end.
type JSONFormatter struct {
	mu       sync.Mutex
	writer   io.Writer
	outcomes []jsonOutcome
}

// JSONOption configures the JSON formatter.
type JSONOption func(*JSONFormatter)

// JSONWithWriter redirects output (default os.Stdout).
func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) { f.writer = w }
}

// NewJSONFormatter creates a JSON formatter.
func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{writer: os.Stdout}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

type jsonOutcome struct {
	Test      string  `json:"test"`
	Status    string  `json:"status"`
	Reason    string  `json:"reason,omitempty"`
	DurationS float64 `json:"duration_s"`
	FromCache bool    `json:"from_cache"`
	Worker    int     `json:"worker"`
}

type jsonReport struct {
	RunID     string        `json:"run_id"`
	Strategy  string        `json:"strategy"`
	Workers   int           `json:"workers"`
	Passed    int           `json:"passed"`
	Failed    int           `json:"failed"`
	Errored   int           `json:"errored"`
	Cached    int           `json:"cached"`
	Total     int           `json:"total"`
	Cancelled bool          `json:"cancelled"`
	DurationS float64       `json:"duration_s"`
	P50Ms     float64       `json:"p50_ms"`
	P95Ms     float64       `json:"p95_ms"`
	P99Ms     float64       `json:"p99_ms"`
	Outcomes  []jsonOutcome `json:"outcomes"`
}

// FormatOutcome records one completed test.
func (f *JSONFormatter) FormatOutcome(o model.Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, jsonOutcome{
		Test:      o.TestID,
		Status:    string(o.Status),
		Reason:    o.Reason,
		DurationS: o.Duration.Seconds(),
		FromCache: o.FromCache,
		Worker:    o.Worker,
	})
}

// FormatSummary writes the accumulated report.
func (f *JSONFormatter) FormatSummary(s *runner.Summary) {
	f.mu.Lock()
	defer f.mu.Unlock()

	report := jsonReport{
		RunID:     s.RunID,
		Strategy:  string(s.Strategy),
		Workers:   s.Workers,
		Passed:    s.Passed,
		Failed:    s.Failed,
		Errored:   s.Errored,
		Cached:    s.Cached,
		Total:     s.Total,
		Cancelled: s.Cancelled,
		DurationS: s.Duration.Seconds(),
		P50Ms:     float64(s.P50) / float64(time.Millisecond),
		P95Ms:     float64(s.P95) / float64(time.Millisecond),
		P99Ms:     float64(s.P99) / float64(time.Millisecond),
		Outcomes:  f.outcomes,
	}

	enc := json.NewEncoder(f.writer)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
}

// FormatError writes a run-level error document.
func (f *JSONFormatter) FormatError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_ = json.NewEncoder(f.writer).Encode(map[string]string{"error": err.Error()})
}
