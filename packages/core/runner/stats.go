package runner

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// stats aggregates per-test durations and outcome counts for the run
// summary. Durations are tracked in microseconds for precision.
type stats struct {
	mu        sync.Mutex
	histogram *hdrhistogram.Histogram

	passed  atomic.Int64
	failed  atomic.Int64
	errored atomic.Int64
	cached  atomic.Int64
}

func newStats() *stats {
	return &stats{
		// 1us to 1h range, 3 significant figures
		histogram: hdrhistogram.New(1, 3_600_000_000, 3),
	}
}

func (s *stats) record(status string, duration time.Duration, fromCache bool) {
	if fromCache {
		s.cached.Add(1)
		return
	}
	switch status {
	case "passed":
		s.passed.Add(1)
	case "failed":
		s.failed.Add(1)
	default:
		s.errored.Add(1)
	}
	s.mu.Lock()
	_ = s.histogram.RecordValue(duration.Microseconds())
	s.mu.Unlock()
}

func (s *stats) percentile(q float64) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.histogram.ValueAtQuantile(q)) * time.Microsecond
}
