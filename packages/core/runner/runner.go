package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/blitz-test/blitz/packages/cache"
	"github.com/blitz-test/blitz/packages/core/model"
	"github.com/blitz-test/blitz/packages/core/resolver"
	"github.com/blitz-test/blitz/packages/selector"
	"github.com/blitz-test/blitz/packages/strategy"
)

// ExecutorBackend runs a test body once fixtures are resolved. It is an
// opaque blocking capability from the scheduler's perspective; the runner
// attaches no retry semantics of its own.
type ExecutorBackend interface {
	Execute(ctx context.Context, test *model.TestRecord, fixtures map[string]any) model.Outcome
}

// Config controls scheduling.
type Config struct {
	Thresholds   strategy.Thresholds
	WarmPoolSize int     // workers in WarmWorkers mode, 0 = default
	MaxWorkers   int     // cap on FullParallel fan-out, 0 = available parallelism
	StartRate    float64 // test starts per second in FullParallel, 0 = unlimited
}

// Runner executes a selection under the chosen strategy.
type Runner struct {
	config   *Config
	backend  ExecutorBackend
	resolver *resolver.Resolver
	results  *cache.Cache // nil disables outcome recording
	sink     func(model.Outcome)
	logger   *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithResultCache records outcomes to the persisted result cache.
func WithResultCache(rc *cache.Cache) Option {
	return func(r *Runner) { r.results = rc }
}

// WithOutcomeSink streams outcomes, ordered by completion, to the reporter.
func WithOutcomeSink(sink func(model.Outcome)) Option {
	return func(r *Runner) { r.sink = sink }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// NewRunner creates a runner over a resolver and executor backend.
func NewRunner(config *Config, backend ExecutorBackend, res *resolver.Resolver, opts ...Option) *Runner {
	if config == nil {
		config = &Config{}
	}
	r := &Runner{
		config:   config,
		backend:  backend,
		resolver: res,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Summary aggregates one run.
type Summary struct {
	RunID     string
	Strategy  strategy.Strategy
	Workers   int
	Total     int
	Passed    int
	Failed    int
	Errored   int
	Cached    int
	Cancelled bool
	Duration  time.Duration
	P50       time.Duration
	P95       time.Duration
	P99       time.Duration
	Outcomes  []model.Outcome // completion order, cache-satisfied first
}

// Run executes the selection and returns the aggregate summary. Outcomes
// recorded before a cancellation are preserved; no test starts after the
// cancellation signal is observed, and in-flight teardown completes
// best-effort.
func (r *Runner) Run(ctx context.Context, sel *selector.Selection) (*Summary, error) {
	start := time.Now()
	runID := uuid.New().String()

	chosen := strategy.Choose(len(sel.Run), r.config.Thresholds)
	workers := chosen.Workers(r.config.WarmPoolSize)
	if r.config.MaxWorkers > 0 && workers > r.config.MaxWorkers {
		workers = r.config.MaxWorkers
	}
	if workers > len(sel.Run) && len(sel.Run) > 0 {
		workers = len(sel.Run)
	}

	var limiter *rate.Limiter
	if chosen == strategy.FullParallel && r.config.StartRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.config.StartRate), 1)
	}

	r.logger.Debug("run starting",
		"run_id", runID,
		"strategy", string(chosen),
		"workers", workers,
		"selected", len(sel.Run),
		"cache_satisfied", len(sel.Satisfied))

	st := newStats()
	summary := &Summary{RunID: runID, Strategy: chosen, Workers: workers}

	var mu sync.Mutex
	emit := func(o model.Outcome) {
		st.record(string(o.Status), o.Duration, o.FromCache)
		mu.Lock()
		summary.Outcomes = append(summary.Outcomes, o)
		mu.Unlock()
		if r.sink != nil {
			r.sink(o)
		}
	}

	// Cache-satisfied tests are reported up front without touching the
	// scheduler.
	for _, o := range sel.Satisfied {
		emit(o)
	}

	r.resolver.Register(sel.Run)

	queue := groupQueue(groupTests(sel.Run))
	var eg errgroup.Group
	for w := 0; w < workers; w++ {
		worker := w
		eg.Go(func() error {
			for g := range queue {
				r.logger.Debug("group routed", "group", g.key, "worker", worker, "tests", len(g.tests))
				for _, t := range g.tests {
					if ctx.Err() != nil {
						// Cancellation observed: drop bookkeeping for tests
						// that will never start, run nothing new.
						_ = r.resolver.Release(t)
						continue
					}
					emit(r.runTest(ctx, worker, limiter, t, sel.Fingerprints[t.ID], runID))
				}
			}
			return nil
		})
	}
	_ = eg.Wait()

	if err := r.resolver.Shutdown(); err != nil {
		r.logger.Warn("fixture teardown failed at session end", "error", err)
	}

	summary.Cancelled = ctx.Err() != nil
	summary.Duration = time.Since(start)
	summary.Passed = int(st.passed.Load())
	summary.Failed = int(st.failed.Load())
	summary.Errored = int(st.errored.Load())
	summary.Cached = int(st.cached.Load())
	summary.Total = summary.Passed + summary.Failed + summary.Errored + summary.Cached
	summary.P50 = st.percentile(50)
	summary.P95 = st.percentile(95)
	summary.P99 = st.percentile(99)

	r.logger.Debug("run finished",
		"run_id", runID,
		"passed", summary.Passed,
		"failed", summary.Failed,
		"errored", summary.Errored,
		"cached", summary.Cached,
		"cancelled", summary.Cancelled)

	return summary, nil
}

// runTest sets up fixtures, delegates the body to the executor backend, and
// triggers teardown bookkeeping. A fixture setup failure marks the test
// errored without invoking the backend.
func (r *Runner) runTest(ctx context.Context, worker int, limiter *rate.Limiter, t *model.TestRecord, fp model.Fingerprint, runID string) model.Outcome {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			_ = r.resolver.Release(t)
			return model.Outcome{TestID: t.ID, Status: model.StatusErrored, Reason: err.Error(), Worker: worker}
		}
	}

	start := time.Now()
	var outcome model.Outcome

	fixtures, err := r.resolver.Setup(ctx, t)
	if err != nil {
		outcome = model.Outcome{
			TestID: t.ID,
			Status: model.StatusErrored,
			Reason: err.Error(),
		}
	} else {
		outcome = r.backend.Execute(ctx, t, fixtures)
		outcome.TestID = t.ID
	}
	outcome.Duration = time.Since(start)
	outcome.Worker = worker

	if err := r.resolver.Release(t); err != nil {
		r.logger.Warn("fixture teardown failed", "test", t.ID, "error", err)
	}

	if r.results != nil && fp.Digest != "" {
		if err := r.results.Put(&cache.Entry{
			Digest:   fp.Digest,
			Outcome:  outcome.Status,
			Reason:   outcome.Reason,
			Duration: outcome.Duration,
			RunID:    runID,
		}); err != nil {
			r.logger.Warn("recording outcome failed", "test", t.ID, "error", err)
		}
	}

	return outcome
}
