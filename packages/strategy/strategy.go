// Package strategy picks the execution mode for a selected test set.
//
// Small sets run in-process on a single worker where fan-out overhead would
// dominate; medium sets use a fixed pool of warm workers that amortize
// session-scope setup across tests; large sets fan out to all available
// parallelism for aggregate throughput. The cutoffs are tunable policy, not
// a contract.
package strategy

import "runtime"

// Strategy is one of the three execution modes.
type Strategy string

const (
	InProcess    Strategy = "in-process"
	WarmWorkers  Strategy = "warm-workers"
	FullParallel Strategy = "full-parallel"
)

// Default band boundaries on selected test count.
const (
	DefaultWarmThreshold     = 20
	DefaultParallelThreshold = 100
)

// Thresholds holds the configurable band boundaries: selected counts below
// Warm run in-process, counts below Parallel use warm workers, anything at
// or above Parallel goes fully parallel.
type Thresholds struct {
	Warm     int
	Parallel int
}

// DefaultThresholds returns the default policy bands.
func DefaultThresholds() Thresholds {
	return Thresholds{Warm: DefaultWarmThreshold, Parallel: DefaultParallelThreshold}
}

// Choose picks the strategy for a selected test count. Pure: it never
// spawns workers.
func Choose(selected int, t Thresholds) Strategy {
	if t.Warm <= 0 {
		t.Warm = DefaultWarmThreshold
	}
	if t.Parallel <= t.Warm {
		t.Parallel = DefaultParallelThreshold
	}
	switch {
	case selected < t.Warm:
		return InProcess
	case selected < t.Parallel:
		return WarmWorkers
	default:
		return FullParallel
	}
}

// Workers returns the worker count for a strategy. warmSize bounds the warm
// pool; zero means the default of 4.
func (s Strategy) Workers(warmSize int) int {
	switch s {
	case InProcess:
		return 1
	case WarmWorkers:
		if warmSize > 0 {
			return warmSize
		}
		return 4
	default:
		return runtime.NumCPU()
	}
}
