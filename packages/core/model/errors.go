package model

import (
	"errors"
	"fmt"
	"strings"
)

// Configuration-time errors abort the run before any test executes.
// Per-test errors are isolated to the test and its dependents.

// UnknownFixtureError reports a required fixture name with no definition.
type UnknownFixtureError struct {
	Fixture string
	Test    string // requesting test, empty for fixture-to-fixture edges
	Via     string // depending fixture, empty for direct requirements
}

func (e *UnknownFixtureError) Error() string {
	if e.Via != "" {
		return fmt.Sprintf("unknown fixture %q required by fixture %q", e.Fixture, e.Via)
	}
	return fmt.Sprintf("unknown fixture %q required by test %q", e.Fixture, e.Test)
}

// ScopeViolationError reports a fixture depending on a narrower-scoped one.
type ScopeViolationError struct {
	Fixture  string
	Scope    Scope
	Dep      string
	DepScope Scope
}

func (e *ScopeViolationError) Error() string {
	return fmt.Sprintf("%s-scoped fixture %q depends on %s-scoped fixture %q; dependencies must have equal or wider scope",
		e.Scope, e.Fixture, e.DepScope, e.Dep)
}

// CycleError reports a dependency cycle among fixtures. Path contains every
// fixture on the cycle, ending where it starts.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "fixture dependency cycle: " + strings.Join(e.Path, " -> ")
}

// SetupError wraps a fixture setup failure. Every test depending on the
// failed instance observes the same error without re-attempting setup.
type SetupError struct {
	Fixture string
	Key     ScopeKey
	Err     error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("fixture %q setup failed (%s): %v", e.Fixture, e.Key, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// ErrRunCancelled is returned by the worker pool when an external interrupt
// stops the run before all selected tests executed.
var ErrRunCancelled = errors.New("run cancelled")
