package model

import (
	"context"
	"fmt"
	"time"
)

// Scope is the lifetime granularity of a fixture instance. Scopes are
// ordered from narrowest to widest; a fixture may only depend on fixtures
// of equal or wider scope.
type Scope int

const (
	ScopeFunction Scope = iota
	ScopeClass
	ScopeModule
	ScopeSession
)

var scopeNames = map[Scope]string{
	ScopeFunction: "function",
	ScopeClass:    "class",
	ScopeModule:   "module",
	ScopeSession:  "session",
}

func (s Scope) String() string {
	if name, ok := scopeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("scope(%d)", int(s))
}

// ParseScope converts a scope name to a Scope.
func ParseScope(name string) (Scope, error) {
	for s, n := range scopeNames {
		if n == name {
			return s, nil
		}
	}
	return ScopeFunction, fmt.Errorf("unknown fixture scope %q", name)
}

// AtLeast reports whether s is equal to or wider than other.
func (s Scope) AtLeast(other Scope) bool {
	return s >= other
}

// TestRecord is one discovered test as supplied by the catalog. Records are
// immutable once produced.
type TestRecord struct {
	ID       string   // stable identity, e.g. "tests/test_api.py::TestUsers::test_create[json]"
	Path     string   // defining source unit
	Name     string   // bare test name
	Module   string   // module path
	Class    string   // class name, empty for module-level tests
	Fixtures []string // required fixture names, in declaration order
	Markers  []string
	Params   string // parametrization id, empty when not parametrized
}

// GroupKey returns the module/class routing key. All tests sharing a key are
// executed by one worker so module- and class-scoped fixtures are
// instantiated exactly once without cross-worker coordination.
func (t *TestRecord) GroupKey() string {
	if t.Class != "" {
		return t.Module + "::" + t.Class
	}
	return t.Module
}

// HasMarker reports whether the test carries the given marker.
func (t *TestRecord) HasMarker(name string) bool {
	for _, m := range t.Markers {
		if m == name {
			return true
		}
	}
	return false
}

// SetupFunc is the two-phase acquisition capability behind a fixture: it
// produces a value and a release action. Release runs exactly once when the
// fixture's scope boundary is reached. A nil SetupFunc means the fixture has
// no host-side state to manage (its real setup happens inside the executor
// backend); the resolver still tracks its lifecycle.
type SetupFunc func(ctx context.Context, deps map[string]any) (value any, release func() error, err error)

// FixtureDefinition describes one fixture: its name, scope, dependencies and
// acquisition capability.
type FixtureDefinition struct {
	Name    string
	Scope   Scope
	Autouse bool
	Deps    []string // dependency fixture names, in declaration order
	Path    string   // defining source unit
	Setup   SetupFunc
}

// ScopeKey identifies the cache partition for one fixture instance. Keys are
// comparable and usable as map keys. Unused fields stay zero: a session key
// is the zero value plus the scope, a module key carries the module path,
// a class key module plus class, a function key the test identity.
type ScopeKey struct {
	Scope  Scope
	Module string
	Class  string
	TestID string
}

// ScopeKeyFor derives the cache partition for a fixture definition in the
// context of the given test.
func ScopeKeyFor(scope Scope, t *TestRecord) ScopeKey {
	switch scope {
	case ScopeSession:
		return ScopeKey{Scope: ScopeSession}
	case ScopeModule:
		return ScopeKey{Scope: ScopeModule, Module: t.Module}
	case ScopeClass:
		return ScopeKey{Scope: ScopeClass, Module: t.Module, Class: t.Class}
	default:
		return ScopeKey{Scope: ScopeFunction, TestID: t.ID}
	}
}

func (k ScopeKey) String() string {
	switch k.Scope {
	case ScopeSession:
		return "session"
	case ScopeModule:
		return "module:" + k.Module
	case ScopeClass:
		return "class:" + k.Module + "::" + k.Class
	default:
		return "function:" + k.TestID
	}
}

// Status is the terminal outcome of one test.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusErrored Status = "errored"
)

// ParseStatus validates a persisted status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPassed, StatusFailed, StatusErrored:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown outcome status %q", s)
}

// Outcome is the structured per-test result emitted to the reporter and
// recorded in the result cache.
type Outcome struct {
	TestID    string
	Status    Status
	Reason    string
	Duration  time.Duration
	FromCache bool // satisfied from the result cache without executing
	Worker    int  // worker that ran the test, -1 for cache-satisfied
}

// Fingerprint is the content-derived identity of a test used for incremental
// selection. Units lists every contributing source unit.
type Fingerprint struct {
	Digest string
	Units  []string
}

// ChangeSet is the set of source units modified since a baseline.
type ChangeSet map[string]struct{}

// NewChangeSet builds a ChangeSet from unit identifiers.
func NewChangeSet(units ...string) ChangeSet {
	cs := make(ChangeSet, len(units))
	for _, u := range units {
		cs[u] = struct{}{}
	}
	return cs
}

// Contains reports whether the unit is part of the change set.
func (cs ChangeSet) Contains(unit string) bool {
	_, ok := cs[unit]
	return ok
}
