// Package graph builds the fixture dependency DAG for a run.
//
// The builder resolves each test's required fixtures (plus autouse
// fixtures) against the loaded definitions, validates the scope-widening
// rule, and rejects dependency cycles before any setup executes. It is
// pure: building a graph has no side effects.
package graph

import (
	"sort"

	"github.com/blitz-test/blitz/packages/core/model"
)

// Graph is the directed fixture dependency graph for one run, plus the
// synthetic edges from each test to its required fixtures.
type Graph struct {
	defs    map[string]*model.FixtureDefinition
	order   map[string]int       // declaration order of definitions
	roots   map[string][]string  // test ID -> directly required fixtures (autouse first)
	closure map[string][]string  // test ID -> setup order (dependencies first)
}

// Build constructs and validates the dependency graph.
func Build(tests []*model.TestRecord, defs []*model.FixtureDefinition) (*Graph, error) {
	g := &Graph{
		defs:    make(map[string]*model.FixtureDefinition, len(defs)),
		order:   make(map[string]int, len(defs)),
		roots:   make(map[string][]string, len(tests)),
		closure: make(map[string][]string, len(tests)),
	}

	var autouse []string
	for i, def := range defs {
		g.defs[def.Name] = def
		g.order[def.Name] = i
		if def.Autouse {
			autouse = append(autouse, def.Name)
		}
	}

	// Validate fixture-to-fixture edges once, independent of tests.
	for _, def := range defs {
		for _, dep := range def.Deps {
			depDef, ok := g.defs[dep]
			if !ok {
				return nil, &model.UnknownFixtureError{Fixture: dep, Via: def.Name}
			}
			if !depDef.Scope.AtLeast(def.Scope) {
				return nil, &model.ScopeViolationError{
					Fixture:  def.Name,
					Scope:    def.Scope,
					Dep:      dep,
					DepScope: depDef.Scope,
				}
			}
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &model.CycleError{Path: cycle}
	}

	for _, t := range tests {
		roots := make([]string, 0, len(autouse)+len(t.Fixtures))
		roots = append(roots, autouse...)
		for _, name := range t.Fixtures {
			if _, ok := g.defs[name]; !ok {
				return nil, &model.UnknownFixtureError{Fixture: name, Test: t.ID}
			}
			if !contains(roots, name) {
				roots = append(roots, name)
			}
		}
		g.roots[t.ID] = roots
		g.closure[t.ID] = g.topoOrder(roots)
	}

	return g, nil
}

// Definition returns the definition for a fixture name.
func (g *Graph) Definition(name string) *model.FixtureDefinition {
	return g.defs[name]
}

// SetupOrder returns the setup order for the test's induced subgraph:
// dependencies before dependers, ties broken by declaration order. The
// result is stable across calls.
func (g *Graph) SetupOrder(testID string) []string {
	plan := g.closure[testID]
	out := make([]string, len(plan))
	copy(out, plan)
	return out
}

// SourceUnits returns the set of source units contributing to the test's
// fingerprint: its own defining unit plus the defining units of every
// fixture in its closure. Sorted for determinism.
func (g *Graph) SourceUnits(t *model.TestRecord) []string {
	seen := map[string]struct{}{t.Path: {}}
	for _, name := range g.closure[t.ID] {
		if def := g.defs[name]; def != nil && def.Path != "" {
			seen[def.Path] = struct{}{}
		}
	}
	units := make([]string, 0, len(seen))
	for u := range seen {
		units = append(units, u)
	}
	sort.Strings(units)
	return units
}

// topoOrder produces the setup order for the subgraph reachable from roots
// using Kahn's algorithm with a stable tie-break on declaration order.
func (g *Graph) topoOrder(roots []string) []string {
	// Collect the induced subgraph.
	inSub := make(map[string]bool)
	var visit func(name string)
	visit = func(name string) {
		if inSub[name] {
			return
		}
		inSub[name] = true
		for _, dep := range g.defs[name].Deps {
			visit(dep)
		}
	}
	for _, r := range roots {
		visit(r)
	}

	// In-degree counts edges depender -> dependee reversed: a fixture is
	// ready once all of its dependencies are placed.
	pending := make(map[string]int, len(inSub))
	dependers := make(map[string][]string, len(inSub))
	for name := range inSub {
		pending[name] = len(g.defs[name].Deps)
		for _, dep := range g.defs[name].Deps {
			dependers[dep] = append(dependers[dep], name)
		}
	}

	var ready []string
	for name, n := range pending {
		if n == 0 {
			ready = append(ready, name)
		}
	}

	out := make([]string, 0, len(inSub))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool {
			return g.order[ready[i]] < g.order[ready[j]]
		})
		next := ready[0]
		ready = ready[1:]
		out = append(out, next)
		for _, dep := range dependers[next] {
			pending[dep]--
			if pending[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	return out
}

// findCycle walks the whole definition graph and returns the full path of
// the first cycle found, or nil. The path ends with the fixture it started
// on so every fixture on the cycle is named.
func (g *Graph) findCycle() []string {
	const (
		white = 0 // unvisited
		grey  = 1 // on the current path
		black = 2 // done
	)
	colors := make(map[string]int, len(g.defs))
	var stack []string

	names := make([]string, 0, len(g.defs))
	for name := range g.defs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return g.order[names[i]] < g.order[names[j]] })

	var dfs func(name string) []string
	dfs = func(name string) []string {
		colors[name] = grey
		stack = append(stack, name)
		for _, dep := range g.defs[name].Deps {
			switch colors[dep] {
			case grey:
				// Slice the current path from the first occurrence of dep.
				for i, n := range stack {
					if n == dep {
						cycle := append([]string{}, stack[i:]...)
						return append(cycle, dep)
					}
				}
			case white:
				if cycle := dfs(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		colors[name] = black
		return nil
	}

	for _, name := range names {
		if colors[name] == white {
			if cycle := dfs(name); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
