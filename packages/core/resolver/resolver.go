// Package resolver computes per-test fixture setup plans and manages the
// scope cache of live fixture instances.
//
// Setup order is the topological order of the test's induced dependency
// subgraph with ties broken by declaration order, so it is deterministic.
// Exactly one live instance exists per (fixture, ScopeKey); concurrent
// first-requesters race to become the single initializer and everyone else
// awaits that result. Teardown is LIFO relative to setup and runs when the
// last selected test touching a ScopeKey completes.
package resolver

import (
	"context"
	"errors"

	"github.com/blitz-test/blitz/packages/core/graph"
	"github.com/blitz-test/blitz/packages/core/model"
)

// Step is one entry of a setup plan.
type Step struct {
	Fixture string
	Key     model.ScopeKey
}

// Resolver owns the scope cache for one run.
type Resolver struct {
	graph *graph.Graph
	cache *ScopeCache
}

// New creates a resolver over a validated dependency graph.
func New(g *graph.Graph) *Resolver {
	return &Resolver{graph: g, cache: NewScopeCache()}
}

// Plan returns the ordered setup plan for a test: dependencies first, each
// step carrying the scope key the instance is cached under.
func (r *Resolver) Plan(t *model.TestRecord) []Step {
	order := r.graph.SetupOrder(t.ID)
	steps := make([]Step, 0, len(order))
	for _, name := range order {
		def := r.graph.Definition(name)
		steps = append(steps, Step{
			Fixture: name,
			Key:     model.ScopeKeyFor(def.Scope, t),
		})
	}
	return steps
}

// Register records the selected test set before execution starts. Reference
// counts per (fixture, ScopeKey) drive teardown: when the last registered
// test touching a key releases it, the instance is torn down.
func (r *Resolver) Register(tests []*model.TestRecord) {
	for _, t := range tests {
		for _, step := range r.Plan(t) {
			r.cache.retain(instanceKey{Fixture: step.Fixture, Key: step.Key})
		}
	}
}

// Setup acquires every fixture the test needs, in plan order, and returns
// the resolved values by fixture name. A setup failure short-circuits: the
// failing fixture becomes Errored for its ScopeKey and the error is
// returned; fixtures acquired earlier stay live until released.
func (r *Resolver) Setup(ctx context.Context, t *model.TestRecord) (map[string]any, error) {
	values := make(map[string]any)
	for _, step := range r.Plan(t) {
		def := r.graph.Definition(step.Fixture)
		key := instanceKey{Fixture: step.Fixture, Key: step.Key}

		value, err := r.cache.acquire(ctx, key, func(ctx context.Context) (any, func() error, error) {
			if def.Setup == nil {
				return nil, nil, nil
			}
			deps := make(map[string]any, len(def.Deps))
			for _, dep := range def.Deps {
				deps[dep] = values[dep]
			}
			return def.Setup(ctx, deps)
		})
		if err != nil {
			return nil, err
		}
		values[step.Fixture] = value
	}
	return values, nil
}

// Release marks the test as done with every key in its plan, in reverse
// setup order so teardown is LIFO. Must be called exactly once per
// registered test, whether it ran, errored, or was skipped by cancellation.
func (r *Resolver) Release(t *model.TestRecord) error {
	plan := r.Plan(t)
	var errs []error
	for i := len(plan) - 1; i >= 0; i-- {
		step := plan[i]
		if err := r.cache.releaseRef(instanceKey{Fixture: step.Fixture, Key: step.Key}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shutdown tears down any instances still live, narrowest scope first.
// Called at session end and after cancellation.
func (r *Resolver) Shutdown() error {
	return errors.Join(r.cache.drain()...)
}
