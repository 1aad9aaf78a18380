package resolver

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blitz-test/blitz/packages/core/graph"
	"github.com/blitz-test/blitz/packages/core/model"
)

// recorder tracks setup/teardown events across fixtures in order.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.events...)
}

func countingSetup(rec *recorder, name string, value any) model.SetupFunc {
	return func(ctx context.Context, deps map[string]any) (any, func() error, error) {
		rec.add("setup:" + name)
		return value, func() error {
			rec.add("teardown:" + name)
			return nil
		}, nil
	}
}

func moduleTest(id, module string, fixtures ...string) *model.TestRecord {
	return &model.TestRecord{ID: id, Path: module + ".py", Name: id, Module: module, Fixtures: fixtures}
}

func buildGraph(t *testing.T, tests []*model.TestRecord, defs []*model.FixtureDefinition) *graph.Graph {
	t.Helper()
	g, err := graph.Build(tests, defs)
	require.NoError(t, err)
	return g
}

func TestSetupValuesFlowToDependers(t *testing.T) {
	rec := &recorder{}
	defs := []*model.FixtureDefinition{
		{Name: "conn", Scope: model.ScopeFunction, Deps: []string{"url"}, Setup: func(ctx context.Context, deps map[string]any) (any, func() error, error) {
			return "conn(" + deps["url"].(string) + ")", nil, nil
		}},
		{Name: "url", Scope: model.ScopeSession, Setup: countingSetup(rec, "url", "db://local")},
	}
	test := moduleTest("t1", "m", "conn")
	res := New(buildGraph(t, []*model.TestRecord{test}, defs))
	res.Register([]*model.TestRecord{test})

	values, err := res.Setup(context.Background(), test)
	require.NoError(t, err)
	assert.Equal(t, "db://local", values["url"])
	assert.Equal(t, "conn(db://local)", values["conn"])
}

func TestModuleScopedFixtureSharedAcrossTests(t *testing.T) {
	rec := &recorder{}
	defs := []*model.FixtureDefinition{
		{Name: "db", Scope: model.ScopeModule, Path: "conftest.py", Setup: countingSetup(rec, "db", "handle")},
	}
	tests := []*model.TestRecord{
		moduleTest("t1", "tests/mod", "db"),
		moduleTest("t2", "tests/mod", "db"),
		moduleTest("t3", "tests/mod", "db"),
	}
	res := New(buildGraph(t, tests, defs))
	res.Register(tests)

	ctx := context.Background()
	for _, test := range tests {
		values, err := res.Setup(ctx, test)
		require.NoError(t, err)
		assert.Equal(t, "handle", values["db"])
		rec.add("done:" + test.ID)
		require.NoError(t, res.Release(test))
	}

	// Setup once, teardown once, teardown strictly after the last test.
	assert.Equal(t, []string{
		"setup:db",
		"done:t1",
		"done:t2",
		"done:t3",
		"teardown:db",
	}, rec.list())
}

func TestTeardownLIFO(t *testing.T) {
	// a depends on b depends on c: setup c,b,a then teardown a,b,c.
	rec := &recorder{}
	defs := []*model.FixtureDefinition{
		{Name: "a", Scope: model.ScopeFunction, Deps: []string{"b"}, Setup: countingSetup(rec, "a", 1)},
		{Name: "b", Scope: model.ScopeFunction, Deps: []string{"c"}, Setup: countingSetup(rec, "b", 2)},
		{Name: "c", Scope: model.ScopeFunction, Setup: countingSetup(rec, "c", 3)},
	}
	test := moduleTest("t1", "m", "a")
	res := New(buildGraph(t, []*model.TestRecord{test}, defs))
	res.Register([]*model.TestRecord{test})

	_, err := res.Setup(context.Background(), test)
	require.NoError(t, err)
	require.NoError(t, res.Release(test))

	assert.Equal(t, []string{
		"setup:c", "setup:b", "setup:a",
		"teardown:a", "teardown:b", "teardown:c",
	}, rec.list())
}

func TestSetupFailurePropagatesWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("connection refused")
	defs := []*model.FixtureDefinition{
		{Name: "db", Scope: model.ScopeSession, Setup: func(ctx context.Context, deps map[string]any) (any, func() error, error) {
			calls.Add(1)
			return nil, nil, boom
		}},
	}
	tests := []*model.TestRecord{
		moduleTest("t1", "m1", "db"),
		moduleTest("t2", "m2", "db"),
	}
	res := New(buildGraph(t, tests, defs))
	res.Register(tests)

	ctx := context.Background()
	_, err1 := res.Setup(ctx, tests[0])
	_, err2 := res.Setup(ctx, tests[1])

	var setupErr *model.SetupError
	require.ErrorAs(t, err1, &setupErr)
	assert.Equal(t, "db", setupErr.Fixture)
	assert.ErrorIs(t, err1, boom)

	// Second requester observes the same terminal error; setup ran once.
	require.ErrorAs(t, err2, &setupErr)
	assert.Equal(t, int32(1), calls.Load())
}

func TestReadyDependenciesTornDownAfterFailure(t *testing.T) {
	rec := &recorder{}
	defs := []*model.FixtureDefinition{
		{Name: "app", Scope: model.ScopeFunction, Deps: []string{"db"}, Setup: func(ctx context.Context, deps map[string]any) (any, func() error, error) {
			return nil, nil, errors.New("bad app")
		}},
		{Name: "db", Scope: model.ScopeFunction, Setup: countingSetup(rec, "db", "handle")},
	}
	test := moduleTest("t1", "m", "app")
	res := New(buildGraph(t, []*model.TestRecord{test}, defs))
	res.Register([]*model.TestRecord{test})

	_, err := res.Setup(context.Background(), test)
	require.Error(t, err)
	require.NoError(t, res.Release(test))

	assert.Equal(t, []string{"setup:db", "teardown:db"}, rec.list())
}

func TestConcurrentFirstRequestersSingleInitializer(t *testing.T) {
	var calls atomic.Int32
	defs := []*model.FixtureDefinition{
		{Name: "slow", Scope: model.ScopeSession, Setup: func(ctx context.Context, deps map[string]any) (any, func() error, error) {
			calls.Add(1)
			time.Sleep(20 * time.Millisecond)
			return "ready", func() error { return nil }, nil
		}},
	}
	tests := []*model.TestRecord{
		moduleTest("t1", "m1", "slow"),
		moduleTest("t2", "m2", "slow"),
		moduleTest("t3", "m3", "slow"),
	}
	res := New(buildGraph(t, tests, defs))
	res.Register(tests)

	var wg sync.WaitGroup
	for _, test := range tests {
		wg.Add(1)
		go func(tr *model.TestRecord) {
			defer wg.Done()
			values, err := res.Setup(context.Background(), tr)
			assert.NoError(t, err)
			assert.Equal(t, "ready", values["slow"])
		}(test)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestCancelledInitializerReleasesWaiters(t *testing.T) {
	defs := []*model.FixtureDefinition{
		{Name: "stuck", Scope: model.ScopeSession, Setup: func(ctx context.Context, deps map[string]any) (any, func() error, error) {
			<-ctx.Done()
			return nil, nil, ctx.Err()
		}},
	}
	tests := []*model.TestRecord{
		moduleTest("t1", "m1", "stuck"),
		moduleTest("t2", "m2", "stuck"),
	}
	res := New(buildGraph(t, tests, defs))
	res.Register(tests)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 2)
	for _, test := range tests {
		go func(tr *model.TestRecord) {
			_, err := res.Setup(ctx, tr)
			errCh <- err
		}(test)
	}

	time.Sleep(10 * time.Millisecond)
	cancel()

	// Both the initializer and the waiter must come back with an error,
	// not hang on the scope key.
	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh:
			assert.Error(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("requester deadlocked on cancelled initializer")
		}
	}
}

func TestShutdownTearsDownRemaining(t *testing.T) {
	rec := &recorder{}
	defs := []*model.FixtureDefinition{
		{Name: "sess", Scope: model.ScopeSession, Setup: countingSetup(rec, "sess", 1)},
	}
	test := moduleTest("t1", "m", "sess")
	res := New(buildGraph(t, []*model.TestRecord{test}, defs))

	// Not registered: refcounts never reach zero on their own, as after a
	// cancellation. Shutdown reclaims the instance.
	_, err := res.Setup(context.Background(), test)
	require.NoError(t, err)
	require.NoError(t, res.Shutdown())

	assert.Equal(t, []string{"setup:sess", "teardown:sess"}, rec.list())
}

func TestPlanScopeKeys(t *testing.T) {
	defs := []*model.FixtureDefinition{
		{Name: "sess", Scope: model.ScopeSession},
		{Name: "mod", Scope: model.ScopeModule},
		{Name: "fn", Scope: model.ScopeFunction},
	}
	test := &model.TestRecord{ID: "m.py::t1", Path: "m.py", Name: "t1", Module: "m", Fixtures: []string{"sess", "mod", "fn"}}
	res := New(buildGraph(t, []*model.TestRecord{test}, defs))

	plan := res.Plan(test)
	require.Len(t, plan, 3)
	assert.Equal(t, model.ScopeKey{Scope: model.ScopeSession}, plan[0].Key)
	assert.Equal(t, model.ScopeKey{Scope: model.ScopeModule, Module: "m"}, plan[1].Key)
	assert.Equal(t, model.ScopeKey{Scope: model.ScopeFunction, TestID: "m.py::t1"}, plan[2].Key)
}
