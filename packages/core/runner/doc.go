// Package runner schedules and executes selected tests.
//
// It provides functionality for:
//   - Choosing worker counts from the selected execution strategy
//   - Routing module/class groups to workers, whole groups only
//   - Work-stealing of groups when a worker finishes early
//   - Fixture setup and LIFO teardown bookkeeping around each test
//   - Recording outcomes to the result cache and streaming them by
//     completion order
//
// Tests in one module/class group always run sequentially on one worker, so
// module- and class-scoped fixtures are instantiated exactly once without
// cross-worker coordination. Session-scoped fixtures are coordinated
// through the shared scope cache.
package runner
