// Package selector computes the minimal set of tests that must re-run.
//
// A test is selected when no cache entry exists for its fingerprint, when
// its prior outcome was failed or errored (failures always re-run,
// regardless of change detection), or when any source unit contributing to
// its fingerprint intersects the change set. Everything else is reported as
// cache-satisfied with its last known outcome and never reaches the
// scheduler.
package selector

import (
	"github.com/blitz-test/blitz/packages/cache"
	"github.com/blitz-test/blitz/packages/core/graph"
	"github.com/blitz-test/blitz/packages/core/model"
	"github.com/blitz-test/blitz/packages/fingerprint"
)

// ChangeSetProvider supplies the source units modified since a baseline.
// Implemented by external collaborators; the selector never computes diffs
// itself.
type ChangeSetProvider interface {
	Changes(baseline string) (model.ChangeSet, error)
}

// Selection is the outcome of incremental selection: tests to run, tests
// satisfied from the cache, and the fingerprint computed for each test so
// outcomes can be recorded after the run.
type Selection struct {
	Run          []*model.TestRecord
	Satisfied    []model.Outcome
	Fingerprints map[string]model.Fingerprint // test ID -> fingerprint
}

// Select partitions the catalog into tests to run and tests satisfied from
// the result cache. A fingerprinting failure (unreadable source unit) is
// treated as a cache miss for that test, never as fatal.
func Select(tests []*model.TestRecord, g *graph.Graph, h *fingerprint.Hasher, changes model.ChangeSet, rc *cache.Cache) (*Selection, error) {
	sel := &Selection{
		Fingerprints: make(map[string]model.Fingerprint, len(tests)),
	}

	for _, t := range tests {
		fp, err := h.Fingerprint(t, g)
		if err != nil {
			sel.Run = append(sel.Run, t)
			continue
		}
		sel.Fingerprints[t.ID] = fp

		if rc == nil {
			sel.Run = append(sel.Run, t)
			continue
		}

		entry, ok := rc.Get(fp.Digest)
		if !ok {
			sel.Run = append(sel.Run, t)
			continue
		}
		if entry.Outcome == model.StatusFailed || entry.Outcome == model.StatusErrored {
			sel.Run = append(sel.Run, t)
			continue
		}
		if touchesChanges(fp.Units, changes) {
			sel.Run = append(sel.Run, t)
			continue
		}

		sel.Satisfied = append(sel.Satisfied, model.Outcome{
			TestID:    t.ID,
			Status:    entry.Outcome,
			Reason:    entry.Reason,
			Duration:  entry.Duration,
			FromCache: true,
			Worker:    -1,
		})
	}

	return sel, nil
}

func touchesChanges(units []string, changes model.ChangeSet) bool {
	for _, u := range units {
		if changes.Contains(u) {
			return true
		}
	}
	return false
}
