package cache

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blitz-test/blitz/packages/core/model"
)

func openTestCache(t *testing.T, capacity int) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "results.db"), capacity)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPutGetRoundtrip(t *testing.T) {
	c := openTestCache(t, 0)

	err := c.Put(&Entry{
		Digest:   "abc123",
		Outcome:  model.StatusPassed,
		Duration: 42 * time.Millisecond,
		RunID:    "run-1",
	})
	require.NoError(t, err)

	entry, ok := c.Get("abc123")
	require.True(t, ok)
	assert.Equal(t, model.StatusPassed, entry.Outcome)
	assert.Equal(t, 42*time.Millisecond, entry.Duration)
	assert.Equal(t, "run-1", entry.RunID)
}

func TestGetMiss(t *testing.T) {
	c := openTestCache(t, 0)

	_, ok := c.Get("nope")
	assert.False(t, ok)
}

func TestPutOverwrites(t *testing.T) {
	c := openTestCache(t, 0)

	require.NoError(t, c.Put(&Entry{Digest: "d1", Outcome: model.StatusFailed, Reason: "assert"}))
	require.NoError(t, c.Put(&Entry{Digest: "d1", Outcome: model.StatusPassed}))

	entry, ok := c.Get("d1")
	require.True(t, ok)
	assert.Equal(t, model.StatusPassed, entry.Outcome)
	assert.Empty(t, entry.Reason)

	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLRUEviction(t *testing.T) {
	c := openTestCache(t, 3)
	// Distinct timestamps so last_access ordering is deterministic.
	base := time.Now()
	step := 0
	c.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, c.Put(&Entry{Digest: fmt.Sprintf("d%d", i), Outcome: model.StatusPassed}))
	}

	// Touch d0 so d1 becomes least recently used.
	_, ok := c.Get("d0")
	require.True(t, ok)

	require.NoError(t, c.Put(&Entry{Digest: "d3", Outcome: model.StatusPassed}))

	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, ok = c.Get("d1")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = c.Get("d0")
	assert.True(t, ok)
	_, ok = c.Get("d3")
	assert.True(t, ok)
}

func TestCorruptEntryDroppedAsMiss(t *testing.T) {
	c := openTestCache(t, 0)

	_, err := c.db.Exec(`
		INSERT INTO results (digest, outcome, reason, duration_us, run_id, updated_at, last_access)
		VALUES ('bad', 'exploded', '', 0, '', 0, 0)`)
	require.NoError(t, err)

	_, ok := c.Get("bad")
	assert.False(t, ok)

	// The corrupt row is gone, not just skipped.
	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestClear(t *testing.T) {
	c := openTestCache(t, 0)
	require.NoError(t, c.Put(&Entry{Digest: "d1", Outcome: model.StatusPassed}))
	require.NoError(t, c.Clear())

	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestEntriesOrderedByRecency(t *testing.T) {
	c := openTestCache(t, 0)
	base := time.Now()
	step := 0
	c.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	require.NoError(t, c.Put(&Entry{Digest: "old", Outcome: model.StatusPassed}))
	require.NoError(t, c.Put(&Entry{Digest: "new", Outcome: model.StatusFailed}))

	entries, err := c.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "new", entries[0].Digest)
	assert.Equal(t, "old", entries[1].Digest)
}

func TestDurableAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")

	c, err := Open(path, 0)
	require.NoError(t, err)
	require.NoError(t, c.Put(&Entry{Digest: "d1", Outcome: model.StatusPassed}))
	require.NoError(t, c.Close())

	c2, err := Open(path, 0)
	require.NoError(t, err)
	defer c2.Close()

	entry, ok := c2.Get("d1")
	require.True(t, ok)
	assert.Equal(t, model.StatusPassed, entry.Outcome)
}
