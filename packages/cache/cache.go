// Package cache persists per-test outcomes keyed by fingerprint.
//
// The cache is durable across process invocations and bounded by a
// least-recently-used eviction policy. A malformed entry is dropped and
// treated as a miss: a stale or unreadable cache degrades to "run
// everything", never to "skip incorrectly". Writers keyed by distinct
// fingerprints are safe concurrently; last-writer-wins is acceptable since
// one fingerprint is produced by one logical test per run.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/blitz-test/blitz/packages/core/model"
)

// DefaultCapacity bounds the number of retained entries when the config
// does not say otherwise.
const DefaultCapacity = 10000

const schema = `
CREATE TABLE IF NOT EXISTS results (
	digest      TEXT PRIMARY KEY,
	outcome     TEXT NOT NULL,
	reason      TEXT NOT NULL DEFAULT '',
	duration_us INTEGER NOT NULL DEFAULT 0,
	run_id      TEXT NOT NULL DEFAULT '',
	updated_at  INTEGER NOT NULL,
	last_access INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_last_access ON results(last_access);
`

// Entry is one persisted result.
type Entry struct {
	Digest    string
	Outcome   model.Status
	Reason    string
	Duration  time.Duration
	RunID     string
	Timestamp time.Time
}

// Cache is a bounded, persisted fingerprint-to-outcome mapping.
type Cache struct {
	mu       sync.Mutex
	db       *sql.DB
	capacity int
	now      func() time.Time
}

// Open opens (creating if needed) a result cache at path. Use ":memory:"
// for an ephemeral cache.
func Open(path string, capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening result cache: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing result cache schema: %w", err)
	}
	return &Cache{db: db, capacity: capacity, now: time.Now}, nil
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get looks up a fingerprint. A corrupt row is deleted and reported as a
// miss; a miss never blocks execution, only forces a run.
func (c *Cache) Get(digest string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	row := c.db.QueryRowContext(ctx,
		`SELECT outcome, reason, duration_us, run_id, updated_at FROM results WHERE digest = ?`, digest)

	var outcome, reason, runID string
	var durationUS, updatedAt int64
	if err := row.Scan(&outcome, &reason, &durationUS, &runID, &updatedAt); err != nil {
		return nil, false
	}

	status, err := model.ParseStatus(outcome)
	if err != nil {
		// Corrupt entry: drop it and miss.
		_, _ = c.db.ExecContext(ctx, `DELETE FROM results WHERE digest = ?`, digest)
		return nil, false
	}

	_, _ = c.db.ExecContext(ctx, `UPDATE results SET last_access = ? WHERE digest = ?`,
		c.now().UnixNano(), digest)

	return &Entry{
		Digest:    digest,
		Outcome:   status,
		Reason:    reason,
		Duration:  time.Duration(durationUS) * time.Microsecond,
		RunID:     runID,
		Timestamp: time.Unix(0, updatedAt),
	}, true
}

// Put records an outcome for a fingerprint, evicting least-recently-used
// rows beyond capacity.
func (c *Cache) Put(e *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := c.now().UnixNano()
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO results (digest, outcome, reason, duration_us, run_id, updated_at, last_access)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(digest) DO UPDATE SET
			outcome = excluded.outcome,
			reason = excluded.reason,
			duration_us = excluded.duration_us,
			run_id = excluded.run_id,
			updated_at = excluded.updated_at,
			last_access = excluded.last_access`,
		e.Digest, string(e.Outcome), e.Reason, e.Duration.Microseconds(), e.RunID, now, now)
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}

	return c.evictLocked(ctx)
}

func (c *Cache) evictLocked(ctx context.Context) error {
	var count int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM results`).Scan(&count); err != nil {
		return err
	}
	if count <= c.capacity {
		return nil
	}
	_, err := c.db.ExecContext(ctx, `
		DELETE FROM results WHERE digest IN (
			SELECT digest FROM results ORDER BY last_access ASC LIMIT ?
		)`, count-c.capacity)
	return err
}

// Len returns the number of persisted entries.
func (c *Cache) Len() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var count int
	err := c.db.QueryRow(`SELECT COUNT(*) FROM results`).Scan(&count)
	return count, err
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.Exec(`DELETE FROM results`)
	return err
}

// Entries returns all persisted entries ordered by recency, newest first.
// Used by the cache inspection command.
func (c *Cache) Entries() ([]*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.Query(
		`SELECT digest, outcome, reason, duration_us, run_id, updated_at FROM results ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var digest, outcome, reason, runID string
		var durationUS, updatedAt int64
		if err := rows.Scan(&digest, &outcome, &reason, &durationUS, &runID, &updatedAt); err != nil {
			return nil, err
		}
		status, err := model.ParseStatus(outcome)
		if err != nil {
			continue // corrupt row, skipped here and dropped on next Get
		}
		entries = append(entries, &Entry{
			Digest:    digest,
			Outcome:   status,
			Reason:    reason,
			Duration:  time.Duration(durationUS) * time.Microsecond,
			RunID:     runID,
			Timestamp: time.Unix(0, updatedAt),
		})
	}
	return entries, rows.Err()
}
