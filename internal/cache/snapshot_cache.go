// Package cache provides an in-memory snapshot cache with a rolling window.
//
// Snapshots are keyed by instant rounded down to the step. A background
// worker fills [now, now+horizon] ahead of readers and evicts entries from
// the trailing edge. When the catalog changes the cache is rebuilt while the
// old entries keep serving reads.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/sattrack/internal/metrics"
	"github.com/star/sattrack/internal/propagation"
	"github.com/star/sattrack/internal/tle"
)

// Config holds the cache window.
type Config struct {
	Step    time.Duration // snapshot interval (default 5s)
	Horizon time.Duration // how far ahead to fill (default 60s)
	Buffer  time.Duration // keep entries this long past their instant (default 30s)
}

// Source computes catalog snapshots. *propagation.Catalog satisfies it.
type Source interface {
	Snapshot(ctx context.Context, at time.Time) (*propagation.Snapshot, error)
}

type entry struct {
	snap        *propagation.Snapshot
	version     uint64
	generatedAt time.Time
}

// SnapshotCache memoizes catalog snapshots on a fixed time grid.
// Safe for concurrent use by multiple goroutines.
type SnapshotCache struct {
	mu      sync.RWMutex
	entries map[time.Time]*entry

	config Config
	source Source
	store  *tle.Store
	logger *slog.Logger
	now    func() time.Time

	// version is the store version the entries were built from.
	version atomic.Uint64

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	rebuilding atomic.Bool
}

// New creates a snapshot cache over source. store is watched for catalog
// changes.
func New(config Config, source Source, store *tle.Store, logger *slog.Logger) *SnapshotCache {
	if config.Step <= 0 {
		config.Step = 5 * time.Second
	}
	if config.Horizon < 0 {
		config.Horizon = 0
	}
	if config.Buffer <= 0 {
		config.Buffer = 30 * time.Second
	}
	logger.Info("cache initialized",
		"step_seconds", config.Step.Seconds(),
		"horizon_seconds", config.Horizon.Seconds(),
		"buffer_seconds", config.Buffer.Seconds(),
	)
	return &SnapshotCache{
		entries: make(map[time.Time]*entry),
		config:  config,
		source:  source,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// RoundToStep rounds a timestamp down to the nearest step boundary in UTC.
func (c *SnapshotCache) RoundToStep(t time.Time) time.Time {
	return t.UTC().Truncate(c.config.Step)
}

// Snapshot returns the snapshot at the step boundary at or before at,
// computing and caching it on a miss. The returned snapshot is shared and
// must not be modified.
func (c *SnapshotCache) Snapshot(ctx context.Context, at time.Time) (*propagation.Snapshot, error) {
	key := c.RoundToStep(at)
	if snap := c.Get(key); snap != nil {
		return snap, nil
	}

	version := c.store.Version()
	snap, err := c.source.Snapshot(ctx, key)
	if err != nil {
		return snap, err
	}
	c.put(key, snap, version)
	return snap, nil
}

// Get returns the cached snapshot for the step containing t, or nil.
// Entries built from an older catalog are not returned.
func (c *SnapshotCache) Get(t time.Time) *propagation.Snapshot {
	key := c.RoundToStep(t)

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && (e.version == c.store.Version() || c.rebuilding.Load()) {
		c.hits.Add(1)
		metrics.IncCacheHits()
		return e.snap
	}
	c.misses.Add(1)
	metrics.IncCacheMisses()
	return nil
}

func (c *SnapshotCache) put(key time.Time, snap *propagation.Snapshot, version uint64) {
	c.mu.Lock()
	c.entries[key] = &entry{snap: snap, version: version, generatedAt: c.now()}
	c.mu.Unlock()
	c.updateMetrics()
}

// evictExpired removes entries older than now - buffer.
func (c *SnapshotCache) evictExpired() int {
	cutoff := c.now().Add(-c.config.Buffer)
	var removed int

	c.mu.Lock()
	for ts := range c.entries {
		if ts.Before(cutoff) {
			delete(c.entries, ts)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.evictions.Add(int64(removed))
		metrics.AddCacheEvictions(removed)
		c.updateMetrics()
		c.logger.Debug("cache eviction", "entries_removed", removed)
	}
	return removed
}

// replaceAll swaps in a rebuilt entry set.
func (c *SnapshotCache) replaceAll(entries map[time.Time]*entry) {
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	c.updateMetrics()
}

// Stats holds cache statistics.
type Stats struct {
	Entries    int
	Oldest     time.Time
	Newest     time.Time
	Hits       int64
	Misses     int64
	Evictions  int64
	Rebuilding bool
}

// Stats returns current cache statistics.
func (c *SnapshotCache) Stats() Stats {
	c.mu.RLock()
	s := Stats{Entries: len(c.entries)}
	for ts := range c.entries {
		if s.Oldest.IsZero() || ts.Before(s.Oldest) {
			s.Oldest = ts
		}
		if s.Newest.IsZero() || ts.After(s.Newest) {
			s.Newest = ts
		}
	}
	c.mu.RUnlock()

	s.Hits = c.hits.Load()
	s.Misses = c.misses.Load()
	s.Evictions = c.evictions.Load()
	s.Rebuilding = c.rebuilding.Load()
	return s
}

func (c *SnapshotCache) updateMetrics() {
	c.mu.RLock()
	count := len(c.entries)
	c.mu.RUnlock()
	metrics.SetCacheEntries(count)
}
