package cache

import (
	"context"
	"time"

	"github.com/star/sattrack/internal/metrics"
)

// catalogChanged reports whether the store has a newer catalog than the one
// the window was built from.
func (c *SnapshotCache) catalogChanged() bool {
	return c.store.Get() != nil && c.store.Version() != c.version.Load()
}

// rebuild recomputes the window from the new catalog. Until the swap, Get
// keeps serving the old entries.
func (c *SnapshotCache) rebuild(ctx context.Context) {
	old, version := c.version.Load(), c.store.Version()
	c.logger.Info("catalog cutover starting",
		"old_version", old,
		"new_version", version,
	)

	c.rebuilding.Store(true)
	metrics.SetCacheRebuilding(true)
	defer func() {
		c.rebuilding.Store(false)
		metrics.SetCacheRebuilding(false)
	}()

	start := time.Now()
	entries, generated := c.build(ctx, version, "cutover")
	if ctx.Err() != nil {
		c.logger.Warn("cutover cancelled by context")
		return
	}

	c.replaceAll(entries)
	c.version.Store(version)

	duration := time.Since(start)
	c.logger.Info("catalog cutover complete",
		"duration_ms", duration.Milliseconds(),
		"entries_replaced", generated,
	)
	metrics.ObserveCacheRegenerationDuration(duration)
}
