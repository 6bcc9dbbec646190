package cache

import (
	"context"
	"time"

	"github.com/star/sattrack/internal/metrics"
)

// Start runs the background maintenance loop. Once a catalog is loaded it
// fills the [now, now+horizon] window, then every step:
//   - generates the snapshot at the leading edge
//   - evicts expired entries from the trailing edge
//   - rebuilds the window when the catalog changes
//
// Blocks until ctx is cancelled.
func (c *SnapshotCache) Start(ctx context.Context) {
	if !c.waitForCatalog(ctx) {
		return
	}
	c.warmup(ctx)

	ticker := time.NewTicker(c.config.Step)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("cache generator stopped")
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

// waitForCatalog blocks until the store holds a dataset, checking every
// second. It returns false if ctx is cancelled first.
func (c *SnapshotCache) waitForCatalog(ctx context.Context) bool {
	if c.store.Get() != nil {
		return true
	}

	c.logger.Info("cache waiting for catalog")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if c.store.Get() != nil {
				c.logger.Info("catalog available, starting cache warmup")
				return true
			}
		}
	}
}

// warmup fills the cache for [now, now+horizon].
func (c *SnapshotCache) warmup(ctx context.Context) {
	version := c.store.Version()
	c.version.Store(version)

	start := time.Now()
	entries, generated := c.build(ctx, version, "warmup")
	if ctx.Err() != nil {
		return
	}

	c.mu.Lock()
	for ts, e := range entries {
		c.entries[ts] = e
	}
	c.mu.Unlock()
	c.updateMetrics()

	c.logger.Info("cache warmup complete",
		"generated", generated,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// build computes every snapshot of the current window.
func (c *SnapshotCache) build(ctx context.Context, version uint64, phase string) (map[time.Time]*entry, int) {
	now := c.RoundToStep(c.now())
	frames := int(c.config.Horizon/c.config.Step) + 1
	entries := make(map[time.Time]*entry, frames)

	for i := range frames {
		if ctx.Err() != nil {
			return entries, len(entries)
		}
		at := now.Add(time.Duration(i) * c.config.Step)
		snap, err := c.source.Snapshot(ctx, at)
		if err != nil {
			c.logger.Warn(phase+" propagation failed",
				"timestamp", at.Format(time.RFC3339),
				"error", err,
			)
			metrics.IncCacheRegenerationErrors()
			continue
		}
		entries[at] = &entry{snap: snap, version: version, generatedAt: c.now()}
	}
	return entries, len(entries)
}

// tick runs one iteration of the maintenance loop.
func (c *SnapshotCache) tick(ctx context.Context) {
	if c.catalogChanged() {
		c.rebuild(ctx)
		return
	}
	c.generateLeadingEdge(ctx)
	c.evictExpired()
}

// generateLeadingEdge fills the snapshot at now+horizon.
func (c *SnapshotCache) generateLeadingEdge(ctx context.Context) {
	target := c.RoundToStep(c.now().Add(c.config.Horizon))

	c.mu.RLock()
	_, cached := c.entries[target]
	c.mu.RUnlock()
	if cached {
		return
	}

	version := c.store.Version()
	start := time.Now()
	snap, err := c.source.Snapshot(ctx, target)
	duration := time.Since(start)
	if err != nil {
		c.logger.Warn("leading edge generation failed",
			"timestamp", target.Format(time.RFC3339),
			"error", err,
		)
		metrics.IncCacheRegenerationErrors()
		return
	}

	c.put(target, snap, version)
	metrics.ObserveCacheRegenerationDuration(duration)
	c.logger.Debug("leading edge generated",
		"timestamp", target.Format(time.RFC3339),
		"duration_ms", duration.Milliseconds(),
	)
}
