package propagation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/sattrack/internal/metrics"
	"github.com/star/sattrack/internal/sgp4"
	"github.com/star/sattrack/internal/tle"
	"github.com/star/sattrack/internal/transform"
)

var (
	// ErrNoCatalog is returned before any dataset has been loaded.
	ErrNoCatalog = errors.New("no catalog loaded")
	// ErrUnknownObject is returned for a catalog number with no usable propagator.
	ErrUnknownObject = errors.New("unknown object")
)

// Object is one initialized catalog entry.
type Object struct {
	Elements   *tle.ElementSet
	Propagator *sgp4.Propagator
}

// propCache holds initialized propagators for one dataset version.
// Immutable after construction; safe for concurrent reads.
type propCache struct {
	version   uint64
	objects   []Object
	props     []Propagator
	byCatalog map[int]int
	skipped   map[int]error
}

// Catalog propagates the objects of the dataset currently held by a
// tle.Store. Propagators are initialized once per dataset version.
type Catalog struct {
	store  *tle.Store
	pool   *WorkerPool
	logger *slog.Logger
	cache  atomic.Pointer[propCache]
	mu     sync.Mutex // serializes cache rebuilds
}

// NewCatalog creates a Catalog over store using pool for batch work.
func NewCatalog(store *tle.Store, pool *WorkerPool, logger *slog.Logger) *Catalog {
	return &Catalog{
		store:  store,
		pool:   pool,
		logger: logger,
	}
}

// current returns the propagators for the store's dataset, rebuilding
// them when the dataset has changed (double-checked locking).
func (c *Catalog) current() (*propCache, error) {
	version := c.store.Version()
	if pc := c.cache.Load(); pc != nil && pc.version == version {
		return pc, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	version = c.store.Version()
	if pc := c.cache.Load(); pc != nil && pc.version == version {
		return pc, nil
	}
	ds := c.store.Get()
	if ds == nil {
		return nil, ErrNoCatalog
	}

	pc := &propCache{
		version:   version,
		byCatalog: make(map[int]int, ds.Len()),
		skipped:   make(map[int]error),
	}
	for _, es := range ds.Elements {
		if latest, _ := ds.Lookup(es.CatalogNumber); latest != es {
			continue
		}
		p, err := sgp4.New(es)
		if err != nil {
			c.logger.Warn("sgp4 init failed", "norad_id", es.CatalogNumber, "name", es.Name, "error", err)
			pc.skipped[es.CatalogNumber] = err
			continue
		}
		pc.byCatalog[es.CatalogNumber] = len(pc.objects)
		pc.objects = append(pc.objects, Object{Elements: es, Propagator: p})
		pc.props = append(pc.props, p)
	}

	c.logger.Info("propagator cache rebuilt",
		"source", ds.Source,
		"cached", len(pc.objects),
		"skipped", len(pc.skipped),
		"dataset_loaded_at", ds.LoadedAt.UTC().Format(time.RFC3339),
	)
	metrics.SetCatalog(len(pc.objects), c.store.AgeSeconds())
	c.cache.Store(pc)
	return pc, nil
}

// Objects returns every object with an initialized propagator, in catalog order.
func (c *Catalog) Objects() ([]Object, error) {
	pc, err := c.current()
	if err != nil {
		return nil, err
	}
	return pc.objects, nil
}

// Lookup returns the object for a catalog number. If the element set exists
// but could not be initialized, the returned error wraps the init failure.
func (c *Catalog) Lookup(catalogNumber int) (Object, error) {
	pc, err := c.current()
	if err != nil {
		return Object{}, err
	}
	if i, ok := pc.byCatalog[catalogNumber]; ok {
		return pc.objects[i], nil
	}
	if initErr, ok := pc.skipped[catalogNumber]; ok {
		return Object{}, fmt.Errorf("%w %d: %w", ErrUnknownObject, catalogNumber, initErr)
	}
	return Object{}, fmt.Errorf("%w %d", ErrUnknownObject, catalogNumber)
}

// Snapshot propagates every object to at and converts the results to
// Earth-fixed and geodetic coordinates. Per-object failures are collected
// in Snapshot.Failed.
func (c *Catalog) Snapshot(ctx context.Context, at time.Time) (*Snapshot, error) {
	pc, err := c.current()
	if err != nil {
		return nil, err
	}

	c.logger.Debug("propagating",
		"satellite_count", len(pc.props),
		"target_time", at.UTC().Format(time.RFC3339),
		"workers", c.pool.Workers(),
	)

	start := time.Now()
	results := c.pool.PropagateAll(ctx, pc.props, at)
	duration := time.Since(start)

	// GMST is the same for every object at one instant.
	gmst := transform.GMST(at)

	snap := &Snapshot{
		Time:      at,
		Positions: make([]Position, 0, len(results)),
		Failed:    make(map[int]error),
	}
	for i, r := range results {
		obj := pc.objects[i]
		if r.Err != nil {
			snap.Failed[obj.Elements.CatalogNumber] = r.Err
			if ctx.Err() == nil {
				c.logger.Warn("propagation failed",
					"norad_id", obj.Elements.CatalogNumber,
					"error", r.Err,
				)
			}
			continue
		}
		ecef := transform.TEMEToECEFWithGMST(r.State, gmst)
		snap.Positions = append(snap.Positions, Position{
			CatalogNumber: obj.Elements.CatalogNumber,
			Name:          obj.Elements.Name,
			Time:          at,
			TEME:          r.State,
			ECEF:          ecef,
			Geodetic:      ecef.Geodetic(),
		})
	}

	metrics.RecordPropagationBatch(duration, countOutcomes(results, ctx.Err()))
	metrics.SetCatalog(len(pc.objects), c.store.AgeSeconds())

	c.logger.Debug("propagation complete",
		"success", len(snap.Positions),
		"errors", len(snap.Failed),
		"duration_ms", duration.Milliseconds(),
	)

	if err := ctx.Err(); err != nil {
		return snap, err
	}
	return snap, nil
}

// Position propagates a single object to at.
func (c *Catalog) Position(catalogNumber int, at time.Time) (Position, error) {
	obj, err := c.Lookup(catalogNumber)
	if err != nil {
		return Position{}, err
	}
	sv, err := obj.Propagator.Propagate(at)
	metrics.RecordPropagation(Classify(err))
	if err != nil {
		return Position{}, err
	}
	return newPosition(obj, sv), nil
}

// Positions propagates one object over [start, end] at step. It stops at
// the first failed sample and returns the positions before it with the error.
func (c *Catalog) Positions(ctx context.Context, catalogNumber int, start, end time.Time, step time.Duration) ([]Position, error) {
	obj, err := c.Lookup(catalogNumber)
	if err != nil {
		return nil, err
	}
	tr, err := NewTrajectory(obj.Propagator, start, end, step)
	if err != nil {
		return nil, err
	}

	out := make([]Position, 0, tr.Len())
	for sv, err := range tr.States() {
		if err != nil {
			return out, err
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out = append(out, newPosition(obj, sv))
	}
	return out, nil
}

func newPosition(obj Object, sv transform.StateVector) Position {
	ecef := sv.EarthFixed()
	return Position{
		CatalogNumber: obj.Elements.CatalogNumber,
		Name:          obj.Elements.Name,
		Time:          sv.Time,
		TEME:          sv,
		ECEF:          ecef,
		Geodetic:      ecef.Geodetic(),
	}
}

// Classify maps a propagation error to its metrics result label.
func Classify(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, sgp4.ErrDecayedOrbit):
		return metrics.ResultDecayed
	case errors.Is(err, sgp4.ErrInvalidDomain):
		return metrics.ResultInvalidDomain
	default:
		return metrics.ResultError
	}
}

// countOutcomes tallies batch results by Classify label. Objects that were
// never evaluated because the batch was cancelled carry cancelErr and are
// not counted.
func countOutcomes(results []Result, cancelErr error) map[string]int {
	counts := make(map[string]int, 4)
	for _, r := range results {
		if cancelErr != nil && errors.Is(r.Err, cancelErr) {
			continue
		}
		counts[Classify(r.Err)]++
	}
	return counts
}
