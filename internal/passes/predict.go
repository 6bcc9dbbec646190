package passes

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/star/sattrack/internal/propagation"
	"github.com/star/sattrack/internal/transform"
)

// DefaultMinElevation is the elevation mask of a GroundStation created
// with NewGroundStation, in degrees.
const DefaultMinElevation = 10.0

// GroundStation is a named observer with an elevation mask.
type GroundStation struct {
	Name         string
	Observer     transform.Observer
	MinElevation float64 // degrees
}

// NewGroundStation returns a station at obs with the default mask.
func NewGroundStation(name string, obs transform.Observer) GroundStation {
	return GroundStation{Name: name, Observer: obs, MinElevation: DefaultMinElevation}
}

// Passes finds the passes of p above the station's mask within [start, end].
func (gs GroundStation) Passes(p propagation.Propagator, start, end time.Time, opts ...Option) ([]Pass, error) {
	return FindPasses(p, gs.Observer, start, end, gs.MinElevation, opts...)
}

// GroundTrackPoint is a sub-satellite position at a specific time during a pass.
type GroundTrackPoint struct {
	Time      time.Time `json:"time"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude_km"`
	Elevation float64   `json:"elevation"` // degrees above the observer's horizon
}

// GroundTrack samples the sub-satellite point across a pass at step.
func GroundTrack(p propagation.Propagator, obs transform.Observer, pass Pass, step time.Duration) ([]GroundTrackPoint, error) {
	tr, err := propagation.NewTrajectory(p, pass.AOS, pass.LOS, step)
	if err != nil {
		return nil, err
	}
	points := make([]GroundTrackPoint, 0, tr.Len())
	for ef, err := range tr.EarthFixed() {
		if err != nil {
			return points, err
		}
		g := ef.Geodetic()
		points = append(points, GroundTrackPoint{
			Time:      ef.Time,
			Latitude:  g.LatitudeDeg,
			Longitude: g.LongitudeDeg,
			Altitude:  g.AltitudeKm,
			Elevation: transform.Elevation(obs, ef.Position),
		})
	}
	return points, nil
}

// Target is one object to predict passes for.
type Target struct {
	CatalogNumber int
	Name          string
	Propagator    propagation.Propagator
}

// Request holds the parameters for a multi-object pass prediction.
type Request struct {
	Station GroundStation
	Targets []Target
	Start   time.Time
	End     time.Time
	Options []Option
}

// Result holds the predicted passes for one target. Err is set when the
// search for that target failed; Passes then holds those found before it.
type Result struct {
	CatalogNumber int
	Name          string
	Passes        []Pass
	Err           error
}

// Predict computes passes for every target in req. Each target is searched
// in its own goroutine, bounded by a semaphore of runtime.NumCPU(). Results
// are index-aligned with req.Targets.
func Predict(ctx context.Context, req Request) []Result {
	results := make([]Result, len(req.Targets))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	for i, target := range req.Targets {
		wg.Add(1)
		go func(idx int, tg Target) {
			defer wg.Done()
			results[idx] = Result{CatalogNumber: tg.CatalogNumber, Name: tg.Name}

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx].Err = ctx.Err()
				return
			}

			p := ctxPropagator{ctx: ctx, prop: tg.Propagator}
			passes, err := req.Station.Passes(p, req.Start, req.End, req.Options...)
			results[idx].Passes = passes
			if err != nil {
				results[idx].Err = fmt.Errorf("object %d: %w", tg.CatalogNumber, err)
			}
		}(i, target)
	}

	wg.Wait()
	return results
}

// ctxPropagator aborts a search once its context is done.
type ctxPropagator struct {
	ctx  context.Context
	prop propagation.Propagator
}

func (c ctxPropagator) Propagate(t time.Time) (transform.StateVector, error) {
	if err := c.ctx.Err(); err != nil {
		return transform.StateVector{}, err
	}
	return c.prop.Propagate(t)
}
