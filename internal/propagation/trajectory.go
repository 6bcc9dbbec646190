package propagation

import (
	"fmt"
	"iter"
	"time"

	"github.com/star/sattrack/internal/transform"
)

// Trajectory is a lazily evaluated, fixed-step sequence of states for one
// object. Samples are start, start+step, ... up to and including end when
// end falls on the grid. Nothing is cached; every iteration re-propagates.
type Trajectory struct {
	prop  Propagator
	start time.Time
	step  time.Duration
	n     int
}

// NewTrajectory validates the span and returns a Trajectory over it.
func NewTrajectory(p Propagator, start, end time.Time, step time.Duration) (*Trajectory, error) {
	if step <= 0 {
		return nil, fmt.Errorf("%w: step %v is not positive", ErrInvalidRange, step)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s before start %s", ErrInvalidRange,
			end.UTC().Format(time.RFC3339), start.UTC().Format(time.RFC3339))
	}
	return &Trajectory{
		prop:  p,
		start: start,
		step:  step,
		n:     int(end.Sub(start)/step) + 1,
	}, nil
}

// Len returns the number of samples.
func (tr *Trajectory) Len() int { return tr.n }

// Step returns the sample interval.
func (tr *Trajectory) Step() time.Duration { return tr.step }

// At returns the instant of sample i.
func (tr *Trajectory) At(i int) time.Time {
	return tr.start.Add(time.Duration(i) * tr.step)
}

// Times yields the sample index and instant of every sample.
func (tr *Trajectory) Times() iter.Seq2[int, time.Time] {
	return func(yield func(int, time.Time) bool) {
		for i := 0; i < tr.n; i++ {
			if !yield(i, tr.At(i)) {
				return
			}
		}
	}
}

// States yields the TEME state at each sample. A failed sample yields a
// zero state with its error and iteration continues.
func (tr *Trajectory) States() iter.Seq2[transform.StateVector, error] {
	return func(yield func(transform.StateVector, error) bool) {
		for _, at := range tr.Times() {
			if !yield(tr.prop.Propagate(at)) {
				return
			}
		}
	}
}

// EarthFixed yields the ECEF state at each sample.
func (tr *Trajectory) EarthFixed() iter.Seq2[transform.EarthFixed, error] {
	return func(yield func(transform.EarthFixed, error) bool) {
		for sv, err := range tr.States() {
			if err != nil {
				if !yield(transform.EarthFixed{}, err) {
					return
				}
				continue
			}
			if !yield(sv.EarthFixed(), nil) {
				return
			}
		}
	}
}

// Geodetic yields the sub-satellite point at each sample.
func (tr *Trajectory) Geodetic() iter.Seq2[transform.Geodetic, error] {
	return func(yield func(transform.Geodetic, error) bool) {
		for ef, err := range tr.EarthFixed() {
			if err != nil {
				if !yield(transform.Geodetic{}, err) {
					return
				}
				continue
			}
			if !yield(ef.Geodetic(), nil) {
				return
			}
		}
	}
}
