// Package passes predicts visibility passes of an object over a ground
// observer.
//
// The search samples elevation at a coarse fixed step, brackets each
// crossing of the minimum elevation between two samples, refines the
// crossing by bisection and locates the peak by golden-section search.
// A pass shorter than the coarse step can fall between two samples and be
// missed; the default step of 10 s is well below the shortest real LEO pass.
package passes

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/star/sattrack/internal/metrics"
	"github.com/star/sattrack/internal/propagation"
	"github.com/star/sattrack/internal/transform"
)

// ErrInvalidElevation is returned for a minimum elevation outside [-90, 90] degrees.
var ErrInvalidElevation = errors.New("minimum elevation outside [-90, 90] degrees")

const (
	// DefaultCoarseStep is the default elevation sampling interval.
	DefaultCoarseStep = 10 * time.Second
	// DefaultTolerance is the default AOS/LOS/TCA time tolerance.
	DefaultTolerance = 100 * time.Millisecond

	maxBisectIter = 64
	maxGoldenIter = 100

	invPhi = 0.6180339887498949 // 1/φ
)

// Pass is one visibility window. AOS <= TCA <= LOS. A truncated edge was
// clamped to the search window rather than found as a true rise or set.
type Pass struct {
	AOS          time.Time
	TCA          time.Time
	LOS          time.Time
	MaxElevation float64 // degrees
	Duration     time.Duration

	AOSAzimuth float64
	TCAAzimuth float64
	LOSAzimuth float64

	AOSTruncated bool
	LOSTruncated bool
}

type options struct {
	coarseStep time.Duration
	tolerance  time.Duration
	maxPasses  int
	logger     *slog.Logger
}

// Option configures FindPasses.
type Option func(*options)

// WithCoarseStep sets the elevation sampling interval.
func WithCoarseStep(d time.Duration) Option {
	return func(o *options) { o.coarseStep = d }
}

// WithTolerance sets the time tolerance of the AOS, LOS and TCA refinement.
func WithTolerance(d time.Duration) Option {
	return func(o *options) { o.tolerance = d }
}

// WithMaxPasses stops the search after n passes. Zero means unlimited.
func WithMaxPasses(n int) Option {
	return func(o *options) { o.maxPasses = n }
}

// WithLogger sets the logger for search diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{
		coarseStep: DefaultCoarseStep,
		tolerance:  DefaultTolerance,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// FindPasses returns the passes of p above minElevation (degrees) seen
// from obs within [start, end], ordered by AOS and non-overlapping.
//
// If propagation fails during the search, the passes completed before the
// failure are returned together with the error.
func FindPasses(p propagation.Propagator, obs transform.Observer, start, end time.Time, minElevation float64, opts ...Option) ([]Pass, error) {
	o := buildOptions(opts)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s before start %s", propagation.ErrInvalidRange,
			end.UTC().Format(time.RFC3339), start.UTC().Format(time.RFC3339))
	}
	if o.coarseStep <= 0 || o.tolerance <= 0 {
		return nil, fmt.Errorf("%w: coarse step %v, tolerance %v", propagation.ErrInvalidRange, o.coarseStep, o.tolerance)
	}
	if math.IsNaN(minElevation) || minElevation < -90 || minElevation > 90 {
		return nil, fmt.Errorf("%w: %g", ErrInvalidElevation, minElevation)
	}

	s := &searcher{prop: p, obs: obs, minEl: minElevation, opts: o}
	began := time.Now()
	passes, err := s.run(start, end)
	metrics.RecordPassSearch(time.Since(began), s.evals, len(passes))

	o.logger.Debug("pass search complete",
		"start", start.UTC().Format(time.RFC3339),
		"end", end.UTC().Format(time.RFC3339),
		"passes", len(passes),
		"evaluations", s.evals,
		"error", err,
	)
	return passes, err
}

type searcher struct {
	prop  propagation.Propagator
	obs   transform.Observer
	minEl float64
	opts  options
	evals int
}

type sample struct {
	t  time.Time
	el float64
}

func (s *searcher) earthFixed(t time.Time) (transform.EarthFixed, error) {
	s.evals++
	sv, err := s.prop.Propagate(t)
	if err != nil {
		return transform.EarthFixed{}, fmt.Errorf("propagating at %s: %w", t.UTC().Format(time.RFC3339Nano), err)
	}
	return transform.TEMEToECEF(sv), nil
}

// look evaluates the full topocentric look angles at t.
func (s *searcher) look(t time.Time) (transform.Look, error) {
	ef, err := s.earthFixed(t)
	if err != nil {
		return transform.Look{}, err
	}
	return transform.LookAngles(s.obs, ef), nil
}

func (s *searcher) elevation(t time.Time) (float64, error) {
	ef, err := s.earthFixed(t)
	if err != nil {
		return 0, err
	}
	return transform.Elevation(s.obs, ef.Position), nil
}

func (s *searcher) visible(el float64) bool { return el >= s.minEl }

func (s *searcher) run(start, end time.Time) ([]Pass, error) {
	var passes []Pass

	var (
		prev      sample
		inPass    bool
		cur       Pass
		best      sample
		haveFirst bool
	)

	step := s.opts.coarseStep
	for i := 0; ; i++ {
		t := start.Add(time.Duration(i) * step)
		last := !t.Before(end)
		if last {
			t = end
		}

		el, err := s.elevation(t)
		if err != nil {
			return passes, err
		}
		smp := sample{t: t, el: el}

		switch {
		case !haveFirst && s.visible(el):
			inPass = true
			cur = Pass{AOS: start, AOSTruncated: true}
			best = smp
		case haveFirst && !inPass && s.visible(el):
			aos, err := s.bisect(prev.t, t, true)
			if err != nil {
				return passes, err
			}
			inPass = true
			cur = Pass{AOS: aos}
			best = smp
		case haveFirst && inPass && !s.visible(el):
			los, err := s.bisect(prev.t, t, false)
			if err != nil {
				return passes, err
			}
			cur.LOS = los
			if err := s.finish(&cur, best); err != nil {
				return passes, err
			}
			passes = append(passes, cur)
			inPass = false
			if s.opts.maxPasses > 0 && len(passes) >= s.opts.maxPasses {
				return passes, nil
			}
		case inPass && el > best.el:
			best = smp
		}

		haveFirst = true
		prev = smp
		if last {
			break
		}
	}

	if inPass {
		cur.LOS = end
		cur.LOSTruncated = true
		if err := s.finish(&cur, best); err != nil {
			return passes, err
		}
		passes = append(passes, cur)
	}
	return passes, nil
}

// bisect narrows a bracket around a visibility change between lo and hi.
// rising selects which side is visible; the visible end of the final
// bracket is returned so that the reported instant is inside the pass.
// After maxBisectIter halvings the current visible end is returned.
func (s *searcher) bisect(lo, hi time.Time, rising bool) (time.Time, error) {
	for i := 0; i < maxBisectIter && hi.Sub(lo) > s.opts.tolerance; i++ {
		mid := lo.Add(hi.Sub(lo) / 2)
		el, err := s.elevation(mid)
		if err != nil {
			return time.Time{}, err
		}
		if s.visible(el) == rising {
			hi = mid
		} else {
			lo = mid
		}
	}
	if rising {
		return hi, nil
	}
	return lo, nil
}

// finish locates the elevation peak within one coarse step on each side of
// the best sample, clamped to [AOS, LOS], and fills the derived fields.
func (s *searcher) finish(p *Pass, best sample) error {
	a := best.t.Add(-s.opts.coarseStep)
	if a.Before(p.AOS) {
		a = p.AOS
	}
	b := best.t.Add(s.opts.coarseStep)
	if b.After(p.LOS) {
		b = p.LOS
	}

	tca, el, err := s.golden(a, b)
	if err != nil {
		return err
	}
	// The refined peak never reports below a sampled elevation.
	if el < best.el {
		tca, el = best.t, best.el
	}

	aosLook, err := s.look(p.AOS)
	if err != nil {
		return err
	}
	tcaLook, err := s.look(tca)
	if err != nil {
		return err
	}
	losLook, err := s.look(p.LOS)
	if err != nil {
		return err
	}

	p.TCA = tca
	p.MaxElevation = el
	p.Duration = p.LOS.Sub(p.AOS)
	p.AOSAzimuth = aosLook.AzimuthDeg
	p.TCAAzimuth = tcaLook.AzimuthDeg
	p.LOSAzimuth = losLook.AzimuthDeg
	return nil
}

// golden maximizes elevation over [a, b] by golden-section search, capped
// at maxGoldenIter iterations; the best interior point found is returned.
func (s *searcher) golden(a, b time.Time) (time.Time, float64, error) {
	at := func(x float64) time.Time {
		return a.Add(time.Duration(x * float64(time.Second)))
	}
	lo, hi := 0.0, b.Sub(a).Seconds()
	tol := s.opts.tolerance.Seconds()

	x1 := hi - invPhi*(hi-lo)
	x2 := lo + invPhi*(hi-lo)
	f1, err := s.elevation(at(x1))
	if err != nil {
		return time.Time{}, 0, err
	}
	f2, err := s.elevation(at(x2))
	if err != nil {
		return time.Time{}, 0, err
	}

	for i := 0; i < maxGoldenIter && hi-lo > tol; i++ {
		if f1 < f2 {
			lo, x1, f1 = x1, x2, f2
			x2 = lo + invPhi*(hi-lo)
			if f2, err = s.elevation(at(x2)); err != nil {
				return time.Time{}, 0, err
			}
		} else {
			hi, x2, f2 = x2, x1, f1
			x1 = hi - invPhi*(hi-lo)
			if f1, err = s.elevation(at(x1)); err != nil {
				return time.Time{}, 0, err
			}
		}
	}
	if f1 >= f2 {
		return at(x1), f1, nil
	}
	return at(x2), f2, nil
}
