package propagation

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/star/sattrack/internal/sgp4"
	"github.com/star/sattrack/internal/transform"
)

func TestNewTrajectoryInvalidRange(t *testing.T) {
	p := fakePropagator{}
	tests := []struct {
		name       string
		start, end time.Time
		step       time.Duration
	}{
		{"zero step", epoch, epoch.Add(time.Hour), 0},
		{"negative step", epoch, epoch.Add(time.Hour), -time.Second},
		{"end before start", epoch, epoch.Add(-time.Second), time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTrajectory(p, tt.start, tt.end, tt.step)
			if !errors.Is(err, ErrInvalidRange) {
				t.Errorf("err = %v, want ErrInvalidRange", err)
			}
		})
	}
}

func TestTrajectoryLen(t *testing.T) {
	tests := []struct {
		name string
		span time.Duration
		step time.Duration
		want int
	}{
		{"single instant", 0, time.Minute, 1},
		{"inclusive end", 10 * time.Minute, time.Minute, 11},
		{"end off grid", 10*time.Minute + 30*time.Second, time.Minute, 11},
		{"step longer than span", time.Minute, time.Hour, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := NewTrajectory(fakePropagator{}, epoch, epoch.Add(tt.span), tt.step)
			if err != nil {
				t.Fatal(err)
			}
			if tr.Len() != tt.want {
				t.Errorf("Len() = %d, want %d", tr.Len(), tt.want)
			}
			var n int
			var last time.Time
			for i, at := range tr.Times() {
				if i != n {
					t.Errorf("index %d, want %d", i, n)
				}
				if want := epoch.Add(time.Duration(i) * tt.step); !at.Equal(want) {
					t.Errorf("sample %d at %v, want %v", i, at, want)
				}
				last = at
				n++
			}
			if n != tt.want {
				t.Errorf("Times yielded %d samples, want %d", n, tt.want)
			}
			if last.After(epoch.Add(tt.span)) {
				t.Errorf("last sample %v after end", last)
			}
		})
	}
}

// A trajectory re-propagates on every pass and yields identical states.
func TestTrajectoryRestartable(t *testing.T) {
	p := mustSGP4(t, issLine1, issLine2)
	tr, err := NewTrajectory(p, epoch, epoch.Add(90*time.Minute), 5*time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	collect := func() []float64 {
		var xs []float64
		for sv, err := range tr.States() {
			if err != nil {
				t.Fatal(err)
			}
			xs = append(xs, sv.Position.X)
		}
		return xs
	}
	first, second := collect(), collect()
	if len(first) != 19 || len(second) != 19 {
		t.Fatalf("got %d and %d samples, want 19", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("sample %d differs between passes: %v vs %v", i, first[i], second[i])
		}
	}

	// Each sample equals direct single-object propagation.
	for i, at := range tr.Times() {
		sv, err := p.Propagate(at)
		if err != nil {
			t.Fatal(err)
		}
		if sv.Position.X != first[i] {
			t.Errorf("sample %d: trajectory %v, direct %v", i, first[i], sv.Position.X)
		}
	}
}

func TestTrajectoryEarlyStop(t *testing.T) {
	calls := 0
	p := countingPropagator{calls: &calls}
	tr, err := NewTrajectory(p, epoch, epoch.Add(time.Hour), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	for range tr.States() {
		if calls == 3 {
			break
		}
	}
	if calls != 3 {
		t.Errorf("propagated %d samples after breaking at 3", calls)
	}
}

func TestTrajectoryGeodetic(t *testing.T) {
	p := mustSGP4(t, issLine1, issLine2)
	tr, err := NewTrajectory(p, epoch, epoch.Add(3*time.Hour), time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	var maxLat float64
	for g, err := range tr.Geodetic() {
		if err != nil {
			t.Fatal(err)
		}
		if g.AltitudeKm < 370 || g.AltitudeKm > 470 {
			t.Errorf("altitude %.1f km outside ISS band", g.AltitudeKm)
		}
		if g.LongitudeDeg < -180 || g.LongitudeDeg >= 180 {
			t.Errorf("longitude %.3f outside [-180, 180)", g.LongitudeDeg)
		}
		maxLat = math.Max(maxLat, math.Abs(g.LatitudeDeg))
	}
	// The ground track reaches close to the inclination.
	if maxLat < 50 || maxLat > 52.5 {
		t.Errorf("max |latitude| = %.2f, want about 51.6", maxLat)
	}
}

func TestTrajectoryYieldsErrors(t *testing.T) {
	p := mustSGP4(t, decayLine1, decayLine2)
	tr, err := NewTrajectory(p, epoch, epoch.Add(6*time.Hour), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	var ok, decayed int
	for ef, err := range tr.EarthFixed() {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, sgp4.ErrDecayedOrbit):
			decayed++
			if ef.Position.X != 0 {
				t.Errorf("failed sample carries position %v", ef.Position)
			}
		default:
			t.Errorf("unexpected error %v", err)
		}
	}
	if ok != 4 || decayed != 3 {
		t.Errorf("ok=%d decayed=%d, want 4 and 3", ok, decayed)
	}
}

type countingPropagator struct {
	calls *int
}

func (c countingPropagator) Propagate(at time.Time) (transform.StateVector, error) {
	*c.calls++
	return fakePropagator{}.Propagate(at)
}
