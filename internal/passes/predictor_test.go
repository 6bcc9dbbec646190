package passes

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/sattrack/internal/propagation"
	"github.com/star/sattrack/internal/sgp4"
	"github.com/star/sattrack/internal/tle"
	"github.com/star/sattrack/internal/transform"
)

const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  30306-3 0  9999"
	issLine2 = "2 25544  51.6400 247.4627 0006703 130.5360 325.0288 15.49560000 44695"
)

var epoch = time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)

// Circular equatorial test orbit, overhead of (0°, 0°) at epoch.
const (
	ringRadius = 6778.0
	earthR     = 6378.137
	muEarth    = 398600.8
)

var (
	ringRate = math.Sqrt(muEarth/(ringRadius*ringRadius*ringRadius)) - transform.OmegaEarth // rad/s, Earth-fixed
	ringRel  = time.Duration(2 * math.Pi / ringRate * float64(time.Second))
)

// ringHalfWidth returns half the duration of a pass above minEl.
func ringHalfWidth(minElDeg float64) time.Duration {
	e := minElDeg * math.Pi / 180
	gamma := math.Acos(earthR*math.Cos(e)/ringRadius) - e
	return time.Duration(gamma / ringRate * float64(time.Second))
}

// ringPropagator places an object on the test orbit. Its Earth-fixed
// longitude is ringRate·(t - epoch); the TEME angle adds GMST.
type ringPropagator struct {
	failAfter time.Time
	calls     *atomic.Int64
}

var errBoom = errors.New("boom")

func (rp ringPropagator) Propagate(t time.Time) (transform.StateVector, error) {
	if rp.calls != nil {
		rp.calls.Add(1)
	}
	if !rp.failAfter.IsZero() && t.After(rp.failAfter) {
		return transform.StateVector{}, errBoom
	}
	theta := transform.GMST(t) + ringRate*t.Sub(epoch).Seconds()
	sin, cos := math.Sincos(theta)
	v := math.Sqrt(muEarth / ringRadius)
	return transform.StateVector{
		Time:     t,
		Position: r3.Vec{X: ringRadius * cos, Y: ringRadius * sin},
		Velocity: r3.Vec{X: -v * sin, Y: v * cos},
	}, nil
}

func equatorObserver(t *testing.T) transform.Observer {
	t.Helper()
	obs, err := transform.NewObserver(0, 0, 0)
	require.NoError(t, err)
	return obs
}

func assertNear(t *testing.T, want, got time.Time, tol time.Duration, what string) {
	t.Helper()
	d := got.Sub(want)
	if d < 0 {
		d = -d
	}
	assert.LessOrEqual(t, d, tol, "%s: got %s, want %s", what, got.Format(time.RFC3339Nano), want.Format(time.RFC3339Nano))
}

func TestFindPassesOverhead(t *testing.T) {
	obs := equatorObserver(t)
	passes, err := FindPasses(ringPropagator{}, obs, epoch.Add(-1000*time.Second), epoch.Add(1000*time.Second), 0)
	require.NoError(t, err)
	require.Len(t, passes, 1)

	p := passes[0]
	hw := ringHalfWidth(0)
	assertNear(t, epoch.Add(-hw), p.AOS, 200*time.Millisecond, "AOS")
	assertNear(t, epoch.Add(hw), p.LOS, 200*time.Millisecond, "LOS")
	assertNear(t, epoch, p.TCA, 500*time.Millisecond, "TCA")
	assert.Greater(t, p.MaxElevation, 89.5)
	assert.LessOrEqual(t, p.MaxElevation, 90.0)
	assert.Equal(t, p.LOS.Sub(p.AOS), p.Duration)
	assert.False(t, p.AOSTruncated)
	assert.False(t, p.LOSTruncated)

	// Prograde equatorial: rises in the west, sets in the east.
	assert.InDelta(t, 270, p.AOSAzimuth, 0.5)
	assert.InDelta(t, 90, p.LOSAzimuth, 0.5)
}

func TestFindPassesElevationMask(t *testing.T) {
	obs := equatorObserver(t)
	passes, err := FindPasses(ringPropagator{}, obs, epoch.Add(-1000*time.Second), epoch.Add(1000*time.Second), 10)
	require.NoError(t, err)
	require.Len(t, passes, 1)

	hw := ringHalfWidth(10)
	assertNear(t, epoch.Add(-hw), passes[0].AOS, 200*time.Millisecond, "AOS")
	assertNear(t, epoch.Add(hw), passes[0].LOS, 200*time.Millisecond, "LOS")
	assert.Less(t, passes[0].Duration, 2*ringHalfWidth(0))
}

func TestFindPassesDay(t *testing.T) {
	obs := equatorObserver(t)
	start := epoch.Add(-1000 * time.Second)
	end := start.Add(24 * time.Hour)

	passes, err := FindPasses(ringPropagator{}, obs, start, end, 0)
	require.NoError(t, err)
	require.Len(t, passes, 15)

	hw := ringHalfWidth(0)
	var visible time.Duration
	for i, p := range passes {
		center := epoch.Add(time.Duration(i) * ringRel)
		assertNear(t, center, p.TCA, time.Second, "TCA")
		assertNear(t, center.Add(-hw), p.AOS, time.Second, "AOS")

		assert.False(t, p.AOS.After(p.TCA), "pass %d: AOS after TCA", i)
		assert.False(t, p.TCA.After(p.LOS), "pass %d: TCA after LOS", i)
		assert.False(t, p.AOS.Before(start), "pass %d: AOS before window", i)
		assert.False(t, p.LOS.After(end), "pass %d: LOS after window", i)
		if i > 0 {
			assert.True(t, passes[i-1].LOS.Before(p.AOS), "pass %d overlaps its predecessor", i)
		}
		visible += p.Duration
	}
	assert.Less(t, visible, time.Duration(len(passes))*2*hw+time.Duration(len(passes))*time.Second)

	again, err := FindPasses(ringPropagator{}, obs, start, end, 0)
	require.NoError(t, err)
	assert.Equal(t, passes, again)
}

func TestFindPassesTruncated(t *testing.T) {
	obs := equatorObserver(t)

	t.Run("both edges", func(t *testing.T) {
		passes, err := FindPasses(ringPropagator{}, obs, epoch, epoch.Add(100*time.Second), 0)
		require.NoError(t, err)
		require.Len(t, passes, 1)
		p := passes[0]
		assert.True(t, p.AOSTruncated)
		assert.True(t, p.LOSTruncated)
		assert.Equal(t, epoch, p.AOS)
		assert.Equal(t, epoch.Add(100*time.Second), p.LOS)
		assertNear(t, epoch, p.TCA, 500*time.Millisecond, "TCA")
		assert.Greater(t, p.MaxElevation, 89.0)
	})

	t.Run("rise only", func(t *testing.T) {
		start := epoch.Add(-100 * time.Second)
		passes, err := FindPasses(ringPropagator{}, obs, start, epoch.Add(1000*time.Second), 0)
		require.NoError(t, err)
		require.Len(t, passes, 1)
		assert.True(t, passes[0].AOSTruncated)
		assert.False(t, passes[0].LOSTruncated)
		assert.Equal(t, start, passes[0].AOS)
	})

	t.Run("set only", func(t *testing.T) {
		end := epoch.Add(100 * time.Second)
		passes, err := FindPasses(ringPropagator{}, obs, epoch.Add(-1000*time.Second), end, 0)
		require.NoError(t, err)
		require.Len(t, passes, 1)
		assert.False(t, passes[0].AOSTruncated)
		assert.True(t, passes[0].LOSTruncated)
		assert.Equal(t, end, passes[0].LOS)
	})
}

func TestFindPassesNone(t *testing.T) {
	obs := equatorObserver(t)
	// Below the horizon for the whole window.
	start := epoch.Add(ringRel / 2).Add(-10 * time.Minute)
	passes, err := FindPasses(ringPropagator{}, obs, start, start.Add(20*time.Minute), 0)
	require.NoError(t, err)
	assert.Empty(t, passes)

	// Zero-length window.
	passes, err = FindPasses(ringPropagator{}, obs, start, start, 0)
	require.NoError(t, err)
	assert.Empty(t, passes)
}

func TestFindPassesMaxPasses(t *testing.T) {
	obs := equatorObserver(t)
	start := epoch.Add(-1000 * time.Second)
	passes, err := FindPasses(ringPropagator{}, obs, start, start.Add(24*time.Hour), 0, WithMaxPasses(2))
	require.NoError(t, err)
	assert.Len(t, passes, 2)
}

func TestBuildOptionsDefaults(t *testing.T) {
	o := buildOptions(nil)
	assert.Equal(t, DefaultCoarseStep, o.coarseStep)
	assert.Equal(t, DefaultTolerance, o.tolerance)
	assert.Zero(t, o.maxPasses)
	require.NotNil(t, o.logger)
	o.logger.Warn("search diagnostics go nowhere by default")
}

func TestFindPassesPropagationError(t *testing.T) {
	obs := equatorObserver(t)
	rp := ringPropagator{failAfter: epoch.Add(3000 * time.Second)}
	passes, err := FindPasses(rp, obs, epoch.Add(-1000*time.Second), epoch.Add(10000*time.Second), 0)
	require.ErrorIs(t, err, errBoom)
	assert.Len(t, passes, 1)
}

func TestFindPassesInvalidInput(t *testing.T) {
	obs := equatorObserver(t)
	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		minEl float64
		opts  []Option
		want  error
	}{
		{"end before start", epoch, epoch.Add(-time.Second), 0, nil, propagation.ErrInvalidRange},
		{"elevation above zenith", epoch, epoch.Add(time.Hour), 91, nil, ErrInvalidElevation},
		{"elevation below nadir", epoch, epoch.Add(time.Hour), -91, nil, ErrInvalidElevation},
		{"elevation NaN", epoch, epoch.Add(time.Hour), math.NaN(), nil, ErrInvalidElevation},
		{"zero coarse step", epoch, epoch.Add(time.Hour), 0, []Option{WithCoarseStep(0)}, propagation.ErrInvalidRange},
		{"negative tolerance", epoch, epoch.Add(time.Hour), 0, []Option{WithTolerance(-time.Second)}, propagation.ErrInvalidRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			passes, err := FindPasses(ringPropagator{}, obs, tt.start, tt.end, tt.minEl, tt.opts...)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, passes)
		})
	}
}

func TestFindPassesEvaluationBound(t *testing.T) {
	obs := equatorObserver(t)
	var calls atomic.Int64
	start := epoch.Add(-1000 * time.Second)
	end := start.Add(6 * time.Hour)

	passes, err := FindPasses(ringPropagator{calls: &calls}, obs, start, end, 0)
	require.NoError(t, err)
	require.NotEmpty(t, passes)

	samples := int64(end.Sub(start)/DefaultCoarseStep) + 1
	perPass := int64(2*maxBisectIter + maxGoldenIter + 2 + 3)
	assert.LessOrEqual(t, calls.Load(), samples+int64(len(passes))*perPass)
}

func mustISS(t testing.TB) *sgp4.Propagator {
	t.Helper()
	es, err := tle.ParseLines(issLine1, issLine2)
	require.NoError(t, err)
	p, err := sgp4.New(es)
	require.NoError(t, err)
	return p
}

func elevationAt(t *testing.T, p propagation.Propagator, obs transform.Observer, at time.Time) float64 {
	t.Helper()
	sv, err := p.Propagate(at)
	require.NoError(t, err)
	return transform.Elevation(obs, sv.EarthFixed().Position)
}

func TestFindPassesISS(t *testing.T) {
	iss := mustISS(t)
	nyc, err := transform.NewObserver(40.7128, -74.006, 0.01)
	require.NoError(t, err)

	const minEl = 10.0
	passes, err := FindPasses(iss, nyc, epoch, epoch.Add(24*time.Hour), minEl)
	require.NoError(t, err)
	require.NotEmpty(t, passes, "ISS should pass over NYC within a day")

	for i, p := range passes {
		assert.GreaterOrEqual(t, p.MaxElevation, minEl, "pass %d", i)
		assert.LessOrEqual(t, p.MaxElevation, 90.0, "pass %d", i)
		assert.Less(t, p.Duration, 15*time.Minute, "pass %d", i)
		for _, az := range []float64{p.AOSAzimuth, p.TCAAzimuth, p.LOSAzimuth} {
			assert.GreaterOrEqual(t, az, 0.0)
			assert.Less(t, az, 360.0)
		}
		if !p.AOSTruncated {
			assert.GreaterOrEqual(t, elevationAt(t, iss, nyc, p.AOS), minEl, "pass %d AOS", i)
			assert.Less(t, elevationAt(t, iss, nyc, p.AOS.Add(-time.Second)), minEl, "pass %d before AOS", i)
		}
		if !p.LOSTruncated {
			assert.GreaterOrEqual(t, elevationAt(t, iss, nyc, p.LOS), minEl, "pass %d LOS", i)
			assert.Less(t, elevationAt(t, iss, nyc, p.LOS.Add(time.Second)), minEl, "pass %d after LOS", i)
		}
		assert.LessOrEqual(t, elevationAt(t, iss, nyc, p.TCA.Add(-2*time.Second)), p.MaxElevation, "pass %d", i)
		assert.LessOrEqual(t, elevationAt(t, iss, nyc, p.TCA.Add(2*time.Second)), p.MaxElevation, "pass %d", i)
	}
}

// haversineKm computes the great-circle distance (km) between two geodetic points.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371.0
	φ1 := lat1 * math.Pi / 180
	φ2 := lat2 * math.Pi / 180
	Δφ := (lat2 - lat1) * math.Pi / 180
	Δλ := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(Δφ/2)*math.Sin(Δφ/2) + math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2)
	return R * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// maxGroundDistKm returns the largest observer to sub-satellite distance
// at elevation elevDeg and altitude altKm: ρ = acos(R·cos(ε)/(R+h)) − ε.
func maxGroundDistKm(elevDeg, altKm float64) float64 {
	const R = 6371.0
	e := elevDeg * math.Pi / 180
	arg := math.Min(R*math.Cos(e)/(R+altKm), 1)
	return R * math.Max(math.Acos(arg)-e, 0)
}

func TestGroundTrack(t *testing.T) {
	iss := mustISS(t)
	// Parrish, FL
	const lat, lon = 27.5867, -82.4251
	obs, err := transform.NewObserver(lat, lon, 0)
	require.NoError(t, err)

	passes, err := FindPasses(iss, obs, epoch, epoch.Add(24*time.Hour), 0)
	require.NoError(t, err)
	require.NotEmpty(t, passes)

	for pi, p := range passes {
		track, err := GroundTrack(iss, obs, p, 10*time.Second)
		require.NoError(t, err)
		require.NotEmpty(t, track)
		assert.Equal(t, p.AOS, track[0].Time)

		for gi, gt := range track {
			assert.GreaterOrEqual(t, gt.Elevation, -1e-6, "pass %d point %d", pi, gi)
			assert.InDelta(t, 420, gt.Altitude, 60, "pass %d point %d", pi, gi)
			dist := haversineKm(lat, lon, gt.Latitude, gt.Longitude)
			assert.LessOrEqual(t, dist, maxGroundDistKm(gt.Elevation, gt.Altitude)*1.05+5,
				"pass %d point %d at elevation %.1f", pi, gi, gt.Elevation)
		}
	}
}

func TestGroundStation(t *testing.T) {
	obs := equatorObserver(t)
	gs := NewGroundStation("equator", obs)
	assert.Equal(t, DefaultMinElevation, gs.MinElevation)

	got, err := gs.Passes(ringPropagator{}, epoch.Add(-1000*time.Second), epoch.Add(1000*time.Second))
	require.NoError(t, err)
	want, err := FindPasses(ringPropagator{}, obs, epoch.Add(-1000*time.Second), epoch.Add(1000*time.Second), DefaultMinElevation)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPredict(t *testing.T) {
	obs := equatorObserver(t)
	req := Request{
		Station: NewGroundStation("equator", obs),
		Targets: []Target{
			{CatalogNumber: 1, Name: "RING", Propagator: ringPropagator{}},
			{CatalogNumber: 2, Name: "BROKEN", Propagator: ringPropagator{failAfter: epoch.Add(-time.Hour)}},
			{CatalogNumber: 25544, Name: "ISS", Propagator: mustISS(t)},
		},
		Start: epoch,
		End:   epoch.Add(12 * time.Hour),
	}

	results := Predict(context.Background(), req)
	require.Len(t, results, 3)

	assert.Equal(t, 1, results[0].CatalogNumber)
	assert.NoError(t, results[0].Err)
	assert.NotEmpty(t, results[0].Passes)

	assert.Equal(t, "BROKEN", results[1].Name)
	assert.ErrorIs(t, results[1].Err, errBoom)
	assert.Empty(t, results[1].Passes)

	assert.Equal(t, 25544, results[2].CatalogNumber)
	assert.NoError(t, results[2].Err)
}

func TestPredictCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	obs := equatorObserver(t)
	req := Request{
		Station: NewGroundStation("equator", obs),
		Targets: []Target{
			{CatalogNumber: 1, Propagator: ringPropagator{}},
			{CatalogNumber: 2, Propagator: ringPropagator{}},
		},
		Start: epoch,
		End:   epoch.Add(24 * time.Hour),
	}
	for _, r := range Predict(ctx, req) {
		assert.ErrorIs(t, r.Err, context.Canceled, "object %d", r.CatalogNumber)
		assert.Empty(t, r.Passes)
	}
}

func BenchmarkFindPassesISSDay(b *testing.B) {
	iss := mustISS(b)
	nyc, err := transform.NewObserver(40.7128, -74.006, 0)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := FindPasses(iss, nyc, epoch, epoch.Add(24*time.Hour), 10); err != nil {
			b.Fatal(err)
		}
	}
}
