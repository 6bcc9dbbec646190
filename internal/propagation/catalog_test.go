package propagation

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/sattrack/internal/sgp4"
	"github.com/star/sattrack/internal/tle"
)

func testStore(t *testing.T, catalog string) *tle.Store {
	t.Helper()
	elements, err := tle.Parse(strings.NewReader(catalog), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	s := tle.NewStore()
	s.Set(tle.NewDataset("test", time.Now(), elements))
	return s
}

const testCatalog = "ISS (ZARYA)\n" + issLine1 + "\n" + issLine2 + "\n" +
	"GEO\n" + geoLine1 + "\n" + geoLine2 + "\n" +
	"DECAYING\n" + decayLine1 + "\n" + decayLine2 + "\n"

func TestCatalogNoDataset(t *testing.T) {
	c := NewCatalog(tle.NewStore(), NewWorkerPool(2, testLogger()), testLogger())
	if _, err := c.Objects(); !errors.Is(err, ErrNoCatalog) {
		t.Errorf("Objects err = %v, want ErrNoCatalog", err)
	}
	if _, err := c.Snapshot(context.Background(), epoch); !errors.Is(err, ErrNoCatalog) {
		t.Errorf("Snapshot err = %v, want ErrNoCatalog", err)
	}
}

func TestCatalogLookup(t *testing.T) {
	c := NewCatalog(testStore(t, testCatalog), NewWorkerPool(2, testLogger()), testLogger())

	objs, err := c.Objects()
	if err != nil {
		t.Fatal(err)
	}
	if len(objs) != 3 {
		t.Fatalf("got %d objects, want 3", len(objs))
	}

	obj, err := c.Lookup(26038)
	if err != nil {
		t.Fatal(err)
	}
	if obj.Elements.Name != "GEO" || !obj.Propagator.IsDeepSpace() {
		t.Errorf("Lookup(26038) = %q deep=%v", obj.Elements.Name, obj.Propagator.IsDeepSpace())
	}

	if _, err := c.Lookup(12345); !errors.Is(err, ErrUnknownObject) {
		t.Errorf("Lookup(12345) err = %v, want ErrUnknownObject", err)
	}
}

func TestCatalogSnapshot(t *testing.T) {
	c := NewCatalog(testStore(t, testCatalog), NewWorkerPool(2, testLogger()), testLogger())
	at := epoch.Add(10 * time.Hour)

	snap, err := c.Snapshot(context.Background(), at)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Positions) != 2 {
		t.Fatalf("got %d positions, want 2", len(snap.Positions))
	}
	if !errors.Is(snap.Failed[99001], sgp4.ErrDecayedOrbit) {
		t.Errorf("Failed[99001] = %v, want ErrDecayedOrbit", snap.Failed[99001])
	}

	for _, p := range snap.Positions {
		if !p.Time.Equal(at) {
			t.Errorf("%d: time %v, want %v", p.CatalogNumber, p.Time, at)
		}
		// Rotation preserves the radius.
		if r := r3.Norm(p.ECEF.Position); math.Abs(r-p.TEME.Radius()) > 1e-6 {
			t.Errorf("%d: |r_ecef| %.6f != |r_teme| %.6f", p.CatalogNumber, r, p.TEME.Radius())
		}
	}

	geo := snap.Positions[1]
	if geo.CatalogNumber != 26038 {
		t.Fatalf("second position is %d, want 26038", geo.CatalogNumber)
	}
	if math.Abs(geo.Geodetic.LatitudeDeg) > 0.2 || geo.Geodetic.AltitudeKm < 35700 || geo.Geodetic.AltitudeKm > 35900 {
		t.Errorf("GEO geodetic = %+v", geo.Geodetic)
	}

	direct, err := c.Position(26038, at)
	if err != nil {
		t.Fatal(err)
	}
	if direct.ECEF.Position != geo.ECEF.Position {
		t.Errorf("Position and Snapshot disagree: %v vs %v", direct.ECEF.Position, geo.ECEF.Position)
	}
}

func TestCatalogRebuildsOnNewDataset(t *testing.T) {
	store := testStore(t, testCatalog)
	c := NewCatalog(store, NewWorkerPool(2, testLogger()), testLogger())

	if objs, _ := c.Objects(); len(objs) != 3 {
		t.Fatalf("got %d objects, want 3", len(objs))
	}

	elements, err := tle.Parse(strings.NewReader(issLine1+"\n"+issLine2+"\n"), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	store.Set(tle.NewDataset("reload", time.Now(), elements))

	objs, err := c.Objects()
	if err != nil {
		t.Fatal(err)
	}
	if len(objs) != 1 || objs[0].Elements.CatalogNumber != 25544 {
		t.Errorf("after reload got %d objects", len(objs))
	}
	if _, err := c.Lookup(26038); !errors.Is(err, ErrUnknownObject) {
		t.Errorf("Lookup after reload err = %v, want ErrUnknownObject", err)
	}
}

func TestCatalogSkipsUninitializable(t *testing.T) {
	es, err := tle.ParseLines(issLine1, issLine2)
	if err != nil {
		t.Fatal(err)
	}
	bad := *es
	bad.CatalogNumber = 1
	bad.Eccentricity = 0.5 // perigee inside the Earth

	store := tle.NewStore()
	store.Set(tle.NewDataset("test", time.Now(), []*tle.ElementSet{es, &bad}))
	c := NewCatalog(store, NewWorkerPool(1, testLogger()), testLogger())

	_, err = c.Lookup(1)
	if !errors.Is(err, ErrUnknownObject) {
		t.Fatalf("err = %v, want ErrUnknownObject", err)
	}
	var initErr *sgp4.InitError
	if !errors.As(err, &initErr) {
		t.Errorf("err = %v does not wrap the init failure", err)
	}
}

func TestCatalogPositions(t *testing.T) {
	c := NewCatalog(testStore(t, testCatalog), NewWorkerPool(2, testLogger()), testLogger())

	got, err := c.Positions(context.Background(), 25544, epoch, epoch.Add(time.Hour), 10*time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 7 {
		t.Fatalf("got %d positions, want 7", len(got))
	}
	if !got[6].Time.Equal(epoch.Add(time.Hour)) {
		t.Errorf("last sample at %v", got[6].Time)
	}

	// Decay stops the series at the first failed sample.
	got, err = c.Positions(context.Background(), 99001, epoch, epoch.Add(6*time.Hour), time.Hour)
	if !errors.Is(err, sgp4.ErrDecayedOrbit) {
		t.Fatalf("err = %v, want ErrDecayedOrbit", err)
	}
	if len(got) != 4 {
		t.Errorf("got %d positions before decay, want 4", len(got))
	}

	if _, err := c.Positions(context.Background(), 25544, epoch, epoch.Add(-time.Hour), time.Minute); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("err = %v, want ErrInvalidRange", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{&sgp4.PropagationError{Kind: sgp4.ErrDecayedOrbit}, "decayed"},
		{&sgp4.PropagationError{Kind: sgp4.ErrInvalidDomain}, "invalid_domain"},
		{context.Canceled, "error"},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestCountOutcomesSkipsCancelled(t *testing.T) {
	results := []Result{
		{},
		{Err: &sgp4.PropagationError{Kind: sgp4.ErrDecayedOrbit}},
		{Err: context.Canceled},
		{Err: context.Canceled},
	}

	got := countOutcomes(results, context.Canceled)
	want := map[string]int{"ok": 1, "decayed": 1}
	if len(got) != len(want) || got["ok"] != 1 || got["decayed"] != 1 {
		t.Errorf("countOutcomes(cancelled) = %v, want %v", got, want)
	}

	// Without cancellation a context error from a propagator is a real failure.
	if got := countOutcomes(results, nil); got["error"] != 2 {
		t.Errorf("countOutcomes(nil)[error] = %d, want 2", got["error"])
	}
}
