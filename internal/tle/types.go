package tle

import (
	"math"
	"time"
)

const (
	// earthRadiusKm is the WGS-72 equatorial radius used by element-set producers.
	earthRadiusKm = 6378.135
	// muKm3S2 is the WGS-72 gravitational parameter.
	muKm3S2 = 398600.8

	// DeepSpacePeriod is the orbital period at and above which SDP4 applies.
	DeepSpacePeriod = 225 * time.Minute
)

// ElementSet is one parsed two-line element set. Angles are in degrees,
// mean motion in revolutions per day. Values are immutable once parsed.
type ElementSet struct {
	Name           string
	CatalogNumber  int
	Classification byte
	IntlDesignator string

	EpochYear int     // four-digit year
	EpochDay  float64 // fractional day of year, 1-based
	Epoch     time.Time

	MeanMotionDot  float64 // first derivative / 2, rev/day²
	MeanMotionDDot float64 // second derivative / 6, rev/day³
	BStar          float64 // drag term, 1/earth radii

	EphemerisType    int
	ElementSetNumber int

	Inclination      float64
	RAAN             float64
	Eccentricity     float64
	ArgPerigee       float64
	MeanAnomaly      float64
	MeanMotion       float64
	RevolutionNumber int

	Checksum1 int
	Checksum2 int

	Line1 string
	Line2 string
}

// Period returns the nominal orbital period from the mean motion.
func (e *ElementSet) Period() time.Duration {
	if e.MeanMotion <= 0 {
		return 0
	}
	return time.Duration(float64(24*time.Hour) / e.MeanMotion)
}

// IsDeepSpace reports whether the period selects the deep-space model.
// The propagator decides on the drag-recovered mean motion, which can
// differ from this answer for periods within seconds of 225 minutes.
func (e *ElementSet) IsDeepSpace() bool {
	return e.Period() >= DeepSpacePeriod
}

// SemiMajorAxis returns the two-body semi-major axis in km.
func (e *ElementSet) SemiMajorAxis() float64 {
	n := e.MeanMotion * 2 * math.Pi / 86400 // rad/s
	if n <= 0 {
		return 0
	}
	return math.Cbrt(muKm3S2 / (n * n))
}

// PerigeeAltitude returns the two-body perigee height above the equatorial radius, km.
func (e *ElementSet) PerigeeAltitude() float64 {
	return e.SemiMajorAxis()*(1-e.Eccentricity) - earthRadiusKm
}

// ApogeeAltitude returns the two-body apogee height above the equatorial radius, km.
func (e *ElementSet) ApogeeAltitude() float64 {
	return e.SemiMajorAxis()*(1+e.Eccentricity) - earthRadiusKm
}

// EpochRange represents the minimum and maximum epoch times in a dataset.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// Dataset is a catalog of element sets loaded from one source.
type Dataset struct {
	Source     string
	LoadedAt   time.Time
	EpochRange EpochRange
	Elements   []*ElementSet

	byCatalog map[int]int
}

// NewDataset indexes elements by catalog number. When a catalog number
// repeats, the element set with the latest epoch wins the index.
func NewDataset(source string, loadedAt time.Time, elements []*ElementSet) *Dataset {
	ds := &Dataset{
		Source:    source,
		LoadedAt:  loadedAt,
		Elements:  elements,
		byCatalog: make(map[int]int, len(elements)),
	}
	for i, e := range elements {
		if i == 0 || e.Epoch.Before(ds.EpochRange.Min) {
			ds.EpochRange.Min = e.Epoch
		}
		if i == 0 || e.Epoch.After(ds.EpochRange.Max) {
			ds.EpochRange.Max = e.Epoch
		}
		if j, ok := ds.byCatalog[e.CatalogNumber]; ok && elements[j].Epoch.After(e.Epoch) {
			continue
		}
		ds.byCatalog[e.CatalogNumber] = i
	}
	return ds
}

// Lookup returns the element set for a catalog number.
func (ds *Dataset) Lookup(catalogNumber int) (*ElementSet, bool) {
	i, ok := ds.byCatalog[catalogNumber]
	if !ok {
		return nil, false
	}
	return ds.Elements[i], true
}

// Len returns the number of element sets in the dataset.
func (ds *Dataset) Len() int {
	return len(ds.Elements)
}
