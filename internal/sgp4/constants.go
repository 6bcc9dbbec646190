// Package sgp4 implements the NORAD SGP4 (near-Earth) and SDP4 (deep-space)
// analytic propagators following Vallado et al., "Revisiting Spacetrack
// Report #3" (AIAA 2006-6753), in improved operations mode.
//
// A Propagator is built once per element set and never mutated afterwards,
// so a single instance may be evaluated from many goroutines. Output state
// vectors are in the TEME frame, km and km/s.
package sgp4

import (
	"math"
	"time"
)

// WGS-72 gravity constants, the set element sets are generated with.
const (
	mu            = 398600.8 // km³/s²
	earthRadiusKm = 6378.135
	j2            = 0.001082616
	j3            = -0.00000253881
	j4            = -0.00000165597
	j3oj2         = j3 / j2
)

const (
	twoPi   = 2 * math.Pi
	x2o3    = 2.0 / 3.0
	deg2rad = math.Pi / 180

	minutesPerDay = 1440.0

	// jd1950 is the Julian date of 1950 January 0.0, the model's day origin.
	jd1950 = 2433281.5

	// deepSpacePeriod is the recovered period (minutes) at which SDP4 takes over.
	deepSpacePeriod = 225.0
)

var (
	// xke is sqrt(mu) in earth radii^1.5 per minute.
	xke = 60.0 / math.Sqrt(earthRadiusKm*earthRadiusKm*earthRadiusKm/mu)
	// vkmpersec converts earth radii per minute to km/s.
	vkmpersec = earthRadiusKm * xke / 60.0
)

// DeepSpacePeriod is the orbital period at and above which SDP4 is selected.
const DeepSpacePeriod = time.Duration(deepSpacePeriod * float64(time.Minute))
