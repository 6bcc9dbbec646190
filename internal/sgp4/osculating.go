package sgp4

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/sattrack/internal/transform"
)

// Elements are classical osculating elements. Angles are in degrees.
type Elements struct {
	SemiMajorAxisKm float64
	Eccentricity    float64
	Inclination     float64
	RAAN            float64
	ArgPerigee      float64
	TrueAnomaly     float64
	MeanAnomaly     float64
}

// Osculating converts a TEME state to classical elements (Vallado RV2COE).
// Undefined angles of circular or equatorial orbits are reported as zero.
func Osculating(s transform.StateVector) Elements {
	const eps = 1e-10

	r, v := s.Position, s.Velocity
	rn, vn := r3.Norm(r), r3.Norm(v)
	h := r3.Cross(r, v)
	n := r3.Cross(r3.Vec{Z: 1}, h)

	xi := vn*vn/2 - mu/rn
	a := -mu / (2 * xi)
	ev := r3.Scale(1/mu, r3.Sub(r3.Scale(vn*vn-mu/rn, r), r3.Scale(r3.Dot(r, v), v)))
	e := r3.Norm(ev)

	incl := math.Acos(clampUnit(h.Z / r3.Norm(h)))

	var raan, argp float64
	if nn := r3.Norm(n); nn > eps {
		raan = math.Acos(clampUnit(n.X / nn))
		if n.Y < 0 {
			raan = twoPi - raan
		}
		if e > eps {
			argp = math.Acos(clampUnit(r3.Dot(n, ev) / (nn * e)))
			if ev.Z < 0 {
				argp = twoPi - argp
			}
		}
	}

	var nu float64
	if e > eps {
		nu = math.Acos(clampUnit(r3.Dot(ev, r) / (e * rn)))
		if r3.Dot(r, v) < 0 {
			nu = twoPi - nu
		}
	}

	var m float64
	if e < 1 {
		ea := 2 * math.Atan(math.Sqrt((1-e)/(1+e))*math.Tan(nu/2))
		m = math.Mod(ea-e*math.Sin(ea)+twoPi, twoPi)
	}

	return Elements{
		SemiMajorAxisKm: a,
		Eccentricity:    e,
		Inclination:     incl / deg2rad,
		RAAN:            raan / deg2rad,
		ArgPerigee:      argp / deg2rad,
		TrueAnomaly:     nu / deg2rad,
		MeanAnomaly:     m / deg2rad,
	}
}

func clampUnit(x float64) float64 {
	return math.Max(-1, math.Min(1, x))
}
