// Package transform converts SGP4 output between reference frames.
//
// SGP4 produces state vectors in TEME (True Equator Mean Equinox). Earth-fixed
// coordinates are obtained by a rotation through GMST only (TEME → PEF ≈ ECEF),
// which ignores polar motion and the equation of the equinoxes. Geodetic
// coordinates use the WGS-84 ellipsoid; look angles use the SEZ horizon frame.
//
// All distances are kilometres and all velocities km/s.
//
// Reference: Vallado, "Fundamentals of Astrodynamics and Applications", Ch. 3-4.
package transform

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// StateVector is a TEME position and velocity at an instant.
type StateVector struct {
	Time     time.Time
	Position r3.Vec // km
	Velocity r3.Vec // km/s
}

// Speed returns the velocity magnitude in km/s.
func (s StateVector) Speed() float64 {
	return r3.Norm(s.Velocity)
}

// Radius returns the distance from Earth's centre in km.
func (s StateVector) Radius() float64 {
	return r3.Norm(s.Position)
}

// EarthFixed returns the state rotated into the Earth-fixed frame.
func (s StateVector) EarthFixed() EarthFixed {
	return TEMEToECEF(s)
}

// Geodetic returns the sub-satellite point and height.
func (s StateVector) Geodetic() Geodetic {
	return ECEFToGeodetic(TEMEToECEF(s).Position)
}

// EarthFixed is an Earth-centred Earth-fixed position and velocity.
type EarthFixed struct {
	Time     time.Time
	Position r3.Vec // km
	Velocity r3.Vec // km/s, relative to the rotating frame
}

// Geodetic returns the WGS-84 geodetic coordinates of the position.
func (e EarthFixed) Geodetic() Geodetic {
	return ECEFToGeodetic(e.Position)
}

// TEMEToECEF rotates a TEME state into the Earth-fixed frame at the state's instant.
func TEMEToECEF(s StateVector) EarthFixed {
	return TEMEToECEFWithGMST(s, GMST(s.Time))
}

// TEMEToECEFWithGMST transforms using a precomputed GMST angle (radians).
// Batch callers compute GMST once per instant.
//
// Position transform: r_ECEF = R3(θ) * r_TEME
// Velocity transform: v_ECEF = R3(θ) * v_TEME - ω × r_ECEF
//
// where ω = [0, 0, ω_earth] is Earth's angular velocity vector.
func TEMEToECEFWithGMST(s StateVector, gmst float64) EarthFixed {
	r := rotZ(s.Position, gmst)
	v := rotZ(s.Velocity, gmst)
	omega := r3.Vec{Z: OmegaEarth}
	return EarthFixed{
		Time:     s.Time,
		Position: r,
		Velocity: r3.Sub(v, r3.Cross(omega, r)),
	}
}

// rotZ applies the frame rotation R3(θ).
func rotZ(p r3.Vec, theta float64) r3.Vec {
	sin, cos := math.Sincos(theta)
	return r3.Vec{
		X: p.X*cos + p.Y*sin,
		Y: -p.X*sin + p.Y*cos,
		Z: p.Z,
	}
}

// Plausible reports whether an Earth-fixed position is finite and between
// 6200 km and 50000 km from Earth's centre.
func Plausible(p r3.Vec) bool {
	for _, c := range [...]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	mag := r3.Norm(p)
	return mag >= 6200 && mag <= 50000
}
