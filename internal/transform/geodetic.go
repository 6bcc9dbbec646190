package transform

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// WGS-84 ellipsoid parameters.
const (
	wgs84A  = 6378.137              // semi-major axis (km)
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

const (
	geodeticMaxIter = 10
	geodeticTol     = 1e-12 // rad
)

const (
	deg2rad = math.Pi / 180
	rad2deg = 180 / math.Pi
)

// Geodetic is a WGS-84 position: latitude in [-90, 90], longitude in
// [-180, 180), altitude in km above the ellipsoid.
type Geodetic struct {
	LatitudeDeg  float64
	LongitudeDeg float64
	AltitudeKm   float64
}

// ECEF returns the Earth-fixed position of the geodetic point.
func (g Geodetic) ECEF() r3.Vec {
	sinLat, cosLat := math.Sincos(g.LatitudeDeg * deg2rad)
	sinLon, cosLon := math.Sincos(g.LongitudeDeg * deg2rad)

	// Radius of curvature in the prime vertical.
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
	return r3.Vec{
		X: (n + g.AltitudeKm) * cosLat * cosLon,
		Y: (n + g.AltitudeKm) * cosLat * sinLon,
		Z: (n*(1-wgs84E2) + g.AltitudeKm) * sinLat,
	}
}

// ECEFToGeodetic converts an Earth-fixed position (km) to geodetic
// coordinates by fixed-point iteration on latitude, starting from Bowring's
// estimate. It stops after geodeticMaxIter iterations and returns the last
// iterate if the latitude has not settled to geodeticTol; for any point
// above the Earth's core it converges in three or four.
func ECEFToGeodetic(r r3.Vec) Geodetic {
	lon := math.Atan2(r.Y, r.X)
	p := math.Hypot(r.X, r.Y)

	lat := math.Atan2(r.Z, p*(1-wgs84E2))
	for i := 0; i < geodeticMaxIter; i++ {
		sinLat := math.Sin(lat)
		n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		next := math.Atan2(r.Z+wgs84E2*n*sinLat, p)
		done := math.Abs(next-lat) < geodeticTol
		lat = next
		if done {
			break
		}
	}

	sinLat, cosLat := math.Sincos(lat)
	n := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = p/cosLat - n
	} else {
		alt = math.Abs(r.Z) - n*(1-wgs84E2)
	}

	return Geodetic{
		LatitudeDeg:  clamp(lat*rad2deg, -90, 90),
		LongitudeDeg: WrapLongitude(lon * rad2deg),
		AltitudeKm:   alt,
	}
}

// WrapLongitude maps degrees into [-180, 180).
func WrapLongitude(deg float64) float64 {
	deg = math.Mod(deg+180, 360)
	if deg < 0 {
		deg += 360
	}
	deg -= 180
	if deg >= 180 {
		deg = -180
	}
	return deg
}

// WrapAzimuth maps degrees into [0, 360).
func WrapAzimuth(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	if deg >= 360 {
		deg = 0
	}
	return deg
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
