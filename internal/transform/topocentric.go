package transform

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Observer is a ground location with its Earth-fixed position and horizon
// rotation precomputed, so it can be reused across many look-angle queries.
type Observer struct {
	Geodetic
	ecef r3.Vec

	sinLat, cosLat float64
	sinLon, cosLon float64
}

// NewObserver creates an Observer from latitude and longitude in degrees
// and altitude in km above the WGS-84 ellipsoid. Longitude is normalized.
func NewObserver(latDeg, lonDeg, altKm float64) (Observer, error) {
	if math.IsNaN(latDeg) || latDeg < -90 || latDeg > 90 {
		return Observer{}, fmt.Errorf("observer latitude %g outside [-90, 90]", latDeg)
	}
	if math.IsNaN(lonDeg) || math.IsInf(lonDeg, 0) {
		return Observer{}, fmt.Errorf("observer longitude %g not finite", lonDeg)
	}
	if math.IsNaN(altKm) || altKm < -1 || altKm > 100 {
		return Observer{}, fmt.Errorf("observer altitude %g km outside [-1, 100]", altKm)
	}

	g := Geodetic{LatitudeDeg: latDeg, LongitudeDeg: WrapLongitude(lonDeg), AltitudeKm: altKm}
	o := Observer{Geodetic: g, ecef: g.ECEF()}
	o.sinLat, o.cosLat = math.Sincos(latDeg * deg2rad)
	o.sinLon, o.cosLon = math.Sincos(g.LongitudeDeg * deg2rad)
	return o, nil
}

// ECEF returns the observer's Earth-fixed position in km.
func (o Observer) ECEF() r3.Vec {
	return o.ecef
}

// Look holds the topocentric view of an object from an observer.
type Look struct {
	AzimuthDeg   float64 // 0 = North, clockwise, [0, 360)
	ElevationDeg float64 // 0 = horizon, 90 = zenith
	RangeKm      float64
	RangeRateKmS float64 // positive when receding
}

// LookAngles computes the view of an Earth-fixed state from o.
//
// Uses the SEZ (South-East-Zenith) topocentric rotation per Vallado Section 4.4.
// Range-rate is the projection of the Earth-fixed velocity on the line of sight.
func LookAngles(o Observer, sat EarthFixed) Look {
	rho := r3.Sub(sat.Position, o.ecef)
	rangeKm := r3.Norm(rho)
	if rangeKm == 0 {
		return Look{ElevationDeg: 90}
	}
	sez := o.toSEZ(rho)

	// North = -South, so az = atan2(east, -south).
	az := math.Atan2(sez.Y, -sez.X) * rad2deg
	el := math.Asin(clamp(sez.Z/rangeKm, -1, 1)) * rad2deg

	return Look{
		AzimuthDeg:   WrapAzimuth(az),
		ElevationDeg: el,
		RangeKm:      rangeKm,
		RangeRateKmS: r3.Dot(rho, sat.Velocity) / rangeKm,
	}
}

// Elevation returns only the elevation angle in degrees. Pass searches
// evaluate it many times per object.
func Elevation(o Observer, satECEF r3.Vec) float64 {
	rho := r3.Sub(satECEF, o.ecef)
	rangeKm := r3.Norm(rho)
	if rangeKm == 0 {
		return 90
	}
	zenith := o.cosLat*o.cosLon*rho.X + o.cosLat*o.sinLon*rho.Y + o.sinLat*rho.Z
	return math.Asin(clamp(zenith/rangeKm, -1, 1)) * rad2deg
}

// toSEZ rotates an Earth-fixed vector into the observer's South-East-Zenith frame.
func (o Observer) toSEZ(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: o.sinLat*o.cosLon*v.X + o.sinLat*o.sinLon*v.Y - o.cosLat*v.Z,
		Y: -o.sinLon*v.X + o.cosLon*v.Y,
		Z: o.cosLat*o.cosLon*v.X + o.cosLat*o.sinLon*v.Y + o.sinLat*v.Z,
	}
}
