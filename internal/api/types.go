package api

import (
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/star/sattrack/internal/passes"
	"github.com/star/sattrack/internal/propagation"
	"github.com/star/sattrack/internal/sgp4"
	"github.com/star/sattrack/internal/tle"
)

type vec3 [3]float64

func toVec3(v r3.Vec) vec3 { return vec3{v.X, v.Y, v.Z} }

// stateJSON is a position (km) and velocity (km/s) in one frame.
type stateJSON struct {
	Position vec3 `json:"position_km"`
	Velocity vec3 `json:"velocity_km_s"`
}

type positionJSON struct {
	NoradID   int       `json:"norad_id"`
	Name      string    `json:"name,omitempty"`
	Time      time.Time `json:"time"`
	TEME      stateJSON `json:"teme"`
	ECEF      stateJSON `json:"ecef"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude_km"`
}

func newPositionJSON(p propagation.Position) positionJSON {
	return positionJSON{
		NoradID:   p.CatalogNumber,
		Name:      p.Name,
		Time:      p.Time.UTC(),
		TEME:      stateJSON{Position: toVec3(p.TEME.Position), Velocity: toVec3(p.TEME.Velocity)},
		ECEF:      stateJSON{Position: toVec3(p.ECEF.Position), Velocity: toVec3(p.ECEF.Velocity)},
		Latitude:  p.Geodetic.LatitudeDeg,
		Longitude: p.Geodetic.LongitudeDeg,
		Altitude:  p.Geodetic.AltitudeKm,
	}
}

type satelliteJSON struct {
	NoradID        int       `json:"norad_id"`
	Name           string    `json:"name,omitempty"`
	IntlDesignator string    `json:"intl_designator,omitempty"`
	Epoch          time.Time `json:"epoch"`
	PeriodMinutes  float64   `json:"period_minutes"`
	Inclination    float64   `json:"inclination"`
	Eccentricity   float64   `json:"eccentricity"`
	PerigeeKm      float64   `json:"perigee_km"`
	ApogeeKm       float64   `json:"apogee_km"`
	DeepSpace      bool      `json:"deep_space"`
	Resonance      string    `json:"resonance"`
}

func newSatelliteJSON(es *tle.ElementSet, p *sgp4.Propagator) satelliteJSON {
	return satelliteJSON{
		NoradID:        es.CatalogNumber,
		Name:           es.Name,
		IntlDesignator: es.IntlDesignator,
		Epoch:          es.Epoch,
		PeriodMinutes:  p.Period().Minutes(),
		Inclination:    es.Inclination,
		Eccentricity:   es.Eccentricity,
		PerigeeKm:      es.PerigeeAltitude(),
		ApogeeKm:       es.ApogeeAltitude(),
		DeepSpace:      p.IsDeepSpace(),
		Resonance:      p.Resonance().String(),
	}
}

type failureJSON struct {
	NoradID int    `json:"norad_id"`
	Error   string `json:"error"`
	Kind    string `json:"kind"`
}

type snapshotJSON struct {
	Time      time.Time      `json:"time"`
	Count     int            `json:"count"`
	Positions []positionJSON `json:"positions"`
	Failed    []failureJSON  `json:"failed"`
}

type seriesJSON struct {
	NoradID   int            `json:"norad_id"`
	Name      string         `json:"name,omitempty"`
	Step      float64        `json:"step_seconds"`
	Positions []positionJSON `json:"positions"`
}

type passJSON struct {
	AOS             time.Time                 `json:"aos"`
	TCA             time.Time                 `json:"tca"`
	LOS             time.Time                 `json:"los"`
	MaxElevation    float64                   `json:"max_elevation"`
	DurationSeconds float64                   `json:"duration_seconds"`
	AOSAzimuth      float64                   `json:"aos_azimuth"`
	TCAAzimuth      float64                   `json:"tca_azimuth"`
	LOSAzimuth      float64                   `json:"los_azimuth"`
	AOSTruncated    bool                      `json:"aos_truncated"`
	LOSTruncated    bool                      `json:"los_truncated"`
	GroundTrack     []passes.GroundTrackPoint `json:"ground_track"`
}

func newPassJSON(p passes.Pass, track []passes.GroundTrackPoint) passJSON {
	return passJSON{
		AOS:             p.AOS.UTC(),
		TCA:             p.TCA.UTC(),
		LOS:             p.LOS.UTC(),
		MaxElevation:    p.MaxElevation,
		DurationSeconds: p.Duration.Seconds(),
		AOSAzimuth:      p.AOSAzimuth,
		TCAAzimuth:      p.TCAAzimuth,
		LOSAzimuth:      p.LOSAzimuth,
		AOSTruncated:    p.AOSTruncated,
		LOSTruncated:    p.LOSTruncated,
		GroundTrack:     track,
	}
}

type observerJSON struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude_km"`
}

type passesJSON struct {
	NoradID      int          `json:"norad_id"`
	Name         string       `json:"name,omitempty"`
	Observer     observerJSON `json:"observer"`
	Start        time.Time    `json:"start"`
	End          time.Time    `json:"end"`
	MinElevation float64      `json:"min_elevation"`
	Passes       []passJSON   `json:"passes"`
	// Error is set when the search stopped early; Passes holds those
	// completed before the failure.
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
}
