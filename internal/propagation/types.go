package propagation

import (
	"errors"
	"time"

	"github.com/star/sattrack/internal/transform"
)

// ErrInvalidRange is returned for a time span whose end precedes its start
// or whose step is not positive.
var ErrInvalidRange = errors.New("invalid time range")

// Propagator evaluates one object's TEME state at an instant.
// *sgp4.Propagator satisfies it.
type Propagator interface {
	Propagate(at time.Time) (transform.StateVector, error)
}

// Result is the outcome of propagating one object. Exactly one of State
// and Err is meaningful.
type Result struct {
	State transform.StateVector
	Err   error
}

// Position is one catalog object's Earth-fixed state and sub-satellite
// point at an instant.
type Position struct {
	CatalogNumber int
	Name          string
	Time          time.Time
	TEME          transform.StateVector
	ECEF          transform.EarthFixed
	Geodetic      transform.Geodetic
}

// Snapshot holds the positions of all catalog objects at a single instant.
// Objects whose propagation failed are listed in Failed with their error.
type Snapshot struct {
	Time      time.Time
	Positions []Position
	Failed    map[int]error
}
