package sgp4

import (
	"errors"
	"fmt"
)

// Propagation failure kinds. Both are terminal for the requested instant:
// retrying with the same input reproduces them.
var (
	// ErrDecayedOrbit means the orbit has reached the Earth's surface.
	ErrDecayedOrbit = errors.New("orbit decayed")
	// ErrInvalidDomain means a mean element left the model's valid domain.
	ErrInvalidDomain = errors.New("elements outside model domain")
)

// InitError reports an element set the model cannot be initialized from.
type InitError struct {
	CatalogNumber int
	Reason        string
	Err           error // underlying propagation failure at epoch, if any
}

func (e *InitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sgp4 init %d: %s: %v", e.CatalogNumber, e.Reason, e.Err)
	}
	return fmt.Sprintf("sgp4 init %d: %s", e.CatalogNumber, e.Reason)
}

func (e *InitError) Unwrap() error { return e.Err }

// PropagationError reports a physically invalid state at one instant.
// errors.Is matches it against ErrDecayedOrbit or ErrInvalidDomain.
type PropagationError struct {
	CatalogNumber     int
	MinutesSinceEpoch float64
	Kind              error
	Reason            string
	Value             float64 // the offending quantity
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("sgp4 %d at %+.3f min: %v: %s (%g)",
		e.CatalogNumber, e.MinutesSinceEpoch, e.Kind, e.Reason, e.Value)
}

func (e *PropagationError) Unwrap() error { return e.Kind }
