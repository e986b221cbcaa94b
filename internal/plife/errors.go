package plife

import (
	"errors"
	"fmt"
)

// InvalidTypeError reports a particle type outside the rule table's
// configured range. It signals a configuration bug: the frame that hit
// it is aborted rather than defaulting silently.
type InvalidTypeError struct {
	Type     ParticleType
	NumTypes int
}

func (e *InvalidTypeError) Error() string {
	return fmt.Sprintf("particle type %d out of range (rule table has %d types)", e.Type, e.NumTypes)
}

// ErrNegativeDT is returned when a step is requested with dt < 0.
var ErrNegativeDT = errors.New("dt must not be negative")
