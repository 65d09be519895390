// Package specialize derives instance batches, splines and meshes from a
// part's buffers, each payload correlated to the part's base point set by
// point index.
package specialize

import (
	"errors"
	"fmt"
)

var (
	// ErrIndexOutOfRange is returned when upstream data references a point
	// outside the base set. It fails the whole part.
	ErrIndexOutOfRange = errors.New("specialize: index out of range")
	// ErrMalformedCurveData is reported for a single curve whose control
	// data is unusable. Other curves are still built.
	ErrMalformedCurveData = errors.New("specialize: malformed curve data")
)

// IndexError reports an out-of-range point reference.
type IndexError struct {
	What  string
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("specialize: %s references point %d, base set has %d", e.What, e.Index, e.Len)
}

func (e *IndexError) Unwrap() error { return ErrIndexOutOfRange }

// CurveError reports a dropped curve.
type CurveError struct {
	Part   string
	Curve  int
	Reason string
}

func (e *CurveError) Error() string {
	return fmt.Sprintf("specialize: part %q curve %d: %s", e.Part, e.Curve, e.Reason)
}

func (e *CurveError) Unwrap() error { return ErrMalformedCurveData }
