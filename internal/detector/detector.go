// Package detector contains person detectors.
package detector

import (
	"fmt"

	"github.com/streamsight/streamsight/internal/defs"
)

// UnavailableError is returned when a detector cannot be loaded.
// Callers are expected to degrade to plain streaming.
type UnavailableError struct {
	Cause error
}

// Error implements the error interface.
func (e UnavailableError) Error() string {
	return fmt.Sprintf("detector is unavailable: %v", e.Cause)
}

// Unwrap returns the underlying cause.
func (e UnavailableError) Unwrap() error {
	return e.Cause
}

// A Detector finds persons inside a frame.
type Detector interface {
	Detect(frame *defs.Frame) ([]defs.BoundingBox, error)
	Close()
}
