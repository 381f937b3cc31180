// Package encoder contains frame encoders.
package encoder

import (
	"github.com/streamsight/streamsight/internal/defs"
)

// A StillEncoder compresses single frames.
type StillEncoder interface {
	Encode(frame *defs.Frame) ([]byte, error)
}
