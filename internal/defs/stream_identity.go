package defs

import (
	"fmt"

	"github.com/streamsight/streamsight/internal/conf"
)

// StreamIdentity identifies a frame source.
// Two requests with the same identity share a single decode loop.
type StreamIdentity struct {
	Source    conf.SourceType
	VideoPath string
	CameraID  int
	Loop      bool
}

// Key returns the canonical registry key of the identity.
// Cameras are keyed by device id alone, since looping
// does not apply to live devices.
func (si StreamIdentity) Key() string {
	if si.Source == conf.SourceCamera {
		return fmt.Sprintf("camera://%d", si.CameraID)
	}
	return fmt.Sprintf("file://%s?loop=%v", si.VideoPath, si.Loop)
}

// String implements fmt.Stringer.
func (si StreamIdentity) String() string {
	return si.Key()
}
