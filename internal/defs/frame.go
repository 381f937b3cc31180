// Package defs contains shared definitions.
package defs

import (
	"time"
)

// Frame is a decoded video frame in BGR24 pixel format.
type Frame struct {
	Width  int
	Height int
	Data   []byte
	PTS    time.Duration
}

// NewBlankFrame allocates a black frame with the given size.
func NewBlankFrame(width int, height int, pts time.Duration) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Data:   make([]byte, width*height*3),
		PTS:    pts,
	}
}
