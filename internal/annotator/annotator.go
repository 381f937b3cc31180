// Package annotator runs detection on decoded frames and
// draws the resulting overlays.
package annotator

import (
	"sync"
	"time"

	"github.com/streamsight/streamsight/internal/defs"
	"github.com/streamsight/streamsight/internal/detector"
	"github.com/streamsight/streamsight/internal/logger"
)

// drawOverlay renders boxes on top of a frame; overridden in tests.
var drawOverlay = gocvDraw

// Annotator runs the detector on each frame of a stream and
// keeps the summary of the last successful detection.
type Annotator struct {
	Detector detector.Detector // nil when running degraded
	Parent   logger.Writer

	mutex        sync.Mutex
	frameNumber  int64
	lastSummary  *defs.DetectionSummary
	detectErrLog *logger.Limited
}

// Initialize initializes an Annotator.
func (a *Annotator) Initialize() {
	a.detectErrLog = &logger.Limited{
		Parent:   a.Parent,
		Interval: 5 * time.Second,
	}
}

// Enabled reports whether detection is active.
func (a *Annotator) Enabled() bool {
	return a.Detector != nil
}

// Process runs detection on a frame. It returns the frame to
// publish (annotated when boxes were found) and the summary
// associated with it. When the detector fails, the input frame
// is returned unchanged and the previous summary is kept.
func (a *Annotator) Process(frame *defs.Frame) (*defs.Frame, *defs.DetectionSummary) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.frameNumber++

	if a.Detector == nil {
		summary := defs.Summarize(nil, a.frameNumber)
		a.lastSummary = summary
		return frame, summary
	}

	boxes, err := a.Detector.Detect(frame)
	if err != nil {
		a.detectErrLog.Log(logger.Warn, "detection failed: %v", err)
		return frame, a.lastSummary
	}

	out := frame
	if len(boxes) > 0 {
		out = drawOverlay(frame, boxes)
	}

	summary := defs.Summarize(boxes, a.frameNumber)
	a.lastSummary = summary

	return out, summary
}

// LastSummary returns the summary of the last successful detection.
func (a *Annotator) LastSummary() *defs.DetectionSummary {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.lastSummary
}
