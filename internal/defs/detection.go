package defs

import (
	"time"
)

// BoundingBox is a detected region inside a frame.
// Center coordinates and size are in pixels; the _norm
// variants are normalized to [0, 1] over the frame size.
type BoundingBox struct {
	ID         int     `json:"id"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	XNorm      float64 `json:"x_norm"`
	YNorm      float64 `json:"y_norm"`
	WidthNorm  float64 `json:"width_norm"`
	HeightNorm float64 `json:"height_norm"`
	Confidence float64 `json:"confidence"`
}

// DetectionSummary is the aggregated outcome of running
// the detector on a single frame.
type DetectionSummary struct {
	TotalPersons      int           `json:"total_persons"`
	AverageConfidence float64       `json:"average_confidence"`
	Positions         []BoundingBox `json:"positions"`

	// Timestamp is in milliseconds since the Unix epoch.
	Timestamp   int64 `json:"timestamp"`
	FrameNumber int64 `json:"frame_number"`
}

// Summarize builds a DetectionSummary from a list of boxes.
// The average confidence of an empty list is zero.
func Summarize(boxes []BoundingBox, frameNumber int64) *DetectionSummary {
	avg := 0.0
	if len(boxes) > 0 {
		sum := 0.0
		for _, b := range boxes {
			sum += b.Confidence
		}
		avg = sum / float64(len(boxes))
	}

	return &DetectionSummary{
		TotalPersons:      len(boxes),
		AverageConfidence: avg,
		Positions:         boxes,
		Timestamp:         time.Now().UnixMilli(),
		FrameNumber:       frameNumber,
	}
}
